// Package metrics provides internal Prometheus metrics collection for the
// engine and the generation builder. A nil *Collector is valid and records
// nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the counters and histograms of one registry.
type Collector struct {
	cacheLookups   *prometheus.CounterVec
	modelCalls     *prometheus.CounterVec
	modelDuration  *prometheus.HistogramVec
	modelTokens    *prometheus.CounterVec
	toolCalls      *prometheus.CounterVec
	artifactsSaved *prometheus.CounterVec
	retries        *prometheus.CounterVec
}

// NewCollector registers the metrics under namespace on reg. Passing
// prometheus.DefaultRegisterer exposes them on the default handler.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Artifact cache lookups by result (hit, miss)",
			},
			[]string{"result", "policy"},
		),
		modelCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_calls_total",
				Help:      "Total number of model calls",
			},
			[]string{"provider", "model", "status"},
		),
		modelDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "model_call_duration_seconds",
				Help:      "Model call duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),
		modelTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_tokens_total",
				Help:      "Tokens reported by model responses",
			},
			[]string{"model", "type"},
		),
		toolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Tool calls by outcome",
			},
			[]string{"tool", "status"},
		),
		artifactsSaved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "artifacts_saved_total",
				Help:      "Artifacts persisted by content type",
			},
			[]string{"content_type"},
		),
		retries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generation_retries_total",
				Help:      "Generation retries by error kind",
			},
			[]string{"kind"},
		),
	}
}

// RecordCacheLookup counts a staleness decision.
func (c *Collector) RecordCacheLookup(hit bool, policy string) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(result, policy).Inc()
}

// RecordModelCall counts a model call and observes its duration.
func (c *Collector) RecordModelCall(provider, model string, err error, d time.Duration) {
	if c == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.modelCalls.WithLabelValues(provider, model, status).Inc()
	c.modelDuration.WithLabelValues(provider, model).Observe(d.Seconds())
}

// RecordTokens adds prompt and completion token counts.
func (c *Collector) RecordTokens(model string, prompt, completion int) {
	if c == nil {
		return
	}
	c.modelTokens.WithLabelValues(model, "prompt").Add(float64(prompt))
	c.modelTokens.WithLabelValues(model, "completion").Add(float64(completion))
}

// RecordToolCall counts one executed tool call.
func (c *Collector) RecordToolCall(tool string, err error) {
	if c == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.toolCalls.WithLabelValues(tool, status).Inc()
}

// RecordArtifactSaved counts a persisted artifact.
func (c *Collector) RecordArtifactSaved(contentType string) {
	if c == nil {
		return
	}
	c.artifactsSaved.WithLabelValues(contentType).Inc()
}

// RecordRetry counts a retried generation attempt.
func (c *Collector) RecordRetry(kind string) {
	if c == nil {
		return
	}
	c.retries.WithLabelValues(kind).Inc()
}
