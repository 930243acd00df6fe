package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/llmflow/artifact"
	"github.com/hupe1980/llmflow/core"
	"github.com/hupe1980/llmflow/ctxtree"
	"github.com/hupe1980/llmflow/internal/metrics"
	"github.com/hupe1980/llmflow/internal/util"
	"github.com/hupe1980/llmflow/logging"
	"github.com/hupe1980/llmflow/model"
	"github.com/hupe1980/llmflow/tokens"
	"github.com/hupe1980/llmflow/tool"
)

// TracerName is the instrumentation scope of engine spans.
const TracerName = "github.com/hupe1980/llmflow/engine"

// Request is one generation step.
type Request struct {
	// Model answers the request. Required.
	Model model.Model

	// Messages are appended to the context node before the call.
	Messages []core.Message

	// System is the caller supplied system text. The format instruction is
	// appended to it.
	System string

	// Format declares the expected output shape.
	Format core.OutputFormat

	// Schema optionally constrains json output.
	Schema map[string]any

	// Tools are offered to the model. Empty means no tool calling.
	Tools []tool.Tool

	// Output names the artifact to read or write. Required.
	Output string

	// Overwrite decides when a stored artifact is reused.
	Overwrite core.OverwritePolicy

	// Timestamp is the freshness timestamp of the inputs (policy timestamp).
	Timestamp int64

	MaxTokens   int
	Temperature *float64
}

// Result is the outcome of Run.
type Result struct {
	// Artifact is the stored (or reused) artifact.
	Artifact *core.Artifact

	// Context holds the request messages followed by the model answer (and
	// tool results).
	Context *ctxtree.Node

	// Errors lists output validation failures and failed tool calls. They
	// are not returned as error so callers decide whether to retry.
	Errors []error

	// Value is the parsed json output when the format is json and parsing
	// succeeded.
	Value any

	// ToolCalls holds one entry per executed tool call in call order.
	ToolCalls []ToolCallResult

	// ToolResults is the tool_results aggregate keyed by call id.
	ToolResults map[string]any

	// Cached reports that no model call was made.
	Cached bool

	// Response is the model response, nil on cache hits.
	Response *model.Response
}

// Options configures an Engine instance using the functional options pattern.
type Options struct {
	// Store persists artifacts. Defaults to an in-memory store.
	Store core.ArtifactStore

	// Logger provides structured logging. Defaults to NoOp.
	Logger logging.Logger

	// Counter estimates artifact sizes in tokens. Defaults to tokens.Default.
	Counter tokens.Counter

	// Limiter optionally caps the number of model calls.
	Limiter *core.ModelLimiter

	// Metrics records Prometheus metrics when set.
	Metrics *metrics.Collector

	// Tracer creates spans. Defaults to the global otel tracer provider.
	Tracer trace.Tracer

	// ToolParallelism bounds concurrent tool calls; <1 means unbounded.
	ToolParallelism int

	// Callbacks hooks into the model and tool phases.
	Callbacks *CallbackManager
}

// Engine executes requests against an artifact store. It is safe for
// concurrent use; a single workflow typically drives it sequentially.
type Engine struct {
	store     core.ArtifactStore
	logger    logging.Logger
	counter   tokens.Counter
	limiter   *core.ModelLimiter
	metrics   *metrics.Collector
	tracer    trace.Tracer
	callbacks *CallbackManager
	executor  *toolExecutor
}

// New creates a new Engine with sensible defaults.
//
// Example:
//
//	eng := engine.New(func(o *engine.Options) {
//	    o.Store = fileStore
//	    o.Logger = logger
//	    o.Limiter = core.NewModelLimiter(100)
//	})
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Store:   artifact.NewInMemoryStore(),
		Logger:  logging.NoOpLogger{},
		Counter: tokens.Default,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(TracerName)
	}
	if opts.Counter == nil {
		opts.Counter = tokens.Default
	}
	logger := logging.OrNoOp(opts.Logger)

	e := &Engine{
		store:     opts.Store,
		logger:    logger,
		counter:   opts.Counter,
		limiter:   opts.Limiter,
		metrics:   opts.Metrics,
		tracer:    opts.Tracer,
		callbacks: opts.Callbacks,
	}
	e.executor = &toolExecutor{
		maxParallel: opts.ToolParallelism,
		logger:      logger,
		callbacks:   opts.Callbacks,
		onResult: func(r ToolCallResult) {
			var err error
			if r.Err != nil {
				err = r.Err
			}
			e.metrics.RecordToolCall(r.Call.Name, err)
		},
	}
	return e
}

// Store returns the artifact store of the engine.
func (e *Engine) Store() core.ArtifactStore { return e.store }

// Logger returns the engine logger.
func (e *Engine) Logger() logging.Logger { return e.logger }

// Counter returns the token counter of the engine.
func (e *Engine) Counter() tokens.Counter { return e.counter }

// Metrics returns the collector (possibly nil).
func (e *Engine) Metrics() *metrics.Collector { return e.metrics }

// Run executes req on top of node.
//
// When the stored artifact is fresh under req.Overwrite no model call is
// made and the stored content is returned as assistant message. Otherwise
// the model is called, tool calls are executed and the output is persisted.
func (e *Engine) Run(ctx context.Context, node *ctxtree.Node, req Request) (res *Result, err error) {
	if req.Model == nil {
		return nil, fmt.Errorf("engine: request for %q has no model", req.Output)
	}
	if req.Output == "" {
		return nil, fmt.Errorf("engine: request has no output name")
	}
	if req.Format == "" {
		req.Format = core.FormatString
	}

	ctx, span := e.tracer.Start(ctx, "engine.run", trace.WithAttributes(
		attribute.String("output", req.Output),
		attribute.String("policy", string(req.Overwrite)),
		attribute.String("model", req.Model.Info().Name),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			_ = e.callbacks.ExecuteCallbacks(ctx, CallbackOnError, &CallbackContext{Request: &req, Err: err})
		}
		span.End()
	}()

	pre := node.NewBranch(req.Messages...)
	all := pre.AllMessages()

	hash, err := InputHash(all, req)
	if err != nil {
		return nil, err
	}

	decision, err := artifact.CheckStaleness(ctx, e.store, artifact.Staleness{
		Name:      req.Output,
		Policy:    req.Overwrite,
		InputHash: hash,
		Timestamp: req.Timestamp,
	})
	if err != nil {
		return nil, err
	}

	if !decision.Stale {
		cached, err := e.cacheHit(ctx, pre, &req)
		if err == nil {
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return cached, nil
		}
		if !errors.Is(err, core.ErrNotFound) {
			return nil, err
		}
		// content vanished between metadata and content read
		decision.Existing = nil
	}
	span.SetAttributes(attribute.Bool("cache_hit", false))
	e.metrics.RecordCacheLookup(false, string(req.Overwrite))

	return e.generate(ctx, pre, &req, hash, decision.Existing)
}

func (e *Engine) cacheHit(ctx context.Context, pre *ctxtree.Node, req *Request) (*Result, error) {
	a, err := e.store.Latest(ctx, req.Output)
	if err != nil {
		return nil, err
	}
	e.metrics.RecordCacheLookup(true, string(req.Overwrite))
	e.logger.Info("engine.cache.hit", "output", req.Output, "version", a.Metadata.Version, "policy", string(req.Overwrite))

	if req.Overwrite != core.OverwriteSkip && req.Overwrite != core.OverwriteForce {
		for _, t := range req.Tools {
			if t.SideEffects() == tool.SideEffectsStateful {
				e.logger.Warn("engine.cache.stateful_tool", "output", req.Output, "tool", t.Name())
			}
		}
	}

	res := &Result{
		Artifact: a,
		Context:  pre.NewBranch(core.AssistantMessage(a.Text())),
		Cached:   true,
	}
	if a.Metadata.ContentType == core.ContentJSON {
		var v any
		if json.Unmarshal(a.Content, &v) == nil {
			res.Value = v
			if m, ok := v.(map[string]any); ok {
				if tr, ok := m["tool_results"].(map[string]any); ok {
					res.ToolResults = tr
				}
			}
		}
	}
	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackOnCacheHit, &CallbackContext{Request: req, Artifact: a}); err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) generate(
	ctx context.Context,
	pre *ctxtree.Node,
	req *Request,
	hash string,
	existing *core.ArtifactMetadata,
) (*Result, error) {
	info := req.Model.Info()

	if err := e.limiter.Acquire(); err != nil {
		return nil, &core.ModelCallError{Model: info.Name, Err: err}
	}

	registry, err := tool.Index(req.Tools)
	if err != nil {
		return nil, err
	}

	mreq := model.Request{
		System:      SystemPrompt(req.System, req.Format, req.Schema),
		Messages:    pre.AllMessages(),
		Tools:       tool.Definitions(req.Tools),
		Format:      req.Format,
		Schema:      req.Schema,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackBeforeModel, &CallbackContext{Request: req, ModelRequest: &mreq}); err != nil {
		return nil, err
	}

	e.logger.Info("engine.model.call", "output", req.Output, "model", info.Name, "provider", info.Provider, "messages", len(mreq.Messages), "tools", len(mreq.Tools))
	start := time.Now()
	resp, err := model.Collect(ctx, req.Model, mreq)
	e.metrics.RecordModelCall(info.Provider, info.Name, err, time.Since(start))
	if err != nil {
		return nil, &core.ModelCallError{Model: info.Name, Err: err}
	}
	if resp.Usage != nil {
		e.metrics.RecordTokens(info.Name, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}
	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackAfterModel, &CallbackContext{Request: req, ModelRequest: &mreq, Response: resp}); err != nil {
		return nil, err
	}

	res := &Result{Response: resp}
	var (
		content     []byte
		contentType core.ContentType
	)

	if len(resp.Message.ToolCalls) > 0 {
		calls, keys := normalizeCalls(resp.Message.ToolCalls)
		res.ToolCalls = e.executor.execute(ctx, req, registry, calls, keys)
		res.ToolResults = make(map[string]any, len(calls))
		for _, r := range res.ToolCalls {
			res.ToolResults[r.Key] = r.Entry()
			if r.Err != nil {
				res.Errors = append(res.Errors, r.Err)
			}
		}

		content, err = json.Marshal(map[string]any{"tool_results": res.ToolResults})
		if err != nil {
			return nil, fmt.Errorf("encode tool results: %w", err)
		}
		contentType = core.ContentJSON
		res.Value = map[string]any{"tool_results": res.ToolResults}

		msgs, err := toolMessages(resp.Message.Text(), calls, res.ToolCalls)
		if err != nil {
			return nil, err
		}
		res.Context = pre.NewBranch(msgs...)
	} else {
		text := resp.Message.Text()
		res.Context = pre.NewBranch(core.AssistantMessage(text))
		content = []byte(text)
		contentType = req.Format.ContentType()

		if req.Format == core.FormatJSON {
			v, stripped, verr := parseJSONOutput(text, req.Schema)
			if verr != nil {
				res.Errors = append(res.Errors, verr)
			} else {
				res.Value = v
				content = []byte(stripped)
			}
		}
	}

	// nothing is persisted for canceled runs
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chatResult, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode model response: %w", err)
	}

	a := core.Artifact{
		Metadata: core.ArtifactMetadata{
			UUID:        uuid.NewString(),
			Name:        req.Output,
			ContentType: contentType,
			SizeTokens:  e.counter.Count(string(content)),
			InputHash:   hash,
			ChatResult:  chatResult,
		},
		Content: content,
	}
	if existing != nil {
		a.Metadata.Version = existing.Version
	}

	md, err := e.store.Save(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("save artifact %s: %w", req.Output, err)
	}
	a.Metadata = *md
	res.Artifact = &a

	e.metrics.RecordArtifactSaved(string(contentType))
	e.logger.Info("engine.artifact.saved",
		"output", req.Output,
		"version", md.Version,
		"size_bytes", md.SizeBytes,
		"size_tokens", md.SizeTokens,
		"tool_calls", len(res.ToolCalls),
		"errors", len(res.Errors),
	)
	return res, nil
}

// toolMessages builds the assistant message announcing the calls followed
// by one tool message per result, paired by call id.
func toolMessages(text string, calls []core.ToolCall, results []ToolCallResult) ([]core.Message, error) {
	announce, err := json.Marshal(struct {
		Content   string          `json:"content"`
		ToolCalls []core.ToolCall `json:"tool_calls"`
	}{Content: text, ToolCalls: calls})
	if err != nil {
		return nil, fmt.Errorf("encode tool calls: %w", err)
	}
	assistant := core.AssistantMessage(string(announce))
	assistant.ToolCalls = calls

	msgs := make([]core.Message, 0, len(results)+1)
	msgs = append(msgs, assistant)
	for _, r := range results {
		out, err := json.Marshal(r.Entry())
		if err != nil {
			out = []byte(fmt.Sprintf("%v", r.Entry()))
		}
		msgs = append(msgs, core.ToolMessage(r.Call.ID, string(out)))
	}
	return msgs, nil
}

// parseJSONOutput strips code fences, parses and validates the output.
func parseJSONOutput(text string, schema map[string]any) (any, string, error) {
	stripped := util.StripCodeFences(text)
	var v any
	if err := json.Unmarshal([]byte(stripped), &v); err != nil {
		return nil, "", &core.OutputValidationError{Output: text, Err: err}
	}
	if schema != nil {
		if err := util.ValidateValue(v, schema); err != nil {
			return nil, "", &core.OutputValidationError{Output: text, Err: err}
		}
	}
	return v, stripped, nil
}
