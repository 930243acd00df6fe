package flow

import (
	"os"
	"strconv"
	"sync/atomic"

	"github.com/hupe1980/llmflow/core"
	"github.com/hupe1980/llmflow/ctxtree"
	"github.com/hupe1980/llmflow/engine"
	"github.com/hupe1980/llmflow/internal/metrics"
	"github.com/hupe1980/llmflow/logging"
	"github.com/hupe1980/llmflow/model"
	"github.com/hupe1980/llmflow/reducer"
)

const (
	// DefaultRetries is the number of trials per run.
	DefaultRetries = 5
	// DefaultBudget is the context size in tokens above which the context
	// is reduced before a run.
	DefaultBudget = 64000
	// DefaultMaxToolRounds bounds the tool rounds of a run.
	DefaultMaxToolRounds = 1

	toolRoundPrompt = "Does tool_results contain the answer? If so, return it. Otherwise, try something else."
	retryPrompt     = "Try again. Error: "
)

// ModelSource resolves model names, typically a *model.Clients.
type ModelSource interface {
	Get(name string) (model.Model, error)
}

// Options configures the builder returned by New.
type Options struct {
	// Engine executes requests. Defaults to an engine with an in-memory
	// store.
	Engine *engine.Engine

	// Models resolves names passed to Builder.Model and the default model.
	Models ModelSource

	// Model is used when no name is selected. It takes precedence over the
	// default model of Models.
	Model model.Model

	// Logger defaults to the engine logger.
	Logger logging.Logger

	// Metrics defaults to the engine collector.
	Metrics *metrics.Collector

	Retries       int
	Budget        int
	MaxToolRounds int
	Reducer       reducer.Reducer
}

// env is shared by every builder derived from one New call.
type env struct {
	engine  *engine.Engine
	models  ModelSource
	logger  logging.Logger
	metrics *metrics.Collector
	prefix  string
	seq     atomic.Uint64
}

// nextOutputName returns a fresh "llm-<pid>-<seq>.<ext>" artifact name.
func (e *env) nextOutputName(format core.OutputFormat) string {
	n := e.seq.Add(1)
	return "llm-" + e.prefix + "-" + strconv.FormatUint(n, 36) + "." + format.Extension()
}

// New returns a builder with default settings: string format, overwrite
// policy fail, 5 retries, a 64000 token budget and the log output reducer.
func New(optFns ...func(o *Options)) Builder {
	opts := Options{
		Retries:       DefaultRetries,
		Budget:        DefaultBudget,
		MaxToolRounds: DefaultMaxToolRounds,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Engine == nil {
		opts.Engine = engine.New()
	}
	if opts.Logger == nil {
		opts.Logger = opts.Engine.Logger()
	}
	if opts.Metrics == nil {
		opts.Metrics = opts.Engine.Metrics()
	}
	if opts.Reducer == nil {
		opts.Reducer = reducer.NewLogOutput(func(o *reducer.LogOutputOptions) {
			o.Counter = opts.Engine.Counter()
			o.Logger = opts.Logger
		})
	}

	e := &env{
		engine:  opts.Engine,
		models:  opts.Models,
		logger:  logging.OrNoOp(opts.Logger),
		metrics: opts.Metrics,
		prefix:  processPrefix(),
	}

	return Builder{
		env:           e,
		node:          ctxtree.New(),
		model:         opts.Model,
		format:        core.FormatString,
		overwrite:     core.OverwriteFail,
		retries:       opts.Retries,
		budget:        opts.Budget,
		maxToolRounds: opts.MaxToolRounds,
		reducer:       opts.Reducer,
	}
}

// processPrefix distinguishes unnamed outputs of processes sharing a store.
func processPrefix() string {
	return strconv.Itoa(os.Getpid())
}
