// Package llmflow wires configuration, model clients, the artifact store and
// the execution engine into a ready to use flow builder. Most programs:
//  1. Load a config.Config (config.Load)
//  2. Create an App via New
//  3. Build and run requests from App.Flow()
//
// Lower level packages (engine, flow, artifact, model) can be used directly
// when finer control is needed.
package llmflow

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/llmflow/artifact"
	"github.com/hupe1980/llmflow/artifact/gormstore"
	"github.com/hupe1980/llmflow/artifact/redis"
	"github.com/hupe1980/llmflow/config"
	"github.com/hupe1980/llmflow/core"
	"github.com/hupe1980/llmflow/engine"
	"github.com/hupe1980/llmflow/flow"
	"github.com/hupe1980/llmflow/internal/metrics"
	"github.com/hupe1980/llmflow/logging"
	"github.com/hupe1980/llmflow/model"
	"github.com/hupe1980/llmflow/model/anthropic"
	"github.com/hupe1980/llmflow/model/openai"
)

// Version of the module.
const Version = "0.1.0"

// DefaultRegistry returns a registry with the openai, anthropic, ollama and
// mock model types.
func DefaultRegistry() *model.Registry {
	r := model.NewRegistry()
	r.Register("openai", openai.New)
	r.Register("ollama", openai.NewOllama)
	r.Register("anthropic", anthropic.New)
	r.Register("mock", func(cfg model.Config) (model.Model, error) {
		return model.NewMockModel(cfg.Model), nil
	})
	return r
}

// OpenStore opens the artifact store selected by cfg.
func OpenStore(cfg config.StoreConfig) (core.ArtifactStore, error) {
	switch cfg.Type {
	case config.StoreMemory:
		return artifact.NewInMemoryStore(), nil
	case config.StoreNull:
		return artifact.NullStore{}, nil
	case config.StoreFile, "":
		path := cfg.Path
		if path == "" {
			path = "artifacts"
		}
		return artifact.NewFileStore(path)
	case config.StoreRedis:
		var opts []redis.Option
		if cfg.Prefix != "" {
			opts = append(opts, redis.WithPrefix(cfg.Prefix))
		}
		if cfg.TTL > 0 {
			opts = append(opts, redis.WithTTL(cfg.TTL))
		}
		return redis.New(cfg.Addr, "", 0, opts...), nil
	case config.StoreSQL:
		return gormstore.Open(cfg.Driver, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}

// Options overrides parts of the App built by New.
type Options struct {
	// Registry resolves model types. Defaults to DefaultRegistry.
	Registry *model.Registry

	// Store replaces the store selected by the config.
	Store core.ArtifactStore

	// Logger replaces the zap logger built from the log config.
	Logger logging.Logger

	// Registerer enables Prometheus metrics when set.
	Registerer prometheus.Registerer

	// Callbacks hooks into the engine phases.
	Callbacks *engine.CallbackManager
}

// App bundles the components built from a configuration.
type App struct {
	Config *config.Config
	Models *model.Clients
	Engine *engine.Engine
	Logger logging.Logger

	flow flow.Builder
}

// New builds an App from cfg.
func New(cfg *config.Config, optFns ...func(o *Options)) (*App, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Registry == nil {
		opts.Registry = DefaultRegistry()
	}

	if opts.Logger == nil {
		level, err := logging.ParseLevel(cfg.Log.Level)
		if err != nil {
			return nil, err
		}
		if opts.Logger, err = logging.New(logging.Config{Level: level, Format: cfg.Log.Format, Component: "llmflow"}); err != nil {
			return nil, err
		}
	}

	if opts.Store == nil {
		store, err := OpenStore(cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("open %s store: %w", cfg.Store.Type, err)
		}
		opts.Store = store
	}

	var collector *metrics.Collector
	if opts.Registerer != nil {
		collector = metrics.NewCollector("llmflow", opts.Registerer)
	}

	eng := engine.New(func(o *engine.Options) {
		o.Store = opts.Store
		o.Logger = opts.Logger
		o.Metrics = collector
		o.ToolParallelism = cfg.Engine.ToolParallelism
		o.Callbacks = opts.Callbacks
		if cfg.Engine.MaxModelCalls > 0 {
			o.Limiter = core.NewModelLimiter(cfg.Engine.MaxModelCalls)
		}
	})

	clients := model.NewClients(opts.Registry, cfg)

	return &App{
		Config: cfg,
		Models: clients,
		Engine: eng,
		Logger: opts.Logger,
		flow: flow.New(func(o *flow.Options) {
			o.Engine = eng
			o.Models = clients
			o.Retries = cfg.Flow.Retries
			o.Budget = cfg.Flow.Budget
		}),
	}, nil
}

// Flow returns a fresh builder using the default model.
func (a *App) Flow() flow.Builder {
	return a.flow
}

// Store returns the artifact store.
func (a *App) Store() core.ArtifactStore { return a.Engine.Store() }
