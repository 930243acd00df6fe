package model

import (
	"fmt"
	"sort"
	"sync"
)

// Config describes one model endpoint. It is comparable so resolved
// configurations can key the client cache.
type Config struct {
	Type        string  `koanf:"type"`     // openai, anthropic, ollama, mock
	Model       string  `koanf:"model"`    // vendor model id
	APIKey      string  `koanf:"api_key"`  // falls back to secrets of Type
	BaseURL     string  `koanf:"base_url"` // openai compatible endpoints
	Temperature float64 `koanf:"temperature"`
	MaxTokens   int     `koanf:"max_tokens"`
	RPS         float64 `koanf:"rps"`   // requests per second, 0 = unlimited
	Burst       int     `koanf:"burst"` // defaults to 1 when RPS is set
}

// Constructor builds a Model for a configuration.
type Constructor func(cfg Config) (Model, error)

// Registry maps model types to constructors.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Register installs ctor for typ, replacing any earlier registration.
func (r *Registry) Register(typ string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[typ] = ctor
}

// Types returns the registered type names in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.ctors))
	for t := range r.ctors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// New constructs a model and wraps it with a rate limiter when cfg.RPS > 0.
func (r *Registry) New(cfg Config) (Model, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[cfg.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported model type: %q", cfg.Type)
	}
	m, err := ctor(cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s model %q: %w", cfg.Type, cfg.Model, err)
	}
	if cfg.RPS > 0 {
		m = NewRateLimited(m, cfg.RPS, cfg.Burst)
	}
	return m, nil
}

// Resolver turns a model name (or alias) into a configuration.
type Resolver interface {
	ModelConfig(name string) (Config, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(name string) (Config, error)

// ModelConfig implements Resolver.
func (f ResolverFunc) ModelConfig(name string) (Config, error) { return f(name) }

// Clients resolves model names and caches one client per distinct
// configuration, so aliases sharing a configuration share a client.
type Clients struct {
	registry *Registry
	resolver Resolver

	mu    sync.Mutex
	cache map[Config]Model
}

// NewClients returns a client cache on top of registry and resolver.
func NewClients(registry *Registry, resolver Resolver) *Clients {
	return &Clients{registry: registry, resolver: resolver, cache: make(map[Config]Model)}
}

// Get resolves name and returns the cached client, creating it on first use.
func (c *Clients) Get(name string) (Model, error) {
	cfg, err := c.resolver.ModelConfig(name)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.cache[cfg]; ok {
		return m, nil
	}
	m, err := c.registry.New(cfg)
	if err != nil {
		return nil, err
	}
	c.cache[cfg] = m
	return m, nil
}

// Static is a Resolver backed by a fixed map, mostly useful in tests.
type Static map[string]Config

// ModelConfig implements Resolver. The empty name maps to "default".
func (s Static) ModelConfig(name string) (Config, error) {
	if name == "" {
		name = "default"
	}
	cfg, ok := s[name]
	if !ok {
		return Config{}, fmt.Errorf("model not found: %q", name)
	}
	return cfg, nil
}
