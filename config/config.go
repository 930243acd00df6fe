// Package config loads the program configuration.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables with the LLMFLOW_ prefix
//  2. YAML config file
//  3. Hardcoded defaults
//
// Environment variables map onto section.field keys by splitting on the
// first underscore after the prefix:
//
//	LLMFLOW_STORE_TYPE            -> store.type
//	LLMFLOW_ENGINE_MAX_MODEL_CALLS -> engine.max_model_calls
//
// Example config.yml:
//
//	models:
//	  default: fast
//	  fast:
//	    type: openai
//	    model: gpt-4o-mini
//	  smart:
//	    type: anthropic
//	    model: claude-sonnet-4-5
//	secrets:
//	  openai:
//	    api_key: sk-...
//	store:
//	  type: file
//	  path: ./artifacts
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hupe1980/llmflow/model"
)

// DefaultModelEnv overrides the model used for empty model names.
const DefaultModelEnv = "LLM_DEFAULT_MODEL"

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "LLMFLOW_"

// Store types.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreSQL    = "sql"
	StoreNull   = "null"
)

// Config is the program configuration.
type Config struct {
	// Models maps names to model configurations (objects) or to other
	// names (aliases).
	Models map[string]any `koanf:"models"`

	// Secrets holds per provider credentials, e.g. secrets.openai.api_key.
	Secrets map[string]map[string]string `koanf:"secrets"`

	Store  StoreConfig  `koanf:"store"`
	Log    LogConfig    `koanf:"log"`
	Engine EngineConfig `koanf:"engine"`
	Flow   FlowConfig   `koanf:"flow"`

	// parsed holds the decoded object entries of Models.
	parsed map[string]model.Config
}

// StoreConfig selects the artifact store.
type StoreConfig struct {
	Type   string        `koanf:"type"`   // memory, file, redis, sql, null
	Path   string        `koanf:"path"`   // file root
	Addr   string        `koanf:"addr"`   // redis address
	DSN    string        `koanf:"dsn"`    // sql data source
	Driver string        `koanf:"driver"` // sqlite, postgres, mysql
	Prefix string        `koanf:"prefix"` // redis key prefix
	TTL    time.Duration `koanf:"ttl"`    // redis expiry, 0 = none
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json or console
}

// EngineConfig configures the execution engine.
type EngineConfig struct {
	MaxModelCalls   int `koanf:"max_model_calls"`
	ToolParallelism int `koanf:"tool_parallelism"`
}

// FlowConfig configures builder defaults.
type FlowConfig struct {
	Retries int `koanf:"retries"`
	Budget  int `koanf:"budget"`
}

var _ model.Resolver = (*Config)(nil)

// ModelConfig resolves name, following aliases, and fills a missing api key
// from the secrets of the model type. The empty name resolves to
// $LLM_DEFAULT_MODEL or "default".
func (c *Config) ModelConfig(name string) (model.Config, error) {
	if name == "" {
		name = os.Getenv(DefaultModelEnv)
	}
	if name == "" {
		name = "default"
	}

	seen := map[string]bool{}
	for {
		if seen[name] {
			return model.Config{}, fmt.Errorf("model alias cycle at %q", name)
		}
		seen[name] = true

		raw, ok := c.Models[name]
		if !ok {
			return model.Config{}, fmt.Errorf("model not found: %q", name)
		}
		if alias, ok := raw.(string); ok {
			name = alias
			continue
		}

		mc, ok := c.parsed[name]
		if !ok {
			return model.Config{}, fmt.Errorf("model %q: invalid configuration", name)
		}
		if mc.APIKey == "" {
			mc.APIKey = c.Secret(mc.Type, "api_key")
		}
		return mc, nil
	}
}

// Secret returns secrets[group][key], "" when absent.
func (c *Config) Secret(group, key string) string {
	return c.Secrets[group][key]
}

// ModelNames returns the configured model names, aliases included.
func (c *Config) ModelNames() []string {
	names := make([]string, 0, len(c.Models))
	for n := range c.Models {
		names = append(names, n)
	}
	return names
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if _, ok := c.Models["default"]; !ok {
		return fmt.Errorf("default model not found in config")
	}
	for name := range c.Models {
		if _, err := c.ModelConfig(name); err != nil {
			return err
		}
	}

	switch c.Store.Type {
	case StoreMemory, StoreNull:
	case StoreFile:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for file store")
		}
	case StoreRedis:
		if c.Store.Addr == "" {
			return fmt.Errorf("store.addr is required for redis store")
		}
	case StoreSQL:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for sql store")
		}
	default:
		return fmt.Errorf("unknown store type %q", c.Store.Type)
	}

	if c.Flow.Retries < 1 {
		return fmt.Errorf("flow.retries must be at least 1")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Store.Type == "" {
		cfg.Store.Type = StoreFile
	}
	if cfg.Store.Type == StoreFile && cfg.Store.Path == "" {
		cfg.Store.Path = "artifacts"
	}
	if cfg.Store.Type == StoreSQL && cfg.Store.Driver == "" {
		cfg.Store.Driver = "sqlite"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Flow.Retries == 0 {
		cfg.Flow.Retries = 5
	}
	if cfg.Flow.Budget == 0 {
		cfg.Flow.Budget = 64000
	}
}

// envKey maps LLMFLOW_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}
