package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/mitchellh/mapstructure"

	"github.com/hupe1980/llmflow/model"
)

// DefaultPath is the config file read when none is given.
const DefaultPath = "config.yml"

const maxConfigFileSize = 1024 * 1024

// Load reads path (DefaultPath when empty), applies environment overrides
// and defaults, and validates the result. A missing file is an error only
// when path was given explicitly.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	content, err := os.ReadFile(path)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		content = nil
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(content)
}

// Parse builds a configuration from YAML content plus the environment.
func Parse(content []byte) (*Config, error) {
	if len(content) > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes", len(content))
	}

	k := koanf.New(".")
	if len(content) > 0 {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.parseModels(); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) parseModels() error {
	c.parsed = make(map[string]model.Config, len(c.Models))
	for name, raw := range c.Models {
		switch v := raw.(type) {
		case string:
		case map[string]any:
			var mc model.Config
			dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
				TagName:          "koanf",
				WeaklyTypedInput: true,
				Result:           &mc,
			})
			if err != nil {
				return err
			}
			if err := dec.Decode(v); err != nil {
				return fmt.Errorf("model %q: %w", name, err)
			}
			if mc.Type == "" {
				return fmt.Errorf("model %q: type is required", name)
			}
			c.parsed[name] = mc
		default:
			return fmt.Errorf("model %q: expected an object or an alias name", name)
		}
	}
	return nil
}
