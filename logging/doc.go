// Package logging provides a minimal logging interface and adapters for llmflow.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the engine, builder and stores use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - ZapAdapter wrapping go.uber.org/zap (the default for the CLI)
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger, _ := logging.New(logging.Config{Level: logging.LogLevelInfo, Format: "json"})
//	eng := engine.New(store, func(o *engine.Options) { o.Logger = logger })
//
// Messages are dotted event keys ("engine.cache.hit") followed by key/value pairs.
package logging
