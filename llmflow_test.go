package llmflow

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/llmflow/artifact"
	"github.com/hupe1980/llmflow/config"
	"github.com/hupe1980/llmflow/logging"
)

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     config.StoreConfig
		want    any
		wantErr bool
	}{
		{name: "memory", cfg: config.StoreConfig{Type: config.StoreMemory}, want: &artifact.InMemoryStore{}},
		{name: "null", cfg: config.StoreConfig{Type: config.StoreNull}, want: artifact.NullStore{}},
		{name: "file", cfg: config.StoreConfig{Type: config.StoreFile, Path: dir}, want: &artifact.FileStore{}},
		{name: "unknown", cfg: config.StoreConfig{Type: "s3"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := OpenStore(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, store)
		})
	}
}

func TestApp_RunWithMockModel(t *testing.T) {
	cfg, err := config.Parse([]byte(`
models:
  default: fast
  fast:
    type: mock
    model: test
store:
  type: memory
`))
	require.NoError(t, err)

	app, err := New(cfg, func(o *Options) {
		o.Logger = logging.NoOpLogger{}
		o.Registerer = prometheus.NewRegistry()
	})
	require.NoError(t, err)

	res, err := app.Flow().Prompt("hello").Output("greeting.txt").Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: hello", res.Output)

	a, err := app.Store().Latest(context.Background(), "greeting.txt")
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: hello", a.Text())
}

func TestDefaultRegistry(t *testing.T) {
	assert.ElementsMatch(t, []string{"anthropic", "mock", "ollama", "openai"}, DefaultRegistry().Types())
}
