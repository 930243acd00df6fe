package core

import (
	"context"
	"testing"

	"github.com/hupe1980/llmflow/logging"
)

func TestToolContext_Accessors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tc := NewToolContext(ctx, "fc1", "out.json", nil)
	if tc.FunctionCallID() != "fc1" || tc.OutputName() != "out.json" {
		t.Fatalf("unexpected accessors: %q %q", tc.FunctionCallID(), tc.OutputName())
	}
	if _, ok := tc.Logger().(logging.NoOpLogger); !ok {
		t.Fatalf("expected NoOpLogger fallback, got %T", tc.Logger())
	}
	cancel()
	if tc.Context().Err() == nil {
		t.Fatalf("expected cancelled context")
	}
	tc.Logger().Info("tool.test", "k", "v")
}
