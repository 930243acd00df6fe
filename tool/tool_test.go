package tool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/llmflow/core"
	"github.com/hupe1980/llmflow/internal/util"
	"github.com/hupe1980/llmflow/logging"
)

// Interface compliance (compile-time assertions)
var _ Tool = (*FunctionTool)(nil)

func newToolContext(id string) *core.ToolContext {
	return core.NewToolContext(context.Background(), id, "out.json", logging.NoOpLogger{})
}

// -------------------- Schema & Validation Tests --------------------

type sampleSchema struct {
	A string `json:"a" description:"Field A"`
	B *int   `json:"b" description:"Optional pointer field"`
	C int    `json:"c,omitempty" description:"Omit empty field"`
}

func TestCreateSchema(t *testing.T) {
	schema := util.CreateSchema(sampleSchema{})
	props, ok := schema["properties"].(map[string]any)
	assert.True(t, ok)
	// Properties present
	assert.Contains(t, props, "a")
	assert.Contains(t, props, "b")
	assert.Contains(t, props, "c")
	// Required only includes non-pointer, non-omitempty exported fields
	req, _ := schema["required"].([]string)
	if req == nil { // reflection may produce []any
		ifaceReq, _ := schema["required"].([]any)
		for _, v := range ifaceReq {
			req = append(req, v.(string))
		}
	}
	assert.ElementsMatch(t, []string{"a"}, req)
}

func TestValidateParameters(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"x": map[string]any{"type": "integer"},
		},
		// Use []any to mirror possible JSON decoded schema shape
		"required": []any{"x"},
	}

	// Success
	err := util.ValidateParameters(map[string]any{"x": 5}, schema)
	assert.NoError(t, err)

	// Missing required
	err = util.ValidateParameters(map[string]any{}, schema)
	assert.Error(t, err)
	if vErr, ok := err.(*ValidationError); ok {
		assert.Equal(t, "x", vErr.Field)
	} else {
		t.Fatalf("expected ValidationError, got %T", err)
	}

	// Wrong type
	err = util.ValidateParameters(map[string]any{"x": "not-int"}, schema)
	assert.Error(t, err)
	if vErr, ok := err.(*ValidationError); ok {
		assert.Contains(t, vErr.Message, "expected type integer")
	} else {
		t.Fatalf("expected ValidationError, got %T", err)
	}
}

// -------------------- FunctionTool Tests --------------------

func TestFunctionTool_Success(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}

	sumTool := NewFunctionTool("sum", "Add numbers", params, func(_ *core.ToolContext, args map[string]any) (any, error) {
		a := args["a"].(float64)
		b := args["b"].(float64)
		return a + b, nil
	})

	tc := newToolContext("fc1")
	result, err := sumTool.Call(tc, map[string]any{"a": 2.0, "b": 3.0})
	assert.NoError(t, err)
	assert.Equal(t, 5.0, result)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
		},
		// Use interface slice to match ValidateParameters implementation expectation
		"required": []any{"a"},
	}
	tTool := NewFunctionTool("test", "Test", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return 0, nil
	})
	tc := newToolContext("fc2")
	_, err := tTool.Call(tc, map[string]any{})
	assert.Error(t, err)
	toolErr, ok := err.(*ToolError)
	assert.True(t, ok)
	assert.Equal(t, "VALIDATION_ERROR", toolErr.Code)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	execTool := NewFunctionTool("fail", "Fails", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, errors.New("boom")
	})
	tc := newToolContext("fc3")
	_, err := execTool.Call(tc, map[string]any{})
	assert.Error(t, err)
	toolErr, ok := err.(*ToolError)
	assert.True(t, ok)
	assert.Equal(t, "EXECUTION_ERROR", toolErr.Code)
	assert.Equal(t, "fc3", toolErr.CallID)
}

func TestFunctionTool_ForwardsToolError(t *testing.T) {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	custom := NewToolError("lookup", "no such key", CodeNotFound)
	lookup := NewFunctionTool("lookup", "Looks up", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, custom
	}, WithSideEffects(SideEffectsIdempotent))

	_, err := lookup.Call(newToolContext("fc4"), map[string]any{})
	assert.Same(t, custom, err)
	assert.Equal(t, SideEffectsIdempotent, lookup.SideEffects())
}

type sumArgs struct {
	A     float64 `json:"a" description:"First addend"`
	B     float64 `json:"b" description:"Second addend"`
	Times int     `json:"times,omitempty"`
}

func TestTypedTool(t *testing.T) {
	sum := NewTypedTool("sum", "Adds numbers", func(_ *core.ToolContext, in sumArgs) (float64, error) {
		times := in.Times
		if times == 0 {
			times = 1
		}
		return (in.A + in.B) * float64(times), nil
	})

	assert.Equal(t, SideEffectsPure, sum.SideEffects())
	props := sum.Parameters()["properties"].(map[string]any)
	assert.Contains(t, props, "times")

	res, err := sum.Call(newToolContext("fc5"), map[string]any{"a": 1.0, "b": 2.0, "times": 2.0})
	require.NoError(t, err)
	assert.Equal(t, 6.0, res)

	_, err = sum.Call(newToolContext("fc6"), map[string]any{"a": 1.0})
	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, CodeValidation, toolErr.Code)
}

func TestDefinitionsAndIndex(t *testing.T) {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	noop := func(_ *core.ToolContext, _ map[string]any) (any, error) { return nil, nil }
	a := NewFunctionTool("a", "A", params, noop)
	b := NewFunctionTool("b", "B", params, noop, WithSideEffects(SideEffectsStateful))

	defs := Definitions([]Tool{a, b})
	require.Len(t, defs, 2)
	assert.Equal(t, "b", defs[1].Name)
	assert.Equal(t, []string{"a", "b"}, Names([]Tool{a, b}))

	idx, err := Index([]Tool{a, b})
	require.NoError(t, err)
	assert.Same(t, b, idx["b"])

	_, err = Index([]Tool{a, a})
	assert.Error(t, err)
}

// -------------------- ToolError Formatting --------------------

func TestToolErrorFormatting(t *testing.T) {
	err := NewToolError("demo", "something failed", "E123")
	assert.Contains(t, err.Error(), "E123")
	assert.Contains(t, err.Error(), "demo")
}

// Ensure tests run quickly (sanity)
func TestToolPackageTestDuration(t *testing.T) {
	start := time.Now()
	// no-op
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}
