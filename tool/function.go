package tool

import (
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/llmflow/core"
	"github.com/hupe1980/llmflow/internal/util"
)

// FunctionTool is a generic adapter that exposes a plain Go function as a tool.
//
// Responsibilities:
//   - Holds a lightweight JSON-Schema-like parameter specification (parameters)
//   - Validates model supplied arguments against that schema before execution
//   - Invokes the wrapped function with a *core.ToolContext giving access to
//     the run context, logging and the function call ID
//   - Normalizes error handling so callers receive *ToolError with consistent codes:
//     VALIDATION_ERROR  -> schema / argument mismatch
//     EXECUTION_ERROR   -> underlying function returned an error (non-ToolError)
//     (custom codes preserved if the function returns *ToolError directly)
//
// Concurrency:
//
//	A FunctionTool has no internal mutable state after construction and is safe for
//	concurrent use by multiple goroutines.
type FunctionTool struct {
	// Tool identifier (snake_case recommended)
	name string
	// Human-readable description shown to models
	description string
	// JSON schema describing accepted arguments
	parameters map[string]any
	// Effect class, pure unless configured
	sideEffects SideEffects
	// User supplied implementation
	fn func(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// FunctionOption configures a FunctionTool.
type FunctionOption func(t *FunctionTool)

// WithSideEffects sets the declared effect class.
func WithSideEffects(s SideEffects) FunctionOption {
	return func(t *FunctionTool) { t.sideEffects = s }
}

// NewFunctionTool constructs a FunctionTool from explicit schema and function.
//
// Example:
//
//	sumTool := NewFunctionTool(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(tc *core.ToolContext, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(toolCtx *core.ToolContext, args map[string]any) (any, error),
	opts ...FunctionOption,
) *FunctionTool {
	t := &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		sideEffects: SideEffectsPure,
		fn:          fn,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewFunctionToolFromStruct derives the parameter schema from a struct using
// reflection. It produces a schema equivalent to util.CreateSchema(structType).
func NewFunctionToolFromStruct(
	name, description string,
	structType any,
	fn func(toolCtx *core.ToolContext, args map[string]any) (any, error),
	opts ...FunctionOption,
) *FunctionTool {
	schema := util.CreateSchema(structType)
	return NewFunctionTool(name, description, schema, fn, opts...)
}

// Name returns the unique tool name used in function call declarations and routing.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the short natural language description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the (minimal) JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// SideEffects returns the declared effect class.
func (t *FunctionTool) SideEffects() SideEffects { return t.sideEffects }

// Call validates the provided args against the declared schema then invokes the
// underlying function. Validation or execution failures are wrapped (or passed
// through) as *ToolError for uniform downstream handling.
//
// Logging Fields:
//
//	tool: tool name
//	fc_id: function call identifier (correlates model request & tool execution)
//	duration_ms: execution time in milliseconds
func (t *FunctionTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	logger := toolCtx.Logger()
	start := time.Now()

	logger.Debug("tool.call.start", "tool", t.name, "fc_id", toolCtx.FunctionCallID())

	if err := util.ValidateParameters(args, t.parameters); err != nil {
		logger.Warn("tool.call.validation_failed", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			CallID:  toolCtx.FunctionCallID(),
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}

	result, err := t.fn(toolCtx, args)
	if err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) { // Already a ToolError -> just log and forward
			logger.Error("tool.call.error", "tool", t.name, "error", toolErr.Message)

			return nil, toolErr
		}

		logger.Error("tool.call.error", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			CallID:  toolCtx.FunctionCallID(),
			Message: err.Error(),
			Code:    CodeExecution,
		}
	}

	logger.Info("tool.call.success", "tool", t.name, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}
