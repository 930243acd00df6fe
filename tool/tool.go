// Package tool implements the function / tool calling subsystem that lets a
// generation invoke structured capabilities (APIs, computations,
// side-effects) with schema validated arguments, consistent error handling
// and metadata for model guidance.
package tool

import (
	"fmt"

	"github.com/hupe1980/llmflow/core"
	"github.com/hupe1980/llmflow/internal/util"
	"github.com/hupe1980/llmflow/model"
)

// SideEffects declares what calling a tool does to the outside world. The
// engine warns when a cached result skips a stateful tool.
type SideEffects string

const (
	// SideEffectsPure tools only compute a result from their arguments.
	SideEffectsPure SideEffects = "pure"
	// SideEffectsIdempotent tools may touch external state but repeating a
	// call changes nothing further.
	SideEffectsIdempotent SideEffects = "idempotent"
	// SideEffectsStateful tools change external state on every call.
	SideEffectsStateful SideEffects = "stateful"
)

// Tool defines the interface for exposing external functions to a model.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define proper JSON schema for parameters
//   - Handle errors gracefully
//   - Be safe for concurrent use, since tool calls of one response run in parallel
type Tool interface {
	// Name returns the unique identifier for this tool.
	// Names should be descriptive and follow function naming conventions (snake_case recommended).
	Name() string

	// Description returns a human-readable description of what this tool does.
	// This description is provided to the LLM to help it understand when and how to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	Parameters() map[string]any

	// SideEffects declares the effect class of the tool.
	SideEffects() SideEffects

	// Call executes the tool with structured arguments parsed from the
	// model's JSON.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError = core.ToolError

// Error codes used by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeNotFound   = "NOT_FOUND"
	CodePanic      = "PANIC"
)

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return core.NewToolError(tool, message, code)
}

// Definitions converts tools into the declarations sent to a model.
func Definitions(tools []Tool) []model.ToolDefinition {
	defs := make([]model.ToolDefinition, len(tools))
	for i, t := range tools {
		defs[i] = model.ToolDefinition{Name: t.Name(), Description: t.Description(), Parameters: t.Parameters()}
	}
	return defs
}

// Names returns the tool names in order.
func Names(tools []Tool) []string {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name()
	}
	return names
}

// Index maps tools by name and rejects duplicates.
func Index(tools []Tool) (map[string]Tool, error) {
	byName := make(map[string]Tool, len(tools))
	for _, t := range tools {
		if _, dup := byName[t.Name()]; dup {
			return nil, fmt.Errorf("duplicate tool name %q", t.Name())
		}
		byName[t.Name()] = t
	}
	return byName, nil
}
