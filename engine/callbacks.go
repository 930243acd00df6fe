package engine

import (
	"context"
	"sync"

	"github.com/hupe1980/llmflow/core"
	"github.com/hupe1980/llmflow/logging"
	"github.com/hupe1980/llmflow/model"
)

// CallbackType defines the specific lifecycle points where callbacks can be executed.
//
// Available callback types:
//   - BeforeModel/AfterModel: Around the model call of a stale request
//   - BeforeTool/AfterTool: Around individual tool executions
//   - OnCacheHit: When a stored artifact is reused
//   - OnError: When a run fails
//
// Callbacks are executed synchronously and can influence execution flow
// by returning errors that terminate the operation.
type CallbackType string

const (
	// CallbackBeforeModel is triggered before the model is called.
	// Returning an error aborts the run without a model call.
	CallbackBeforeModel CallbackType = "before_model"

	// CallbackAfterModel is triggered after a successful model call.
	CallbackAfterModel CallbackType = "after_model"

	// CallbackBeforeTool is triggered before each tool execution.
	// Returning an error turns the call into a failed tool result.
	CallbackBeforeTool CallbackType = "before_tool"

	// CallbackAfterTool is triggered after each tool execution.
	CallbackAfterTool CallbackType = "after_tool"

	// CallbackOnCacheHit is triggered when a stored artifact is reused.
	CallbackOnCacheHit CallbackType = "on_cache_hit"

	// CallbackOnError is triggered when a run returns an error.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext provides context information for callback execution.
// Fields irrelevant to the callback type are left nil.
type CallbackContext struct {
	// CallbackType indicates which callback type triggered this execution.
	CallbackType CallbackType

	// Request is the engine request being executed.
	Request *Request

	// ModelRequest is the request sent to the model.
	ModelRequest *model.Request

	// Response is the final model response.
	Response *model.Response

	// ToolCall is the tool call being executed.
	ToolCall *core.ToolCall

	// ToolResult is the tool output (nil on failure).
	ToolResult any

	// Artifact is the reused artifact on cache hits.
	Artifact *core.Artifact

	// Err is the failure for OnError and failed AfterTool callbacks.
	Err error

	// Metadata provides extensible storage for custom callback data.
	Metadata map[string]any
}

// Callback defines the interface for execution lifecycle hooks.
//
// Implementations should be fast, since callbacks run synchronously, and
// safe for concurrent use, since tool callbacks run on the fan-out
// goroutines.
type Callback interface {
	// Type returns the callback type this implementation handles.
	Type() CallbackType

	// Execute performs the callback logic with the provided context.
	// Returning an error will terminate the associated operation.
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
//
// Example:
//
//	audit := NewFunctionCallback(
//	    CallbackBeforeTool,
//	    func(ctx context.Context, cc *CallbackContext) error {
//	        log.Printf("calling %s", cc.ToolCall.Name)
//	        return nil
//	    },
//	)
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute calls the wrapped function with the provided context.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager orchestrates callback execution throughout the run lifecycle.
//
// Callbacks are executed in registration order, and any callback returning
// an error will terminate execution and prevent subsequent callbacks from
// running. Registration and execution are safe for concurrent use.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates a new callback manager instance.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds a callback to the manager for its type.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// ExecuteCallbacks executes all registered callbacks for the specified type.
// A nil manager executes nothing.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	if cm == nil {
		return nil
	}
	cm.mu.RLock()
	callbacks := append([]Callback(nil), cm.callbacks[callbackType]...)
	cm.mu.RUnlock()

	callbackCtx.CallbackType = callbackType
	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return err
		}
	}

	return nil
}

// LoggingCallback forwards lifecycle events to a structured logger at debug
// level using "engine.callback.<type>" keys.
type LoggingCallback struct {
	callbackType CallbackType
	logger       logging.Logger
}

// NewLoggingCallback creates a new logging callback.
func NewLoggingCallback(callbackType CallbackType, logger logging.Logger) *LoggingCallback {
	return &LoggingCallback{
		callbackType: callbackType,
		logger:       logging.OrNoOp(logger),
	}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType {
	return c.callbackType
}

// Execute logs the execution event with context information.
func (c *LoggingCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	args := []any{}
	if callbackCtx.Request != nil {
		args = append(args, "output", callbackCtx.Request.Output)
	}
	if callbackCtx.ToolCall != nil {
		args = append(args, "tool", callbackCtx.ToolCall.Name, "call_id", callbackCtx.ToolCall.ID)
	}
	if callbackCtx.Err != nil {
		args = append(args, "error", callbackCtx.Err.Error())
	}
	c.logger.Debug("engine.callback."+string(c.callbackType), args...)
	return nil
}
