package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/llmflow/core"
	"github.com/hupe1980/llmflow/logging"
	"github.com/hupe1980/llmflow/tool"
)

// ToolCallResult is the outcome of one tool call. Key is the entry name in
// the tool_results aggregate. Exactly one of Result and Err is meaningful.
type ToolCallResult struct {
	Call   core.ToolCall
	Key    string
	Result any
	Err    *core.ToolError
}

// Success reports whether the tool call succeeded.
func (r ToolCallResult) Success() bool { return r.Err == nil }

// Entry returns the aggregate value: the result on success, otherwise an
// object {fname, success: false, error}.
func (r ToolCallResult) Entry() any {
	if r.Err == nil {
		return r.Result
	}
	return map[string]any{"fname": r.Call.Name, "success": false, "error": r.Err.Message}
}

// toolExecutor runs a batch of tool calls in parallel. Results come back in
// call order; a failing or panicking tool never affects its siblings.
type toolExecutor struct {
	maxParallel int // <1 means one goroutine per call
	logger      logging.Logger
	callbacks   *CallbackManager
	onResult    func(r ToolCallResult)
}

// normalizeCalls assigns each call a unique aggregate key. The key is the
// call id, falling back to the function name, with "#n" appended to
// duplicates. Calls without id take the key as id so that tool messages
// stay paired with their call.
func normalizeCalls(calls []core.ToolCall) ([]core.ToolCall, []string) {
	out := make([]core.ToolCall, len(calls))
	keys := make([]string, len(calls))
	seen := make(map[string]int, len(calls))
	for i, c := range calls {
		key := c.ID
		if key == "" {
			key = c.Name
		}
		seen[key]++
		if n := seen[key]; n > 1 {
			key = fmt.Sprintf("%s#%d", key, n)
		}
		if c.ID == "" {
			c.ID = key
		}
		out[i] = c
		keys[i] = key
	}
	return out, keys
}

func (e *toolExecutor) execute(
	ctx context.Context,
	req *Request,
	registry map[string]tool.Tool,
	calls []core.ToolCall,
	keys []string,
) []ToolCallResult {
	results := make([]ToolCallResult, len(calls))
	if len(calls) == 0 {
		return results
	}

	var g errgroup.Group
	if e.maxParallel > 0 {
		g.SetLimit(e.maxParallel)
	}

	batchStart := time.Now()
	for i := range calls {
		g.Go(func() error {
			results[i] = e.executeOne(ctx, req, registry, calls[i], keys[i])
			return nil
		})
	}
	_ = g.Wait()

	e.logger.Debug(
		"engine.tools.batch.complete",
		"count", len(calls),
		"parallelism", e.maxParallel,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)
	return results
}

func (e *toolExecutor) executeOne(
	ctx context.Context,
	req *Request,
	registry map[string]tool.Tool,
	call core.ToolCall,
	key string,
) ToolCallResult {
	res := ToolCallResult{Call: call, Key: key}
	start := time.Now()

	if err := ctx.Err(); err != nil {
		res.Err = toToolError(call, err)
		return res
	}
	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackBeforeTool, &CallbackContext{Request: req, ToolCall: &call}); err != nil {
		res.Err = toToolError(call, err)
		return res
	}

	var (
		result any
		err    error
	)
	func() { // panic safety
		defer func() {
			if r := recover(); r != nil {
				err = panicError(r)
				e.logger.Error("engine.tool.panic", "tool", call.Name, "recover", r)
			}
		}()
		result, err = executeTool(ctx, registry, call, req.Output, e.logger)
	}()

	if err != nil {
		res.Err = toToolError(call, err)
	} else {
		res.Result = result
	}

	e.logger.Info(
		"engine.tool.executed",
		"tool", call.Name,
		"call_id", call.ID,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err != nil,
	)

	var cbErr error
	if res.Err != nil {
		cbErr = res.Err
	}
	_ = e.callbacks.ExecuteCallbacks(ctx, CallbackAfterTool, &CallbackContext{Request: req, ToolCall: &call, ToolResult: res.Result, Err: cbErr})
	if e.onResult != nil {
		e.onResult(res)
	}
	return res
}

// panicError converts a recovered panic value to an error keeping the stack.
func panicError(r any) error { return &panicErr{val: r, stack: debug.Stack()} }

type panicErr struct {
	val   any
	stack []byte
}

func (p *panicErr) Error() string { return fmt.Sprintf("panic recovered: %v", p.val) }

// executeTool centralizes tool lookup, argument decoding and execution.
func executeTool(
	ctx context.Context,
	registry map[string]tool.Tool,
	call core.ToolCall,
	output string,
	logger logging.Logger,
) (any, error) {
	impl, ok := registry[call.Name]
	if !ok {
		return nil, tool.NewToolError(call.Name, fmt.Sprintf("tool %s not found", call.Name), tool.CodeNotFound)
	}

	argMap := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &argMap); err != nil {
			return nil, tool.NewToolError(call.Name, fmt.Sprintf("failed to unmarshal args: %v", err), tool.CodeValidation)
		}
	}

	return impl.Call(core.NewToolContext(ctx, call.ID, output, logger), argMap)
}

func toToolError(call core.ToolCall, err error) *core.ToolError {
	var toolErr *core.ToolError
	if errors.As(err, &toolErr) {
		cp := *toolErr
		if cp.CallID == "" {
			cp.CallID = call.ID
		}
		if cp.Tool == "" {
			cp.Tool = call.Name
		}
		return &cp
	}
	code := tool.CodeExecution
	var p *panicErr
	if errors.As(err, &p) {
		code = tool.CodePanic
	}
	return &core.ToolError{Tool: call.Name, CallID: call.ID, Message: err.Error(), Code: code}
}
