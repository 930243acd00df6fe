package core

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by stores when no artifact exists for a name.
	ErrNotFound = fmt.Errorf("artifact not found")
)

// ErrorKind classifies errors for table driven retry decisions.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindModelCall
	KindToolExecution
	KindOutputValidation
	KindNotAncestor
	KindRetryExhausted
	KindWriteConflict
	KindStrictOverwrite
	KindNotFound
	KindCanceled
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindModelCall:
		return "model_call"
	case KindToolExecution:
		return "tool_execution"
	case KindOutputValidation:
		return "output_validation"
	case KindNotAncestor:
		return "not_ancestor"
	case KindRetryExhausted:
		return "retry_exhausted"
	case KindWriteConflict:
		return "write_conflict"
	case KindStrictOverwrite:
		return "strict_overwrite"
	case KindNotFound:
		return "not_found"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// KindOf walks the error chain and returns the first recognised kind.
func KindOf(err error) ErrorKind {
	var (
		modelErr    *ModelCallError
		toolErr     *ToolError
		validErr    *OutputValidationError
		ancestorErr *NotAncestorError
		retryErr    *RetryExhaustedError
		conflictErr *WriteConflictError
		strictErr   *StrictOverwriteError
	)
	switch {
	case err == nil:
		return KindUnknown
	case errors.As(err, &retryErr):
		return KindRetryExhausted
	case errors.As(err, &strictErr):
		return KindStrictOverwrite
	case errors.As(err, &conflictErr):
		return KindWriteConflict
	case errors.As(err, &ancestorErr):
		return KindNotAncestor
	case errors.As(err, &modelErr):
		return KindModelCall
	case errors.As(err, &validErr):
		return KindOutputValidation
	case errors.As(err, &toolErr):
		return KindToolExecution
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindUnknown
	}
}

// ModelCallError wraps a failed model invocation. Nothing is persisted when
// it occurs.
type ModelCallError struct {
	Model string
	Err   error
}

func (e *ModelCallError) Error() string {
	return fmt.Sprintf("model call %s failed: %v", e.Model, e.Err)
}

func (e *ModelCallError) Unwrap() error { return e.Err }

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	CallID  string `json:"call_id,omitempty"` // Originating tool call id
	Message string `json:"message"`
	Code    string `json:"code"`              // VALIDATION_ERROR, EXECUTION_ERROR, NOT_FOUND, PANIC
	Details any    `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{Tool: tool, Message: message, Code: code}
}

// OutputValidationError reports model output that failed to parse or did
// not satisfy the declared schema.
type OutputValidationError struct {
	Output string
	Err    error
}

func (e *OutputValidationError) Error() string {
	return fmt.Sprintf("invalid output: %v", e.Err)
}

func (e *OutputValidationError) Unwrap() error { return e.Err }

// NotAncestorError is returned by context tree operations given a node that
// is not on the parent chain.
type NotAncestorError struct{}

func (*NotAncestorError) Error() string { return "context node not found in parent chain" }

// RetryExhaustedError is terminal and carries the last underlying error.
type RetryExhaustedError struct {
	Trials int
	Last   error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("failed to generate valid output after %d trials: %v", e.Trials, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Last }

// WriteConflictError reports an optimistic concurrency violation on save.
type WriteConflictError struct {
	Name     string
	Expected int
	Actual   int
}

func (e *WriteConflictError) Error() string {
	return fmt.Sprintf("write conflict on %q: expected version %d, found %d", e.Name, e.Expected, e.Actual)
}

// StrictOverwriteError is raised when policy "fail" meets an existing artifact.
type StrictOverwriteError struct {
	Name string
}

func (e *StrictOverwriteError) Error() string {
	return fmt.Sprintf("output artifact %q already exists and overwrite policy is \"fail\"", e.Name)
}
