package core

import (
	"context"

	"github.com/hupe1980/llmflow/logging"
)

// ToolContext provides the constrained surface handed to tool
// implementations: the cancellation context of the surrounding engine run,
// the originating tool call id and a logger.
type ToolContext struct {
	ctx            context.Context
	functionCallID string
	outputName     string
	logger         logging.Logger
}

// NewToolContext constructs a tool context for one tool call.
func NewToolContext(ctx context.Context, functionCallID, outputName string, logger logging.Logger) *ToolContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ToolContext{
		ctx:            ctx,
		functionCallID: functionCallID,
		outputName:     outputName,
		logger:         logging.OrNoOp(logger),
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.logger }

// FunctionCallID returns the tool call id that triggered the invocation.
func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }

// OutputName returns the artifact name the surrounding run writes to.
func (tc *ToolContext) OutputName() string { return tc.outputName }
