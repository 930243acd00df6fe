// Package reducer shrinks conversation context that exceeds a token budget.
//
// A Reducer receives the flattened messages of a context node and returns a
// replacement list of equal length and order, or nil when nothing needs to
// change. The builder grafts the result onto a fresh context tree.
package reducer

import (
	"context"

	"github.com/hupe1980/llmflow/core"
)

// Reducer reduces messages to roughly target tokens.
type Reducer interface {
	Reduce(ctx context.Context, msgs []core.Message, target int) ([]core.Message, error)
}

// Func adapts a function to the Reducer interface.
type Func func(ctx context.Context, msgs []core.Message, target int) ([]core.Message, error)

// Reduce implements Reducer.
func (f Func) Reduce(ctx context.Context, msgs []core.Message, target int) ([]core.Message, error) {
	return f(ctx, msgs, target)
}

// None never reduces.
var None Reducer = Func(func(context.Context, []core.Message, int) ([]core.Message, error) {
	return nil, nil
})
