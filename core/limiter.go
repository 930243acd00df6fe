package core

import (
	"fmt"
	"sync"
)

// ErrModelCallLimit is returned once a ModelLimiter budget is spent.
var ErrModelCallLimit = fmt.Errorf("model call limit exceeded")

// ModelLimiter enforces a maximum number of model calls. It is shared by all
// runs of one engine so a runaway retry loop cannot spend an unbounded budget.
type ModelLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewModelLimiter creates a new limiter with a max number of calls.
// If max == 0, unlimited calls are allowed.
func NewModelLimiter(max int) *ModelLimiter {
	return &ModelLimiter{max: max}
}

// Acquire reserves one call and fails with ErrModelCallLimit when the budget
// is exhausted. A failed acquire does not consume budget.
func (ml *ModelLimiter) Acquire() error {
	if ml == nil {
		return nil
	}
	ml.mu.Lock()
	defer ml.mu.Unlock()

	if ml.max > 0 && ml.count >= ml.max {
		return fmt.Errorf("%w: %d", ErrModelCallLimit, ml.max)
	}
	ml.count++

	return nil
}

// Count returns the current number of calls made.
func (ml *ModelLimiter) Count() int {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	return ml.count
}

// Remaining returns how many calls are left, or -1 when unlimited.
func (ml *ModelLimiter) Remaining() int {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	if ml.max == 0 {
		return -1
	}

	return ml.max - ml.count
}
