package core

import (
	"sync"
	"time"
)

// Clock hands out logical millisecond timestamps that strictly increase even
// when called faster than the wall clock advances.
type Clock struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewClock returns a clock backed by time.Now.
func NewClock() *Clock { return &Clock{last: -1, now: time.Now} }

// NewClockAt returns a clock backed by now, useful for tests.
func NewClockAt(now func() time.Time) *Clock { return &Clock{last: -1, now: now} }

// Next returns max(previous+1, now).
func (c *Clock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.now().UnixMilli()
	if ts <= c.last {
		ts = c.last + 1
	}
	c.last = ts
	return ts
}

// After returns a timestamp from Next that is also greater than floor.
func (c *Clock) After(floor int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.now().UnixMilli()
	if ts <= c.last {
		ts = c.last + 1
	}
	if ts <= floor {
		ts = floor + 1
	}
	c.last = ts
	return ts
}
