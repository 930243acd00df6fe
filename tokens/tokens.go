// Package tokens estimates token counts for messages and text. Counts feed
// the context budget checks of the builder and the artifact size metadata.
package tokens

import (
	"fmt"
	"sync"

	"github.com/hupe1980/llmflow/core"
	"github.com/pkoukk/tiktoken-go"
)

// Counter estimates the number of tokens in text.
type Counter interface {
	Count(text string) int
}

// Heuristic approximates four bytes per token.
type Heuristic struct{}

// Count implements Counter.
func (Heuristic) Count(text string) int {
	return (len(text) + 3) / 4
}

// Tiktoken counts with a BPE encoding. The encoding is loaded lazily on
// first use (it may need to download data) and the counter falls back to
// Heuristic when loading fails.
type Tiktoken struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
	initErr  error
}

// NewTiktoken creates a counter for the named encoding (e.g. cl100k_base).
func NewTiktoken(encoding string) *Tiktoken {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	return &Tiktoken{encoding: encoding}
}

func (t *Tiktoken) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// Err reports the lazy initialisation error, if any.
func (t *Tiktoken) Err() error { return t.init() }

// Count implements Counter.
func (t *Tiktoken) Count(text string) int {
	if err := t.init(); err != nil {
		return Heuristic{}.Count(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// CountMessage estimates the tokens of a message's text parts.
func CountMessage(c Counter, m core.Message) int {
	return c.Count(m.Text())
}

// CountMessages sums CountMessage over msgs.
func CountMessages(c Counter, msgs []core.Message) int {
	total := 0
	for _, m := range msgs {
		total += CountMessage(c, m)
	}
	return total
}

// Default is the counter used when callers do not configure one.
var Default Counter = Heuristic{}
