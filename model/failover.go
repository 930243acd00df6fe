package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrAllFailed is returned when every model of a Failover failed.
var ErrAllFailed = errors.New("all models failed")

// Failover tries its models round-robin. A failing model moves the cursor
// so the next call starts with the following model.
type Failover struct {
	models []Model

	mu   sync.Mutex
	next int
}

// NewFailover returns a Failover over models. At least one model is required.
func NewFailover(models ...Model) (*Failover, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("failover requires at least one model")
	}
	return &Failover{models: models}, nil
}

func (f *Failover) current() (int, Model) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.next, f.models[f.next]
}

func (f *Failover) advance(from int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.next == from {
		f.next = (f.next + 1) % len(f.models)
	}
}

func call[T any](ctx context.Context, f *Failover, fn func(Model) (T, error)) (T, error) {
	var (
		zero T
		errs []error
	)
	for range f.models {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		idx, m := f.current()
		v, err := fn(m)
		if err == nil {
			return v, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", m.Info().Name, err))
		f.advance(idx)
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}

// Generate collects the response of the first model that succeeds and
// re-emits it as a single final response.
func (f *Failover) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 1)
	errCh := make(chan error, 1)
	go func() {
		defer close(respCh)
		defer close(errCh)
		req.Stream = false
		resp, err := call(ctx, f, func(m Model) (*Response, error) { return Collect(ctx, m, req) })
		if err != nil {
			errCh <- err
			return
		}
		respCh <- *resp
	}()
	return respCh, errCh
}

// Info joins the names of the wrapped models and intersects capabilities.
func (f *Failover) Info() Info {
	names := make([]string, len(f.models))
	for i, m := range f.models {
		names[i] = m.Info().Name
	}
	var caps []Capability
	for _, c := range AllCapabilities {
		if f.Supports(c) {
			caps = append(caps, c)
		}
	}
	return Info{Name: strings.Join(names, "|"), Provider: "failover", Capabilities: caps}
}

// Supports reports true only when every wrapped model supports c.
func (f *Failover) Supports(c Capability) bool {
	for _, m := range f.models {
		if !m.Supports(c) {
			return false
		}
	}
	return true
}

// Embed tries the models that implement Embedder.
func (f *Failover) Embed(ctx context.Context, text string) ([]float64, error) {
	return call(ctx, f, func(m Model) ([]float64, error) {
		e, ok := m.(Embedder)
		if !ok || !m.Supports(CapabilityEmbeddings) {
			return nil, ErrUnsupported
		}
		return e.Embed(ctx, text)
	})
}
