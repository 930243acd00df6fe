package model

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited gates every call of the wrapped model on a token bucket.
// Waiting honours context cancellation.
type RateLimited struct {
	inner   Model
	limiter *rate.Limiter
}

// NewRateLimited allows rps calls per second with the given burst (min 1).
func NewRateLimited(inner Model, rps float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{inner: inner, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Unwrap returns the wrapped model.
func (r *RateLimited) Unwrap() Model { return r.inner }

// Generate waits for a token before delegating.
func (r *RateLimited) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	if err := r.limiter.Wait(ctx); err != nil {
		respCh := make(chan Response)
		errCh := make(chan error, 1)
		errCh <- fmt.Errorf("rate limit: %w", err)
		close(respCh)
		close(errCh)
		return respCh, errCh
	}
	return r.inner.Generate(ctx, req)
}

// Info implements Model.
func (r *RateLimited) Info() Info { return r.inner.Info() }

// Supports implements Model.
func (r *RateLimited) Supports(c Capability) bool { return r.inner.Supports(c) }

// Embed delegates to the wrapped model when it implements Embedder.
func (r *RateLimited) Embed(ctx context.Context, text string) ([]float64, error) {
	e, ok := r.inner.(Embedder)
	if !ok {
		return nil, ErrUnsupported
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return e.Embed(ctx, text)
}

// Speak delegates to the wrapped model when it implements Speaker.
func (r *RateLimited) Speak(ctx context.Context, req SpeechRequest) ([]byte, error) {
	s, ok := r.inner.(Speaker)
	if !ok {
		return nil, ErrUnsupported
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return s.Speak(ctx, req)
}

// Transcribe delegates to the wrapped model when it implements Transcriber.
func (r *RateLimited) Transcribe(ctx context.Context, req TranscriptionRequest) (string, error) {
	t, ok := r.inner.(Transcriber)
	if !ok {
		return "", ErrUnsupported
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}
	return t.Transcribe(ctx, req)
}
