package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/llmflow/core"
)

// ErrUnsupported is returned when a model lacks a requested capability.
var ErrUnsupported = errors.New("capability not supported by model")

// Capability names an optional model feature.
type Capability string

const (
	CapabilityChat          Capability = "chat"
	CapabilityImages        Capability = "images"
	CapabilityJSON          Capability = "json"
	CapabilityTools         Capability = "tools"
	CapabilityEmbeddings    Capability = "embeddings"
	CapabilitySpeech        Capability = "speech"
	CapabilityTranscription Capability = "transcription"
)

// ToolDefinition declaratively exposes a callable function to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized model input produced by the engine.
type Request struct {
	System      string            `json:"system,omitempty"`
	Messages    []core.Message    `json:"messages"`
	Tools       []ToolDefinition  `json:"tools,omitempty"`
	Format      core.OutputFormat `json:"format,omitempty"`
	Schema      map[string]any    `json:"schema,omitempty"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature *float64          `json:"temperature,omitempty"`
	Stream      bool              `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model.
type Response struct {
	ID           string       `json:"id,omitempty"`
	Model        string       `json:"model,omitempty"`
	Partial      bool         `json:"partial,omitempty"`
	Message      core.Message `json:"message"`
	FinishReason string       `json:"finish_reason,omitempty"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name         string       `json:"name"`
	Provider     string       `json:"provider"` // "openai", "anthropic", "ollama", "mock"
	Capabilities []Capability `json:"capabilities"`
}

// Has reports whether c is listed in the capabilities.
func (i Info) Has(c Capability) bool {
	for _, have := range i.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// Model is the minimal interface required by the engine to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info

	// Supports reports whether the model offers capability c.
	Supports(c Capability) bool
}

// Embedder is implemented by models that produce vector embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// SpeechRequest describes a text-to-speech call.
type SpeechRequest struct {
	Text   string  `json:"text"`
	Voice  string  `json:"voice,omitempty"`
	Format string  `json:"format,omitempty"` // mp3, wav, opus, ...
	Speed  float64 `json:"speed,omitempty"`
}

// WithDefaults fills unset fields with mp3, alloy and 1.0.
func (r SpeechRequest) WithDefaults() SpeechRequest {
	if r.Format == "" {
		r.Format = "mp3"
	}
	if r.Voice == "" {
		r.Voice = "alloy"
	}
	if r.Speed == 0 {
		r.Speed = 1.0
	}
	return r
}

// Speaker is implemented by models that synthesize speech.
type Speaker interface {
	Speak(ctx context.Context, req SpeechRequest) ([]byte, error)
}

// TranscriptionRequest describes a speech-to-text call.
type TranscriptionRequest struct {
	Audio  []byte
	Format string // mp3 or wav
	Prompt string
}

// Transcriber is implemented by models that transcribe audio.
type Transcriber interface {
	Transcribe(ctx context.Context, req TranscriptionRequest) (string, error)
}

// Collect drains a Generate call and returns the final (non-partial)
// response. Partial chunks are discarded.
func Collect(ctx context.Context, m Model, req Request) (*Response, error) {
	respCh, errCh := m.Generate(ctx, req)
	var final *Response
	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case r, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if !r.Partial {
				r := r
				final = &r
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return nil, err
			}
		}
	}
	if final == nil {
		return nil, fmt.Errorf("model %s returned no final response", m.Info().Name)
	}
	return final, nil
}
