package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/llmflow/core"
)

// MockHandler computes a response for a request.
type MockHandler func(ctx context.Context, req Request) (*Response, error)

// MockModel is a lightweight in-memory Model useful for tests and examples.
// Queued responses are served first in order. Once the queue is empty the
// handler is used, and without a handler the model echoes the last message.
type MockModel struct {
	info Info

	mu       sync.Mutex
	queue    []mockReply
	handler  MockHandler
	requests []Request

	EmbedFunc      func(ctx context.Context, text string) ([]float64, error)
	SpeakFunc      func(ctx context.Context, req SpeechRequest) ([]byte, error)
	TranscribeFunc func(ctx context.Context, req TranscriptionRequest) (string, error)
}

type mockReply struct {
	resp *Response
	err  error
}

// AllCapabilities lists every capability known to this package.
var AllCapabilities = []Capability{
	CapabilityChat, CapabilityImages, CapabilityJSON, CapabilityTools,
	CapabilityEmbeddings, CapabilitySpeech, CapabilityTranscription,
}

// NewMockModel constructs a MockModel. Without capabilities it supports all.
func NewMockModel(name string, caps ...Capability) *MockModel {
	if len(caps) == 0 {
		caps = AllCapabilities
	}
	return &MockModel{info: Info{Name: name, Provider: "mock", Capabilities: caps}}
}

// AddText queues a plain assistant text response.
func (m *MockModel) AddText(text string) *MockModel {
	return m.AddResponse(&Response{Message: core.AssistantMessage(text), FinishReason: "stop"})
}

// AddToolCalls queues an assistant response requesting the given tool calls.
func (m *MockModel) AddToolCalls(calls ...core.ToolCall) *MockModel {
	msg := core.Message{Role: core.RoleAssistant, ToolCalls: calls}
	return m.AddResponse(&Response{Message: msg, FinishReason: "tool_calls"})
}

// AddResponse queues a response.
func (m *MockModel) AddResponse(resp *Response) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockReply{resp: resp})
	return m
}

// AddError queues a failing call.
func (m *MockModel) AddError(err error) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockReply{err: err})
	return m
}

// SetHandler installs the fallback used once the queue is empty.
func (m *MockModel) SetHandler(h MockHandler) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
	return m
}

// Requests returns a copy of all requests received so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// Calls returns the number of Generate invocations.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Generate implements Model; emits optional streaming char chunks then the
// final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.requests = append(m.requests, req)
	var (
		next    *mockReply
		handler = m.handler
	)
	if len(m.queue) > 0 {
		next = &m.queue[0]
		m.queue = m.queue[1:]
	}
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)

		var (
			resp *Response
			err  error
		)
		switch {
		case next != nil:
			resp, err = next.resp, next.err
		case handler != nil:
			resp, err = handler(ctx, req)
		default:
			resp, err = echo(req)
		}
		if err != nil {
			errCh <- err
			return
		}

		final := *resp
		if final.Model == "" {
			final.Model = m.info.Name
		}
		if req.Stream {
			for _, r := range final.Message.Text() {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Message: core.AssistantMessage(string(r))}:
				}
			}
		}
		final.Partial = false
		respCh <- final
	}()
	return respCh, errCh
}

func echo(req Request) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("no messages provided")
	}
	last := req.Messages[len(req.Messages)-1]
	return &Response{Message: core.AssistantMessage(fmt.Sprintf("Mock response to: %s", last.Text())), FinishReason: "stop"}, nil
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }

// Supports implements Model.
func (m *MockModel) Supports(c Capability) bool { return m.info.Has(c) }

// Embed implements Embedder. Without EmbedFunc it returns a vector of the
// text length.
func (m *MockModel) Embed(ctx context.Context, text string) ([]float64, error) {
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}
	return []float64{float64(len(text))}, nil
}

// Speak implements Speaker. Without SpeakFunc it returns the text bytes.
func (m *MockModel) Speak(ctx context.Context, req SpeechRequest) ([]byte, error) {
	if m.SpeakFunc != nil {
		return m.SpeakFunc(ctx, req)
	}
	return []byte(req.Text), nil
}

// Transcribe implements Transcriber. Without TranscribeFunc it returns the
// audio bytes as text.
func (m *MockModel) Transcribe(ctx context.Context, req TranscriptionRequest) (string, error) {
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, req)
	}
	return string(req.Audio), nil
}
