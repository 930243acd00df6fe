// Package openai provides an implementation of model.Model using the OpenAI
// Chat Completions API (including streaming, json mode and tool calling). It
// also implements embeddings, speech synthesis and transcription. OpenAI
// compatible servers such as ollama are reached through Options.BaseURL.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/hupe1980/llmflow/core"
	"github.com/hupe1980/llmflow/model"
)

// DefaultOllamaBaseURL is the OpenAI compatible endpoint of a local ollama.
const DefaultOllamaBaseURL = "http://localhost:11434/v1"

// aggCall aggregates partial tool call streaming deltas (id, name, arguments)
// allowing reconstruction of complete tool calls when finish reason is
// emitted.
type aggCall struct{ id, name, args string }

// Options configure the OpenAI model adapter.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string
	BaseURL             string
	Provider            string
	Capabilities        []model.Capability
	EmbeddingModel      string
	SpeechModel         string
	TranscriptionModel  string
}

// Model wraps the OpenAI API behind the generic model interfaces.
type Model struct {
	client *openai.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
		Provider:            "openai",
		Capabilities:        model.AllCapabilities,
		EmbeddingModel:      openai.EmbeddingModelTextEmbedding3Small,
		SpeechModel:         openai.SpeechModelTTS1,
		TranscriptionModel:  openai.AudioModelWhisper1,
	}
}

// NewModel creates a new OpenAI model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := openai.NewClient(clientOpts...)
	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new OpenAI model from an existing client.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// New is a model.Constructor for type "openai".
func New(cfg model.Config) (model.Model, error) {
	return NewModel(fromConfig(cfg)), nil
}

// NewOllama is a model.Constructor for type "ollama". Speech and
// transcription are not offered by ollama.
func NewOllama(cfg model.Config) (model.Model, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaBaseURL
	}
	if cfg.APIKey == "" {
		cfg.APIKey = "ollama"
	}
	return NewModel(fromConfig(cfg), func(o *Options) {
		o.Provider = "ollama"
		o.Capabilities = []model.Capability{
			model.CapabilityChat, model.CapabilityImages, model.CapabilityJSON,
			model.CapabilityTools, model.CapabilityEmbeddings,
		}
		o.EmbeddingModel = cfg.Model
	}), nil
}

func fromConfig(cfg model.Config) func(o *Options) {
	return func(o *Options) {
		if cfg.Model != "" {
			o.Model = cfg.Model
		}
		if cfg.Temperature != 0 {
			o.Temperature = cfg.Temperature
		}
		if cfg.MaxTokens > 0 {
			o.MaxCompletionTokens = int64(cfg.MaxTokens)
		}
		o.APIKey = cfg.APIKey
		o.BaseURL = cfg.BaseURL
	}
}

// Generate implements unified streaming / non-streaming generation.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		params := m.buildParams(req)
		if req.Stream {
			m.handleStreaming(ctx, params, out, errCh)
			return
		}
		m.handleNonStreaming(ctx, params, out, errCh)
	}()
	return out, errCh
}

// buildMessages converts normalized messages into OpenAI chat messages.
func buildMessages(req model.Request) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case core.RoleTool:
			messages = append(messages, openai.ToolMessage(msg.Text(), msg.ToolCallID))
		case core.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(msg.Text()))
				continue
			}
			a := openai.ChatCompletionAssistantMessageParam{ToolCalls: toToolCallParams(msg.ToolCalls)}
			if text := msg.Text(); text != "" {
				a.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(text)}
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: &a})
		default:
			if !msg.HasImages() {
				messages = append(messages, openai.UserMessage(msg.Text()))
				continue
			}
			parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(msg.Parts))
			for _, p := range msg.Parts {
				switch v := p.(type) {
				case core.TextPart:
					parts = append(parts, openai.TextContentPart(v.Text))
				case core.ImagePart:
					parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: v.URL}))
				}
			}
			messages = append(messages, openai.UserMessage(parts))
		}
	}
	return messages
}

func toToolCallParams(calls []core.ToolCall) []openai.ChatCompletionMessageToolCallParam {
	out := make([]openai.ChatCompletionMessageToolCallParam, len(calls))
	for i, c := range calls {
		out[i] = openai.ChatCompletionMessageToolCallParam{
			ID:   c.ID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      c.Name,
				Arguments: c.Arguments,
			},
		}
	}
	return out
}

// buildParams assembles the OpenAI request parameters including tool definitions.
func (m *Model) buildParams(req model.Request) openai.ChatCompletionNewParams {
	temperature := m.opts.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := m.opts.MaxCompletionTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}
	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(req),
		Model:               m.opts.Model,
		Temperature:         openai.Float(temperature),
		MaxCompletionTokens: openai.Int(maxTokens),
	}
	if req.Format == core.FormatJSON && len(req.Tools) == 0 {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	if len(req.Tools) == 0 {
		return params
	}
	tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
	for i, tdef := range req.Tools {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        tdef.Name,
				Description: openai.String(tdef.Description),
				Parameters:  tdef.Parameters,
			},
		}
	}
	params.Tools = tools
	return params
}

// handleStreaming processes streaming responses and forwards partial / final events.
func (m *Model) handleStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	stream := m.client.Chat.Completions.NewStreaming(ctx, params)
	var (
		textBuilder strings.Builder
		toolAgg     = map[int64]*aggCall{}
		order       []int64
		id          string
	)
	for stream.Next() {
		ck := stream.Current()
		if ck.ID != "" {
			id = ck.ID
		}
		for _, ch := range ck.Choices {
			if ch.Delta.Content != "" {
				textBuilder.WriteString(ch.Delta.Content)
				out <- model.Response{Partial: true, Message: core.AssistantMessage(ch.Delta.Content)}
			}
			for _, tc := range ch.Delta.ToolCalls {
				ac, ok := toolAgg[tc.Index]
				if !ok {
					ac = &aggCall{}
					toolAgg[tc.Index] = ac
					order = append(order, tc.Index)
				}
				if tc.ID != "" {
					ac.id = tc.ID
				}
				if tc.Function.Name != "" {
					ac.name = tc.Function.Name
				}
				ac.args += tc.Function.Arguments
			}
			if ch.FinishReason != "" {
				msg := core.AssistantMessage(textBuilder.String())
				for _, idx := range order {
					ac := toolAgg[idx]
					msg.ToolCalls = append(msg.ToolCalls, core.ToolCall{ID: ac.id, Name: ac.name, Arguments: ac.args})
				}
				out <- model.Response{
					ID:           id,
					Model:        m.opts.Model,
					Message:      msg,
					FinishReason: ch.FinishReason,
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		errCh <- fmt.Errorf("openai streaming error: %w", err)
	}
}

// handleNonStreaming processes a normal (non-streaming) completion.
func (m *Model) handleNonStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		errCh <- fmt.Errorf("openai api error: %w", err)
		return
	}
	if len(resp.Choices) == 0 {
		errCh <- fmt.Errorf("no choices returned")
		return
	}
	ch0 := resp.Choices[0]
	msg := core.AssistantMessage(ch0.Message.Content)
	for _, tc := range ch0.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, core.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	out <- model.Response{
		ID:           resp.ID,
		Model:        resp.Model,
		Message:      msg,
		FinishReason: ch0.FinishReason,
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
}

// Embed implements model.Embedder.
func (m *Model) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := m.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: m.opts.EmbeddingModel,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding error: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return resp.Data[0].Embedding, nil
}

// Speak implements model.Speaker.
func (m *Model) Speak(ctx context.Context, req model.SpeechRequest) ([]byte, error) {
	req = req.WithDefaults()
	resp, err := m.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          req.Text,
		Model:          m.opts.SpeechModel,
		Voice:          openai.AudioSpeechNewParamsVoice(req.Voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormat(req.Format),
		Speed:          openai.Float(req.Speed),
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech error: %w", err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// Transcribe implements model.Transcriber.
func (m *Model) Transcribe(ctx context.Context, req model.TranscriptionRequest) (string, error) {
	filename, mime := "audio.wav", "audio/wav"
	if req.Format == "mp3" {
		filename, mime = "audio.mp3", "audio/mpeg"
	}
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(req.Audio), filename, mime),
		Model: m.opts.TranscriptionModel,
	}
	if req.Prompt != "" {
		params.Prompt = openai.String(req.Prompt)
	}
	resp, err := m.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai transcription error: %w", err)
	}
	return resp.Text, nil
}

// Info returns metadata describing this model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:         m.opts.Model,
		Provider:     m.opts.Provider,
		Capabilities: m.opts.Capabilities,
	}
}

// Supports implements model.Model.
func (m *Model) Supports(c model.Capability) bool { return m.Info().Has(c) }
