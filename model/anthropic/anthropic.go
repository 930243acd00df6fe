// Package anthropic provides a model wrapper for the Anthropic Claude API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/llmflow/core"
	"github.com/hupe1980/llmflow/model"
)

// Options configures the Anthropic model adapter (temperature, model id,
// max tokens, API key).
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
	BaseURL     string
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// NewModel creates a new Anthropic model using the official client.
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

	client := anthropic.NewClient(clientOpts...)

	return &Model{
		client: &client,
		opts:   opts,
	}
}

// NewModelFromClient creates a new Anthropic model from an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{
		client: client,
		opts:   opts,
	}
}

// New is a model.Constructor for type "anthropic".
func New(cfg model.Config) (model.Model, error) {
	return NewModel(func(o *Options) {
		if cfg.Model != "" {
			o.Model = anthropic.Model(cfg.Model)
		}
		if cfg.Temperature != 0 {
			o.Temperature = cfg.Temperature
		}
		if cfg.MaxTokens > 0 {
			o.MaxTokens = int64(cfg.MaxTokens)
		}
		o.APIKey = cfg.APIKey
		o.BaseURL = cfg.BaseURL
	}), nil
}

// Generate adapts the Messages API (with tool calling) into a final
// model.Response. Streaming requests are answered with the final response
// only.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := m.buildParams(req)

		resp, err := m.client.Messages.New(ctx, params)
		if err != nil {
			errCh <- fmt.Errorf("anthropic api error: %w", err)
			return
		}

		var (
			texts []string
			calls []core.ToolCall
		)
		for _, block := range resp.Content {
			switch block.Type {
			case "text":
				if text := block.AsText().Text; text != "" {
					texts = append(texts, text)
				}
			case "tool_use":
				toolBlock := block.AsToolUse()
				args := ""
				if toolBlock.Input != nil {
					args = string(toolBlock.Input)
				}
				calls = append(calls, core.ToolCall{ID: toolBlock.ID, Name: toolBlock.Name, Arguments: args})
			}
		}

		msg := core.AssistantMessage(strings.Join(texts, "\n"))
		msg.ToolCalls = calls

		finishReason := "stop"
		if resp.StopReason != "" {
			finishReason = string(resp.StopReason)
		}

		out <- model.Response{
			ID:           resp.ID,
			Model:        string(resp.Model),
			Message:      msg,
			FinishReason: finishReason,
			Usage: &model.TokenUsage{
				PromptTokens:     int(resp.Usage.InputTokens),
				CompletionTokens: int(resp.Usage.OutputTokens),
				TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
			},
		}
	}()

	return out, errCh
}

func (m *Model) buildParams(req model.Request) anthropic.MessageNewParams {
	temperature := m.opts.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := m.opts.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}
	params := anthropic.MessageNewParams{
		Model:       m.opts.Model,
		Messages:    buildMessages(req.Messages),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}
	return params
}

// buildMessages converts messages to the Anthropic format. Tool results are
// sent as user turns carrying tool_result blocks, consecutive results are
// merged into one turn.
func buildMessages(msgs []core.Message) []anthropic.MessageParam {
	var messages []anthropic.MessageParam

	for _, msg := range msgs {
		switch msg.Role {
		case core.RoleAssistant:
			content := buildAssistantContent(msg)
			if len(content) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(content...))
			}
		case core.RoleTool:
			block := anthropic.NewToolResultBlock(msg.ToolCallID, msg.Text(), false)
			if n := len(messages); n > 0 && messages[n-1].Role == anthropic.MessageParamRoleUser && isToolResultTurn(messages[n-1]) {
				messages[n-1].Content = append(messages[n-1].Content, block)
				continue
			}
			messages = append(messages, anthropic.NewUserMessage(block))
		default:
			content := buildUserContent(msg.Parts)
			if len(content) > 0 {
				messages = append(messages, anthropic.NewUserMessage(content...))
			}
		}
	}

	return messages
}

func isToolResultTurn(m anthropic.MessageParam) bool {
	for _, c := range m.Content {
		if c.OfToolResult == nil {
			return false
		}
	}
	return len(m.Content) > 0
}

// buildUserContent builds content for user messages.
func buildUserContent(parts []core.Part) []anthropic.ContentBlockParamUnion {
	var content []anthropic.ContentBlockParamUnion

	for _, p := range parts {
		switch v := p.(type) {
		case core.TextPart:
			if v.Text != "" {
				content = append(content, anthropic.NewTextBlock(v.Text))
			}
		case core.ImagePart:
			if mediaType, data, ok := splitDataURL(v.URL); ok {
				content = append(content, anthropic.NewImageBlockBase64(mediaType, data))
			}
		}
	}

	return content
}

// splitDataURL parses "data:<media type>;base64,<payload>".
func splitDataURL(url string) (string, string, bool) {
	rest, ok := strings.CutPrefix(url, "data:")
	if !ok {
		return "", "", false
	}
	header, data, ok := strings.Cut(rest, ",")
	if !ok {
		return "", "", false
	}
	mediaType, _, _ := strings.Cut(header, ";")
	return mediaType, data, true
}

// buildAssistantContent builds content for assistant messages.
func buildAssistantContent(msg core.Message) []anthropic.ContentBlockParamUnion {
	var content []anthropic.ContentBlockParamUnion

	if text := msg.Text(); text != "" && len(msg.ToolCalls) == 0 {
		content = append(content, anthropic.NewTextBlock(text))
	}
	for _, call := range msg.ToolCalls {
		var input any
		if call.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Arguments), &input); err != nil {
				input = call.Arguments // fallback to string
			}
		}
		content = append(content, anthropic.NewToolUseBlock(call.ID, input, call.Name))
	}

	return content
}

// buildTools converts tool definitions to the Anthropic tool format.
func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	anthropicTools := make([]anthropic.ToolUnionParam, len(tools))

	for i, tool := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}

		if params := tool.Parameters; params != nil {
			if properties, exists := params["properties"]; exists {
				inputSchema.Properties = properties
			}
			switch req := params["required"].(type) {
			case []string:
				inputSchema.Required = req
			case []any:
				for _, r := range req {
					if s, ok := r.(string); ok {
						inputSchema.Required = append(inputSchema.Required, s)
					}
				}
			}
		}

		anthropicTools[i] = anthropic.ToolUnionParamOfTool(inputSchema, tool.Name)
		if tool.Description != "" && anthropicTools[i].OfTool != nil {
			anthropicTools[i].OfTool.Description = anthropic.String(tool.Description)
		}
	}

	return anthropicTools
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:     string(m.opts.Model),
		Provider: "anthropic",
		Capabilities: []model.Capability{
			model.CapabilityChat, model.CapabilityImages, model.CapabilityJSON, model.CapabilityTools,
		},
	}
}

// Supports implements model.Model.
func (m *Model) Supports(c model.Capability) bool { return m.Info().Has(c) }
