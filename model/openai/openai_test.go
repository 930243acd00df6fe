package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/llmflow/core"
	"github.com/hupe1980/llmflow/model"
)

var (
	_ model.Model       = (*Model)(nil)
	_ model.Embedder    = (*Model)(nil)
	_ model.Speaker     = (*Model)(nil)
	_ model.Transcriber = (*Model)(nil)
)

func TestBuildMessages(t *testing.T) {
	img := core.UserMessage("look")
	img.Parts = append(img.Parts, core.NewImagePart("data:image/png;base64,AAAA"))

	req := model.Request{
		System: "be brief",
		Messages: []core.Message{
			core.UserMessage("hi"),
			{Role: core.RoleAssistant, ToolCalls: []core.ToolCall{{ID: "c1", Name: "add", Arguments: `{"a":1}`}}},
			core.ToolMessage("c1", "2"),
			img,
		},
	}
	msgs := buildMessages(req)
	require.Len(t, msgs, 5)
	assert.NotNil(t, msgs[0].OfSystem)
	assert.NotNil(t, msgs[1].OfUser)
	require.NotNil(t, msgs[2].OfAssistant)
	assert.Len(t, msgs[2].OfAssistant.ToolCalls, 1)
	require.NotNil(t, msgs[3].OfTool)
	assert.Equal(t, "c1", msgs[3].OfTool.ToolCallID)
	require.NotNil(t, msgs[4].OfUser)
	assert.Len(t, msgs[4].OfUser.Content.OfArrayOfContentParts, 2)
}

func TestGenerate_NonStreaming(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "cmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-test",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "add", "arguments": "{\"a\":1}"}}]
				}
			}],
			"usage": {"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5}
		}`)
	}))
	defer srv.Close()

	m := NewModel(func(o *Options) {
		o.APIKey = "test"
		o.BaseURL = srv.URL
		o.Model = "gpt-test"
	})

	resp, err := model.Collect(context.Background(), m, model.Request{
		Messages: []core.Message{core.UserMessage("add one")},
		Format:   core.FormatJSON,
	})
	require.NoError(t, err)
	assert.Equal(t, "cmpl-1", resp.ID)
	require.Len(t, resp.Message.ToolCalls, 1)
	assert.Equal(t, "add", resp.Message.ToolCalls[0].Name)
	assert.Equal(t, 5, resp.Usage.TotalTokens)

	format, ok := body["response_format"].(map[string]any)
	require.True(t, ok, "json format requests json mode")
	assert.Equal(t, "json_object", format["type"])
}

func TestNewOllama(t *testing.T) {
	m, err := NewOllama(model.Config{Type: "ollama", Model: "llama3"})
	require.NoError(t, err)
	assert.Equal(t, "ollama", m.Info().Provider)
	assert.True(t, m.Supports(model.CapabilityTools))
	assert.False(t, m.Supports(model.CapabilitySpeech))
}
