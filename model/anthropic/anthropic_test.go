package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/llmflow/core"
	"github.com/hupe1980/llmflow/model"
)

var _ model.Model = (*Model)(nil)

func TestBuildMessages_MergesToolResults(t *testing.T) {
	msgs := buildMessages([]core.Message{
		core.UserMessage("compute"),
		{Role: core.RoleAssistant, ToolCalls: []core.ToolCall{
			{ID: "a", Name: "add", Arguments: `{"x":1}`},
			{ID: "b", Name: "add", Arguments: `{"x":2}`},
		}},
		core.ToolMessage("a", "1"),
		core.ToolMessage("b", "2"),
	})
	require.Len(t, msgs, 3)
	assert.Len(t, msgs[1].Content, 2)
	assert.Len(t, msgs[2].Content, 2)
	assert.NotNil(t, msgs[2].Content[0].OfToolResult)
}

func TestSplitDataURL(t *testing.T) {
	mt, data, ok := splitDataURL("data:image/png;base64,QUJD")
	require.True(t, ok)
	assert.Equal(t, "image/png", mt)
	assert.Equal(t, "QUJD", data)

	_, _, ok = splitDataURL("https://example.com/a.png")
	assert.False(t, ok)
}

func TestBuildTools(t *testing.T) {
	tools := buildTools([]model.ToolDefinition{{
		Name:        "add",
		Description: "adds",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"x": map[string]any{"type": "number"}},
			"required":   []any{"x"},
		},
	}})
	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, "add", tools[0].OfTool.Name)
	assert.Equal(t, []string{"x"}, tools[0].OfTool.InputSchema.Required)
}

func TestNew(t *testing.T) {
	m, err := New(model.Config{Type: "anthropic", Model: "claude-test", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "claude-test", m.Info().Name)
	assert.False(t, m.Supports(model.CapabilityEmbeddings))
}
