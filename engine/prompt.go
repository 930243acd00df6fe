package engine

import (
	"encoding/json"
	"strings"

	"github.com/hupe1980/llmflow/core"
	"github.com/hupe1980/llmflow/internal/util"
	"github.com/hupe1980/llmflow/tool"
)

// FormatInstruction returns the sentence telling the model how to shape its
// answer.
func FormatInstruction(format core.OutputFormat, schema map[string]any) string {
	switch format {
	case core.FormatJSON:
		if schema != nil {
			if b, err := json.Marshal(schema); err == nil {
				return "In your response, output only a JSON object with the following schema: " + string(b)
			}
		}
		return "In your response, output only a JSON object."
	case core.FormatMarkdown:
		return "In your response, output Github Flavored Markdown."
	default:
		return "In your response, output only text, with no Markdown or other delimiters."
	}
}

// SystemPrompt appends the format instruction to the caller's system text.
func SystemPrompt(system string, format core.OutputFormat, schema map[string]any) string {
	instruction := FormatInstruction(format, schema)
	system = strings.TrimSpace(system)
	if system == "" {
		return instruction
	}
	return system + "\n" + instruction
}

// InputHash identifies the inputs of a request: the flattened messages,
// format, system text, schema and the names of offered tools. Tool
// definitions other than names do not take part.
func InputHash(messages []core.Message, req Request) (string, error) {
	return util.HashJSON(struct {
		Messages []core.Message    `json:"messages"`
		Format   core.OutputFormat `json:"format"`
		System   string            `json:"system,omitempty"`
		Schema   map[string]any    `json:"schema,omitempty"`
		Tools    []string          `json:"tools,omitempty"`
	}{
		Messages: messages,
		Format:   req.Format,
		System:   req.System,
		Schema:   req.Schema,
		Tools:    tool.Names(req.Tools),
	})
}
