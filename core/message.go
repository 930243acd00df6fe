package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall describes a model requested tool invocation.
type ToolCall struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"` // JSON encoded arguments
}

// Message is a single immutable conversation entry. Callers must not mutate
// Parts or ToolCalls after the message has been added to a context node.
type Message struct {
	Role       Role
	Parts      []Part
	ToolCalls  []ToolCall
	ToolCallID string
}

// NewTextMessage creates a message with a single text part.
func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Parts: []Part{TextPart{Text: text}}}
}

// UserMessage is shorthand for NewTextMessage(RoleUser, text).
func UserMessage(text string) Message { return NewTextMessage(RoleUser, text) }

// AssistantMessage is shorthand for NewTextMessage(RoleAssistant, text).
func AssistantMessage(text string) Message { return NewTextMessage(RoleAssistant, text) }

// ToolMessage creates a tool result message paired with callID.
func ToolMessage(callID, text string) Message {
	m := NewTextMessage(RoleTool, text)
	m.ToolCallID = callID
	return m
}

// Text joins all text parts with newlines.
func (m Message) Text() string {
	texts := make([]string, 0, len(m.Parts))
	for _, p := range m.Parts {
		if tp, ok := p.(TextPart); ok {
			texts = append(texts, tp.Text)
		}
	}
	return strings.TrimSpace(strings.Join(texts, "\n"))
}

// HasImages reports whether the message carries at least one image part.
func (m Message) HasImages() bool {
	for _, p := range m.Parts {
		if _, ok := p.(ImagePart); ok {
			return true
		}
	}
	return false
}

type wirePart struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	ImageType string `json:"imageType,omitempty"`
	ImageURL  string `json:"imageUrl,omitempty"`
}

type wireMessage struct {
	Role       Role            `json:"role"`
	Content    json.RawMessage `json:"content"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

// MarshalJSON encodes single text messages with a plain string content and
// everything else as an ordered array of typed parts.
func (m Message) MarshalJSON() ([]byte, error) {
	var (
		content []byte
		err     error
	)
	if tp, ok := singleText(m.Parts); ok {
		content, err = json.Marshal(tp.Text)
	} else {
		parts := make([]wirePart, 0, len(m.Parts))
		for _, p := range m.Parts {
			switch v := p.(type) {
			case TextPart:
				parts = append(parts, wirePart{Type: string(PartText), Text: v.Text})
			case ImagePart:
				parts = append(parts, wirePart{Type: string(PartImage), ImageType: v.ImageType, ImageURL: v.URL})
			}
		}
		content, err = json.Marshal(parts)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireMessage{Role: m.Role, Content: content, ToolCalls: m.ToolCalls, ToolCallID: m.ToolCallID})
}

// UnmarshalJSON accepts both the string and the part array content forms.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = Message{Role: w.Role, ToolCalls: w.ToolCalls, ToolCallID: w.ToolCallID}
	if len(w.Content) == 0 || string(w.Content) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(w.Content, &s); err == nil {
		m.Parts = []Part{TextPart{Text: s}}
		return nil
	}
	var parts []wirePart
	if err := json.Unmarshal(w.Content, &parts); err != nil {
		return fmt.Errorf("decode message content: %w", err)
	}
	for _, p := range parts {
		switch PartKind(p.Type) {
		case PartText:
			m.Parts = append(m.Parts, TextPart{Text: p.Text})
		case PartImage:
			m.Parts = append(m.Parts, ImagePart{ImageType: p.ImageType, URL: p.ImageURL})
		default:
			return fmt.Errorf("unknown message part type %q", p.Type)
		}
	}
	return nil
}

func singleText(parts []Part) (TextPart, bool) {
	if len(parts) != 1 {
		return TextPart{}, false
	}
	tp, ok := parts[0].(TextPart)
	return tp, ok
}
