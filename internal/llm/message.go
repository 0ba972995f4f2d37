package llm

import (
	"encoding/json"
	"fmt"
)

type message struct {
	Role       string         `json:"role"`
	Content    any            `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

func mustMarshal(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		// only plain structs of strings reach here
		panic(fmt.Sprintf("llm: marshal message: %v", err))
	}
	return raw
}

// UserMessage builds a user message. With images the content becomes a part
// list: the text part first, then one image part per data URL.
func UserMessage(text string, images ...string) json.RawMessage {
	if len(images) == 0 {
		return mustMarshal(message{Role: "user", Content: text})
	}

	parts := make([]contentPart, 0, len(images)+1)
	if text != "" {
		parts = append(parts, contentPart{Type: "text", Text: text})
	}
	for _, img := range images {
		parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: img}})
	}
	return mustMarshal(message{Role: "user", Content: parts})
}

// AssistantMessage builds an assistant message carrying text and, when
// present, the tool calls of the round.
func AssistantMessage(text string, calls []ToolCall) json.RawMessage {
	m := message{Role: "assistant", Content: text}
	for _, c := range calls {
		args := string(c.Arguments)
		if args == "" {
			args = "{}"
		}
		m.ToolCalls = append(m.ToolCalls, wireToolCall{
			ID:       c.ID,
			Type:     "function",
			Function: wireFunction{Name: c.Name, Arguments: args},
		})
	}
	if text == "" && len(m.ToolCalls) > 0 {
		m.Content = nil
	}
	return mustMarshal(m)
}

// ToolResultMessage builds the tool message answering callID. The result is
// sent to the model as its JSON text.
func ToolResultMessage(callID string, result json.RawMessage) json.RawMessage {
	return mustMarshal(message{Role: "tool", ToolCallID: callID, Content: string(result)})
}

// SystemMessage builds a system message.
func SystemMessage(text string) json.RawMessage {
	return mustMarshal(message{Role: "system", Content: text})
}
