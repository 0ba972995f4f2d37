package envelope

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind classifies an entry's content.
type Kind string

const (
	KindText       Kind = "text"
	KindToolCall   Kind = "tool_call"
	KindToolResult Kind = "tool_result"
	KindImage      Kind = "image"
	KindReasoning  Kind = "reasoning"
	KindError      Kind = "error"
)

// Kinds lists every valid Kind.
var Kinds = []Kind{KindText, KindToolCall, KindToolResult, KindImage, KindReasoning, KindError}

func (k Kind) Valid() bool {
	for _, v := range Kinds {
		if k == v {
			return true
		}
	}
	return false
}

// Entry is the metadata-wrapped unit persisted in an envelope collection.
type Entry struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"ts"`
	Kind      Kind            `json:"type"`
	Size      int             `json:"size"`
	Content   json.RawMessage `json:"content"`
}

// Metadata is an Entry without its content.
type Metadata struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"ts"`
	Kind      Kind      `json:"type"`
	Size      int       `json:"size"`
}

func (e Entry) Metadata() Metadata {
	return Metadata{ID: e.ID, Timestamp: e.Timestamp, Kind: e.Kind, Size: e.Size}
}

// Wrap serializes content and assigns a fresh id and timestamp. Size is the
// length of the serialized content.
func Wrap(content any, kind Kind) (Entry, error) {
	if !kind.Valid() {
		return Entry{}, fmt.Errorf("invalid entry kind %q", kind)
	}

	var raw json.RawMessage
	switch c := content.(type) {
	case json.RawMessage:
		if !json.Valid(c) {
			return Entry{}, fmt.Errorf("entry content is not valid JSON")
		}
		raw = c
	default:
		b, err := json.Marshal(content)
		if err != nil {
			return Entry{}, fmt.Errorf("encoding entry content: %w", err)
		}
		raw = b
	}

	return Entry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		Size:      len(raw),
		Content:   raw,
	}, nil
}

// InferKind derives a Kind from a chat payload: the payload's own "type"
// field first, then the type of its first content part, then its role.
// Unrecognised payloads are text.
func InferKind(content json.RawMessage) Kind {
	var probe struct {
		Type      string          `json:"type"`
		Role      string          `json:"role"`
		Content   json.RawMessage `json:"content"`
		ToolCalls []any           `json:"tool_calls"`
	}
	if err := json.Unmarshal(content, &probe); err != nil {
		return KindText
	}

	if k, ok := kindForType(probe.Type); ok {
		return k
	}
	if len(probe.ToolCalls) > 0 {
		return KindToolCall
	}
	if probe.Role == "tool" {
		return KindToolResult
	}

	var parts []struct {
		Type string `json:"type"`
	}
	if json.Unmarshal(probe.Content, &parts) == nil && len(parts) > 0 {
		if k, ok := kindForType(parts[0].Type); ok {
			return k
		}
	}
	return KindText
}

func kindForType(t string) (Kind, bool) {
	switch t {
	case "text", "message", "input_text", "output_text":
		return KindText, true
	case "tool_call", "function_call", "custom_tool_call":
		return KindToolCall, true
	case "tool_result", "function_call_output":
		return KindToolResult, true
	case "image", "image_url", "input_image", "image_generation_call":
		return KindImage, true
	case "reasoning":
		return KindReasoning, true
	case "error":
		return KindError, true
	}
	return "", false
}
