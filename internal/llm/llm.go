// Package llm defines the pull-based model streaming interface used by the
// conversation engine and an OpenAI-compatible chat-completions client.
package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrStreamInterrupted marks a stream that ended before the model finished:
// a dropped connection, a truncated body, or a retryable upstream status.
var ErrStreamInterrupted = errors.New("model stream interrupted")

type EventType string

const (
	EventTextDelta  EventType = "text_delta"
	EventToolCall   EventType = "tool_call"
	EventCompletion EventType = "completion"
)

// ToolCall is one complete function call requested by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Usage is the token accounting of one model round.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

func (u *Usage) Add(o Usage) {
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
	u.TotalTokens += o.TotalTokens
}

// Event is one item of a model stream. Text is set for EventTextDelta,
// ToolCall for EventToolCall, FinishReason and Usage for EventCompletion.
type Event struct {
	Type         EventType
	Text         string
	ToolCall     *ToolCall
	FinishReason string
	Usage        Usage
}

// Tool is a function the model may call.
type Tool struct {
	Name        string
	Description string
	Parameters  any
}

// Request is one model round. Messages are chat-completions message objects
// in conversation order.
type Request struct {
	Model       string
	System      string
	Messages    []json.RawMessage
	Tools       []Tool
	Temperature *float64
}

// Provider starts model rounds.
type Provider interface {
	Stream(ctx context.Context, req Request) (Stream, error)
}

// Stream yields the events of one round. Next returns io.EOF after the
// EventCompletion. Close releases the underlying connection and may be called
// at any point.
type Stream interface {
	Next(ctx context.Context) (Event, error)
	Close() error
}
