package engine

import (
	"encoding/json"

	"github.com/atlas-agent/atlas/internal/llm"
)

type EventType string

const (
	EventState      EventType = "state"
	EventTextDelta  EventType = "text_delta"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventRetry      EventType = "retry"
	EventUsage      EventType = "usage"
	EventDone       EventType = "done"
	EventError      EventType = "error"
)

// Event is a progress notification from a running turn. Only the fields
// relevant to Type are set.
type Event struct {
	Type      EventType       `json:"type"`
	State     State           `json:"state"`
	Iteration int             `json:"iteration,omitempty"`
	Text      string          `json:"text,omitempty"`
	ToolCall  *llm.ToolCall   `json:"tool_call,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Failed    bool            `json:"failed,omitempty"`
	Usage     *llm.Usage      `json:"usage,omitempty"`
	Outcome   *Outcome        `json:"outcome,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Observer receives the events of a turn. Events are delivered from the
// goroutine running the turn, one at a time, in order.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(ev Event) { f(ev) }

type nopObserver struct{}

func (nopObserver) OnEvent(Event) {}
