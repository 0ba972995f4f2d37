package engine

import (
	"encoding/json"
	"errors"

	"github.com/atlas-agent/atlas/internal/llm"
)

// State is the engine's position in a turn.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateToolDispatch
	StateToolAwait
	StateCompleted
	StateError
)

var stateNames = map[State]string{
	StateIdle:         "idle",
	StateStreaming:    "streaming",
	StateToolDispatch: "tool_dispatch",
	StateToolAwait:    "tool_await",
	StateCompleted:    "completed",
	StateError:        "error",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Reason says why a turn completed.
type Reason string

const (
	ReasonCompleted      Reason = "completed"
	ReasonBudgetExceeded Reason = "budget_exceeded"
	ReasonStopped        Reason = "stopped"
)

var (
	ErrBusy       = errors.New("engine: a turn is already running")
	ErrEmptyInput = errors.New("engine: no user input provided")

	// ErrStopped is the cancellation cause set by Stop.
	ErrStopped = errors.New("engine: stopped by request")

	errTurnTimeout = errors.New("engine: turn deadline exceeded")

	errCallSkipped = errors.New("turn stopped before the call ran")
)

// Outcome summarises a finished turn.
type Outcome struct {
	Reason     Reason    `json:"reason"`
	Text       string    `json:"text"`
	Iterations int       `json:"iterations"`
	ToolCalls  int       `json:"tool_calls"`
	Usage      llm.Usage `json:"usage"`
}
