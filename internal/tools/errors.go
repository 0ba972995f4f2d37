package tools

import (
	"errors"
	"fmt"
)

var (
	ErrToolNotFound          = errors.New("tool not found")
	ErrToolNotAllowed        = errors.New("tool not allowed")
	ErrInvalidArguments      = errors.New("invalid tool arguments")
	ErrToolTimeout           = errors.New("tool timed out")
	ErrToolFailure           = errors.New("tool failed")
	ErrToolNameEmpty         = errors.New("tool name cannot be empty")
	ErrToolAlreadyRegistered = errors.New("tool already registered")
)

type ErrorCode string

const (
	CodeNotFound         ErrorCode = "TOOL_NOT_FOUND"
	CodeNotAllowed       ErrorCode = "TOOL_NOT_ALLOWED"
	CodeInvalidArguments ErrorCode = "INVALID_ARGUMENTS"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodeFailure          ErrorCode = "TOOL_FAILURE"
)

var codeSentinels = map[ErrorCode]error{
	CodeNotFound:         ErrToolNotFound,
	CodeNotAllowed:       ErrToolNotAllowed,
	CodeInvalidArguments: ErrInvalidArguments,
	CodeTimeout:          ErrToolTimeout,
	CodeFailure:          ErrToolFailure,
}

// Error is a failed tool call. errors.Is matches both the sentinel for its
// Code and anything in the wrapped Err chain.
type Error struct {
	Tool   string
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("tool %s: %s (%s)", e.Tool, e.Code, e.Reason)
	}
	return fmt.Sprintf("tool %s: %s (%s): %v", e.Tool, e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *Error) Is(target error) bool {
	return e != nil && codeSentinels[e.Code] == target
}

func newError(tool string, code ErrorCode, reason string, err error) *Error {
	return &Error{Tool: tool, Code: code, Reason: reason, Err: err}
}

// ErrorResult is the structured payload fed back to the model in place of a
// tool's output when the call failed.
type ErrorResult struct {
	Status  string    `json:"status"`
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ResultFor converts a call error into its model-visible payload.
func ResultFor(err error) ErrorResult {
	var te *Error
	if errors.As(err, &te) {
		msg := te.Reason
		if te.Err != nil {
			msg = fmt.Sprintf("%s: %v", te.Reason, te.Err)
		}
		return ErrorResult{Status: "error", Code: te.Code, Message: msg}
	}
	return ErrorResult{Status: "error", Code: CodeFailure, Message: err.Error()}
}
