// Package tools holds the capabilities the model may call: the Tool
// interface, argument schemas, and the Registry that validates and dispatches
// calls under an allow/deny policy.
package tools

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/go-playground/validator/v10"

	"github.com/atlas-agent/atlas/internal/validation"
)

// Tool is one capability exposed to the model. Invoke receives arguments
// that already passed Schema validation.
type Tool interface {
	Name() string
	Description() string
	Schema() Schema
	Invoke(ctx context.Context, args json.RawMessage) (any, error)
}

// InvokeFunc is the signature adapted by Func.
type InvokeFunc func(ctx context.Context, args json.RawMessage) (any, error)

// Func adapts a plain function to the Tool interface.
type Func struct {
	name        string
	description string
	schema      Schema
	fn          InvokeFunc
}

func NewFunc(name, description string, schema Schema, fn InvokeFunc) *Func {
	return &Func{name: name, description: description, schema: schema, fn: fn}
}

func (f *Func) Name() string        { return f.name }
func (f *Func) Description() string { return f.description }
func (f *Func) Schema() Schema      { return f.schema }

func (f *Func) Invoke(ctx context.Context, args json.RawMessage) (any, error) {
	return f.fn(ctx, args)
}

var structValidator = validation.New()

// Typed builds a Tool whose arguments are decoded into T and checked with
// T's validate struct tags after the schema check. Decode and tag failures
// are reported as ErrInvalidArguments.
func Typed[T any](name, description string, schema Schema, fn func(ctx context.Context, args T) (any, error)) *Func {
	return NewFunc(name, description, schema, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args T
		if len(bytes.TrimSpace(raw)) > 0 {
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, newError(name, CodeInvalidArguments, "decoding arguments", err)
			}
		}
		if err := structValidator.Struct(args); err != nil {
			if _, ok := err.(*validator.InvalidValidationError); !ok {
				return nil, newError(name, CodeInvalidArguments, validation.Message(err), nil)
			}
		}
		return fn(ctx, args)
	})
}

// Definition is what the model sees of a tool.
type Definition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  Schema `json:"parameters"`
}
