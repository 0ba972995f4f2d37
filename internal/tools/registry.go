package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/atlas-agent/atlas/internal/metrics"
)

// Registry holds the tools available to the engine. Tools are registered at
// start-up; lookups and invocations are safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	tools      map[string]Tool
	validators map[string]*Validator
	order      []string
	policy     Policy
}

func NewRegistry(policy Policy) *Registry {
	return &Registry{
		tools:      make(map[string]Tool),
		validators: make(map[string]*Validator),
		policy:     policy,
	}
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(t Tool) error {
	name := t.Name()
	if name == "" {
		return ErrToolNameEmpty
	}
	s := t.Schema()
	if s.Type != "object" {
		return fmt.Errorf("tool %s: schema root must be an object, got %q", name, s.Type)
	}
	v, err := s.Compile(name)
	if err != nil {
		return fmt.Errorf("tool %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, name)
	}
	r.tools[name] = t
	r.validators[name] = v
	r.order = append(r.order, name)

	slog.Debug("registered tool", "tool", name, "allowed", r.policy.Permits(name))
	return nil
}

// MustRegister registers a tool and panics on error.
func (r *Registry) MustRegister(t Tool) {
	if err := r.Register(t); err != nil {
		panic(fmt.Sprintf("failed to register tool %s: %v", t.Name(), err))
	}
}

// Resolve returns the named tool if it is registered and the policy permits it.
func (r *Registry) Resolve(name string) (Tool, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return nil, newError(name, CodeNotFound, "no such tool", nil)
	}
	if !r.policy.Permits(name) {
		return nil, newError(name, CodeNotAllowed, "blocked by tool policy", nil)
	}
	return t, nil
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the permitted tools in registration order.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		if !r.policy.Permits(name) {
			continue
		}
		t := r.tools[name]
		defs = append(defs, Definition{Name: name, Description: t.Description(), Parameters: t.Schema()})
	}
	return defs
}

// Invoke resolves, validates and runs a tool. The capability is never called
// when validation fails. If ctx expires first the call returns ErrToolTimeout
// without waiting for the tool to notice.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (result any, err error) {
	start := time.Now()
	defer func() {
		metrics.ToolCallsTotal.WithLabelValues(name, callStatus(err)).Inc()
		metrics.ToolCallDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	t, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	v := r.validators[name]
	r.mu.RUnlock()
	if err := v.Validate(args); err != nil {
		return nil, newError(name, CodeInvalidArguments, "arguments do not match schema", err)
	}

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if v := recover(); v != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v", v)}
			}
		}()
		res, err := t.Invoke(ctx, args)
		done <- outcome{res, err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, classify(ctx, name, out.err)
		}
		return out.result, nil
	case <-ctx.Done():
		return nil, classify(ctx, name, context.Cause(ctx))
	}
}

func classify(ctx context.Context, name string, err error) error {
	var te *Error
	if errors.As(err, &te) {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return newError(name, CodeTimeout, "deadline exceeded", err)
	}
	return newError(name, CodeFailure, "invocation failed", err)
}

func callStatus(err error) string {
	var te *Error
	if err == nil {
		return "ok"
	}
	if errors.As(err, &te) {
		switch te.Code {
		case CodeTimeout:
			return "timeout"
		case CodeInvalidArguments:
			return "invalid"
		case CodeNotFound, CodeNotAllowed:
			return "rejected"
		}
	}
	return "error"
}
