package tools

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool(calls *atomic.Int32) *Func {
	schema := Object(map[string]Field{
		"text":  String("text to echo"),
		"times": Integer("repeat count").WithMin(1),
	}, "text")
	return NewFunc("echo", "Echo text back.", schema, func(ctx context.Context, args json.RawMessage) (any, error) {
		if calls != nil {
			calls.Add(1)
		}
		var in struct {
			Text string `json:"text"`
		}
		_ = json.Unmarshal(args, &in)
		return map[string]string{"text": in.Text}, nil
	})
}

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry(Policy{})
	require.NoError(t, reg.Register(echoTool(nil)))

	err := reg.Register(echoTool(nil))
	assert.ErrorIs(t, err, ErrToolAlreadyRegistered)

	err = reg.Register(NewFunc("", "", Object(nil), nil))
	assert.ErrorIs(t, err, ErrToolNameEmpty)

	err = reg.Register(NewFunc("bad", "", Schema{Type: "array"}, nil))
	assert.Error(t, err)

	assert.Panics(t, func() { reg.MustRegister(echoTool(nil)) })
	assert.Equal(t, []string{"echo"}, reg.Names())
}

func TestRegistry_Resolve(t *testing.T) {
	reg := NewRegistry(Policy{Denied: []string{"ECHO"}})
	reg.MustRegister(echoTool(nil))

	_, err := reg.Resolve("missing")
	assert.ErrorIs(t, err, ErrToolNotFound)

	_, err = reg.Resolve("echo")
	assert.ErrorIs(t, err, ErrToolNotAllowed)
	assert.Empty(t, reg.Definitions())
}

func TestRegistry_Invoke(t *testing.T) {
	ctx := context.Background()

	t.Run("valid call", func(t *testing.T) {
		var calls atomic.Int32
		reg := NewRegistry(Policy{})
		reg.MustRegister(echoTool(&calls))

		res, err := reg.Invoke(ctx, "echo", json.RawMessage(`{"text":"hi"}`))
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"text": "hi"}, res)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("schema mismatch never reaches the capability", func(t *testing.T) {
		var calls atomic.Int32
		reg := NewRegistry(Policy{})
		reg.MustRegister(echoTool(&calls))

		for _, args := range []string{
			`{}`,
			`{"text":5}`,
			`{"text":"x","times":0}`,
			`{"text":"x","times":1.5}`,
			`{"text":"x","extra":true}`,
			`not json`,
		} {
			_, err := reg.Invoke(ctx, "echo", json.RawMessage(args))
			require.ErrorIs(t, err, ErrInvalidArguments, args)
		}
		assert.Zero(t, calls.Load())
	})

	t.Run("policy blocks invocation", func(t *testing.T) {
		var calls atomic.Int32
		reg := NewRegistry(Policy{Allowed: []string{"other"}})
		reg.MustRegister(echoTool(&calls))

		_, err := reg.Invoke(ctx, "echo", json.RawMessage(`{"text":"hi"}`))
		assert.ErrorIs(t, err, ErrToolNotAllowed)
		assert.Zero(t, calls.Load())
	})

	t.Run("timeout", func(t *testing.T) {
		reg := NewRegistry(Policy{})
		release := make(chan struct{})
		defer close(release)
		reg.MustRegister(NewFunc("slow", "", Object(nil), func(ctx context.Context, _ json.RawMessage) (any, error) {
			<-release
			return nil, nil
		}))

		tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err := reg.Invoke(tctx, "slow", nil)
		assert.ErrorIs(t, err, ErrToolTimeout)
	})

	t.Run("failure keeps the cause", func(t *testing.T) {
		cause := errors.New("disk on fire")
		reg := NewRegistry(Policy{})
		reg.MustRegister(NewFunc("broken", "", Object(nil), func(context.Context, json.RawMessage) (any, error) {
			return nil, cause
		}))

		_, err := reg.Invoke(ctx, "broken", json.RawMessage(`{}`))
		assert.ErrorIs(t, err, ErrToolFailure)
		assert.ErrorIs(t, err, cause)

		res := ResultFor(err)
		assert.Equal(t, "error", res.Status)
		assert.Equal(t, CodeFailure, res.Code)
		assert.Contains(t, res.Message, "disk on fire")
	})

	t.Run("panic becomes a failure", func(t *testing.T) {
		reg := NewRegistry(Policy{})
		reg.MustRegister(NewFunc("panicky", "", Object(nil), func(context.Context, json.RawMessage) (any, error) {
			panic("boom")
		}))

		_, err := reg.Invoke(ctx, "panicky", json.RawMessage(`{}`))
		assert.ErrorIs(t, err, ErrToolFailure)
		assert.ErrorContains(t, err, "boom")
	})
}

func TestTyped(t *testing.T) {
	type args struct {
		Text string `json:"text" validate:"required,maxwords=2"`
	}
	var got args
	tool := Typed("note", "", Object(map[string]Field{"text": String("")}, "text"),
		func(_ context.Context, a args) (any, error) {
			got = a
			return "ok", nil
		})

	reg := NewRegistry(Policy{})
	reg.MustRegister(tool)

	_, err := reg.Invoke(context.Background(), "note", json.RawMessage(`{"text":"two words"}`))
	require.NoError(t, err)
	assert.Equal(t, "two words", got.Text)

	_, err = reg.Invoke(context.Background(), "note", json.RawMessage(`{"text":"now three words"}`))
	assert.ErrorIs(t, err, ErrInvalidArguments)
	assert.Contains(t, ResultFor(err).Message, "at most 2 words")
}

func TestDefinitionsKeepRegistrationOrder(t *testing.T) {
	reg := NewRegistry(Policy{})
	for _, name := range []string{"zeta", "alpha", "mid"} {
		reg.MustRegister(NewFunc(name, name+" tool", Object(nil), nil))
	}

	defs := reg.Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, "zeta", defs[0].Name)
	assert.Equal(t, "mid", defs[2].Name)

	raw, err := json.Marshal(defs[0].Parameters)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"object","properties":{},"required":[],"additionalProperties":false}`, string(raw))
}

func TestPolicy(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		tool   string
		want   bool
	}{
		{"empty permits all", Policy{}, "anything", true},
		{"allow list", Policy{Allowed: []string{"get_memories"}}, "get_memories", true},
		{"not on allow list", Policy{Allowed: []string{"get_memories"}}, "delete_memory", false},
		{"deny wins", Policy{Allowed: []string{"x"}, Denied: []string{"x"}}, "x", false},
		{"case insensitive", Policy{Denied: []string{" Delete_Memory "}}, "delete_memory", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Permits(tt.tool))
		})
	}
}
