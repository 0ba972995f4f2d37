package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type secrets map[string]string

func (s secrets) GetSecret(_ context.Context, name string) (string, error) {
	v, ok := s[name]
	if !ok {
		return "", errors.New("secret not found")
	}
	return v, nil
}

func sse(chunks ...string) string {
	var b strings.Builder
	for _, c := range chunks {
		fmt.Fprintf(&b, "data: %s\n\n", c)
	}
	return b.String()
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(secrets{"api_token": "sk-test"}, "api_token", WithBaseURL(srv.URL+"/v1"))
	require.NoError(t, err)
	return c
}

func drain(t *testing.T, s Stream) ([]Event, error) {
	t.Helper()
	defer s.Close()
	var events []Event
	for {
		ev, err := s.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
}

func TestClient_StreamText(t *testing.T) {
	bodies := make(chan chatRequest, 1)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var body chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bodies <- body

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, ": keep-alive\n\n")
		_, _ = io.WriteString(w, sse(
			`{"choices":[{"delta":{"role":"assistant","content":"Hel"}}]}`,
			`{"choices":[{"delta":{"content":"lo"}}]}`,
			`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
			`{"choices":[],"usage":{"prompt_tokens":12,"completion_tokens":2,"total_tokens":14}}`,
			`[DONE]`,
		))
	})

	s, err := c.Stream(context.Background(), Request{
		Model:    "gpt-test",
		System:   "be brief",
		Messages: []json.RawMessage{UserMessage("hi")},
		Tools:    []Tool{{Name: "get_todos", Parameters: map[string]any{"type": "object"}}},
	})
	require.NoError(t, err)

	events, err := drain(t, s)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, Event{Type: EventTextDelta, Text: "Hel"}, events[0])
	assert.Equal(t, Event{Type: EventTextDelta, Text: "lo"}, events[1])
	assert.Equal(t, EventCompletion, events[2].Type)
	assert.Equal(t, "stop", events[2].FinishReason)
	assert.Equal(t, Usage{InputTokens: 12, OutputTokens: 2, TotalTokens: 14}, events[2].Usage)

	got := <-bodies
	assert.True(t, got.Stream)
	assert.True(t, got.StreamOptions.IncludeUsage)
	require.Len(t, got.Messages, 2)
	assert.JSONEq(t, `{"role":"system","content":"be brief"}`, string(got.Messages[0]))
	require.Len(t, got.Tools, 1)
	assert.Equal(t, "function", got.Tools[0].Type)
}

func TestClient_StreamToolCalls(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, sse(
			`{"choices":[{"delta":{"tool_calls":[{"index":1,"id":"call_b","function":{"name":"get_todos","arguments":""}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_a","function":{"name":"create_memory","arguments":"{\"memories\":"}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"[]}"}}]}}]}`,
			`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
			`[DONE]`,
		))
	})

	s, err := c.Stream(context.Background(), Request{Model: "m"})
	require.NoError(t, err)
	events, err := drain(t, s)
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, &ToolCall{ID: "call_a", Name: "create_memory", Arguments: json.RawMessage(`{"memories":[]}`)}, events[0].ToolCall)
	assert.Equal(t, &ToolCall{ID: "call_b", Name: "get_todos", Arguments: json.RawMessage(`{}`)}, events[1].ToolCall)
	assert.Equal(t, "tool_calls", events[2].FinishReason)
}

func TestClient_Interruptions(t *testing.T) {
	tests := []struct {
		name        string
		handler     http.HandlerFunc
		interrupted bool
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "overloaded", http.StatusServiceUnavailable)
			},
			interrupted: true,
		},
		{
			name: "rate limited",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "slow down", http.StatusTooManyRequests)
			},
			interrupted: true,
		},
		{
			name: "unauthorized is not retryable",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "bad key", http.StatusUnauthorized)
			},
		},
		{
			name: "truncated body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, sse(`{"choices":[{"delta":{"content":"par"}}]}`))
			},
			interrupted: true,
		},
		{
			name: "upstream error chunk",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, sse(`{"error":{"message":"boom"}}`))
			},
			interrupted: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)
			s, err := c.Stream(context.Background(), Request{Model: "m"})
			if err == nil {
				_, err = drain(t, s)
			}
			require.Error(t, err)
			assert.Equal(t, tt.interrupted, errors.Is(err, ErrStreamInterrupted), err.Error())

			if !tt.interrupted {
				var statusErr *HTTPStatusError
				require.ErrorAs(t, err, &statusErr)
				assert.Equal(t, http.StatusUnauthorized, statusErr.HTTPStatusCode())
			}
		})
	}
}

func TestClient_MissingCredential(t *testing.T) {
	c, err := NewClient(secrets{}, "api_token")
	require.NoError(t, err)
	_, err = c.Stream(context.Background(), Request{Model: "m"})
	assert.ErrorContains(t, err, "resolving api token")

	_, err = NewClient(nil, "api_token")
	assert.Error(t, err)
}

func TestChatURL(t *testing.T) {
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", chatURL(""))
	assert.Equal(t, "http://localhost:11434/v1/chat/completions", chatURL("http://localhost:11434"))
	assert.Equal(t, "http://x/v1/chat/completions", chatURL("http://x/v1/"))
}

func TestMessages(t *testing.T) {
	assert.JSONEq(t, `{"role":"user","content":"hi"}`, string(UserMessage("hi")))
	assert.JSONEq(t,
		`{"role":"user","content":[{"type":"text","text":"look"},{"type":"image_url","image_url":{"url":"data:image/png;base64,AA=="}}]}`,
		string(UserMessage("look", "data:image/png;base64,AA==")))
	assert.JSONEq(t,
		`{"role":"assistant","content":null,"tool_calls":[{"id":"c1","type":"function","function":{"name":"get_todos","arguments":"{}"}}]}`,
		string(AssistantMessage("", []ToolCall{{ID: "c1", Name: "get_todos"}})))
	assert.JSONEq(t, `{"role":"tool","tool_call_id":"c1","content":"{\"ok\":true}"}`,
		string(ToolResultMessage("c1", json.RawMessage(`{"ok":true}`))))
}
