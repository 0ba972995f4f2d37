package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
)

const DefaultBaseURL = "https://api.openai.com/v1"

// SecretGetter resolves the provider credential.
type SecretGetter interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx upstream responses.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("llm: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Retryable reports whether the status is a transient upstream failure.
func (e *HTTPStatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client streams chat completions from an OpenAI-compatible endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	secrets    SecretGetter
	secretName string

	keyMu  sync.Mutex
	apiKey string
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

// WithHTTPClient replaces the default client. Streaming responses must not be
// cut by a client-wide Timeout; deadlines come from the request context.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient returns a client that looks up the credential named secretName
// on first use.
func NewClient(secrets SecretGetter, secretName string, opts ...Option) (*Client, error) {
	if secrets == nil {
		return nil, errors.New("llm: secret getter must not be nil")
	}
	if strings.TrimSpace(secretName) == "" {
		return nil, errors.New("llm: secret name must not be empty")
	}
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{},
		secrets:    secrets,
		secretName: secretName,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// resolveAPIKey caches the first successful lookup. Failures are not cached
// so a credential stored later is picked up without a restart.
func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	c.keyMu.Lock()
	defer c.keyMu.Unlock()

	if c.apiKey != "" {
		return c.apiKey, nil
	}
	key, err := c.secrets.GetSecret(ctx, c.secretName)
	if err != nil {
		return "", fmt.Errorf("llm: resolving api token: %w", err)
	}
	if key == "" {
		return "", errors.New("llm: api token is empty")
	}
	c.apiKey = key
	return key, nil
}

func chatURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if strings.HasSuffix(base, "/v1") {
		return base + "/chat/completions"
	}
	return base + "/v1/chat/completions"
}

type chatRequest struct {
	Model         string            `json:"model"`
	Messages      []json.RawMessage `json:"messages"`
	Tools         []chatTool        `json:"tools,omitempty"`
	Temperature   *float64          `json:"temperature,omitempty"`
	Stream        bool              `json:"stream"`
	StreamOptions streamOptions     `json:"stream_options"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

func (c *Client) Stream(ctx context.Context, req Request) (Stream, error) {
	if req.Model == "" {
		return nil, errors.New("llm: model must not be empty")
	}
	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return nil, err
	}

	body := chatRequest{
		Model:         req.Model,
		Temperature:   req.Temperature,
		Stream:        true,
		StreamOptions: streamOptions{IncludeUsage: true},
	}
	if req.System != "" {
		body.Messages = append(body.Messages, SystemMessage(req.System))
	}
	body.Messages = append(body.Messages, req.Messages...)
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, chatTool{
			Type:     "function",
			Function: chatFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
		})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	url := chatURL(c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("llm: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	res, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}
		return nil, fmt.Errorf("%w: %w", ErrStreamInterrupted, err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		_ = res.Body.Close()
		statusErr := &HTTPStatusError{StatusCode: res.StatusCode, URL: url, Body: string(buf)}
		if statusErr.Retryable() {
			return nil, fmt.Errorf("%w: %w", ErrStreamInterrupted, statusErr)
		}
		return nil, statusErr
	}

	scanner := bufio.NewScanner(res.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &sseStream{
		body:    res.Body,
		scanner: scanner,
		calls:   make(map[int]*partialCall),
	}, nil
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type partialCall struct {
	id   string
	name string
	args strings.Builder
}

// sseStream decodes a chat-completions event stream. Tool call fragments are
// accumulated per index and emitted whole, in index order, once the model
// finishes.
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner

	calls        map[int]*partialCall
	finishReason string
	usage        Usage
	finished     bool

	pending []Event
	done    bool
}

func (s *sseStream) Close() error {
	return s.body.Close()
}

func (s *sseStream) Next(ctx context.Context) (Event, error) {
	for {
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			return ev, nil
		}
		if s.done {
			return Event{}, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return Event{}, context.Cause(ctx)
		}

		if !s.scanner.Scan() {
			if ctx.Err() != nil {
				return Event{}, context.Cause(ctx)
			}
			if s.finished {
				s.finish()
				continue
			}
			if err := s.scanner.Err(); err != nil {
				return Event{}, fmt.Errorf("%w: %w", ErrStreamInterrupted, err)
			}
			return Event{}, fmt.Errorf("%w: stream ended before completion", ErrStreamInterrupted)
		}

		line := s.scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			s.finish()
			continue
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return Event{}, fmt.Errorf("%w: malformed chunk: %v", ErrStreamInterrupted, err)
		}
		if chunk.Error != nil {
			return Event{}, fmt.Errorf("%w: upstream error: %s", ErrStreamInterrupted, chunk.Error.Message)
		}
		if chunk.Usage != nil {
			s.usage = Usage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
				TotalTokens:  chunk.Usage.TotalTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		for _, tc := range choice.Delta.ToolCalls {
			pc, ok := s.calls[tc.Index]
			if !ok {
				pc = &partialCall{}
				s.calls[tc.Index] = pc
			}
			if tc.ID != "" {
				pc.id = tc.ID
			}
			if tc.Function.Name != "" {
				pc.name = tc.Function.Name
			}
			pc.args.WriteString(tc.Function.Arguments)
		}
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			s.finishReason = *choice.FinishReason
			s.finished = true
		}
		if choice.Delta.Content != "" {
			return Event{Type: EventTextDelta, Text: choice.Delta.Content}, nil
		}
	}
}

func (s *sseStream) finish() {
	indexes := make([]int, 0, len(s.calls))
	for i := range s.calls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	for _, i := range indexes {
		pc := s.calls[i]
		args := strings.TrimSpace(pc.args.String())
		if args == "" {
			args = "{}"
		}
		if !json.Valid([]byte(args)) {
			// keep the raw text so argument validation can report it
			quoted, _ := json.Marshal(args)
			args = string(quoted)
		}
		s.pending = append(s.pending, Event{
			Type:     EventToolCall,
			ToolCall: &ToolCall{ID: pc.id, Name: pc.name, Arguments: json.RawMessage(args)},
		})
	}
	s.pending = append(s.pending, Event{Type: EventCompletion, FinishReason: s.finishReason, Usage: s.usage})
	s.done = true
}
