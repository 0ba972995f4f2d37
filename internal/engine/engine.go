// Package engine runs conversation turns: it streams a model round, dispatches
// the tool calls the model asked for, feeds the results back and repeats until
// the model answers in plain text, the iteration budget runs out or the turn
// is stopped.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/atlas-agent/atlas/internal/envelope"
	"github.com/atlas-agent/atlas/internal/history"
	"github.com/atlas-agent/atlas/internal/keys"
	"github.com/atlas-agent/atlas/internal/llm"
	"github.com/atlas-agent/atlas/internal/metrics"
	"github.com/atlas-agent/atlas/internal/tools"
)

const (
	DefaultMaxIterations = 10
	DefaultToolWorkers   = 4
	DefaultToolTimeout   = 30 * time.Second
)

// History is the persistent conversation log.
type History interface {
	Messages(ctx context.Context) ([]json.RawMessage, error)
	Append(ctx context.Context, content any, kind envelope.Kind) (string, error)
	AppendMany(ctx context.Context, items []history.Item) ([]string, error)
}

// Invoker executes tool calls by name.
type Invoker interface {
	Definitions() []tools.Definition
	Invoke(ctx context.Context, name string, args json.RawMessage) (any, error)
}

// ContextBuilder renders long-term memory for the system prompt.
type ContextBuilder interface {
	BuildContext(ctx context.Context) (string, error)
}

type Config struct {
	Model         string
	SystemPrompt  string
	Temperature   *float64
	MaxIterations int
	ToolWorkers   int
	ToolTimeout   time.Duration
	// TurnTimeout bounds a whole turn. Zero means no limit.
	TurnTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.ToolWorkers <= 0 {
		c.ToolWorkers = DefaultToolWorkers
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = DefaultToolTimeout
	}
	return c
}

// Input is one user message.
type Input struct {
	Text   string   `json:"text"`
	Images []string `json:"images,omitempty"`
	// MaxIterations overrides the configured budget when positive.
	MaxIterations int `json:"max_iterations,omitempty"`
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMemory(mem ContextBuilder) Option {
	return func(e *Engine) {
		e.memory = mem
	}
}

// Engine drives at most one turn at a time.
type Engine struct {
	cfg      Config
	provider llm.Provider
	history  History
	tools    Invoker
	memory   ContextBuilder
	logger   *slog.Logger

	mu      sync.Mutex
	state   State
	running bool
	cancel  context.CancelCauseFunc
}

func New(cfg Config, provider llm.Provider, hist History, invoker Invoker, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg.withDefaults(),
		provider: provider,
		history:  hist,
		tools:    invoker,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Busy reports whether a turn is running.
func (e *Engine) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Stop cancels the running turn, if any. The turn completes with
// ReasonStopped after persisting whatever text was already streamed.
func (e *Engine) Stop() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running || e.cancel == nil {
		return false
	}
	e.cancel(ErrStopped)
	return true
}

// turn carries the per-run state shared by the steps of Run.
type turn struct {
	ctx       context.Context
	obs       Observer
	iteration int
	outcome   Outcome
}

// persistCtx is used for history writes, which outlive cancellation of the
// turn so streamed content is never dropped by a stop.
func (t *turn) persistCtx() context.Context {
	return context.WithoutCancel(t.ctx)
}

func (t *turn) emit(ev Event) {
	if ev.Iteration == 0 {
		ev.Iteration = t.iteration
	}
	t.obs.OnEvent(ev)
}

// Run executes one turn. Cancelling ctx has the same effect as Stop. The
// returned error is non-nil only when the turn ends in the error state.
func (e *Engine) Run(ctx context.Context, in Input, obs Observer) (Outcome, error) {
	if strings.TrimSpace(in.Text) == "" && len(in.Images) == 0 {
		return Outcome{}, ErrEmptyInput
	}
	if obs == nil {
		obs = nopObserver{}
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return Outcome{}, ErrBusy
	}
	e.running = true
	e.cancel = cancel
	e.mu.Unlock()
	metrics.EngineBusy.Set(1)

	defer func() {
		e.mu.Lock()
		e.running = false
		e.cancel = nil
		e.state = StateIdle
		e.mu.Unlock()
		metrics.EngineBusy.Set(0)
	}()

	if e.cfg.TurnTimeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeoutCause(runCtx, e.cfg.TurnTimeout, errTurnTimeout)
		defer cancelTimeout()
	}

	t := &turn{ctx: runCtx, obs: obs}
	maxIterations := e.cfg.MaxIterations
	if in.MaxIterations > 0 {
		maxIterations = in.MaxIterations
	}

	start := time.Now()
	outcome, err := e.run(t, in, maxIterations)
	if err != nil {
		metrics.TurnsTotal.WithLabelValues("error").Inc()
		e.logger.Error("turn failed",
			"iterations", outcome.Iterations,
			"duration", time.Since(start),
			"error", err,
		)
		return outcome, err
	}

	metrics.TurnsTotal.WithLabelValues(string(outcome.Reason)).Inc()
	e.logger.Info("turn completed",
		"reason", outcome.Reason,
		"iterations", outcome.Iterations,
		"tool_calls", outcome.ToolCalls,
		"input_tokens", outcome.Usage.InputTokens,
		"output_tokens", outcome.Usage.OutputTokens,
		"duration", time.Since(start),
	)
	return outcome, nil
}

func (e *Engine) run(t *turn, in Input, maxIterations int) (Outcome, error) {
	user := llm.UserMessage(in.Text, in.Images...)
	if _, err := e.history.Append(t.persistCtx(), user, envelope.InferKind(user)); err != nil {
		return e.fail(t, "", fmt.Errorf("persisting user message: %w", err))
	}

	defs := toolDefinitions(e.tools.Definitions())

	for t.iteration = 1; t.iteration <= maxIterations; t.iteration++ {
		t.outcome.Iterations = t.iteration
		if t.ctx.Err() != nil {
			return e.interrupted(t, "")
		}

		system, err := e.systemPrompt(t.ctx)
		if err != nil {
			return e.fail(t, "", err)
		}
		messages, err := e.history.Messages(t.ctx)
		if err != nil {
			if t.ctx.Err() != nil {
				return e.interrupted(t, "")
			}
			return e.fail(t, "", fmt.Errorf("loading conversation: %w", err))
		}

		e.setState(t, StateStreaming)
		r, err := e.streamRound(t, llm.Request{
			Model:       e.cfg.Model,
			System:      system,
			Messages:    messages,
			Tools:       defs,
			Temperature: e.cfg.Temperature,
		})
		t.outcome.Usage.Add(r.usage)
		if err != nil {
			if t.ctx.Err() != nil {
				return e.interrupted(t, r.text)
			}
			return e.fail(t, r.text, err)
		}
		if r.usage != (llm.Usage{}) {
			usage := t.outcome.Usage
			t.emit(Event{Type: EventUsage, State: StateStreaming, Usage: &usage})
		}

		if len(r.calls) == 0 {
			if t.ctx.Err() != nil {
				return e.interrupted(t, r.text)
			}
			return e.complete(t, r.text)
		}

		if _, err := e.history.Append(t.persistCtx(), llm.AssistantMessage(r.text, r.calls), envelope.KindToolCall); err != nil {
			return e.fail(t, r.text, fmt.Errorf("persisting tool calls: %w", err))
		}
		t.outcome.ToolCalls += len(r.calls)

		if err := e.dispatch(t, r.calls); err != nil {
			return e.fail(t, "", err)
		}
		if t.ctx.Err() != nil {
			return e.interrupted(t, "")
		}
	}

	t.outcome.Iterations = maxIterations
	t.outcome.Reason = ReasonBudgetExceeded
	e.finish(t)
	return t.outcome, nil
}

func (e *Engine) systemPrompt(ctx context.Context) (string, error) {
	if e.memory == nil {
		return e.cfg.SystemPrompt, nil
	}
	memories, err := e.memory.BuildContext(ctx)
	if err != nil {
		if fatal(err) {
			return "", fmt.Errorf("loading memories: %w", err)
		}
		e.logger.Warn("memories unavailable for this round", "error", err)
		return e.cfg.SystemPrompt, nil
	}
	if memories == "" {
		return e.cfg.SystemPrompt, nil
	}
	if e.cfg.SystemPrompt == "" {
		return memories, nil
	}
	return e.cfg.SystemPrompt + "\n\n" + memories, nil
}

type round struct {
	text   string
	calls  []llm.ToolCall
	usage  llm.Usage
	finish string
}

// streamRound consumes one model round, retrying it once from scratch when
// the stream is interrupted.
func (e *Engine) streamRound(t *turn, req llm.Request) (round, error) {
	r, err := e.consume(t, req)
	if err == nil || !errors.Is(err, llm.ErrStreamInterrupted) || t.ctx.Err() != nil {
		return r, err
	}

	metrics.StreamRetriesTotal.Inc()
	e.logger.Warn("model stream interrupted, retrying round", "iteration", t.iteration, "error", err)
	t.emit(Event{Type: EventRetry, State: StateStreaming, Error: err.Error()})

	usage := r.usage
	r, err = e.consume(t, req)
	r.usage.Add(usage)
	return r, err
}

func (e *Engine) consume(t *turn, req llm.Request) (round, error) {
	var r round
	metrics.ModelRoundsTotal.Inc()

	stream, err := e.provider.Stream(t.ctx, req)
	if err != nil {
		return r, err
	}
	defer stream.Close()

	var text strings.Builder
	for {
		ev, err := stream.Next(t.ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			r.text = text.String()
			return r, err
		}
		switch ev.Type {
		case llm.EventTextDelta:
			text.WriteString(ev.Text)
			t.emit(Event{Type: EventTextDelta, State: StateStreaming, Text: ev.Text})
		case llm.EventToolCall:
			if ev.ToolCall != nil {
				r.calls = append(r.calls, *ev.ToolCall)
			}
		case llm.EventCompletion:
			r.usage = ev.Usage
			r.finish = ev.FinishReason
		}
	}
	r.text = text.String()
	return r, nil
}

type callResult struct {
	payload json.RawMessage
	failed  bool
}

// dispatch runs the calls concurrently on a bounded pool, each under its own
// deadline, then persists the results in call order with one write. Only
// storage or key failures abort the turn; every other tool error becomes a
// result the model can read.
func (e *Engine) dispatch(t *turn, calls []llm.ToolCall) error {
	e.setState(t, StateToolDispatch)
	for i := range calls {
		call := calls[i]
		t.emit(Event{Type: EventToolCall, State: StateToolDispatch, ToolCall: &call})
	}

	results := make([]callResult, len(calls))
	g, gctx := errgroup.WithContext(t.ctx)
	g.SetLimit(e.cfg.ToolWorkers)

	e.setState(t, StateToolAwait)
	for i, call := range calls {
		g.Go(func() error {
			if t.ctx.Err() != nil {
				results[i] = callResult{payload: marshalResult(tools.ResultFor(errCallSkipped)), failed: true}
				return nil
			}
			callCtx, cancel := context.WithTimeout(gctx, e.cfg.ToolTimeout)
			defer cancel()

			res, err := e.tools.Invoke(callCtx, call.Name, call.Arguments)
			if err != nil {
				results[i] = callResult{payload: marshalResult(tools.ResultFor(err)), failed: true}
				if fatal(err) {
					return err
				}
				return nil
			}
			results[i] = callResult{payload: marshalResult(res)}
			return nil
		})
	}
	fatalErr := g.Wait()

	items := make([]history.Item, len(calls))
	for i, call := range calls {
		items[i] = history.Item{
			Content: llm.ToolResultMessage(call.ID, results[i].payload),
			Kind:    envelope.KindToolResult,
		}
		t.emit(Event{
			Type:     EventToolResult,
			State:    StateToolAwait,
			ToolCall: &calls[i],
			Result:   results[i].payload,
			Failed:   results[i].failed,
		})
	}

	// every persisted tool call needs its answer, even when the turn aborts
	_, err := e.history.AppendMany(t.persistCtx(), items)
	if fatalErr != nil {
		if err != nil {
			e.logger.Error("persisting tool results", "error", err)
		}
		return fmt.Errorf("tool dispatch: %w", fatalErr)
	}
	if err != nil {
		return fmt.Errorf("persisting tool results: %w", err)
	}
	return nil
}

func marshalResult(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		raw, _ = json.Marshal(tools.ErrorResult{
			Status:  "error",
			Code:    tools.CodeFailure,
			Message: "result is not serialisable: " + err.Error(),
		})
	}
	return raw
}

func (e *Engine) complete(t *turn, text string) (Outcome, error) {
	if text != "" {
		if _, err := e.history.Append(t.persistCtx(), llm.AssistantMessage(text, nil), envelope.KindText); err != nil {
			return e.fail(t, text, fmt.Errorf("persisting reply: %w", err))
		}
	}
	t.outcome.Text = text
	t.outcome.Reason = ReasonCompleted
	e.finish(t)
	return t.outcome, nil
}

// interrupted ends a cancelled turn. A turn deadline counts against the
// budget; anything else is a stop.
func (e *Engine) interrupted(t *turn, partial string) (Outcome, error) {
	if partial != "" {
		if _, err := e.history.Append(t.persistCtx(), llm.AssistantMessage(partial, nil), envelope.KindText); err != nil {
			e.logger.Error("persisting partial reply", "error", err)
		}
	}

	t.outcome.Text = partial
	t.outcome.Reason = ReasonStopped
	if errors.Is(context.Cause(t.ctx), errTurnTimeout) {
		t.outcome.Reason = ReasonBudgetExceeded
	}
	e.finish(t)
	return t.outcome, nil
}

// fail persists the partial text and an error entry, then reports err.
func (e *Engine) fail(t *turn, partial string, err error) (Outcome, error) {
	flushCtx := t.persistCtx()
	if partial != "" {
		if _, perr := e.history.Append(flushCtx, llm.AssistantMessage(partial, nil), envelope.KindText); perr != nil {
			e.logger.Error("persisting partial reply", "error", perr)
		}
	}
	if _, perr := e.history.Append(flushCtx, errorEntry(err), envelope.KindError); perr != nil {
		e.logger.Error("persisting turn error", "error", perr)
	}

	t.outcome.Text = partial
	e.setState(t, StateError)
	t.emit(Event{Type: EventError, State: StateError, Error: err.Error()})
	return t.outcome, err
}

func (e *Engine) finish(t *turn) {
	e.setState(t, StateCompleted)
	outcome := t.outcome
	t.emit(Event{Type: EventDone, State: StateCompleted, Outcome: &outcome})
}

func (e *Engine) setState(t *turn, s State) {
	e.mu.Lock()
	changed := e.state != s
	e.state = s
	e.mu.Unlock()
	if changed {
		t.emit(Event{Type: EventState, State: s})
	}
}

func errorEntry(err error) json.RawMessage {
	return llm.SystemMessage("turn failed: " + err.Error())
}

// fatal reports errors that no retry or model feedback can fix.
func fatal(err error) bool {
	return errors.Is(err, keys.ErrKeyUnavailable) ||
		errors.Is(err, envelope.ErrCorrupt) ||
		errors.Is(err, envelope.ErrStorage)
}

func toolDefinitions(defs []tools.Definition) []llm.Tool {
	out := make([]llm.Tool, 0, len(defs))
	for _, d := range defs {
		out = append(out, llm.Tool{Name: d.Name, Description: d.Description, Parameters: d.Parameters})
	}
	return out
}
