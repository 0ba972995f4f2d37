// Package session assembles the agent: the secret backend, the key manager,
// the encrypted stores, the tool registry and the conversation engine. A
// Session owns every handle it opens.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/atlas-agent/atlas/internal/config"
	"github.com/atlas-agent/atlas/internal/engine"
	"github.com/atlas-agent/atlas/internal/envelope"
	"github.com/atlas-agent/atlas/internal/history"
	"github.com/atlas-agent/atlas/internal/keys"
	"github.com/atlas-agent/atlas/internal/llm"
	"github.com/atlas-agent/atlas/internal/memory"
	"github.com/atlas-agent/atlas/internal/todo"
	"github.com/atlas-agent/atlas/internal/tools"
	"github.com/atlas-agent/atlas/internal/tools/builtin"
)

var ErrClosed = errors.New("session closed")

// PassphraseFunc supplies the file backend passphrase when none is configured.
type PassphraseFunc func() (string, error)

type options struct {
	backend    keys.Backend
	provider   llm.Provider
	passphrase PassphraseFunc
	logger     *slog.Logger
}

type Option func(*options)

// WithBackend bypasses the configured secret backend.
func WithBackend(b keys.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithProvider bypasses the OpenAI-compatible client.
func WithProvider(p llm.Provider) Option {
	return func(o *options) { o.provider = p }
}

func WithPassphrase(fn PassphraseFunc) Option {
	return func(o *options) { o.passphrase = fn }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

type Session struct {
	Config  *config.Config
	Keys    *keys.Manager
	History *history.Store
	Memory  *memory.Store
	Todos   *todo.Store
	Tools   *tools.Registry
	Engine  *engine.Engine

	logger *slog.Logger

	// closing is cancelled by Close; every Run is bound to it.
	closing context.Context
	stopAll context.CancelCauseFunc

	mu     sync.Mutex
	closed bool
	runs   sync.WaitGroup
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// OpenKeys builds only the key manager, for commands that manage secrets
// without touching the stores.
func OpenKeys(ctx context.Context, cfg *config.Config, opts ...Option) (*keys.Manager, error) {
	o := buildOptions(opts)
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	backend, err := newBackend(ctx, cfg, o)
	if err != nil {
		return nil, err
	}
	return keys.NewManager(backend), nil
}

// Open builds a ready session. The data key is resolved eagerly so a locked
// or missing secret store fails here rather than on the first message.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Session, error) {
	o := buildOptions(opts)

	km, err := OpenKeys(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}
	if _, err := km.GetOrCreateKey(ctx, keys.DefaultNamespace); err != nil {
		return nil, fmt.Errorf("resolving data key: %w", err)
	}

	dir := cfg.Storage.DataDir
	env := envelope.NewStore(km, keys.DefaultNamespace)
	s := &Session{
		Config:  cfg,
		Keys:    km,
		History: history.NewStore(env, filepath.Join(dir, history.FileName)),
		Memory:  memory.NewStore(env, filepath.Join(dir, memory.FileName)),
		Todos:   todo.NewStore(env, filepath.Join(dir, todo.FileName)),
		Tools:   tools.NewRegistry(tools.Policy{Allowed: cfg.Tools.Allowed, Denied: cfg.Tools.Denied}),
		logger:  o.logger,
	}
	s.closing, s.stopAll = context.WithCancelCause(context.Background())

	err = builtin.Register(s.Tools, builtin.Stores{History: s.History, Memory: s.Memory, Todo: s.Todos})
	if err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}

	provider := o.provider
	if provider == nil {
		provider, err = llm.NewClient(km, keys.APITokenSecret, llm.WithBaseURL(cfg.Agent.BaseURL))
		if err != nil {
			return nil, err
		}
	}

	temperature := cfg.Agent.Temperature
	s.Engine = engine.New(engine.Config{
		Model:         cfg.Agent.Model,
		SystemPrompt:  SystemPrompt(cfg.Agent),
		Temperature:   &temperature,
		MaxIterations: cfg.Agent.MaxTurns,
		ToolWorkers:   cfg.Tools.Workers,
		ToolTimeout:   cfg.Tools.Timeout,
		TurnTimeout:   cfg.Agent.TurnTimeout,
	}, provider, s.History, s.Tools,
		engine.WithLogger(o.logger.With("component", "engine")),
		engine.WithMemory(s.Memory),
	)

	o.logger.Info("session opened",
		"data_dir", dir,
		"secrets", cfg.Secrets.Backend,
		"model", cfg.Agent.Model,
		"tools", len(s.Tools.Definitions()),
	)
	return s, nil
}

// Run executes one turn on the session's engine.
func (s *Session) Run(ctx context.Context, in engine.Input, obs engine.Observer) (engine.Outcome, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return engine.Outcome{}, ErrClosed
	}
	s.runs.Add(1)
	s.mu.Unlock()
	defer s.runs.Done()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	unbind := context.AfterFunc(s.closing, func() { cancel(context.Cause(s.closing)) })
	defer unbind()

	return s.Engine.Run(ctx, in, obs)
}

// Close stops the running turn and waits for it to persist what it has.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.Engine.Busy() {
		s.logger.Info("stopping running turn")
	}
	s.stopAll(engine.ErrStopped)
	s.runs.Wait()
	s.logger.Info("session closed")
	return nil
}

func newBackend(ctx context.Context, cfg *config.Config, o options) (keys.Backend, error) {
	if o.backend != nil {
		return o.backend, nil
	}

	switch cfg.Secrets.Backend {
	case "keyring", "":
		return keys.NewKeyringBackend(cfg.Secrets.Service), nil
	case "file":
		pass := cfg.Secrets.Passphrase
		if pass == "" && o.passphrase != nil {
			var err error
			if pass, err = o.passphrase(); err != nil {
				return nil, fmt.Errorf("%w: reading passphrase: %w", keys.ErrKeyUnavailable, err)
			}
		}
		return keys.NewFileBackend(cfg.Storage.DataDir, pass)
	case "ssm":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: loading aws config: %w", keys.ErrKeyUnavailable, err)
		}
		return keys.NewSSMBackend(ssm.NewFromConfig(awsCfg), cfg.Secrets.SSMPrefix)
	default:
		return nil, fmt.Errorf("unknown secret backend %q", cfg.Secrets.Backend)
	}
}
