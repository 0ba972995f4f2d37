package cli

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/atlas-agent/atlas/internal/api"
	"github.com/atlas-agent/atlas/internal/auth"
	"github.com/atlas-agent/atlas/internal/engine"
	"github.com/atlas-agent/atlas/internal/history"
	"github.com/atlas-agent/atlas/internal/memory"
	mw "github.com/atlas-agent/atlas/internal/middleware"
	"github.com/atlas-agent/atlas/internal/server"
	"github.com/atlas-agent/atlas/internal/session"
	"github.com/atlas-agent/atlas/internal/todo"
)

func (a *app) serveCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if host != "" {
				a.cfg.Server.Host = host
			}
			if port != 0 {
				a.cfg.Server.Port = port
			}

			s, err := a.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			handler, err := a.router(cmd, s)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.New(a.cfg.Server, handler).Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Listen host (overrides server.host)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (overrides server.port)")
	return cmd
}

func (a *app) router(cmd *cobra.Command, s *session.Session) (http.Handler, error) {
	chat := engine.NewHandler(s, s.Engine)
	hist := history.NewHandler(s.History)
	mem := memory.NewHandler(s.Memory)
	todos := todo.NewHandler(s.Todos)

	h := api.HandlerSet{
		Chat:     chat.Chat,
		StopChat: chat.Stop,

		ListHistory:       hist.List,
		HistoryStats:      hist.Stats,
		GetHistoryEntry:   hist.Get,
		DeleteHistoryOne:  hist.DeleteOne,
		DeleteHistoryMany: hist.DeleteMany,
		DeleteHistoryAll:  hist.DeleteAll,

		ListMemories:      mem.List,
		MemoryStats:       mem.Stats,
		CreateMemory:      mem.Create,
		UpdateMemory:      mem.Update,
		DeleteMemory:      mem.Delete,
		DeleteAllMemories: mem.DeleteAll,

		ListTodos: todos.List,

		Busy: s.Engine.Busy,
	}

	if a.cfg.Auth.Enabled {
		key, err := s.Keys.SigningKey(cmd.Context())
		if err != nil {
			return nil, fmt.Errorf("loading signing key: %w", err)
		}
		jwtManager, err := auth.NewJWTManager(key, a.cfg.Auth.Expiry)
		if err != nil {
			return nil, err
		}
		h.AuthMiddleware = auth.RequireToken(jwtManager)
	}

	limiter := mw.NewRateLimiter(a.cfg.Server.RateLimit.RPS, a.cfg.Server.RateLimit.Burst)
	return api.NewRouter(api.RouterConfig{
		CORSAllowedOrigins: a.cfg.Server.CORSOrigins,
		RateLimiter:        limiter.Middleware,
	}, h), nil
}
