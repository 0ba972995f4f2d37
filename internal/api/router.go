package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mw "github.com/atlas-agent/atlas/internal/middleware"
)

// HandlerSet holds handler functions injected by the serve command to avoid
// import cycles.
type HandlerSet struct {
	// Chat handlers
	Chat     http.HandlerFunc
	StopChat http.HandlerFunc

	// History handlers
	ListHistory       http.HandlerFunc
	HistoryStats      http.HandlerFunc
	GetHistoryEntry   http.HandlerFunc
	DeleteHistoryOne  http.HandlerFunc
	DeleteHistoryMany http.HandlerFunc
	DeleteHistoryAll  http.HandlerFunc

	// Memory handlers
	ListMemories      http.HandlerFunc
	MemoryStats       http.HandlerFunc
	CreateMemory      http.HandlerFunc
	UpdateMemory      http.HandlerFunc
	DeleteMemory      http.HandlerFunc
	DeleteAllMemories http.HandlerFunc

	// Todo handlers
	ListTodos http.HandlerFunc

	// AuthMiddleware guards /api/v1. Nil leaves the API open.
	AuthMiddleware func(http.Handler) http.Handler

	// Busy reports whether a turn is running, for /health.
	Busy func() bool
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	RateLimiter        func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		health := map[string]any{"status": "healthy"}
		if h.Busy != nil {
			health["busy"] = h.Busy()
		}
		JSON(w, http.StatusOK, health)
	})

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter)
		}
		if h.AuthMiddleware != nil {
			r.Use(h.AuthMiddleware)
		}

		r.Route("/chat", func(r chi.Router) {
			r.Post("/", h.Chat)
			r.Post("/stop", h.StopChat)

			r.Route("/history", func(r chi.Router) {
				r.Get("/", h.ListHistory)
				r.Delete("/", h.DeleteHistoryAll)
				r.Get("/stats", h.HistoryStats)
				r.Post("/delete", h.DeleteHistoryMany)
				r.Get("/{entryID}", h.GetHistoryEntry)
				r.Delete("/{entryID}", h.DeleteHistoryOne)
			})
		})

		r.Route("/memories", func(r chi.Router) {
			r.Get("/", h.ListMemories)
			r.Post("/", h.CreateMemory)
			r.Delete("/", h.DeleteAllMemories)
			r.Get("/stats", h.MemoryStats)
			r.Put("/{memoryID}", h.UpdateMemory)
			r.Delete("/{memoryID}", h.DeleteMemory)
		})

		r.Get("/todos", h.ListTodos)
	})

	return r
}
