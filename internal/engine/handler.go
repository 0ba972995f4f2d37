package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/atlas-agent/atlas/internal/api"
	"github.com/atlas-agent/atlas/internal/keys"
	"github.com/atlas-agent/atlas/internal/validation"
)

// Runner runs turns; *Engine and the session wrapper both satisfy it.
type Runner interface {
	Run(ctx context.Context, in Input, obs Observer) (Outcome, error)
}

type Stopper interface {
	Stop() bool
}

// Handler exposes turns over HTTP. Chat streams the turn as Server-Sent
// Events named after the event type.
type Handler struct {
	runner   Runner
	stopper  Stopper
	validate *validator.Validate
}

func NewHandler(runner Runner, stopper Stopper) *Handler {
	return &Handler{
		runner:   runner,
		stopper:  stopper,
		validate: validation.New(),
	}
}

type chatRequest struct {
	Text          string   `json:"text" validate:"required_without=Images,max=32000"`
	Images        []string `json:"images" validate:"omitempty,max=8,dive,startswith=data:image/"`
	MaxIterations int      `json:"max_iterations" validate:"omitempty,min=1,max=100"`
}

// sseObserver opens the event stream on the first event so a turn that
// never starts can still be answered with a plain JSON error.
type sseObserver struct {
	w      http.ResponseWriter
	events *api.EventWriter
	failed bool
}

func (o *sseObserver) OnEvent(ev Event) {
	if o.failed {
		return
	}
	if o.events == nil {
		events, ok := api.NewEventWriter(o.w)
		if !ok {
			o.failed = true
			return
		}
		o.events = events
	}
	if err := o.events.Send(string(ev.Type), ev); err != nil {
		slog.Debug("chat stream write failed", "error", err)
		o.failed = true
	}
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, api.ErrMalformedBody)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.WriteError(w, api.InvalidInput(validation.Message(err)))
		return
	}

	obs := &sseObserver{w: w}
	_, err := h.runner.Run(r.Context(), Input{
		Text:          req.Text,
		Images:        req.Images,
		MaxIterations: req.MaxIterations,
	}, obs)
	if obs.events != nil || obs.failed {
		// the stream already carried the error event
		return
	}

	switch {
	case err == nil:
		api.JSONMessage(w, http.StatusOK, "no events")
	case errors.Is(err, ErrBusy):
		api.WriteError(w, api.ErrTurnInProgress)
	case errors.Is(err, ErrEmptyInput):
		api.WriteError(w, api.InvalidInput("text or images is required"))
	case errors.Is(err, keys.ErrKeyUnavailable):
		api.WriteError(w, api.ErrKeysUnavailable)
	default:
		slog.Error("running turn", "error", err)
		api.WriteError(w, err)
	}
}

func (h *Handler) Stop(w http.ResponseWriter, r *http.Request) {
	api.JSON(w, http.StatusOK, map[string]bool{"stopped": h.stopper.Stop()})
}
