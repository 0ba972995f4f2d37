package memory

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/atlas-agent/atlas/internal/api"
	"github.com/atlas-agent/atlas/internal/validation"
)

// Handler handles memory HTTP endpoints.
type Handler struct {
	store    *Store
	validate *validator.Validate
}

func NewHandler(store *Store) *Handler {
	return &Handler{
		store:    store,
		validate: validation.New(),
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.List(r.Context())
	if err != nil {
		slog.Error("listing memories", "error", err)
		api.WriteError(w, api.ErrStoreFailure)
		return
	}
	api.JSON(w, http.StatusOK, records)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.Stats(r.Context())
	if err != nil {
		slog.Error("memory stats", "error", err)
		api.WriteError(w, api.ErrStoreFailure)
		return
	}
	api.JSON(w, http.StatusOK, st)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, api.ErrMalformedBody)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.WriteError(w, api.InvalidInput(validation.Message(err)))
		return
	}

	rec, err := h.store.Create(r.Context(), req.Text, req.Category)
	if err != nil {
		h.handleStoreError(w, "creating memory", err)
		return
	}
	api.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, api.ErrMalformedBody)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.WriteError(w, api.InvalidInput(validation.Message(err)))
		return
	}
	if req.Text == nil && req.Category == nil {
		api.WriteError(w, api.InvalidInput("text or category is required"))
		return
	}

	rec, err := h.store.Update(r.Context(), chi.URLParam(r, "memoryID"), UpdateParams{
		Text:     req.Text,
		Category: req.Category,
	})
	if err != nil {
		h.handleStoreError(w, "updating memory", err)
		return
	}
	api.JSON(w, http.StatusOK, rec)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), chi.URLParam(r, "memoryID")); err != nil {
		h.handleStoreError(w, "deleting memory", err)
		return
	}
	api.JSONMessage(w, http.StatusOK, "memory deleted successfully")
}

func (h *Handler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.Clear(r.Context())
	if err != nil {
		h.handleStoreError(w, "deleting all memories", err)
		return
	}
	api.JSON(w, http.StatusOK, map[string]int{"deleted_count": n})
}

func (h *Handler) handleStoreError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		api.WriteError(w, api.UnknownID("memory not found"))
	case errors.Is(err, ErrEmptyText), errors.Is(err, ErrInvalidCategory):
		api.WriteError(w, api.InvalidInput(err.Error()))
	default:
		slog.Error(op, "error", err)
		api.WriteError(w, api.ErrStoreFailure)
	}
}
