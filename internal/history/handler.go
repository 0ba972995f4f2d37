package history

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

// Handler handles chat history HTTP endpoints.
type Handler struct {
	store    *Store
	validate *validator.Validate
}

func NewHandler(store *Store) *Handler {
	return &Handler{store: store, validate: validation.New()}
}

type deleteRequest struct {
	EntryIDs []string `json:"entry_ids" validate:"required,min=1,dive,required"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	meta, err := h.store.ListMetadata(r.Context())
	if err != nil {
		slog.Error("listing chat history", "error", err)
		api.WriteError(w, api.ErrStoreFailure)
		return
	}
	api.JSON(w, http.StatusOK, meta)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.Stats(r.Context())
	if err != nil {
		slog.Error("chat history stats", "error", err)
		api.WriteError(w, api.ErrStoreFailure)
		return
	}
	api.JSON(w, http.StatusOK, st)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	e, err := h.store.Get(r.Context(), chi.URLParam(r, "entryID"))
	if errors.Is(err, ErrNotFound) {
		api.WriteError(w, api.UnknownID("history entry not found"))
		return
	}
	if err != nil {
		slog.Error("getting chat history entry", "error", err)
		api.WriteError(w, api.ErrStoreFailure)
		return
	}
	api.JSON(w, http.StatusOK, e)
}

func (h *Handler) DeleteOne(w http.ResponseWriter, r *http.Request) {
	res, err := h.store.Delete(r.Context(), []string{chi.URLParam(r, "entryID")})
	if err != nil {
		slog.Error("deleting chat history entry", "error", err)
		api.WriteError(w, api.ErrStoreFailure)
		return
	}
	if res.Deleted == 0 {
		api.WriteError(w, api.UnknownID("history entry not found"))
		return
	}
	api.JSON(w, http.StatusOK, res)
}

// DeleteMany removes a batch of entries. Unknown ids are ignored.
func (h *Handler) DeleteMany(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, api.ErrMalformedBody)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.WriteError(w, api.InvalidInput(validation.Message(err)))
		return
	}

	res, err := h.store.Delete(r.Context(), req.EntryIDs)
	if err != nil {
		slog.Error("deleting chat history entries", "error", err)
		api.WriteError(w, api.ErrStoreFailure)
		return
	}
	api.JSON(w, http.StatusOK, res)
}

func (h *Handler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	res, err := h.store.DeleteAll(r.Context())
	if err != nil {
		slog.Error("clearing chat history", "error", err)
		api.WriteError(w, api.ErrStoreFailure)
		return
	}
	api.JSON(w, http.StatusOK, res)
}
