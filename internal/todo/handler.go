package todo

import (
	"log/slog"
	"net/http"

	"github.com/atlas-agent/atlas/internal/api"
)

// Handler serves the read-only todo listing.
type Handler struct {
	store *Store
}

func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.List(r.Context())
	if err != nil {
		slog.Error("listing todos", "error", err)
		api.WriteError(w, api.ErrStoreFailure)
		return
	}
	api.JSON(w, http.StatusOK, items)
}
