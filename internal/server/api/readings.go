package api

import (
	"errors"
	"net/http"

	"github.com/ayusman/emberguard/internal/store"
)

// ReadingsHandler serves stored sensor readings.
type ReadingsHandler struct {
	store *store.Store
}

// NewReadingsHandler creates a ReadingsHandler.
func NewReadingsHandler(s *store.Store) *ReadingsHandler {
	return &ReadingsHandler{store: s}
}

type listReadingsResponse struct {
	Readings []store.Reading `json:"readings"`
}

// List handles GET /api/readings?limit=N, newest first.
func (h *ReadingsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(r, 100)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	readings, err := h.store.Readings().List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list readings")
		return
	}

	writeJSON(w, http.StatusOK, listReadingsResponse{Readings: readings})
}

// Latest returns the most recent reading or nil when none is stored.
func (h *ReadingsHandler) Latest(r *http.Request) (*store.Reading, error) {
	rd, err := h.store.Readings().Latest(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return rd, err
}
