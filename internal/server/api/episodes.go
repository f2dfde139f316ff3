package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ayusman/emberguard/internal/response"
	"github.com/ayusman/emberguard/internal/store"
)

// EpisodesHandler serves stored response episodes.
type EpisodesHandler struct {
	store *store.Store
}

// NewEpisodesHandler creates an EpisodesHandler.
func NewEpisodesHandler(s *store.Store) *EpisodesHandler {
	return &EpisodesHandler{store: s}
}

type episodeSummary struct {
	ID           string                  `json:"id"`
	Trigger      response.Trigger        `json:"trigger"`
	StartedAt    string                  `json:"started_at"`
	DurationMS   int64                   `json:"duration_ms"`
	FireDetected bool                    `json:"fire_detected"`
	Best         *response.BestCandidate `json:"best"`
	Centered     int                     `json:"centered"`
}

type listEpisodesResponse struct {
	Episodes []episodeSummary `json:"episodes"`
}

type episodeResponse struct {
	episodeSummary
	ArtifactPath string           `json:"artifact_path,omitempty"`
	Result       response.Payload `json:"result"`
}

func toSummary(e *response.EpisodeResult) episodeSummary {
	return episodeSummary{
		ID:           e.ID,
		Trigger:      e.Trigger,
		StartedAt:    e.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
		DurationMS:   e.Duration().Milliseconds(),
		FireDetected: e.FireDetected,
		Best:         e.Best,
		Centered:     e.Centered,
	}
}

// List handles GET /api/episodes?limit=N, newest first.
func (h *EpisodesHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(r, 50)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	episodes, err := h.store.Episodes().List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list episodes")
		return
	}

	out := make([]episodeSummary, 0, len(episodes))
	for _, e := range episodes {
		out = append(out, toSummary(e))
	}
	writeJSON(w, http.StatusOK, listEpisodesResponse{Episodes: out})
}

// Get handles GET /api/episodes/{id}.
func (h *EpisodesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	e, err := h.store.Episodes().GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "episode not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get episode")
		return
	}

	writeJSON(w, http.StatusOK, episodeResponse{
		episodeSummary: toSummary(e),
		ArtifactPath:   e.ArtifactPath,
		Result:         e.Payload(),
	})
}

// Delete handles DELETE /api/episodes/{id}.
func (h *EpisodesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.store.Episodes().Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "episode not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete episode")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
