// Package hook runs user executables after response episodes.
package hook

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/ayusman/emberguard/internal/response"
)

// Event names a hook can subscribe to.
const (
	EventEpisode      = "episode"       // every finished episode
	EventFireDetected = "fire_detected" // episodes whose scan found a hazard
)

// Manifest describes a hook's metadata and subscriptions.
type Manifest struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	Executable  string          `json:"executable"`
	Events      []string        `json:"events"`
	Config      json.RawMessage `json:"config,omitempty"`
}

// Episode is the episode summary handed to hooks.
type Episode struct {
	ID           string           `json:"id"`
	Trigger      response.Trigger `json:"trigger"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   time.Time        `json:"finished_at"`
	ArtifactPath string           `json:"artifact_path,omitempty"`
	Centered     int              `json:"centered"`
	Result       response.Payload `json:"result"`
}

// Request is written to the hook's stdin.
type Request struct {
	Event    string          `json:"event"`
	DeviceID string          `json:"device_id"`
	Episode  Episode         `json:"episode"`
	Config   json.RawMessage `json:"config,omitempty"`
}

// Response is read from the hook's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Hook is a discovered hook with its manifest and location.
type Hook struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// Handles reports whether the hook subscribes to event.
func (h *Hook) Handles(event string) bool {
	return slices.Contains(h.Manifest.Events, event)
}

// NewEpisode summarizes a result for hooks.
func NewEpisode(r *response.EpisodeResult) Episode {
	return Episode{
		ID:           r.ID,
		Trigger:      r.Trigger,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
		ArtifactPath: r.ArtifactPath,
		Centered:     r.Centered,
		Result:       r.Payload(),
	}
}
