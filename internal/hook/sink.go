package hook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ayusman/emberguard/internal/response"
)

// Sink runs every subscribed hook after an episode.
type Sink struct {
	manager  *Manager
	executor *Executor
	deviceID string
	logger   *slog.Logger
}

// NewSink creates a Sink.
func NewSink(manager *Manager, executor *Executor, deviceID string, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{manager: manager, executor: executor, deviceID: deviceID, logger: logger}
}

// Events returns the events an episode raises.
func Events(r *response.EpisodeResult) []string {
	events := []string{EventEpisode}
	if r.FireDetected {
		events = append(events, EventFireDetected)
	}
	return events
}

// Report runs the hooks one at a time. A hook subscribed to several raised
// events runs once per event.
func (s *Sink) Report(ctx context.Context, r *response.EpisodeResult) error {
	episode := NewEpisode(r)

	var errs []error
	for _, event := range Events(r) {
		for _, h := range s.manager.List() {
			if !h.Handles(event) {
				continue
			}

			resp, err := s.executor.Execute(ctx, h, &Request{
				Event:    event,
				DeviceID: s.deviceID,
				Episode:  episode,
				Config:   h.Manifest.Config,
			})
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if !resp.Success {
				errs = append(errs, fmt.Errorf("hook %s: %s", h.Manifest.Name, resp.Error))
				continue
			}
			s.logger.Debug("hook ran", "hook", h.Manifest.Name, "event", event, "episode", r.ID)
		}
	}
	return errors.Join(errs...)
}
