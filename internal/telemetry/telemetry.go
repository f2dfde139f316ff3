// Package telemetry publishes sensor readings and episode summaries to
// message brokers.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/ayusman/emberguard/internal/response"
	"github.com/ayusman/emberguard/internal/sensor"
)

// Publisher sends telemetry for one device.
type Publisher interface {
	RecordSample(ctx context.Context, s sensor.Sample) error
	Report(ctx context.Context, result *response.EpisodeResult) error
	Close() error
}

// ReadingEvent is the message published for every sample.
type ReadingEvent struct {
	DeviceID    string    `json:"device_id"`
	Temperature float64   `json:"temperature"`
	GasLevel    float64   `json:"gas_level"`
	Timestamp   time.Time `json:"timestamp"`
}

// EpisodeEvent is the message published after every episode.
type EpisodeEvent struct {
	DeviceID   string           `json:"device_id"`
	EpisodeID  string           `json:"episode_id"`
	Trigger    response.Trigger `json:"trigger"`
	StartedAt  time.Time        `json:"started_at"`
	DurationMS int64            `json:"duration_ms"`
	Centered   int              `json:"centered"`
	Result     response.Payload `json:"result"`
}

func readingEvent(device string, s sensor.Sample) ([]byte, error) {
	return json.Marshal(ReadingEvent{
		DeviceID:    device,
		Temperature: s.Temperature,
		GasLevel:    s.GasLevel,
		Timestamp:   s.Timestamp.UTC(),
	})
}

func episodeEvent(device string, r *response.EpisodeResult) ([]byte, error) {
	return json.Marshal(EpisodeEvent{
		DeviceID:   device,
		EpisodeID:  r.ID,
		Trigger:    r.Trigger,
		StartedAt:  r.StartedAt.UTC(),
		DurationMS: r.Duration().Milliseconds(),
		Centered:   r.Centered,
		Result:     r.Payload(),
	})
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordSample(context.Context, sensor.Sample) error     { return nil }
func (Nop) Report(context.Context, *response.EpisodeResult) error { return nil }
func (Nop) Close() error                                          { return nil }

// Multi publishes to several publishers. A failing publisher does not stop
// the others.
type Multi struct {
	pubs   []Publisher
	logger *slog.Logger
}

// NewMulti combines publishers.
func NewMulti(logger *slog.Logger, pubs ...Publisher) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multi{pubs: pubs, logger: logger}
}

// Len returns the number of publishers.
func (m *Multi) Len() int {
	return len(m.pubs)
}

func (m *Multi) RecordSample(ctx context.Context, s sensor.Sample) error {
	var errs []error
	for _, p := range m.pubs {
		if err := p.RecordSample(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Report(ctx context.Context, r *response.EpisodeResult) error {
	var errs []error
	for _, p := range m.pubs {
		if err := p.Report(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every publisher.
func (m *Multi) Close() error {
	var errs []error
	for _, p := range m.pubs {
		if err := p.Close(); err != nil {
			m.logger.Warn("telemetry close failed", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
