// Package report delivers finished episodes to the remote reporting
// endpoint and any other configured sinks.
package report

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ayusman/emberguard/internal/response"
)

// Sink receives every finished episode.
type Sink interface {
	Report(ctx context.Context, result *response.EpisodeResult) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, result *response.EpisodeResult) error

func (f SinkFunc) Report(ctx context.Context, result *response.EpisodeResult) error {
	return f(ctx, result)
}

// Named pairs a sink with the name used in logs.
type Named struct {
	Name string
	Sink Sink
}

// Multi fans an episode out to several sinks in order.
type Multi struct {
	sinks  []Named
	logger *slog.Logger
}

// NewMulti creates a Multi. Nil sinks are skipped.
func NewMulti(logger *slog.Logger, sinks ...Named) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Multi{logger: logger}
	for _, s := range sinks {
		if s.Sink != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Add appends a sink.
func (m *Multi) Add(name string, sink Sink) {
	m.sinks = append(m.sinks, Named{Name: name, Sink: sink})
}

// Len returns the number of sinks.
func (m *Multi) Len() int {
	return len(m.sinks)
}

// Report calls every sink even when earlier ones fail. Each failure is
// logged and the joined error is returned.
func (m *Multi) Report(ctx context.Context, result *response.EpisodeResult) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Sink.Report(ctx, result); err != nil {
			m.logger.Error("report sink failed", "sink", s.Name, "episode", result.ID, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
