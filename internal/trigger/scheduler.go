package trigger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ayusman/emberguard/internal/response"
	"github.com/ayusman/emberguard/internal/sensor"
)

// Responder runs one response episode.
type Responder interface {
	Respond(ctx context.Context, trigger response.Trigger) (*response.EpisodeResult, error)
}

// SampleSink receives every successful sample: the database, the status
// file, telemetry and live events.
type SampleSink interface {
	RecordSample(ctx context.Context, s sensor.Sample) error
}

// SampleSinkFunc adapts a function to SampleSink.
type SampleSinkFunc func(ctx context.Context, s sensor.Sample) error

func (f SampleSinkFunc) RecordSample(ctx context.Context, s sensor.Sample) error {
	return f(ctx, s)
}

// Metrics is notified of scheduler activity.
type Metrics interface {
	ObserveSample(s sensor.Sample)
	SensorError(transient bool)
	SinkError(sink string)
	ObserveDecision(a Action)
	ObserveEpisode(r *response.EpisodeResult, err error)
}

// Config is the scheduler cadence and policy.
type Config struct {
	Policy     Policy
	Interval   time.Duration // between ticks
	RetryDelay time.Duration // after a failed sample
}

// DefaultConfig returns the reference cadence.
func DefaultConfig() Config {
	return Config{
		Policy:     DefaultPolicy(),
		Interval:   2 * time.Second,
		RetryDelay: 2 * time.Second,
	}
}

type namedSink struct {
	name string
	sink SampleSink
}

// Scheduler owns the trigger state. Independent instances do not share
// anything.
type Scheduler struct {
	source    sensor.Source
	responder Responder
	config    Config
	clock     Clock
	logger    *slog.Logger
	sinks     []namedSink
	metrics   Metrics

	mu    sync.Mutex
	state State
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithSampleSink adds a sink; sinks run in the order added.
func WithSampleSink(name string, sink SampleSink) Option {
	return func(s *Scheduler) { s.sinks = append(s.sinks, namedSink{name, sink}) }
}

// WithMetrics sets the metrics observer.
func WithMetrics(m Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// New creates a Scheduler. The periodic timer starts now, so the first
// periodic episode comes one full interval after start.
func New(source sensor.Source, responder Responder, config Config, opts ...Option) *Scheduler {
	s := &Scheduler{
		source:    source,
		responder: responder,
		config:    config,
		clock:     SystemClock{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state = State{LastPeriodic: s.clock.Now()}
	return s
}

// State returns a copy of the timers.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Evaluate applies the policy to a sample against the current timers.
func (s *Scheduler) Evaluate(sample sensor.Sample, now time.Time) Decision {
	return s.config.Policy.Evaluate(sample, s.State(), now)
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("monitoring started",
		"gas_critical", s.config.Policy.GasCritical,
		"temp_critical", s.config.Policy.TempCritical,
		"interval", s.config.Interval)

	for {
		d, err := s.Tick(ctx)
		if err != nil {
			s.logger.Info("monitoring stopped")
			return err
		}
		if d.Action == ActionSkipped {
			continue
		}
		if err := s.clock.Sleep(ctx, s.config.Interval); err != nil {
			s.logger.Info("monitoring stopped")
			return err
		}
	}
}

// Tick takes one sample, feeds the sinks and runs an episode if the policy
// says so. A failed sample waits RetryDelay and returns ActionSkipped
// without touching the timers. The only error returned is ctx's.
func (s *Scheduler) Tick(ctx context.Context) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	now := s.clock.Now()
	sample, err := s.source.Sample(now)
	if err != nil {
		transient := errors.Is(err, sensor.ErrTransient)
		if transient {
			s.logger.Warn("sensor read failed, retrying", "error", err, "retry_in", s.config.RetryDelay)
		} else {
			s.logger.Error("sensor read failed", "error", err, "retry_in", s.config.RetryDelay)
		}
		if s.metrics != nil {
			s.metrics.SensorError(transient)
		}
		return Decision{Action: ActionSkipped}, s.clock.Sleep(ctx, s.config.RetryDelay)
	}

	if s.metrics != nil {
		s.metrics.ObserveSample(sample)
	}
	for _, ns := range s.sinks {
		if err := ns.sink.RecordSample(ctx, sample); err != nil {
			s.logger.Error("sample sink failed", "sink", ns.name, "error", err)
			if s.metrics != nil {
				s.metrics.SinkError(ns.name)
			}
		}
	}

	d := s.Evaluate(sample, now)
	if s.metrics != nil {
		s.metrics.ObserveDecision(d.Action)
	}

	logger := s.logger.With("gas", sample.GasLevel, "temperature", sample.Temperature)
	switch d.Action {
	case ActionSafe:
		logger.Debug("conditions safe")
		return d, nil
	case ActionCooldown:
		logger.Info("critical, episode cooling down", "remaining_s", int(d.Remaining.Seconds()))
		return d, nil
	case ActionCritical:
		logger.Warn("critical conditions, starting episode")
	case ActionPeriodic:
		logger.Info("periodic episode due")
	}

	trigger := response.TriggerPeriodic
	if d.Action == ActionCritical {
		trigger = response.TriggerCritical
	}

	result, err := s.responder.Respond(ctx, trigger)
	if s.metrics != nil {
		s.metrics.ObserveEpisode(result, err)
	}
	if err != nil && ctx.Err() != nil {
		return d, ctx.Err()
	}
	if err != nil {
		s.logger.Error("episode failed", "error", err)
	}

	// Both timers restart from the pre-episode sample time
	s.mu.Lock()
	s.state.LastEpisode = now
	s.state.HasEpisode = true
	s.state.LastPeriodic = now
	s.mu.Unlock()

	return d, nil
}
