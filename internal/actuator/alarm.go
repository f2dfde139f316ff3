package actuator

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Buzzer is the output an Alarm pulses.
type Buzzer interface {
	SetAlarm(on bool) error
}

// Alarm beeps a buzzer in the background.
type Alarm struct {
	out      Buzzer
	beeps    int
	interval time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	done chan struct{} // non-nil while sounding
}

// NewAlarm creates an alarm that sounds beeps pulses of interval on and
// interval off.
func NewAlarm(out Buzzer, beeps int, interval time.Duration, logger *slog.Logger) *Alarm {
	if logger == nil {
		logger = slog.Default()
	}
	return &Alarm{out: out, beeps: beeps, interval: interval, logger: logger}
}

// Sound starts the beep pattern and returns immediately. Callers never
// wait on it; the returned channel closes when the pattern ends and exists
// for tests. A Sound while already sounding joins the running pattern.
// Cancelling ctx stops the pattern at the next edge. The buzzer is always
// left off.
func (a *Alarm) Sound(ctx context.Context) <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.done != nil {
		return a.done
	}
	done := make(chan struct{})
	a.done = done

	go a.run(ctx, done)
	return done
}

// Active reports whether a pattern is running.
func (a *Alarm) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.done != nil
}

func (a *Alarm) run(ctx context.Context, done chan struct{}) {
	defer func() {
		if err := a.out.SetAlarm(false); err != nil {
			a.logger.Warn("buzzer off failed", "error", err)
		}
		a.mu.Lock()
		a.done = nil
		a.mu.Unlock()
		close(done)
	}()

	timer := time.NewTimer(a.interval)
	defer timer.Stop()

	wait := func() bool {
		timer.Reset(a.interval)
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		}
	}

	for i := 0; i < a.beeps; i++ {
		if err := a.out.SetAlarm(true); err != nil {
			a.logger.Warn("buzzer on failed", "error", err)
		}
		if !wait() {
			return
		}
		if err := a.out.SetAlarm(false); err != nil {
			a.logger.Warn("buzzer off failed", "error", err)
		}
		if !wait() {
			return
		}
	}
}
