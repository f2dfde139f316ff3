// Package trigger samples the sensors on a fixed cadence and decides when
// to run a response episode.
package trigger

import (
	"fmt"
	"time"

	"github.com/ayusman/emberguard/internal/sensor"
)

// Action is the outcome of one policy evaluation.
type Action int

const (
	// ActionSafe means nothing to do.
	ActionSafe Action = iota
	// ActionCritical runs an episode because a threshold is exceeded.
	ActionCritical
	// ActionCooldown means a threshold is exceeded but an episode ran too
	// recently.
	ActionCooldown
	// ActionPeriodic runs a routine episode.
	ActionPeriodic
	// ActionSkipped means the tick produced no sample.
	ActionSkipped
)

func (a Action) String() string {
	switch a {
	case ActionSafe:
		return "safe"
	case ActionCritical:
		return "critical"
	case ActionCooldown:
		return "cooldown"
	case ActionPeriodic:
		return "periodic"
	case ActionSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// RunsEpisode reports whether the action starts an episode.
func (a Action) RunsEpisode() bool {
	return a == ActionCritical || a == ActionPeriodic
}

// Decision is an action plus, for ActionCooldown, how long until the next
// critical episode is allowed.
type Decision struct {
	Action    Action
	Remaining time.Duration
}

// Policy holds the thresholds and timers of the trigger rule.
type Policy struct {
	GasCritical      float64
	TempCritical     float64
	Cooldown         time.Duration
	PeriodicInterval time.Duration
}

// DefaultPolicy returns the reference thresholds.
func DefaultPolicy() Policy {
	return Policy{
		GasCritical:      50,
		TempCritical:     35,
		Cooldown:         60 * time.Second,
		PeriodicInterval: 600 * time.Second,
	}
}

// State holds the episode timers. A zero State with HasEpisode false
// treats the last episode as infinitely long ago.
type State struct {
	LastEpisode  time.Time
	HasEpisode   bool
	LastPeriodic time.Time
}

// Critical reports whether a sample exceeds either threshold.
func (p Policy) Critical(s sensor.Sample) bool {
	return s.GasLevel > p.GasCritical || s.Temperature > p.TempCritical
}

// Evaluate applies the trigger rule. A critical sample never falls through
// to the periodic check, even while cooling down.
func (p Policy) Evaluate(s sensor.Sample, st State, now time.Time) Decision {
	if p.Critical(s) {
		since := now.Sub(st.LastEpisode)
		if !st.HasEpisode || since > p.Cooldown {
			return Decision{Action: ActionCritical}
		}
		return Decision{Action: ActionCooldown, Remaining: p.Cooldown - since}
	}

	if now.Sub(st.LastPeriodic) > p.PeriodicInterval {
		return Decision{Action: ActionPeriodic}
	}
	return Decision{Action: ActionSafe}
}
