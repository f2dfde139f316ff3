// Package actuator drives the pan/tilt servos, the suppression relay and
// the buzzer.
package actuator

import (
	"errors"
	"time"
)

// ErrClosed is returned by any call made after Close.
var ErrClosed = errors.New("actuator closed")

// Actuator is the output side of the device.
type Actuator interface {
	// SetPosition moves the pan/tilt head. x and y are normalized to [0,1]
	// and clamped if outside.
	SetPosition(x, y float64) error
	SetRelay(on bool) error
	SetAlarm(on bool) error
	// Park stops driving the servos.
	Park() error
	Close() error
}

// ServoRange is the pulse-width range of one axis in microseconds.
type ServoRange struct {
	MinUS float64
	MaxUS float64
}

// Config describes the pin assignment and servo calibration.
type Config struct {
	ServoXPin string
	ServoYPin string
	RelayPin  string
	BuzzerPin string
	ServoX    ServoRange
	ServoY    ServoRange
}

// DefaultConfig returns the reference wiring.
func DefaultConfig() Config {
	return Config{
		ServoXPin: "GPIO12",
		ServoYPin: "GPIO13",
		RelayPin:  "GPIO22",
		BuzzerPin: "GPIO27",
		ServoX:    ServoRange{MinUS: 900, MaxUS: 2100},
		ServoY:    ServoRange{MinUS: 1000, MaxUS: 2000},
	}
}

// servoPeriod is one 50Hz frame.
const servoPeriod = 20 * time.Millisecond

// Clamp01 limits v to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Pulse maps a normalized position to a pulse width in microseconds.
func (r ServoRange) Pulse(v float64) float64 {
	return r.MinUS + Clamp01(v)*(r.MaxUS-r.MinUS)
}
