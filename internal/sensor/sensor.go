// Package sensor reads the gas and temperature inputs that drive the
// trigger policy.
package sensor

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrTransient marks a read that failed but is worth retrying shortly.
// The DHT22 produces these routinely.
var ErrTransient = errors.New("transient sensor failure")

// Sample is one reading of both inputs.
type Sample struct {
	GasLevel    float64   `json:"gas_level"`
	Temperature float64   `json:"temperature"`
	Timestamp   time.Time `json:"timestamp"`
}

// GasSensor reads the gas concentration level (0-1000 scale).
type GasSensor interface {
	ReadGas() (float64, error)
}

// Thermometer reads the ambient temperature in degrees Celsius.
type Thermometer interface {
	ReadTemperature() (float64, error)
}

// Source produces samples for the scheduler.
type Source interface {
	Sample(now time.Time) (Sample, error)
	Close() error
}

// Board combines a gas sensor and a thermometer.
type Board struct {
	Gas     GasSensor
	Thermo  Thermometer
	closers []func() error
}

// NewBoard builds a Board. closers run on Close in order.
func NewBoard(gas GasSensor, thermo Thermometer, closers ...func() error) *Board {
	return &Board{Gas: gas, Thermo: thermo, closers: closers}
}

// Sample reads gas then temperature. A failed temperature read is
// reported as ErrTransient so the caller retries.
func (b *Board) Sample(now time.Time) (Sample, error) {
	gas, err := b.Gas.ReadGas()
	if err != nil {
		return Sample{}, fmt.Errorf("read gas: %w", err)
	}

	temp, err := b.Thermo.ReadTemperature()
	if err != nil {
		if !errors.Is(err, ErrTransient) {
			err = fmt.Errorf("%w: %v", ErrTransient, err)
		}
		return Sample{}, fmt.Errorf("read temperature: %w", err)
	}

	return Sample{GasLevel: gas, Temperature: temp, Timestamp: now}, nil
}

// Close releases the underlying buses.
func (b *Board) Close() error {
	var errs []error
	for _, c := range b.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ADC reference and resolution of the MCP3008.
const (
	VRef     = 3.3
	ADCMax   = 1023.0
	LevelMax = 1000.0
)

// CountToVoltage converts a raw 10-bit count to volts.
func CountToVoltage(count int) float64 {
	return float64(count) * VRef / ADCMax
}

// VoltageToLevel maps a sensor voltage to the 0-1000 gas level, rounded to
// one decimal place.
func VoltageToLevel(v float64) float64 {
	return math.Round(v/VRef*LevelMax*10) / 10
}
