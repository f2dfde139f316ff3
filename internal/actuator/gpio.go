package actuator

import (
	"fmt"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// Pins are the four outputs the actuator drives.
type Pins struct {
	ServoX gpio.PinOut
	ServoY gpio.PinOut
	Relay  gpio.PinOut
	Buzzer gpio.PinOut
}

// GPIOActuator drives hobby servos with 50Hz PWM and the relay and buzzer
// as plain digital outputs.
type GPIOActuator struct {
	pins   Pins
	config Config
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// OpenGPIO initializes the host drivers and resolves the configured pins.
func OpenGPIO(config Config, logger *slog.Logger) (*GPIOActuator, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host drivers: %w", err)
	}

	var pins Pins
	for _, p := range []struct {
		name string
		dst  *gpio.PinOut
	}{
		{config.ServoXPin, &pins.ServoX},
		{config.ServoYPin, &pins.ServoY},
		{config.RelayPin, &pins.Relay},
		{config.BuzzerPin, &pins.Buzzer},
	} {
		pin := gpioreg.ByName(p.name)
		if pin == nil {
			return nil, fmt.Errorf("gpio pin %q not found", p.name)
		}
		*p.dst = pin
	}

	return NewGPIOActuator(pins, config, logger)
}

// NewGPIOActuator wraps already resolved pins. Relay and buzzer start low.
func NewGPIOActuator(pins Pins, config Config, logger *slog.Logger) (*GPIOActuator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &GPIOActuator{pins: pins, config: config, logger: logger}

	if err := pins.Relay.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("relay init: %w", err)
	}
	if err := pins.Buzzer.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("buzzer init: %w", err)
	}
	return a, nil
}

// SetPosition sets both servo pulse widths.
func (a *GPIOActuator) SetPosition(x, y float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}

	if err := a.pins.ServoX.PWM(dutyFor(a.config.ServoX.Pulse(x)), 50*physic.Hertz); err != nil {
		return fmt.Errorf("servo x: %w", err)
	}
	if err := a.pins.ServoY.PWM(dutyFor(a.config.ServoY.Pulse(y)), 50*physic.Hertz); err != nil {
		return fmt.Errorf("servo y: %w", err)
	}
	return nil
}

// SetRelay switches the suppression relay.
func (a *GPIOActuator) SetRelay(on bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	if err := a.pins.Relay.Out(gpio.Level(on)); err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	return nil
}

// SetAlarm switches the buzzer.
func (a *GPIOActuator) SetAlarm(on bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	if err := a.pins.Buzzer.Out(gpio.Level(on)); err != nil {
		return fmt.Errorf("buzzer: %w", err)
	}
	return nil
}

// Park stops the servo pulses so the horns can rest.
func (a *GPIOActuator) Park() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	return a.park()
}

func (a *GPIOActuator) park() error {
	if err := a.pins.ServoX.Halt(); err != nil {
		return fmt.Errorf("servo x halt: %w", err)
	}
	if err := a.pins.ServoY.Halt(); err != nil {
		return fmt.Errorf("servo y halt: %w", err)
	}
	return nil
}

// Close leaves the relay and buzzer off and the servos parked.
func (a *GPIOActuator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true

	var firstErr error
	keep := func(err error) {
		if err != nil {
			a.logger.Warn("actuator shutdown", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	keep(a.pins.Relay.Out(gpio.Low))
	keep(a.pins.Buzzer.Out(gpio.Low))
	keep(a.park())
	return firstErr
}

// dutyFor converts a pulse width to a duty cycle of the 20ms servo frame.
func dutyFor(pulseUS float64) gpio.Duty {
	frameUS := float64(servoPeriod.Microseconds())
	return gpio.Duty(float64(gpio.DutyMax) * pulseUS / frameUS)
}
