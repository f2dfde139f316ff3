package sensor

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// IIOThermometer reads a DHT22 through the kernel dht11 IIO driver, which
// exposes the temperature in milli-degrees Celsius.
type IIOThermometer struct {
	Path string
}

// ReadTemperature returns degrees Celsius. The driver fails often with
// EIO or a timeout; every failure is ErrTransient.
func (t IIOThermometer) ReadTemperature() (float64, error) {
	data, err := os.ReadFile(t.Path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransient, err)
	}

	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return 0, fmt.Errorf("%w: empty reading", ErrTransient)
	}

	milli, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parse %q: %v", ErrTransient, raw, err)
	}
	return float64(milli) / 1000, nil
}
