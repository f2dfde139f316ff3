package sensor

import (
	"sync"
	"time"
)

// Reading is one scripted result for MockSensors.
type Reading struct {
	GasLevel    float64
	Temperature float64
	Err         error
}

// MockSensors plays back scripted readings. The last reading repeats once
// the script is exhausted.
type MockSensors struct {
	mu       sync.Mutex
	readings []Reading
	pos      int
	reads    int
}

// NewMockSensors creates a mock with the given script. An empty script
// reads a calm room.
func NewMockSensors(readings ...Reading) *MockSensors {
	if len(readings) == 0 {
		readings = []Reading{{GasLevel: 12, Temperature: 24}}
	}
	return &MockSensors{readings: readings}
}

// Set replaces the script and rewinds it.
func (m *MockSensors) Set(readings ...Reading) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings = readings
	m.pos = 0
}

// Sample returns the next scripted reading.
func (m *MockSensors) Sample(now time.Time) (Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reads++
	if len(m.readings) == 0 {
		return Sample{Timestamp: now}, nil
	}

	r := m.readings[m.pos]
	if m.pos < len(m.readings)-1 {
		m.pos++
	}
	if r.Err != nil {
		return Sample{}, r.Err
	}
	return Sample{GasLevel: r.GasLevel, Temperature: r.Temperature, Timestamp: now}, nil
}

// Reads returns how many samples were requested.
func (m *MockSensors) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// Close is a no-op.
func (m *MockSensors) Close() error {
	return nil
}
