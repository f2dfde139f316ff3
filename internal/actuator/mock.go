package actuator

import (
	"sync"
)

// Call is one recorded actuator command.
type Call struct {
	Op   string // position, relay, alarm, park, close
	X, Y float64
	On   bool
}

// MockActuator records every command for assertions and simulation.
type MockActuator struct {
	mu       sync.Mutex
	calls    []Call
	x, y     float64
	relay    bool
	alarm    bool
	posErr   error
	relayErr error
}

// NewMockActuator creates a mock actuator centred at (0.5, 0.5).
func NewMockActuator() *MockActuator {
	return &MockActuator{x: 0.5, y: 0.5}
}

// FailPositions makes SetPosition return err (nil to clear).
func (m *MockActuator) FailPositions(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posErr = err
}

// FailRelay makes SetRelay return err (nil to clear).
func (m *MockActuator) FailRelay(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relayErr = err
}

func (m *MockActuator) SetPosition(x, y float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "position", X: x, Y: y})
	if m.posErr != nil {
		return m.posErr
	}
	m.x, m.y = Clamp01(x), Clamp01(y)
	return nil
}

func (m *MockActuator) SetRelay(on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "relay", On: on})
	if m.relayErr != nil {
		return m.relayErr
	}
	m.relay = on
	return nil
}

func (m *MockActuator) SetAlarm(on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "alarm", On: on})
	m.alarm = on
	return nil
}

func (m *MockActuator) Park() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "park"})
	return nil
}

func (m *MockActuator) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "close"})
	m.relay = false
	m.alarm = false
	return nil
}

// Calls returns a copy of every recorded command.
func (m *MockActuator) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallsOf returns the recorded commands of one kind.
func (m *MockActuator) CallsOf(op string) []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Call
	for _, c := range m.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Position returns the last accepted position.
func (m *MockActuator) Position() (float64, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.x, m.y
}

// RelayOn reports the relay state.
func (m *MockActuator) RelayOn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.relay
}

// AlarmOn reports the buzzer state.
func (m *MockActuator) AlarmOn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alarm
}
