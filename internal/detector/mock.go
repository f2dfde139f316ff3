package detector

import (
	"sync"

	"github.com/ayusman/emberguard/internal/vision"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
//
// Resolution order per call: the queued responses (consumed one per call),
// then the per-frame script keyed by the frame payload, then the default.
type MockDetector struct {
	mu       sync.Mutex
	queue    [][]vision.Detection
	byFrame  map[string][]vision.Detection
	fallback []vision.Detection
	err      error
	calls    int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{byFrame: make(map[string][]vision.Detection)}
}

// SetDetections sets the default detections returned by Detect.
func (m *MockDetector) SetDetections(dets []vision.Detection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = dets
}

// Script returns dets whenever a frame with the given payload is detected.
func (m *MockDetector) Script(payload string, dets []vision.Detection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byFrame[payload] = dets
}

// Queue appends one response per call, consumed in order.
func (m *MockDetector) Queue(responses ...[]vision.Detection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, responses...)
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect ran.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the pre-configured detections or error.
func (m *MockDetector) Detect(frame vision.Frame) ([]vision.Detection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return nil, m.err
	}

	if len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]
		return next, nil
	}

	if dets, ok := m.byFrame[string(frame.Data)]; ok {
		return dets, nil
	}
	return m.fallback, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// FireAt returns a fire detection whose box is centred on (cx, cy).
func FireAt(cx, cy int, confidence float64) vision.Detection {
	return vision.Detection{
		Class:      vision.ClassFire,
		Label:      "fire",
		Confidence: confidence,
		Box:        vision.Box{X1: cx - 20, Y1: cy - 20, X2: cx + 20, Y2: cy + 20},
	}
}
