// Package detector turns a still frame into typed hazard detections.
package detector

import (
	"github.com/ayusman/emberguard/internal/vision"
)

// Detector defines the interface for hazard detection implementations.
type Detector interface {
	// Detect analyzes a frame and returns zero or more detections.
	// Order is stable within one call; nothing is promised across calls.
	Detect(frame vision.Frame) ([]vision.Detection, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for hazard detection.
type Config struct {
	// ModelPath is the ONNX (yolo) or PyTorch (sidecar) model file.
	ModelPath string

	// Classes maps model class ids to labels, in model order.
	Classes []string

	// InputSize is the square network input size in pixels.
	InputSize int

	// MinConfidence drops raw boxes below this score before NMS (0.0-1.0).
	// The scan and tracking loops apply their own stricter threshold.
	MinConfidence float64

	// NMSThreshold is the IoU threshold for non-maximum suppression.
	NMSThreshold float64
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		ModelPath:     "models/fire.onnx",
		Classes:       []string{"fire", "smoke"},
		InputSize:     640,
		MinConfidence: 0.25,
		NMSThreshold:  0.45,
	}
}

// labelFor returns the label of a class id, or "" when out of range.
func (c Config) labelFor(classID int) string {
	if classID < 0 || classID >= len(c.Classes) {
		return ""
	}
	return c.Classes[classID]
}

// newDetection validates a raw model output at the boundary.
func newDetection(label string, confidence float64, box vision.Box) vision.Detection {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return vision.Detection{
		Class:      vision.ParseHazardClass(label),
		Label:      label,
		Confidence: confidence,
		Box:        box,
	}
}
