// Package vision holds the image and detection types shared by the camera,
// the detectors and the response engine. It has no OpenCV dependency so the
// control code can be built and tested without cgo.
package vision

import (
	"strings"
	"time"
)

// Default frame geometry used by the still camera and the centering math.
const (
	DefaultWidth  = 640
	DefaultHeight = 480
)

// Frame is one encoded still image.
type Frame struct {
	Data     []byte // JPEG bytes
	Width    int
	Height   int
	Captured time.Time
}

// Center returns the integer pixel center of the frame.
func (f Frame) Center() (int, int) {
	return f.Width / 2, f.Height / 2
}

// Empty reports whether the frame carries no image data.
func (f Frame) Empty() bool {
	return len(f.Data) == 0
}

// HazardClass is the typed class of a detection.
type HazardClass int

const (
	// ClassUnknown is any label the detector emits that we do not act on.
	ClassUnknown HazardClass = iota
	// ClassFire is an open flame.
	ClassFire
	// ClassSmoke is visible smoke.
	ClassSmoke
)

// String returns the canonical lowercase label.
func (c HazardClass) String() string {
	switch c {
	case ClassFire:
		return "fire"
	case ClassSmoke:
		return "smoke"
	default:
		return "unknown"
	}
}

// ParseHazardClass maps a raw model label to a HazardClass.
// Matching is case-insensitive; unrecognised labels map to ClassUnknown.
func ParseHazardClass(label string) HazardClass {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "fire", "flame":
		return ClassFire
	case "smoke":
		return ClassSmoke
	default:
		return ClassUnknown
	}
}

// Point is a pixel coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Box is a pixel rectangle in corner form.
type Box struct {
	X1, Y1, X2, Y2 int
}

// Centroid returns the integer midpoint of the box.
func (b Box) Centroid() Point {
	return Point{X: (b.X1 + b.X2) / 2, Y: (b.Y1 + b.Y2) / 2}
}

// Detection is one bounding box returned by a detector.
type Detection struct {
	Class      HazardClass
	Label      string  // raw label as emitted by the model
	Confidence float64 // 0-1
	Box        Box
}

// FirstQualifying returns the first detection of the given class whose
// confidence is strictly above threshold. Later qualifying boxes are ignored.
func FirstQualifying(dets []Detection, class HazardClass, threshold float64) (Detection, bool) {
	for _, d := range dets {
		if d.Class == class && d.Confidence > threshold {
			return d, true
		}
	}
	return Detection{}, false
}
