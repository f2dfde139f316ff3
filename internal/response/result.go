package response

import (
	"time"

	"github.com/ayusman/emberguard/internal/vision"
)

// Trigger is why an episode ran.
type Trigger string

const (
	TriggerCritical Trigger = "critical"
	TriggerPeriodic Trigger = "periodic"
	TriggerManual   Trigger = "manual"
)

// ScanObservation is the outcome at one grid position.
type ScanObservation struct {
	Position   GridPosition  `json:"position"`
	Detected   bool          `json:"detected"`
	Confidence float64       `json:"confidence"`
	Centroid   *vision.Point `json:"centroid,omitempty"`
}

// ScanReport holds the observations in visitation order. Positions whose
// capture failed are absent.
type ScanReport []ScanObservation

// Detections counts the observations with a qualifying detection.
func (r ScanReport) Detections() int {
	n := 0
	for _, o := range r {
		if o.Detected {
			n++
		}
	}
	return n
}

// BestCandidate is the fused scan result the centering loop steers toward.
// X and Y move as the loop corrects; Confidence and Centroid follow the
// latest frame.
type BestCandidate struct {
	Label      PositionLabel `json:"label"`
	X          float64       `json:"x"`
	Y          float64       `json:"y"`
	Confidence float64       `json:"confidence"`
	Centroid   *vision.Point `json:"centroid,omitempty"`
}

// EpisodeResult is everything one episode produced.
type EpisodeResult struct {
	ID           string         `json:"id"`
	Trigger      Trigger        `json:"trigger"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
	Scan         ScanReport     `json:"scan"`
	Best         *BestCandidate `json:"best,omitempty"`
	FireDetected bool           `json:"fire_detected"`
	ArtifactPath string         `json:"artifact_path,omitempty"`
	Centered     int            `json:"centered"` // relay activations
}

// Duration is how long the episode ran.
func (r *EpisodeResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// ObservationPayload is one scan_results entry of the report payload.
type ObservationPayload struct {
	Pos        string  `json:"pos"`
	ServoX     float64 `json:"servo_x"`
	ServoY     float64 `json:"servo_y"`
	Detected   bool    `json:"detected"`
	Confidence float64 `json:"confidence"`
	CX         *int    `json:"cx"`
	CY         *int    `json:"cy"`
}

// BestPayload is the best_detection object of the report payload.
type BestPayload struct {
	Label      string  `json:"label"`
	ServoX     float64 `json:"servo_x"`
	ServoY     float64 `json:"servo_y"`
	Confidence float64 `json:"confidence"`
	CX         *int    `json:"cx"`
	CY         *int    `json:"cy"`
}

// Payload is the wire form sent to the reporting endpoint.
type Payload struct {
	ScanResults   []ObservationPayload `json:"scan_results"`
	BestDetection *BestPayload         `json:"best_detection"`
	FireDetected  bool                 `json:"fire_detected"`
}

// ScanPayload converts the scan report to its wire form.
func (r ScanReport) ScanPayload() []ObservationPayload {
	out := make([]ObservationPayload, 0, len(r))
	for _, o := range r {
		p := ObservationPayload{
			Pos:        string(o.Position.Label),
			ServoX:     o.Position.X,
			ServoY:     o.Position.Y,
			Detected:   o.Detected,
			Confidence: o.Confidence,
		}
		p.CX, p.CY = splitPoint(o.Centroid)
		out = append(out, p)
	}
	return out
}

// Payload converts the result to its wire form.
func (r *EpisodeResult) Payload() Payload {
	p := Payload{
		ScanResults:  r.Scan.ScanPayload(),
		FireDetected: r.FireDetected,
	}
	if r.Best != nil {
		b := &BestPayload{
			Label:      string(r.Best.Label),
			ServoX:     r.Best.X,
			ServoY:     r.Best.Y,
			Confidence: r.Best.Confidence,
		}
		b.CX, b.CY = splitPoint(r.Best.Centroid)
		p.BestDetection = b
	}
	return p
}

func splitPoint(p *vision.Point) (*int, *int) {
	if p == nil {
		return nil, nil
	}
	x, y := p.X, p.Y
	return &x, &y
}
