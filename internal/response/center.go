package response

import (
	"context"
	"math"

	"github.com/ayusman/emberguard/internal/vision"
)

// State is a centering controller state.
type State int

const (
	StateSeeking State = iota
	StateCentered
	StateLost
	StateDone
)

func (s State) String() string {
	switch s {
	case StateSeeking:
		return "seeking"
	case StateCentered:
		return "centered"
	case StateLost:
		return "lost"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// TrackResult summarizes a centering run.
type TrackResult struct {
	Centered     int    // relay activations
	Moves        int    // corrective moves
	ArtifactPath string // last saved centered frame
}

// Within reports whether both offsets are strictly inside tolerance.
func Within(dx, dy, tolerance int) bool {
	return abs(dx) < tolerance && abs(dy) < tolerance
}

// Correction returns the proportional pan/tilt adjustment for a pixel
// offset, each axis limited to MaxStep. dx and dy are frame center minus
// hazard centroid.
func Correction(dx, dy, width, height int, cfg TrackingConfig) (float64, float64) {
	adjX := clamp((-float64(dx)/float64(width))*cfg.GainX, -cfg.MaxStep, cfg.MaxStep)
	adjY := clamp((-float64(dy)/float64(height))*cfg.GainY, -cfg.MaxStep, cfg.MaxStep)
	return adjX, adjY
}

// Track steers toward best until the hazard disappears from view. Every
// time it is centered the relay is held on for the suppression period.
// best is updated in place. The relay is off whenever Track returns.
func (e *Engine) Track(ctx context.Context, best *BestCandidate) (TrackResult, error) {
	cfg := e.config.Tracking
	var res TrackResult

	if err := e.deps.Actuator.SetPosition(best.X, best.Y); err != nil {
		e.logger.Warn("move to candidate failed", "error", err)
	}
	if e.deps.Alarm != nil {
		e.deps.Alarm.Sound(ctx)
	}
	if err := e.sleep(ctx, cfg.EntrySettle); err != nil {
		return res, e.abort(err)
	}

	var last vision.Frame
	state := StateSeeking

	for {
		switch state {
		case StateSeeking:
			frame, err := e.deps.Camera.CaptureToBuffer(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return res, e.abort(ctx.Err())
				}
				e.logger.Warn("tracking capture failed", "error", err)
				state = StateLost
				continue
			}

			dets, err := e.deps.Detector.Detect(frame)
			if err != nil {
				e.logger.Warn("tracking detection failed", "error", err)
				state = StateLost
				continue
			}
			d, ok := vision.FirstQualifying(dets, e.config.Hazard, e.config.ConfThreshold)
			if !ok {
				state = StateLost
				continue
			}

			c := d.Box.Centroid()
			best.Confidence = d.Confidence
			best.Centroid = &c

			w, h := frame.Width, frame.Height
			if w <= 0 || h <= 0 {
				w, h = vision.DefaultWidth, vision.DefaultHeight
			}
			dx := w/2 - c.X
			dy := h/2 - c.Y

			if Within(dx, dy, cfg.Tolerance) {
				last = frame
				state = StateCentered
				continue
			}

			adjX, adjY := Correction(dx, dy, w, h, cfg)
			best.X = clamp(best.X+adjX, 0, 1)
			best.Y = clamp(best.Y+adjY, 0, 1)
			res.Moves++

			e.logger.Debug("correcting", "dx", dx, "dy", dy, "x", best.X, "y", best.Y)
			if err := e.deps.Actuator.SetPosition(best.X, best.Y); err != nil {
				e.logger.Warn("corrective move failed", "error", err)
			}
			if err := e.sleep(ctx, cfg.MoveSettle); err != nil {
				return res, e.abort(err)
			}

		case StateCentered:
			path := e.config.path(cfg.ArtifactName)
			if err := writeFileAtomic(path, last.Data); err != nil {
				e.logger.Warn("saving centered frame failed", "path", path, "error", err)
			} else {
				res.ArtifactPath = path
			}

			e.logger.Info("hazard centered, suppressing", "x", best.X, "y", best.Y, "duration", cfg.Suppression)
			if err := e.deps.Actuator.SetRelay(true); err != nil {
				e.logger.Error("relay on failed", "error", err)
			}
			res.Centered++

			if err := e.sleep(ctx, cfg.Suppression); err != nil {
				return res, e.abort(err)
			}
			e.relayOff()
			state = StateSeeking

		case StateLost:
			e.logger.Info("hazard lost, tracking stopped", "centered", res.Centered, "moves", res.Moves)
			e.relayOff()
			state = StateDone

		case StateDone:
			return res, nil
		}
	}
}

// abort leaves the relay off and passes err through.
func (e *Engine) abort(err error) error {
	e.relayOff()
	return err
}

func (e *Engine) relayOff() {
	if err := e.deps.Actuator.SetRelay(false); err != nil {
		e.logger.Error("relay off failed", "error", err)
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
