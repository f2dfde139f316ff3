package response

import (
	"context"
	"fmt"
	"os"

	"github.com/ayusman/emberguard/internal/vision"
)

// Scan visits every grid position, captures one frame at each and records
// the first qualifying detection. A position whose capture fails is left
// out of the report. Only cancellation aborts the scan.
func (e *Engine) Scan(ctx context.Context) (ScanReport, *BestCandidate, error) {
	report := make(ScanReport, 0, len(scanGrid))

	for _, pos := range Grid() {
		if err := ctx.Err(); err != nil {
			return report, nil, err
		}

		if err := e.deps.Actuator.SetPosition(pos.X, pos.Y); err != nil {
			e.logger.Warn("move failed", "position", pos.Label, "error", err)
		}
		if err := e.sleep(ctx, e.config.Settle); err != nil {
			return report, nil, err
		}

		frame, err := e.captureStill(ctx, pos.Label)
		if err != nil {
			if ctx.Err() != nil {
				return report, nil, ctx.Err()
			}
			e.logger.Warn("capture failed, skipping position", "position", pos.Label, "error", err)
			continue
		}

		obs := ScanObservation{Position: pos}
		dets, err := e.deps.Detector.Detect(frame)
		if err != nil {
			e.logger.Warn("detection failed", "position", pos.Label, "error", err)
		} else if d, ok := vision.FirstQualifying(dets, e.config.Hazard, e.config.ConfThreshold); ok {
			c := d.Box.Centroid()
			obs.Detected = true
			obs.Confidence = d.Confidence
			obs.Centroid = &c
			e.logger.Info("hazard detected", "position", pos.Label, "confidence", d.Confidence)
		}

		report = append(report, obs)
	}

	return report, SelectBest(report), nil
}

// captureStill saves the position's frame to the work directory and reads
// it back for detection. The file is kept for inspection.
func (e *Engine) captureStill(ctx context.Context, label PositionLabel) (vision.Frame, error) {
	path := e.config.path(fmt.Sprintf(e.config.FramePattern, label))

	if err := e.deps.Camera.CaptureToFile(ctx, path); err != nil {
		return vision.Frame{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return vision.Frame{}, fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return vision.Frame{}, fmt.Errorf("%s is empty", path)
	}

	w, h := e.config.FrameWidth, e.config.FrameHeight
	if w <= 0 || h <= 0 {
		w, h = vision.DefaultWidth, vision.DefaultHeight
	}
	return vision.Frame{
		Data:     data,
		Width:    w,
		Height:   h,
		Captured: e.now(),
	}, nil
}
