package response

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Respond runs one full episode: scan, fuse, and track the best candidate
// if there is one. The result file is written and the sink is fed even
// when nothing was found. Sink failures are logged and never returned.
//
// On cancellation the partial result is returned with the context error;
// the relay is off and the sink is skipped.
func (e *Engine) Respond(ctx context.Context, trigger Trigger) (*EpisodeResult, error) {
	result := &EpisodeResult{
		ID:        e.newID(),
		Trigger:   trigger,
		StartedAt: e.now(),
	}
	logger := e.logger.With("episode", result.ID, "trigger", string(trigger))
	logger.Info("episode started")

	report, best, err := e.Scan(ctx)
	result.Scan = report
	if err != nil {
		result.FinishedAt = e.now()
		e.writeResults(logger, result)
		return result, fmt.Errorf("scan: %w", err)
	}

	result.Best = best
	result.FireDetected = best != nil

	if best == nil {
		logger.Info("no hazard detected", "captured", len(report))
	} else {
		logger.Info("tracking best candidate", "position", best.Label, "confidence", best.Confidence)
		tr, err := e.Track(ctx, best)
		result.Centered = tr.Centered
		result.ArtifactPath = tr.ArtifactPath
		if err != nil {
			result.FinishedAt = e.now()
			e.writeResults(logger, result)
			return result, fmt.Errorf("track: %w", err)
		}
	}

	result.FinishedAt = e.now()
	e.writeResults(logger, result)

	if e.deps.Sink != nil {
		if err := e.deps.Sink.Report(ctx, result); err != nil {
			logger.Error("reporting failed", "error", err)
		}
	}

	logger.Info("episode finished", "fire_detected", result.FireDetected,
		"centered", result.Centered, "duration", result.Duration())
	return result, nil
}

// writeResults overwrites the scan results file with the scan_results
// array of the payload.
func (e *Engine) writeResults(logger *slog.Logger, result *EpisodeResult) {
	if e.config.ResultsFile == "" {
		return
	}
	path := e.config.path(e.config.ResultsFile)

	data, err := json.MarshalIndent(result.Scan.ScanPayload(), "", "    ")
	if err != nil {
		logger.Warn("encoding results failed", "error", err)
		return
	}

	if err := writeFileAtomic(path, data); err != nil {
		logger.Warn("writing results failed", "path", path, "error", err)
	}
}

// writeFileAtomic replaces path through a temp file in the same directory,
// so readers see either the old or the new content.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
