// Package status keeps the latest sensor sample in a small JSON file that
// local dashboards poll.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ayusman/emberguard/internal/sensor"
)

// TimestampLayout is the timestamp format of the snapshot file.
const TimestampLayout = "2006-01-02 15:04:05"

// Snapshot is the on-disk form of the latest sample.
type Snapshot struct {
	Temperature float64 `json:"temperature"`
	GasLevel    float64 `json:"gas_level"`
	Timestamp   string  `json:"timestamp"`
}

// Writer overwrites the snapshot file on every sample.
type Writer struct {
	path string

	mu   sync.Mutex
	last Snapshot
}

// NewWriter creates a Writer for path. Nothing is written until the first
// sample arrives.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Path returns the snapshot file path.
func (w *Writer) Path() string {
	return w.path
}

// Write replaces the snapshot file. Readers never see a partial file.
func (w *Writer) Write(s sensor.Sample) error {
	snap := Snapshot{
		Temperature: s.Temperature,
		GasLevel:    s.GasLevel,
		Timestamp:   s.Timestamp.Format(TimestampLayout),
	}

	data, err := json.MarshalIndent(snap, "", "    ")
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := writeAtomic(w.path, data); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	w.last = snap
	return nil
}

// RecordSample lets the Writer act as a scheduler sample sink.
func (w *Writer) RecordSample(_ context.Context, s sensor.Sample) error {
	return w.Write(s)
}

// Last returns the most recently written snapshot.
func (w *Writer) Last() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// Read loads a snapshot file.
func Read(path string) (Snapshot, error) {
	var snap Snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("parse %s: %w", path, err)
	}
	return snap, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
