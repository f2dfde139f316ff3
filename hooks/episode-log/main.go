// Package main is an emberguard hook that appends a one-line summary of
// every episode it receives to a log file.
//
// Build it next to its manifest:
//
//	go build -o hooks/episode-log/episode-log ./hooks/episode-log
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Request represents the input from the hook executor.
type Request struct {
	Event    string          `json:"event"`
	DeviceID string          `json:"device_id"`
	Episode  Episode         `json:"episode"`
	Config   json.RawMessage `json:"config"`
}

// Episode carries the fields of the episode summary this hook logs.
type Episode struct {
	ID         string    `json:"id"`
	Trigger    string    `json:"trigger"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Centered   int       `json:"centered"`
	Result     struct {
		FireDetected  bool `json:"fire_detected"`
		BestDetection *struct {
			Label      string  `json:"label"`
			Confidence float64 `json:"confidence"`
		} `json:"best_detection"`
	} `json:"result"`
}

// Response represents the output to the hook executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Config is the hook's manifest configuration.
type Config struct {
	// Path is the log file. Relative paths resolve against the hook directory.
	Path string `json:"path"`
}

func main() {
	resp := run(os.Stdin, hookDir())
	json.NewEncoder(os.Stdout).Encode(resp)
}

// hookDir is the directory holding the executable.
func hookDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// run handles one request and never fails without a response.
func run(in io.Reader, dir string) Response {
	var req Request
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		return Response{Error: fmt.Sprintf("failed to decode request: %v", err)}
	}

	cfg := Config{Path: "episodes.log"}
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			return Response{Error: fmt.Sprintf("failed to parse config: %v", err)}
		}
	}
	path := cfg.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}

	line := formatLine(req)
	if err := appendLine(path, line); err != nil {
		return Response{Error: err.Error()}
	}

	data, _ := json.Marshal(map[string]string{"path": path, "line": line})
	return Response{Success: true, Data: data}
}

// formatLine renders one log line, for example:
//
//	2026-05-04T08:00:00Z kitchen-1 fire_detected episode=ep-1 trigger=critical fire=true best=MM(0.84) centered=1 duration=31.2s
func formatLine(req Request) string {
	e := req.Episode
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s %s episode=%s trigger=%s fire=%t",
		e.StartedAt.UTC().Format(time.RFC3339), req.DeviceID, req.Event,
		e.ID, e.Trigger, e.Result.FireDetected)
	if best := e.Result.BestDetection; best != nil {
		fmt.Fprintf(&b, " best=%s(%.2f)", best.Label, best.Confidence)
	}
	fmt.Fprintf(&b, " centered=%d", e.Centered)
	if !e.FinishedAt.IsZero() {
		fmt.Fprintf(&b, " duration=%.1fs", e.FinishedAt.Sub(e.StartedAt).Seconds())
	}
	return b.String()
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	if _, err := fmt.Fprintln(f, line); err != nil {
		f.Close()
		return fmt.Errorf("write log: %w", err)
	}
	return f.Close()
}
