package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/ayusman/emberguard/internal/vision"
)

const sidecarScriptName = "fire_detect_service.py"

// SidecarOptions locate the Python detection service.
type SidecarOptions struct {
	// Script is the service script; empty searches the usual locations.
	Script string
	// Python is the interpreter; empty prefers a venv, then python3.
	Python string
	// IdleTimeout stops the subprocess after this much inactivity.
	IdleTimeout time.Duration
}

// SidecarDetector implements Detector using a Python ultralytics subprocess.
//
// Each request is a 4-byte big-endian length followed by the JPEG bytes.
// Each response is one JSON line:
//
//	{"detections":[{"label":"fire","confidence":0.82,"box":[x1,y1,x2,y2]}]}
type SidecarDetector struct {
	config    Config
	opts      SidecarOptions
	command   func() *exec.Cmd
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	mu        sync.Mutex
	started   bool
	lastUsed  time.Time
	idleTimer *time.Timer
}

// NewSidecar creates a sidecar detector.
// The Python process is started lazily on first detection.
func NewSidecar(config Config, opts SidecarOptions) (*SidecarDetector, error) {
	script := opts.Script
	if script == "" {
		script = findScript(sidecarScriptName)
	}
	if script == "" {
		return nil, fmt.Errorf("%s not found", sidecarScriptName)
	}
	opts.Script = script

	python := opts.Python
	if python == "" {
		python = findVenvPython()
	}
	if python == "" {
		python = "python3"
	}
	opts.Python = python

	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 30 * time.Second
	}

	d := &SidecarDetector{config: config, opts: opts}
	d.command = func() *exec.Cmd {
		return exec.Command(d.opts.Python, d.opts.Script,
			"--model", d.config.ModelPath,
			"--conf", fmt.Sprintf("%.2f", d.config.MinConfidence))
	}
	return d, nil
}

// Detect sends the frame to the subprocess and waits for its answer.
func (d *SidecarDetector) Detect(frame vision.Frame) ([]vision.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if frame.Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	if err := d.ensureStarted(); err != nil {
		return nil, err
	}

	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(frame.Data)))

	if _, err := d.stdin.Write(length); err != nil {
		d.shutdown()
		return nil, fmt.Errorf("write length: %w", err)
	}
	if _, err := d.stdin.Write(frame.Data); err != nil {
		d.shutdown()
		return nil, fmt.Errorf("write data: %w", err)
	}

	line, err := d.stdout.ReadString('\n')
	if err != nil {
		d.shutdown()
		return nil, fmt.Errorf("read response: %w", err)
	}

	dets, err := parseSidecarLine([]byte(line))
	if err != nil {
		return nil, err
	}

	d.lastUsed = time.Now()
	d.resetIdleTimer()

	return dets, nil
}

// Close shuts down the Python process.
func (d *SidecarDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

func (d *SidecarDetector) ensureStarted() error {
	if d.started {
		return nil
	}

	d.cmd = d.command()

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	// Model load warnings go straight to our stderr
	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("start detection service: %w", err)
	}

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true
	d.lastUsed = time.Now()

	return nil
}

func (d *SidecarDetector) shutdown() error {
	if !d.started {
		return nil
	}

	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	if d.stdin != nil {
		d.stdin.Close()
	}

	err := d.cmd.Wait()
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil

	return err
}

func (d *SidecarDetector) resetIdleTimer() {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(d.opts.IdleTimeout, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.shutdown()
	})
}

type sidecarResponse struct {
	Detections []sidecarDetection `json:"detections"`
	Error      string             `json:"error,omitempty"`
}

type sidecarDetection struct {
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Box        []float64 `json:"box"`
}

func parseSidecarLine(line []byte) ([]vision.Detection, error) {
	var resp sidecarResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("detection service: %s", resp.Error)
	}

	dets := make([]vision.Detection, 0, len(resp.Detections))
	for _, sd := range resp.Detections {
		if len(sd.Box) != 4 {
			return nil, fmt.Errorf("detection %q has %d box values, want 4", sd.Label, len(sd.Box))
		}
		dets = append(dets, newDetection(sd.Label, sd.Confidence, vision.Box{
			X1: int(sd.Box[0]),
			Y1: int(sd.Box[1]),
			X2: int(sd.Box[2]),
			Y2: int(sd.Box[3]),
		}))
	}
	return dets, nil
}

func findScript(name string) string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		filepath.Join("scripts", name),
		filepath.Join("..", "scripts", name),
		filepath.Join(execDir, "scripts", name),
		filepath.Join(os.Getenv("HOME"), ".emberguard", "scripts", name),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".emberguard/venv/bin/python"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}
