package capture

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/ayusman/emberguard/internal/vision"
)

// Runner executes a capture command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// execRunner runs the command with stderr discarded.
func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, err
	}
	return stdout.Bytes(), nil
}

// StillConfig configures a StillCamera.
type StillConfig struct {
	Command string        // rpicam-still or a compatible tool
	Width   int
	Height  int
	Warmup  time.Duration // exposure/AWB settle passed as -t
	Flip    bool          // rotate buffer captures by 180 degrees
}

// StillCamera shells out to rpicam-still for every capture.
type StillCamera struct {
	config StillConfig
	run    Runner
	flip   func([]byte) ([]byte, error)
}

// NewStillCamera creates a StillCamera.
func NewStillCamera(config StillConfig) *StillCamera {
	if config.Width <= 0 {
		config.Width = DefaultWidth
	}
	if config.Height <= 0 {
		config.Height = DefaultHeight
	}
	if config.Command == "" {
		config.Command = "rpicam-still"
	}
	return &StillCamera{
		config: config,
		run:    execRunner,
		flip:   Flip180,
	}
}

// SetRunner replaces the command runner. Used by tests.
func (c *StillCamera) SetRunner(r Runner) {
	c.run = r
}

// args builds the rpicam-still argument list for the given output ("-" for stdout).
func (c *StillCamera) args(output string) []string {
	return []string{
		"-t", strconv.FormatInt(c.config.Warmup.Milliseconds(), 10),
		"-o", output,
		"--width", strconv.Itoa(c.config.Width),
		"--height", strconv.Itoa(c.config.Height),
		"-n",
	}
}

// CaptureToFile writes one JPEG to path.
func (c *StillCamera) CaptureToFile(ctx context.Context, path string) error {
	if _, err := c.run(ctx, c.config.Command, c.args(path)...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s -o %s: %v", ErrCapture, c.config.Command, path, err)
	}
	return nil
}

// CaptureToBuffer captures to stdout and applies the flip correction if configured.
func (c *StillCamera) CaptureToBuffer(ctx context.Context) (vision.Frame, error) {
	data, err := c.run(ctx, c.config.Command, c.args("-")...)
	if err != nil {
		if ctx.Err() != nil {
			return vision.Frame{}, ctx.Err()
		}
		return vision.Frame{}, fmt.Errorf("%w: %s: %v", ErrCapture, c.config.Command, err)
	}
	if len(data) == 0 {
		return vision.Frame{}, fmt.Errorf("%w: empty image on stdout", ErrCapture)
	}

	if c.config.Flip {
		if data, err = c.flip(data); err != nil {
			return vision.Frame{}, err
		}
	}

	return vision.Frame{
		Data:     data,
		Width:    c.config.Width,
		Height:   c.config.Height,
		Captured: time.Now(),
	}, nil
}

// Close is a no-op; every capture is a separate process.
func (c *StillCamera) Close() error {
	return nil
}
