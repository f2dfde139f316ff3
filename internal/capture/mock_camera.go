package capture

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ayusman/emberguard/internal/vision"
)

// Shot is one scripted capture result for MockCamera.
type Shot struct {
	Frame vision.Frame
	Err   error
}

// MockCamera plays back scripted shots for testing and simulation.
type MockCamera struct {
	shots []Shot
	index int
	loop  bool
	mu    sync.Mutex

	files []string
}

// NewMockCamera creates a MockCamera. With loop set, playback restarts after the last shot.
func NewMockCamera(shots []Shot, loop bool) *MockCamera {
	return &MockCamera{
		shots: shots,
		loop:  loop,
	}
}

// next returns the next scripted shot.
func (c *MockCamera) next() (Shot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.shots) == 0 {
		return Shot{}, fmt.Errorf("%w: no frames available", ErrCapture)
	}

	if c.index >= len(c.shots) {
		if !c.loop {
			return Shot{}, fmt.Errorf("%w: no more frames", ErrCapture)
		}
		c.index = 0
	}

	shot := c.shots[c.index]
	c.index++
	return shot, nil
}

// CaptureToFile writes the next scripted frame to path.
func (c *MockCamera) CaptureToFile(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	shot, err := c.next()
	if err != nil {
		return err
	}
	if shot.Err != nil {
		return shot.Err
	}

	if err := os.WriteFile(path, shot.Frame.Data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrCapture, err)
	}

	c.mu.Lock()
	c.files = append(c.files, path)
	c.mu.Unlock()
	return nil
}

// CaptureToBuffer returns the next scripted frame.
func (c *MockCamera) CaptureToBuffer(ctx context.Context) (vision.Frame, error) {
	if err := ctx.Err(); err != nil {
		return vision.Frame{}, err
	}

	shot, err := c.next()
	if err != nil {
		return vision.Frame{}, err
	}
	if shot.Err != nil {
		return vision.Frame{}, shot.Err
	}

	frame := shot.Frame
	if frame.Captured.IsZero() {
		frame.Captured = time.Now()
	}
	return frame, nil
}

// Close is a no-op.
func (c *MockCamera) Close() error {
	return nil
}

// SetShots replaces the shot sequence and restarts playback.
func (c *MockCamera) SetShots(shots []Shot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shots = shots
	c.index = 0
}

// Reset restarts playback from the beginning.
func (c *MockCamera) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = 0
}

// Files returns the paths written by CaptureToFile, in order.
func (c *MockCamera) Files() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.files...)
}

// BlankFrame returns a placeholder frame of the default size whose payload
// is tag. Detectors in tests key their scripted output off the payload.
func BlankFrame(tag string) vision.Frame {
	return vision.Frame{
		Data:   []byte(tag),
		Width:  DefaultWidth,
		Height: DefaultHeight,
	}
}
