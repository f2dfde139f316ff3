// Package sim is a simulated room for running emberguard without hardware.
//
// A fire ignites after a delay, pushes the gas and temperature readings past
// the critical thresholds while it burns and goes out as soon as the relay
// is switched on with the head pointed at it. The room then stays calm for
// the same delay before the fire reignites.
//
// The Scene serves as the sensor source, camera and detector at once, and
// its Actuator is the pan/tilt head the camera looks through. Frames are
// real JPEGs, so scan images and centered artifacts can be inspected.
package sim

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/emberguard/internal/actuator"
	"github.com/ayusman/emberguard/internal/capture"
	"github.com/ayusman/emberguard/internal/detector"
	"github.com/ayusman/emberguard/internal/sensor"
	"github.com/ayusman/emberguard/internal/vision"
)

// Config shapes the simulated room.
type Config struct {
	// IgniteAfter delays the first fire and every fire after a suppression.
	// Zero lights a single fire at once that never comes back.
	IgniteAfter time.Duration
	// FireX and FireY are the head position that centers the fire.
	FireX, FireY float64
	Calm         sensor.Reading
	Burning      sensor.Reading
	Width        int
	Height       int
}

// DefaultConfig returns a room that catches fire after thirty seconds.
func DefaultConfig() Config {
	return Config{
		IgniteAfter: 30 * time.Second,
		FireX:       0.62,
		FireY:       0.41,
		Calm:        sensor.Reading{GasLevel: 12, Temperature: 24},
		Burning:     sensor.Reading{GasLevel: 180, Temperature: 42},
		Width:       vision.DefaultWidth,
		Height:      vision.DefaultHeight,
	}
}

// fireRadius is the drawn flame radius in pixels.
const fireRadius = 20

// Scene is the simulated room. It is safe for concurrent use.
type Scene struct {
	config   Config
	actuator *Actuator
	now      func() time.Time

	mu         sync.Mutex
	igniteAt   time.Time
	burning    bool
	view       [2]float64 // head position at the last capture
	suppressed int
}

// NewScene creates a calm room that ignites IgniteAfter from now.
func NewScene(config Config) *Scene {
	if config.Width <= 0 || config.Height <= 0 {
		config.Width, config.Height = vision.DefaultWidth, vision.DefaultHeight
	}
	s := &Scene{config: config, now: time.Now}
	s.igniteAt = s.now().Add(config.IgniteAfter)
	s.actuator = &Actuator{MockActuator: actuator.NewMockActuator(), scene: s}
	s.view = [2]float64{0.5, 0.5}
	return s
}

// Actuator returns the head the camera is mounted on.
func (s *Scene) Actuator() *Actuator {
	return s.actuator
}

// Burning reports whether the fire is currently lit.
func (s *Scene) Burning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance(s.now())
	return s.burning
}

// Suppressed returns how many times the fire has been put out.
func (s *Scene) Suppressed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suppressed
}

// advance lights the fire once its time has come. Callers hold mu.
func (s *Scene) advance(now time.Time) {
	if !s.burning && !s.igniteAt.IsZero() && !now.Before(s.igniteAt) {
		s.burning = true
	}
}

// Sample reads the room.
func (s *Scene) Sample(now time.Time) (sensor.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance(now)

	r := s.config.Calm
	if s.burning {
		r = s.config.Burning
	}
	if r.Err != nil {
		return sensor.Sample{}, r.Err
	}
	return sensor.Sample{GasLevel: r.GasLevel, Temperature: r.Temperature, Timestamp: now}, nil
}

// fireInView returns the flame's pixel position as seen from the head
// position (x, y). One unit of head travel spans one frame. Callers hold mu.
func (s *Scene) fireInView(x, y float64) (image.Point, float64, bool) {
	if !s.burning {
		return image.Point{}, 0, false
	}
	dx, dy := s.config.FireX-x, s.config.FireY-y
	if math.Abs(dx) >= 0.5 || math.Abs(dy) >= 0.5 {
		return image.Point{}, 0, false
	}
	w, h := s.config.Width, s.config.Height
	p := image.Pt(w/2+int(math.Round(dx*float64(w))), h/2+int(math.Round(dy*float64(h))))
	confidence := 0.92 - 0.5*math.Hypot(dx, dy)
	return p, confidence, true
}

// render draws the view from the current head position.
func (s *Scene) render() ([]byte, error) {
	x, y := s.actuator.Position()

	s.mu.Lock()
	s.advance(s.now())
	s.view = [2]float64{x, y}
	p, _, visible := s.fireInView(x, y)
	s.mu.Unlock()

	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 36, 32, 0), s.config.Height, s.config.Width, gocv.MatTypeCV8UC3)
	defer mat.Close()
	if visible {
		gocv.Circle(&mat, p, fireRadius, color.RGBA{R: 255, G: 110, B: 20}, -1)
		gocv.Circle(&mat, p, fireRadius/2, color.RGBA{R: 255, G: 230, B: 120}, -1)
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("%w: encode frame: %v", capture.ErrCapture, err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// CaptureToFile writes the current view to path.
func (s *Scene) CaptureToFile(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := s.render()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", capture.ErrCapture, err)
	}
	return nil
}

// CaptureToBuffer returns the current view.
func (s *Scene) CaptureToBuffer(ctx context.Context) (vision.Frame, error) {
	if err := ctx.Err(); err != nil {
		return vision.Frame{}, err
	}
	data, err := s.render()
	if err != nil {
		return vision.Frame{}, err
	}
	return vision.Frame{
		Data:     data,
		Width:    s.config.Width,
		Height:   s.config.Height,
		Captured: s.now(),
	}, nil
}

// Detect reports the fire as seen from the head position of the most
// recent capture. Captures and detections alternate in the response loop,
// so that is the frame being examined.
func (s *Scene) Detect(vision.Frame) ([]vision.Detection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, confidence, ok := s.fireInView(s.view[0], s.view[1])
	if !ok {
		return nil, nil
	}
	return []vision.Detection{detector.FireAt(p.X, p.Y, confidence)}, nil
}

// Close is a no-op; the scene holds no resources.
func (s *Scene) Close() error {
	return nil
}

// suppress puts the fire out if the head is on it.
func (s *Scene) suppress() {
	x, y := s.actuator.Position()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, _, ok := s.fireInView(x, y); !ok {
		return
	}
	s.burning = false
	s.suppressed++
	if s.config.IgniteAfter > 0 {
		s.igniteAt = s.now().Add(s.config.IgniteAfter)
	} else {
		s.igniteAt = time.Time{}
	}
}

// Actuator is a recording head whose relay reaches the scene.
type Actuator struct {
	*actuator.MockActuator
	scene *Scene
}

// SetRelay switches the relay. Switching it on aims the water at the
// current view.
func (a *Actuator) SetRelay(on bool) error {
	if err := a.MockActuator.SetRelay(on); err != nil {
		return err
	}
	if on {
		a.scene.suppress()
	}
	return nil
}

var (
	_ sensor.Source     = (*Scene)(nil)
	_ capture.Camera    = (*Scene)(nil)
	_ detector.Detector = (*Scene)(nil)
)
