package response

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ayusman/emberguard/internal/actuator"
	"github.com/ayusman/emberguard/internal/log"
	"github.com/ayusman/emberguard/internal/vision"
)

var errNoFrame = errors.New("camera timeout")

// scene is a fake camera plus detector. Scan stills are written with their
// file name as payload so detections can be scripted per position. Live
// frames show a fire at (fireX, fireY) in actuator space, rendered relative
// to where the head points.
type scene struct {
	mu  sync.Mutex
	act *actuator.MockActuator

	stills     map[string][]vision.Detection // by base file name
	failStills map[string]bool

	fire         bool
	fireX, fireY float64
	confidence   float64
	liveFrames   int // live frames served so far
	visibleFor   int // 0 means until the relay fires
	failLive     bool
	detectErr    error
	stillFrames  []vision.Frame // scan frames handed to Detect
}

func newScene(act *actuator.MockActuator) *scene {
	return &scene{
		act:        act,
		stills:     make(map[string][]vision.Detection),
		failStills: make(map[string]bool),
		confidence: 0.85,
	}
}

func (s *scene) CaptureToFile(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	name := filepath.Base(path)
	if s.failStills[name] {
		return errNoFrame
	}
	return os.WriteFile(path, []byte(name), 0o644)
}

func (s *scene) CaptureToBuffer(ctx context.Context) (vision.Frame, error) {
	if err := ctx.Err(); err != nil {
		return vision.Frame{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLive {
		return vision.Frame{}, errNoFrame
	}
	s.liveFrames++
	return vision.Frame{Data: []byte("live"), Width: 640, Height: 480}, nil
}

func (s *scene) Detect(frame vision.Frame) ([]vision.Detection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.detectErr != nil {
		return nil, s.detectErr
	}
	if string(frame.Data) != "live" {
		s.stillFrames = append(s.stillFrames, frame)
		return s.stills[string(frame.Data)], nil
	}

	if !s.fire {
		return nil, nil
	}
	if s.visibleFor > 0 && s.liveFrames > s.visibleFor {
		return nil, nil
	}
	if s.visibleFor == 0 && len(relayOns(s.act)) > 0 {
		return nil, nil // extinguished
	}

	x, y := s.act.Position()
	cx := 320 + int(math.Round((s.fireX-x)*640))
	cy := 240 + int(math.Round((s.fireY-y)*480))
	return []vision.Detection{fireBox(cx, cy, s.confidence)}, nil
}

func fireBox(cx, cy int, conf float64) vision.Detection {
	return vision.Detection{
		Class:      vision.ClassFire,
		Label:      "fire",
		Confidence: conf,
		Box:        vision.Box{X1: cx - 10, Y1: cy - 10, X2: cx + 10, Y2: cy + 10},
	}
}

func relayOns(act *actuator.MockActuator) []actuator.Call {
	var on []actuator.Call
	for _, c := range act.CallsOf("relay") {
		if c.On {
			on = append(on, c)
		}
	}
	return on
}

type countingAlarm struct {
	mu    sync.Mutex
	count int
}

func (a *countingAlarm) Sound(ctx context.Context) <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.count++
	done := make(chan struct{})
	close(done)
	return done
}

type recordingSink struct {
	mu      sync.Mutex
	results []*EpisodeResult
	err     error
}

func (s *recordingSink) Report(ctx context.Context, r *EpisodeResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
	return s.err
}

func fastConfig(dir string) Config {
	c := DefaultConfig()
	c.WorkDir = dir
	c.Settle = 0
	c.Tracking.EntrySettle = 0
	c.Tracking.MoveSettle = 0
	c.Tracking.Suppression = 0
	return c
}

func newTestEngine(t *testing.T, deps Deps) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	e, err := New(deps, fastConfig(dir), log.Discard())
	require.NoError(t, err)
	return e, dir
}
