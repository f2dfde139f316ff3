package response

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/emberguard/internal/vision"
)

// Camera is the frame source the engine needs.
type Camera interface {
	CaptureToFile(ctx context.Context, path string) error
	CaptureToBuffer(ctx context.Context) (vision.Frame, error)
}

// Detector finds hazards in a frame.
type Detector interface {
	Detect(frame vision.Frame) ([]vision.Detection, error)
}

// Actuator steers the head and switches the relay.
type Actuator interface {
	SetPosition(x, y float64) error
	SetRelay(on bool) error
}

// Alarm is started when a hazard is confirmed and never awaited.
type Alarm interface {
	Sound(ctx context.Context) <-chan struct{}
}

// Sink receives every finished episode.
type Sink interface {
	Report(ctx context.Context, result *EpisodeResult) error
}

// TrackingConfig tunes the centering controller.
type TrackingConfig struct {
	Tolerance    int // pixels, strict
	GainX        float64
	GainY        float64
	MaxStep      float64 // per-move clamp on each axis
	EntrySettle  time.Duration
	MoveSettle   time.Duration
	Suppression  time.Duration
	ArtifactName string
}

// Config tunes the scan and the centering loop.
type Config struct {
	Hazard        vision.HazardClass
	ConfThreshold float64
	Settle        time.Duration
	FramePattern  string // takes the position label
	ResultsFile   string // empty skips the results file
	WorkDir       string
	FrameWidth    int // size of the stills the camera writes
	FrameHeight   int
	Tracking      TrackingConfig
}

// DefaultConfig returns the reference tuning.
func DefaultConfig() Config {
	return Config{
		Hazard:        vision.ClassFire,
		ConfThreshold: 0.5,
		Settle:        100 * time.Millisecond,
		FramePattern:  "scan_%s.jpg",
		ResultsFile:   "fire_servo_results.json",
		WorkDir:       ".",
		FrameWidth:    vision.DefaultWidth,
		FrameHeight:   vision.DefaultHeight,
		Tracking: TrackingConfig{
			Tolerance:    20,
			GainX:        0.8,
			GainY:        0.8,
			MaxStep:      0.2,
			EntrySettle:  300 * time.Millisecond,
			MoveSettle:   500 * time.Millisecond,
			Suppression:  5 * time.Second,
			ArtifactName: "fire_centered.jpg",
		},
	}
}

// path resolves a file name against the work directory.
func (c Config) path(name string) string {
	if filepath.IsAbs(name) || c.WorkDir == "" {
		return name
	}
	return filepath.Join(c.WorkDir, name)
}

// Deps are the collaborators of an Engine. Alarm and Sink may be nil.
type Deps struct {
	Camera   Camera
	Detector Detector
	Actuator Actuator
	Alarm    Alarm
	Sink     Sink
}

// Engine runs response episodes. It is not safe for concurrent episodes;
// the scheduler runs at most one at a time.
type Engine struct {
	deps   Deps
	config Config
	logger *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
	newID func() string
}

// New creates an Engine.
func New(deps Deps, config Config, logger *slog.Logger) (*Engine, error) {
	if deps.Camera == nil || deps.Detector == nil || deps.Actuator == nil {
		return nil, fmt.Errorf("camera, detector and actuator are required")
	}
	if !strings.Contains(config.FramePattern, "%s") {
		return nil, fmt.Errorf("frame pattern %q has no %%s", config.FramePattern)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		deps:   deps,
		config: config,
		logger: logger,
		sleep:  sleepCtx,
		now:    time.Now,
		newID:  uuid.NewString,
	}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.config
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func clonePoint(p *vision.Point) *vision.Point {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
