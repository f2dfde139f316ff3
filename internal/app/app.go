// Package app wires the emberguard components together: peripherals, the
// response engine, the trigger scheduler, every reporting sink and the
// status server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ayusman/emberguard/internal/actuator"
	"github.com/ayusman/emberguard/internal/capture"
	"github.com/ayusman/emberguard/internal/config"
	"github.com/ayusman/emberguard/internal/detector"
	"github.com/ayusman/emberguard/internal/hook"
	"github.com/ayusman/emberguard/internal/metrics"
	"github.com/ayusman/emberguard/internal/report"
	"github.com/ayusman/emberguard/internal/response"
	"github.com/ayusman/emberguard/internal/sensor"
	"github.com/ayusman/emberguard/internal/server"
	"github.com/ayusman/emberguard/internal/sim"
	"github.com/ayusman/emberguard/internal/status"
	"github.com/ayusman/emberguard/internal/store"
	"github.com/ayusman/emberguard/internal/telemetry"
	"github.com/ayusman/emberguard/internal/trigger"
)

// App is a fully wired responder.
type App struct {
	config *config.Config
	logger *slog.Logger

	// peripherals
	source   sensor.Source
	camera   capture.Camera
	detector detector.Detector
	actuator actuator.Actuator
	alarm    *actuator.Alarm
	scene    *sim.Scene // simulate mode only

	// sinks
	store     *store.Store
	status    *status.Writer
	telemetry telemetry.Publisher
	hooks     *hook.Manager
	httpSink  *report.HTTPSink
	hub       *server.Hub
	metrics   *metrics.Metrics
	reports   *report.Multi

	engine    *response.Engine
	scheduler *trigger.Scheduler
	server    *server.Server

	// episodes run one at a time whoever starts them
	episodeMu sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// New builds every component described by cfg. Peripherals are opened
// immediately; in simulate mode they are replaced by a simulated room.
// On error everything opened so far is closed again.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{config: cfg, logger: logger}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.logger.Info("emberguard ready",
		"device", cfg.Device.ID,
		"simulate", cfg.Device.Simulate,
		"report_sinks", a.reports.Len(),
		"hooks", len(a.hooks.List()))
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.config
	var err error

	if err := os.MkdirAll(cfg.Device.WorkDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}

	if cfg.Device.Simulate {
		a.openSimulation()
	} else if err := a.openHardware(); err != nil {
		return err
	}

	a.store, err = store.New(cfg.ArtifactPath(cfg.Store.Path))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	a.status = status.NewWriter(cfg.ArtifactPath(cfg.Status.Path))
	a.metrics = metrics.New()
	a.hub = server.NewHub(a.component("events"))

	if err := a.openTelemetry(ctx); err != nil {
		return err
	}
	if err := a.openReports(); err != nil {
		return err
	}

	a.engine, err = response.New(response.Deps{
		Camera:   a.camera,
		Detector: a.detector,
		Actuator: a.actuator,
		Alarm:    a.alarm,
		Sink:     a.reports,
	}, responseConfig(cfg), a.component("response"))
	if err != nil {
		return fmt.Errorf("create response engine: %w", err)
	}

	a.scheduler = trigger.New(a.source, a, triggerConfig(cfg),
		trigger.WithLogger(a.component("trigger")),
		trigger.WithMetrics(a.metrics),
		trigger.WithSampleSink("store", a.store),
		trigger.WithSampleSink("status", a.status),
		trigger.WithSampleSink("telemetry", a.telemetry),
		trigger.WithSampleSink("events", a.hub),
	)

	a.server = server.New(server.Config{
		StaticDir:    findWebDir(cfg),
		Store:        a.store,
		Hub:          a.hub,
		Metrics:      a.metrics.Handler(),
		ArtifactPath: cfg.ArtifactPath(cfg.Tracking.ArtifactName),
		Monitor:      a.Monitor,
		AccessLog:    accessLog(cfg),
		Logger:       a.component("server"),
	})
	return nil
}

func (a *App) component(name string) *slog.Logger {
	return a.logger.With("component", name)
}

// openTelemetry connects the configured publishers. A broker that cannot
// be reached is logged and skipped so monitoring still starts.
func (a *App) openTelemetry(ctx context.Context) error {
	cfg := a.config
	var pubs []telemetry.Publisher

	if cfg.MQTT.Broker != "" {
		p, err := telemetry.DialMQTT(ctx, telemetry.MQTTConfig{
			Broker:        cfg.MQTT.Broker,
			DeviceID:      cfg.Device.ID,
			ReadingsTopic: cfg.MQTT.Topics.Readings,
			EpisodesTopic: cfg.MQTT.Topics.Episodes,
			QoS:           cfg.MQTT.QoS,
		}, a.component("mqtt"))
		if err != nil {
			a.logger.Warn("mqtt unavailable, continuing without it", "broker", cfg.MQTT.Broker, "error", err)
		} else {
			pubs = append(pubs, p)
		}
	}

	if len(cfg.Kafka.Brokers) > 0 {
		p, err := telemetry.NewKafkaPublisher(telemetry.KafkaConfig{
			Brokers:       cfg.Kafka.Brokers,
			DeviceID:      cfg.Device.ID,
			ReadingsTopic: cfg.Kafka.ReadingsTopic,
			EpisodesTopic: cfg.Kafka.EpisodesTopic,
		}, a.component("kafka"))
		if err != nil {
			return fmt.Errorf("create kafka publisher: %w", err)
		}
		pubs = append(pubs, p)
	}

	switch len(pubs) {
	case 0:
		a.telemetry = telemetry.Nop{}
	case 1:
		a.telemetry = pubs[0]
	default:
		a.telemetry = telemetry.NewMulti(a.component("telemetry"), pubs...)
	}
	return nil
}

// openReports builds the episode sink chain. The local database comes
// first so a result is kept even when every remote sink fails.
func (a *App) openReports() error {
	cfg := a.config

	a.hooks = hook.NewManager(cfg.Hooks.Dir, a.component("hooks"))
	if err := a.hooks.Discover(); err != nil {
		return fmt.Errorf("discover hooks: %w", err)
	}

	a.reports = report.NewMulti(a.component("report"),
		a.counted("store", a.store),
		a.counted("events", a.hub),
		a.counted("telemetry", a.telemetry),
	)

	if len(a.hooks.List()) > 0 {
		sink := hook.NewSink(a.hooks, hook.NewExecutor(cfg.Hooks.Timeout), cfg.Device.ID, a.component("hooks"))
		a.reports.Add("hooks", a.countedSink("hooks", sink))
	}

	if cfg.Report.Endpoint != "" {
		sink, err := report.NewHTTPSink(report.HTTPConfig{
			Endpoint:        cfg.Report.Endpoint,
			Timeout:         cfg.Report.Timeout,
			BreakerFailures: cfg.Report.BreakerFailures,
			BreakerTimeout:  cfg.Report.BreakerTimeout,
		}, nil, a.component("report"))
		if err != nil {
			return fmt.Errorf("create report sink: %w", err)
		}
		a.httpSink = sink
		a.reports.Add("http", a.countedSink("http", sink))
	}
	return nil
}

// counted wraps a sink so its failures show up in the metrics.
func (a *App) counted(name string, sink report.Sink) report.Named {
	return report.Named{Name: name, Sink: a.countedSink(name, sink)}
}

func (a *App) countedSink(name string, sink report.Sink) report.Sink {
	return report.SinkFunc(func(ctx context.Context, r *response.EpisodeResult) error {
		err := sink.Report(ctx, r)
		if err != nil {
			a.metrics.SinkError(name)
		}
		return err
	})
}

// Respond runs one episode. Concurrent callers wait their turn.
func (a *App) Respond(ctx context.Context, t response.Trigger) (*response.EpisodeResult, error) {
	a.episodeMu.Lock()
	defer a.episodeMu.Unlock()
	return a.engine.Respond(ctx, t)
}

// Scan runs a manual episode outside the trigger policy.
func (a *App) Scan(ctx context.Context) (*response.EpisodeResult, error) {
	result, err := a.Respond(ctx, response.TriggerManual)
	a.metrics.ObserveEpisode(result, err)
	return result, err
}

// Snapshot saves one frame from the current head position. An empty path
// writes snapshot.jpg in the work directory. The path written is returned.
func (a *App) Snapshot(ctx context.Context, path string) (string, error) {
	if path == "" {
		path = a.config.ArtifactPath("snapshot.jpg")
	}
	if err := a.camera.CaptureToFile(ctx, path); err != nil {
		return "", err
	}
	return path, nil
}

// Run monitors until ctx is cancelled, serving the status API alongside
// when server.addr is set. A failing server stops monitoring too.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.scheduler.Run(gctx)
	})
	if addr := a.config.Server.Addr; addr != "" {
		g.Go(func() error {
			if err := a.server.Run(gctx, addr); err != nil {
				return fmt.Errorf("status server: %w", err)
			}
			return nil
		})
	}

	err := g.Wait()
	if ctx.Err() != nil {
		// Shutdown was requested
		return nil
	}
	return err
}

// Monitor is the scheduler view served on /api/status.
func (a *App) Monitor() any {
	st := a.scheduler.State()
	view := monitorView{
		DeviceID:     a.config.Device.ID,
		Simulated:    a.config.Device.Simulate,
		LastPeriodic: st.LastPeriodic,
		Hooks:        len(a.hooks.List()),
	}
	if st.HasEpisode {
		last := st.LastEpisode
		view.LastEpisode = &last
	}
	if a.alarm != nil {
		view.AlarmActive = a.alarm.Active()
	}
	if a.httpSink != nil {
		view.ReportBreaker = a.httpSink.State()
	}
	if a.scene != nil {
		burning := a.scene.Burning()
		view.SimulatedFire = &burning
	}
	return view
}

type monitorView struct {
	DeviceID      string     `json:"device_id"`
	Simulated     bool       `json:"simulated"`
	LastEpisode   *time.Time `json:"last_episode"`
	LastPeriodic  time.Time  `json:"last_periodic"`
	AlarmActive   bool       `json:"alarm_active"`
	ReportBreaker string     `json:"report_breaker,omitempty"`
	Hooks         int        `json:"hooks"`
	SimulatedFire *bool      `json:"simulated_fire,omitempty"`
}

// Handler returns the status API.
func (a *App) Handler() http.Handler {
	return a.server
}

// Store returns the episode and reading database.
func (a *App) Store() *store.Store {
	return a.store
}

// Scene returns the simulated room, or nil on real hardware.
func (a *App) Scene() *sim.Scene {
	return a.scene
}

// Close leaves the hardware safe and releases everything: relay off, alarm
// off, servos parked, then the devices and sinks. It is idempotent.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		var errs []error
		add := func(what string, err error) {
			if err != nil {
				a.logger.Warn("shutdown step failed", "step", what, "error", err)
				errs = append(errs, fmt.Errorf("%s: %w", what, err))
			}
		}

		if a.actuator != nil {
			add("relay off", a.actuator.SetRelay(false))
			add("alarm off", a.actuator.SetAlarm(false))
			add("park", a.actuator.Park())
			add("close actuator", a.actuator.Close())
		}
		if a.source != nil {
			add("close sensors", a.source.Close())
		}
		if a.detector != nil {
			add("close detector", a.detector.Close())
		}
		if a.camera != nil {
			add("close camera", a.camera.Close())
		}
		if a.store != nil {
			add("close store", a.store.Close())
		}
		if a.telemetry != nil {
			add("close telemetry", a.telemetry.Close())
		}

		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}
