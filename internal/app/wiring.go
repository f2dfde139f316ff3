package app

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ayusman/emberguard/internal/actuator"
	"github.com/ayusman/emberguard/internal/capture"
	"github.com/ayusman/emberguard/internal/config"
	"github.com/ayusman/emberguard/internal/detector"
	"github.com/ayusman/emberguard/internal/response"
	"github.com/ayusman/emberguard/internal/sensor"
	"github.com/ayusman/emberguard/internal/sim"
	"github.com/ayusman/emberguard/internal/trigger"
	"github.com/ayusman/emberguard/internal/vision"
)

// sidecarIdleTimeout stops an unused Python detector between episodes.
const sidecarIdleTimeout = 30 * time.Second

// openHardware opens the sensors, the head and the camera/detector pair.
func (a *App) openHardware() error {
	cfg := a.config

	adc, err := sensor.OpenMCP3008(cfg.Sensors.SPIPort, cfg.Sensors.SPISpeedHz)
	if err != nil {
		return fmt.Errorf("open gas sensor: %w", err)
	}
	a.source = sensor.NewBoard(
		sensor.GasChannel{ADC: adc, Channel: cfg.Sensors.GasChannel},
		sensor.IIOThermometer{Path: cfg.Sensors.TemperaturePath},
		adc.Close,
	)

	head, err := actuator.OpenGPIO(actuatorConfig(cfg), a.component("actuator"))
	if err != nil {
		return fmt.Errorf("open actuator: %w", err)
	}
	a.actuator = head
	a.alarm = actuator.NewAlarm(head, cfg.Actuator.AlarmBeeps, cfg.Actuator.AlarmInterval, a.component("alarm"))

	switch cfg.Camera.Driver {
	case "device":
		cam := capture.NewDeviceCamera(cfg.Camera.DeviceID, cfg.Camera.Width, cfg.Camera.Height, cfg.Camera.Flip)
		if err := cam.Open(); err != nil {
			return fmt.Errorf("open camera: %w", err)
		}
		a.camera = cam
	default:
		a.camera = capture.NewStillCamera(capture.StillConfig{
			Command: cfg.Camera.Command,
			Width:   cfg.Camera.Width,
			Height:  cfg.Camera.Height,
			Warmup:  cfg.Camera.Warmup,
			Flip:    cfg.Camera.Flip,
		})
	}

	dcfg := detector.Config{
		ModelPath:     cfg.Detector.ModelPath,
		Classes:       cfg.Detector.Classes,
		InputSize:     cfg.Detector.InputSize,
		MinConfidence: cfg.Detector.MinConfidence,
		NMSThreshold:  cfg.Detector.NMSThreshold,
	}
	switch cfg.Detector.Driver {
	case "sidecar":
		d, err := detector.NewSidecar(dcfg, detector.SidecarOptions{
			Script:      cfg.Detector.SidecarScript,
			Python:      cfg.Detector.Python,
			IdleTimeout: sidecarIdleTimeout,
		})
		if err != nil {
			return fmt.Errorf("start detector: %w", err)
		}
		a.detector = d
	default:
		d, err := detector.NewYOLO(dcfg)
		if err != nil {
			return fmt.Errorf("load detector: %w", err)
		}
		a.detector = d
	}

	a.logger.Info("hardware opened",
		"camera", cfg.Camera.Driver,
		"detector", cfg.Detector.Driver,
		"model", cfg.Detector.ModelPath)
	return nil
}

// openSimulation stands a simulated room in for every peripheral.
func (a *App) openSimulation() {
	cfg := a.config

	scfg := sim.DefaultConfig()
	scfg.IgniteAfter = cfg.Simulation.IgniteAfter
	scfg.FireX = cfg.Simulation.FireX
	scfg.FireY = cfg.Simulation.FireY
	scfg.Width = cfg.Camera.Width
	scfg.Height = cfg.Camera.Height

	a.scene = sim.NewScene(scfg)
	a.source = a.scene
	a.camera = a.scene
	a.detector = a.scene
	a.actuator = a.scene.Actuator()
	a.alarm = actuator.NewAlarm(a.actuator, cfg.Actuator.AlarmBeeps, cfg.Actuator.AlarmInterval, a.component("alarm"))

	a.logger.Warn("simulate mode: no hardware is driven",
		"ignite_after", scfg.IgniteAfter,
		"fire_x", scfg.FireX,
		"fire_y", scfg.FireY)
}

func actuatorConfig(cfg *config.Config) actuator.Config {
	ac := cfg.Actuator
	return actuator.Config{
		ServoXPin: ac.ServoXPin,
		ServoYPin: ac.ServoYPin,
		RelayPin:  ac.RelayPin,
		BuzzerPin: ac.BuzzerPin,
		ServoX:    actuator.ServoRange{MinUS: ac.ServoX.MinUS, MaxUS: ac.ServoX.MaxUS},
		ServoY:    actuator.ServoRange{MinUS: ac.ServoY.MinUS, MaxUS: ac.ServoY.MaxUS},
	}
}

func responseConfig(cfg *config.Config) response.Config {
	t := cfg.Tracking
	return response.Config{
		Hazard:        vision.ParseHazardClass(cfg.Scan.Hazard),
		ConfThreshold: cfg.Scan.ConfThreshold,
		Settle:        cfg.Scan.Settle,
		FramePattern:  cfg.Scan.FramePattern,
		ResultsFile:   cfg.Scan.ResultsFile,
		WorkDir:       cfg.Device.WorkDir,
		FrameWidth:    cfg.Camera.Width,
		FrameHeight:   cfg.Camera.Height,
		Tracking: response.TrackingConfig{
			Tolerance:    t.Tolerance,
			GainX:        t.GainX,
			GainY:        t.GainY,
			MaxStep:      t.MaxStep,
			EntrySettle:  t.EntrySettle,
			MoveSettle:   t.MoveSettle,
			Suppression:  t.Suppression,
			ArtifactName: t.ArtifactName,
		},
	}
}

func triggerConfig(cfg *config.Config) trigger.Config {
	t := cfg.Trigger
	return trigger.Config{
		Policy: trigger.Policy{
			GasCritical:      t.GasCritical,
			TempCritical:     t.TempCritical,
			Cooldown:         t.Cooldown,
			PeriodicInterval: t.PeriodicInterval,
		},
		Interval:   t.Interval,
		RetryDelay: t.RetryDelay,
	}
}

func accessLog(cfg *config.Config) io.Writer {
	if !cfg.Server.AccessLog {
		return nil
	}
	return os.Stdout
}

// findWebDir returns server.static_dir if set, otherwise the first of
// "web", "../web", "../../web" and ~/.emberguard/web that exists.
func findWebDir(cfg *config.Config) string {
	if cfg.Server.StaticDir != "" {
		return cfg.Server.StaticDir
	}

	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".emberguard", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
