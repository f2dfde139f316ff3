package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ayusman/emberguard/internal/vision"
)

var deviceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks the configuration and fills derived defaults.
func Validate(cfg *Config) error {
	if cfg.Device.ID == "" {
		return fmt.Errorf("device.id is required")
	}
	if !deviceIDPattern.MatchString(cfg.Device.ID) {
		return fmt.Errorf("device.id must match pattern [a-z0-9-]+")
	}
	if cfg.Device.WorkDir == "" {
		cfg.Device.WorkDir = "."
	}

	// Trigger policy
	if cfg.Trigger.Interval <= 0 {
		return fmt.Errorf("trigger.interval must be > 0")
	}
	if cfg.Trigger.RetryDelay <= 0 {
		return fmt.Errorf("trigger.retry_delay must be > 0")
	}
	if cfg.Trigger.Cooldown < 0 || cfg.Trigger.PeriodicInterval <= 0 {
		return fmt.Errorf("trigger.cooldown must be >= 0 and trigger.periodic_interval > 0")
	}

	// Scan
	if vision.ParseHazardClass(cfg.Scan.Hazard) == vision.ClassUnknown {
		return fmt.Errorf("scan.hazard %q is not a known hazard class", cfg.Scan.Hazard)
	}
	if cfg.Scan.ConfThreshold < 0 || cfg.Scan.ConfThreshold >= 1 {
		return fmt.Errorf("scan.conf_threshold must be in [0,1)")
	}
	if !strings.Contains(cfg.Scan.FramePattern, "%s") {
		return fmt.Errorf("scan.frame_pattern must contain %%s")
	}

	// Tracking
	if cfg.Tracking.Tolerance <= 0 {
		return fmt.Errorf("tracking.tolerance_px must be > 0")
	}
	if cfg.Tracking.GainX <= 0 || cfg.Tracking.GainY <= 0 {
		return fmt.Errorf("tracking gains must be > 0")
	}
	if cfg.Tracking.MaxStep <= 0 || cfg.Tracking.MaxStep > 1 {
		return fmt.Errorf("tracking.max_step must be in (0,1]")
	}
	if cfg.Tracking.ArtifactName == "" {
		cfg.Tracking.ArtifactName = "fire_centered.jpg"
	}

	// Camera
	if cfg.Camera.Width <= 0 || cfg.Camera.Height <= 0 {
		return fmt.Errorf("camera.width and camera.height must be > 0")
	}
	switch cfg.Camera.Driver {
	case "still", "device":
	default:
		return fmt.Errorf("camera.driver must be still or device, got %q", cfg.Camera.Driver)
	}

	// Detector
	switch cfg.Detector.Driver {
	case "yolo":
		if len(cfg.Detector.Classes) == 0 {
			return fmt.Errorf("detector.classes is required for the yolo driver")
		}
	case "sidecar":
	default:
		return fmt.Errorf("detector.driver must be yolo or sidecar, got %q", cfg.Detector.Driver)
	}

	// Actuator
	for name, r := range map[string]ServoRange{"servo_x": cfg.Actuator.ServoX, "servo_y": cfg.Actuator.ServoY} {
		if r.MinUS <= 0 || r.MaxUS <= r.MinUS {
			return fmt.Errorf("actuator.%s: min_us must be > 0 and < max_us", name)
		}
	}
	if cfg.Actuator.AlarmBeeps < 0 {
		return fmt.Errorf("actuator.alarm_beeps must be >= 0")
	}

	if cfg.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}

	// Publishers append the device id to each topic
	if cfg.MQTT.Topics.Readings == "" {
		cfg.MQTT.Topics.Readings = "emberguard/readings"
	}
	if cfg.MQTT.Topics.Episodes == "" {
		cfg.MQTT.Topics.Episodes = "emberguard/episodes"
	}
	if cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}

	if cfg.Device.Simulate {
		sim := cfg.Simulation
		if sim.IgniteAfter < 0 {
			return fmt.Errorf("simulation.ignite_after must be >= 0")
		}
		if sim.FireX < 0 || sim.FireX > 1 || sim.FireY < 0 || sim.FireY > 1 {
			return fmt.Errorf("simulation fire position must be in [0,1]")
		}
	}

	return nil
}
