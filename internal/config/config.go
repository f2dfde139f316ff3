// Package config loads the emberguard configuration from YAML, a .env file
// and EMBERGUARD_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "EMBERGUARD_"

// Config is the complete emberguard configuration.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	Log      LogConfig      `yaml:"log"`
	Sensors  SensorsConfig  `yaml:"sensors"`
	Trigger  TriggerConfig  `yaml:"trigger"`
	Scan     ScanConfig     `yaml:"scan"`
	Tracking TrackingConfig `yaml:"tracking"`
	Camera   CameraConfig   `yaml:"camera"`
	Detector DetectorConfig `yaml:"detector"`
	Actuator ActuatorConfig `yaml:"actuator"`
	Store    StoreConfig    `yaml:"store"`
	Status   StatusConfig   `yaml:"status"`
	Report   ReportConfig   `yaml:"report"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Hooks    HooksConfig    `yaml:"hooks"`
	Server   ServerConfig   `yaml:"server"`

	Simulation SimulationConfig `yaml:"simulation"`
}

// DeviceConfig identifies the unit and where it keeps its files.
type DeviceConfig struct {
	ID       string `yaml:"id"`
	Simulate bool   `yaml:"simulate"` // simulated room instead of GPIO/SPI/camera
	WorkDir  string `yaml:"work_dir"` // scan frames, artifacts and results file
}

// LogConfig controls the global logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text, json
}

// SensorsConfig describes the MQ-2 (through an MCP3008) and DHT22 wiring.
type SensorsConfig struct {
	SPIPort         string `yaml:"spi_port"` // empty selects the first port
	SPISpeedHz      int64  `yaml:"spi_speed_hz"`
	GasChannel      int    `yaml:"gas_channel"`
	TemperaturePath string `yaml:"temperature_path"` // IIO in_temp_input file
}

// TriggerConfig holds the scheduler policy.
type TriggerConfig struct {
	GasCritical      float64       `yaml:"gas_critical"`
	TempCritical     float64       `yaml:"temp_critical"`
	Cooldown         time.Duration `yaml:"cooldown"`
	PeriodicInterval time.Duration `yaml:"periodic_interval"`
	Interval         time.Duration `yaml:"interval"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
}

// ScanConfig holds the grid scan parameters.
type ScanConfig struct {
	Hazard        string        `yaml:"hazard"`
	ConfThreshold float64       `yaml:"conf_threshold"`
	Settle        time.Duration `yaml:"settle"`
	FramePattern  string        `yaml:"frame_pattern"` // fmt pattern taking the position label
	ResultsFile   string        `yaml:"results_file"`
}

// TrackingConfig holds the centering controller parameters.
type TrackingConfig struct {
	Tolerance    int           `yaml:"tolerance_px"`
	GainX        float64       `yaml:"gain_x"`
	GainY        float64       `yaml:"gain_y"`
	MaxStep      float64       `yaml:"max_step"`
	EntrySettle  time.Duration `yaml:"entry_settle"`
	MoveSettle   time.Duration `yaml:"move_settle"`
	Suppression  time.Duration `yaml:"suppression"`
	ArtifactName string        `yaml:"artifact_name"`
}

// CameraConfig selects and configures the frame source.
type CameraConfig struct {
	Driver   string        `yaml:"driver"` // still, device
	Command  string        `yaml:"command"`
	DeviceID int           `yaml:"device_id"`
	Width    int           `yaml:"width"`
	Height   int           `yaml:"height"`
	Warmup   time.Duration `yaml:"warmup"` // passed to rpicam-still -t
	Flip     bool          `yaml:"flip"`   // rotate buffer captures by 180 degrees
}

// DetectorConfig selects and configures the hazard detector.
type DetectorConfig struct {
	Driver        string   `yaml:"driver"` // yolo, sidecar
	ModelPath     string   `yaml:"model_path"`
	Classes       []string `yaml:"classes"`
	InputSize     int      `yaml:"input_size"`
	NMSThreshold  float64  `yaml:"nms_threshold"`
	MinConfidence float64  `yaml:"min_confidence"`
	SidecarScript string   `yaml:"sidecar_script"`
	Python        string   `yaml:"python"`
}

// ServoRange is the pulse-width range of one axis in microseconds.
type ServoRange struct {
	MinUS float64 `yaml:"min_us"`
	MaxUS float64 `yaml:"max_us"`
}

// ActuatorConfig describes the pan/tilt, relay and buzzer wiring.
type ActuatorConfig struct {
	ServoXPin     string        `yaml:"servo_x_pin"`
	ServoYPin     string        `yaml:"servo_y_pin"`
	RelayPin      string        `yaml:"relay_pin"`
	BuzzerPin     string        `yaml:"buzzer_pin"`
	ServoX        ServoRange    `yaml:"servo_x"`
	ServoY        ServoRange    `yaml:"servo_y"`
	AlarmBeeps    int           `yaml:"alarm_beeps"`
	AlarmInterval time.Duration `yaml:"alarm_interval"`
}

// StoreConfig locates the sqlite database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// StatusConfig locates the status snapshot file.
type StatusConfig struct {
	Path string `yaml:"path"`
}

// ReportConfig configures the remote reporting endpoint.
type ReportConfig struct {
	Endpoint        string        `yaml:"endpoint"` // empty disables HTTP reporting
	Timeout         time.Duration `yaml:"timeout"`
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout"`
}

// MQTTConfig configures the MQTT telemetry publisher.
type MQTTConfig struct {
	Broker string     `yaml:"broker"` // host:port, empty disables MQTT
	Topics MQTTTopics `yaml:"topics"`
	QoS    byte       `yaml:"qos"`
}

// MQTTTopics names the telemetry topics.
type MQTTTopics struct {
	Readings string `yaml:"readings"`
	Episodes string `yaml:"episodes"`
}

// KafkaConfig configures the Kafka telemetry publisher.
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"` // empty disables Kafka
	ReadingsTopic string   `yaml:"readings_topic"`
	EpisodesTopic string   `yaml:"episodes_topic"`
}

// HooksConfig configures episode hooks.
type HooksConfig struct {
	Dir     string        `yaml:"dir"`
	Timeout time.Duration `yaml:"timeout"`
}

// ServerConfig configures the status HTTP server.
type ServerConfig struct {
	Addr      string `yaml:"addr"`       // empty disables the server
	StaticDir string `yaml:"static_dir"` // empty searches web/ nearby
	AccessLog bool   `yaml:"access_log"` // one stdout line per request
}

// SimulationConfig shapes the simulated room used when device.simulate is set.
type SimulationConfig struct {
	IgniteAfter time.Duration `yaml:"ignite_after"` // from start and after each suppression
	FireX       float64       `yaml:"fire_x"`
	FireY       float64       `yaml:"fire_y"`
}

// Default returns a configuration matching the reference hardware build.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			ID:      "emberguard-1",
			WorkDir: ".",
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Sensors: SensorsConfig{
			SPISpeedHz:      1_350_000,
			GasChannel:      0,
			TemperaturePath: "/sys/bus/iio/devices/iio:device0/in_temp_input",
		},
		Trigger: TriggerConfig{
			GasCritical:      50,
			TempCritical:     35,
			Cooldown:         60 * time.Second,
			PeriodicInterval: 600 * time.Second,
			Interval:         2 * time.Second,
			RetryDelay:       2 * time.Second,
		},
		Scan: ScanConfig{
			Hazard:        "fire",
			ConfThreshold: 0.5,
			Settle:        100 * time.Millisecond,
			FramePattern:  "scan_%s.jpg",
			ResultsFile:   "fire_servo_results.json",
		},
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
		Camera: CameraConfig{
			Driver:  "still",
			Command: "rpicam-still",
			Width:   640,
			Height:  480,
			Warmup:  500 * time.Millisecond,
			Flip:    true,
		},
		Detector: DetectorConfig{
			Driver:        "yolo",
			ModelPath:     "models/fire.onnx",
			Classes:       []string{"fire", "smoke"},
			InputSize:     640,
			NMSThreshold:  0.45,
			MinConfidence: 0.25,
			SidecarScript: "scripts/fire_detect_service.py",
			Python:        "python3",
		},
		Actuator: ActuatorConfig{
			ServoXPin:     "GPIO12",
			ServoYPin:     "GPIO13",
			RelayPin:      "GPIO22",
			BuzzerPin:     "GPIO27",
			ServoX:        ServoRange{MinUS: 900, MaxUS: 2100},
			ServoY:        ServoRange{MinUS: 1000, MaxUS: 2000},
			AlarmBeeps:    15,
			AlarmInterval: 200 * time.Millisecond,
		},
		Store:  StoreConfig{Path: "emberguard.db"},
		Status: StatusConfig{Path: "sensor_data.json"},
		Report: ReportConfig{
			Timeout:         15 * time.Second,
			BreakerFailures: 3,
			BreakerTimeout:  60 * time.Second,
		},
		MQTT: MQTTConfig{QoS: 1},
		Kafka: KafkaConfig{
			ReadingsTopic: "emberguard.readings",
			EpisodesTopic: "emberguard.episodes",
		},
		Hooks:  HooksConfig{Timeout: 5 * time.Second},
		Server: ServerConfig{Addr: ":8080"},
		Simulation: SimulationConfig{
			IgniteAfter: 30 * time.Second,
			FireX:       0.62,
			FireY:       0.41,
		},
	}
}

// Load reads a YAML file over the defaults, then applies .env and
// environment overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}

		// .env next to the config file; missing is fine
		envFile := filepath.Join(filepath.Dir(path), ".env")
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnv overlays EMBERGUARD_* variables onto the configuration.
func (c *Config) applyEnv() error {
	if v := env("DEVICE_ID"); v != "" {
		c.Device.ID = v
	}
	if v := env("SIMULATE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sSIMULATE: %w", EnvPrefix, err)
		}
		c.Device.Simulate = b
	}
	if v := env("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := env("STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := env("REPORT_ENDPOINT"); v != "" {
		c.Report.Endpoint = v
	}
	if v := env("MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
	}
	if v := env("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := env("SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	return nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + key))
}

// ArtifactPath returns the path of a file kept in the work directory.
func (c *Config) ArtifactPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Device.WorkDir, name)
}
