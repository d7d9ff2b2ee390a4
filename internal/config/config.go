package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvAPIBase     = "PICPOP_API_BASE"
	EnvWSBase      = "PICPOP_WS_BASE"
	EnvPreviewURL  = "PICPOP_PREVIEW_URL"
	EnvMQTTBroker  = "PICPOP_MQTT_BROKER"
	EnvHealthAddr  = "PICPOP_HEALTH_ADDR"
	defaultEnvFile = ".env"
)

// Config represents the complete kiosk configuration
type Config struct {
	KioskID          string            `yaml:"kiosk_id"`
	ShutdownTimeoutS int               `yaml:"shutdown_timeout_s"` // graceful shutdown timeout in seconds (default: 5)
	API              APIConfig         `yaml:"api"`
	Preview          PreviewConfig     `yaml:"preview"`
	EventStream      EventStreamConfig `yaml:"event_stream"`
	UI               UIConfig          `yaml:"ui"`
	MQTT             MQTTConfig        `yaml:"mqtt"`
	Health           HealthConfig      `yaml:"health"`

	ShutdownTimeout time.Duration `yaml:"-"`
}

// APIConfig points at the backend.
type APIConfig struct {
	BaseURL          string `yaml:"base_url"`
	WSBaseURL        string `yaml:"ws_base_url"`
	RequestTimeoutMS int    `yaml:"request_timeout_ms"`
	QRSize           int    `yaml:"qr_size"`

	RequestTimeout time.Duration `yaml:"-"`
}

// PreviewConfig tunes the camera preview supervisor.
type PreviewConfig struct {
	URL                  string `yaml:"url"`
	ReconnectDelayMS     int    `yaml:"reconnect_delay_ms"`
	VerifyDelayMS        int    `yaml:"verify_delay_ms"`
	StaleCheckIntervalMS int    `yaml:"stale_check_interval_ms"`
	StaleThresholdMS     int    `yaml:"stale_threshold_ms"`
	MaxRestartAttempts   int    `yaml:"max_restart_attempts"`
	QueueBuffers         int    `yaml:"queue_buffers"`

	ReconnectDelay     time.Duration `yaml:"-"`
	VerifyDelay        time.Duration `yaml:"-"`
	StaleCheckInterval time.Duration `yaml:"-"`
	StaleThreshold     time.Duration `yaml:"-"`
}

// EventStreamConfig tunes the session event stream.
type EventStreamConfig struct {
	ReconnectDelayMS int `yaml:"reconnect_delay_ms"`

	ReconnectDelay time.Duration `yaml:"-"`
}

// UIConfig holds display timings.
type UIConfig struct {
	ErrorDisplayMS int `yaml:"error_display_ms"` // how long an error message stays up

	ErrorDisplay time.Duration `yaml:"-"`
}

// MQTTConfig contains operator broker settings. An empty broker disables
// the operator channel.
type MQTTConfig struct {
	Broker string          `yaml:"broker"`
	Topics MQTTTopics      `yaml:"topics"`
	QoS    map[string]byte `yaml:"qos"`
}

// MQTTTopics contains topic names
type MQTTTopics struct {
	Status  string `yaml:"status"`
	Faults  string `yaml:"faults"`
	Control string `yaml:"control"`
}

// HealthConfig configures the health and metrics server.
type HealthConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads and parses a YAML configuration file, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(defaultEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("config: failed to load env file", "file", defaultEnvFile, "error", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML, applies environment overrides and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse config: %w", err)
	}

	applyEnv(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.API.BaseURL = getEnv(EnvAPIBase, cfg.API.BaseURL)
	cfg.API.WSBaseURL = getEnv(EnvWSBase, cfg.API.WSBaseURL)
	cfg.Preview.URL = getEnv(EnvPreviewURL, cfg.Preview.URL)
	cfg.MQTT.Broker = getEnv(EnvMQTTBroker, cfg.MQTT.Broker)
	cfg.Health.Addr = getEnv(EnvHealthAddr, cfg.Health.Addr)
}

func getEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}
