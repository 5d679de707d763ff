package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// TLSConfig holds TLS-specific configurations.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ServerConfig holds the REST/WebSocket API server's configuration.
type ServerConfig struct {
	ListenAddress       string    `yaml:"listen_address"`
	HealthCheckInterval string    `yaml:"health_check_interval"`
	TLS                 TLSConfig `yaml:"tls"`
}

// StoreConfig holds the embedded database facade's configuration (spec
// §4.5).
type StoreConfig struct {
	DataDir              string `yaml:"data_dir"`
	InMemory             bool   `yaml:"in_memory"`
	AutoCommitInterval   string `yaml:"auto_commit_interval"`
	AutoCommitDirtyBytes int64  `yaml:"auto_commit_dirty_bytes"`
}

// MQTTConfig holds the MQTT ingress source's configuration (spec §4.6).
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicFilter string `yaml:"topic_filter"`
}

// BridgeConfig holds the persistence bridge's configuration (spec §4.7).
type BridgeConfig struct {
	MaxConcurrentEvents     int64  `yaml:"max_concurrent_events"`
	BreakerMaxRequests      uint32 `yaml:"breaker_max_requests"`
	BreakerInterval         string `yaml:"breaker_interval"`
	BreakerTimeout          string `yaml:"breaker_timeout"`
	BreakerFailureThreshold uint32 `yaml:"breaker_failure_threshold"`
}

// LoggingConfig holds logging-specific configurations.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // e.g., "debug", "info", "warn", "error"
	Output string `yaml:"output"` // e.g., "stdout", "file", "none"
	File   string `yaml:"file"`   // Path to the log file, used if output is "file"
}

// DebugConfig holds the debug/metrics HTTP surface's configuration: the
// prometheus /metrics endpoint always listens when Enabled, pprof and the
// statsviz live-monitoring UI are each independently opt-in.
type DebugConfig struct {
	Enabled          bool   `yaml:"enabled"`
	ListenAddress    string `yaml:"listen_address"`
	PProfEnabled     bool   `yaml:"pprof_enabled"`
	MonitorUIEnabled bool   `yaml:"monitor_ui_enabled"`
}

// TracingConfig holds configuration for distributed tracing.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"` // e.g., "localhost:4317" for gRPC OTLP collector
	Protocol string `yaml:"protocol"` // "grpc" or "http"
}

// Config is the top-level configuration struct.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Debug   DebugConfig   `yaml:"debug"`
	Store   StoreConfig   `yaml:"store"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Bridge  BridgeConfig  `yaml:"bridge"`
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
}

// ParseDuration parses a duration string. Returns the default duration if the string is empty or invalid.
// Logs a warning if the string is invalid but not empty.
func ParseDuration(durationStr string, defaultDuration time.Duration, logger *slog.Logger) time.Duration {
	if durationStr == "" || durationStr == "0" {
		return defaultDuration
	}
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		if logger != nil {
			logger.Warn("Invalid duration format, using default", "input", durationStr, "default", defaultDuration.String(), "error", err)
		}
		return defaultDuration
	}
	return d
}

// Load reads configuration from an io.Reader.
// This is the core logic, separated for testability.
func Load(r io.Reader) (*Config, error) {
	// Set default values
	cfg := &Config{
		Server: ServerConfig{
			ListenAddress:       ":8088",
			HealthCheckInterval: "5s",
			TLS: TLSConfig{
				Enabled:  false,
				CertFile: "certs/server.crt",
				KeyFile:  "certs/server.key",
			},
		},
		Store: StoreConfig{
			DataDir:              "./data",
			InMemory:             false,
			AutoCommitInterval:   "30s",
			AutoCommitDirtyBytes: 64 * 1024 * 1024, // 64 MiB
		},
		MQTT: MQTTConfig{
			Enabled:     false,
			Broker:      "tcp://localhost:1883",
			ClientID:    "sensorhub",
			TopicFilter: "sensors/+/+",
		},
		Bridge: BridgeConfig{
			MaxConcurrentEvents:     32,
			BreakerMaxRequests:      1,
			BreakerInterval:         "60s",
			BreakerTimeout:          "30s",
			BreakerFailureThreshold: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
			File:   "sensorhub.log",
		},
		Tracing: TracingConfig{
			Enabled:  false,
			Endpoint: "localhost:4317",
			Protocol: "grpc",
		},
		Debug: DebugConfig{
			Enabled:          false,
			ListenAddress:    "0.0.0.0:6060",
			PProfEnabled:     false,
			MonitorUIEnabled: false,
		},
	}

	// If the reader is nil, it's like an empty file, return defaults.
	if r == nil {
		return cfg, nil
	}

	// Read all data from the reader
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config data: %w", err)
	}

	// If data is empty, return defaults.
	if len(data) == 0 {
		return cfg, nil
	}

	// Unmarshal YAML into the config struct, overwriting defaults
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	return cfg, nil
}

// LoadConfig reads configuration from a YAML file by path.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			// If file doesn't exist, return default config by calling Load with a nil reader.
			return Load(nil)
		}
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	return Load(file)
}
