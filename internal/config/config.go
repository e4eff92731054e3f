// Package config loads the host process's YAML configuration, one struct
// per subsystem.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document for the engagehub host
// process. Only ambient and domain-stack concerns are represented here;
// there is no HTTP, auth, or rate-limit surface, since those are owned by
// the external host, not this module.
type Config struct {
	App         AppConfig         `yaml:"app"`
	Logging     LoggingConfig     `yaml:"logging"`
	Alerting    AlertingConfig    `yaml:"alerting"`
	Stream      StreamConfig      `yaml:"stream"`
	Leaderboard LeaderboardConfig `yaml:"leaderboard"`
	Stores      StoresConfig      `yaml:"stores"`
	PubSub      PubSubConfig      `yaml:"pubsub"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// AppConfig carries process-wide identity and timing knobs.
type AppConfig struct {
	InstanceID       string        `yaml:"instance_id"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
	SnapshotPath     string        `yaml:"snapshot_path"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig configures the alerting/logger.Logger instance used
// throughout the module.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // json|console
}

// AlertingConfig configures the alerting sink used for panic/fatal-level
// notifications.
type AlertingConfig struct {
	AppName string `yaml:"app_name"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

// StreamConfig configures the Event Stream Processor.
type StreamConfig struct {
	BufferSize           int    `yaml:"buffer_size"`
	NumThreads           int    `yaml:"num_threads"`
	BatchSize            int    `yaml:"batch_size"`
	FlushIntervalMs      int    `yaml:"flush_interval_ms"`
	FrequencyDepth       uint32 `yaml:"frequency_depth"`
	FrequencyWidth       uint32 `yaml:"frequency_width"`
	CardinalityPrecision uint8  `yaml:"cardinality_precision"`
}

// LeaderboardConfig configures the Leaderboard Engine.
type LeaderboardConfig struct {
	DecayFactor float64 `yaml:"decay_factor"`
	MaxUsers    int     `yaml:"max_users"`
}

// RedisConfig configures the optional Redis-backed leaderboard warm-start
// transport.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	SnapshotKey  string        `yaml:"snapshot_key"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// ClickHouseConfig configures the optional ClickHouse durable-sink
// adapter.
type ClickHouseConfig struct {
	Enabled      bool          `yaml:"enabled"`
	DSN          string        `yaml:"dsn"`
	Table        string        `yaml:"table"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// StoresConfig groups the optional external storage backends.
type StoresConfig struct {
	Redis      RedisConfig      `yaml:"redis"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// NATSConfig configures the optional NATS notification transport.
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// PubSubConfig groups the optional messaging backends.
type PubSubConfig struct {
	NATS NATSConfig `yaml:"nats"`
}

// MetricsConfig configures the Prometheus registry. This module never
// serves metrics over HTTP; it only exposes a *prometheus.Registry for the
// host process to mount wherever it likes.
type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
}

// Load reads and parses a YAML configuration document from path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
