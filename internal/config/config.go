// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// GlobalConfig is the top-level static configuration.
// Maps to the `netscope:` root key in YAML.
type GlobalConfig struct {
	Capture CaptureConfig `mapstructure:"capture"`
	Stats   StatsConfig   `mapstructure:"stats"`
	Store   StoreConfig   `mapstructure:"store"`
	Export  ExportConfig  `mapstructure:"export"`
	Publish PublishConfig `mapstructure:"publish"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`
}

// CaptureConfig configures the capture source and its bounded queue.
type CaptureConfig struct {
	Interface   string         `mapstructure:"interface"`   // empty = simulated capture
	SnapLen     int            `mapstructure:"snap_len"`
	Promiscuous bool           `mapstructure:"promiscuous"`
	BufferSize  int            `mapstructure:"buffer_size"` // bounded queue capacity
	BlockWait   time.Duration  `mapstructure:"block_wait"`  // max producer block before evicting
	Simulate    SimulateConfig `mapstructure:"simulate"`
}

// SimulateConfig configures the synthetic packet generator.
type SimulateConfig struct {
	Rate    int                `mapstructure:"rate"`    // packets per second
	Weights map[string]float64 `mapstructure:"weights"` // protocol → relative weight
	Seed    int64              `mapstructure:"seed"`    // 0 = time-seeded
}

// StatsConfig configures the rolling statistics aggregator.
type StatsConfig struct {
	Window time.Duration `mapstructure:"window"` // trailing rate-estimation window
}

// StoreConfig configures the durable packet store.
type StoreConfig struct {
	Path              string        `mapstructure:"path"`
	RetryAttempts     int           `mapstructure:"retry_attempts"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff"`
	MaxSessionHistory int           `mapstructure:"max_session_history"`
}

// ExportConfig configures the export engine.
type ExportConfig struct {
	Dir string `mapstructure:"dir"`
}

// PublishConfig configures the optional Kafka record publisher.
type PublishConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	Compression  string        `mapstructure:"compression"` // none|gzip|snappy|lz4
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

// MetricsConfig configures the Prometheus metrics listener.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string           `mapstructure:"level"`  // debug|info|warn|error
	Format string           `mapstructure:"format"` // json|text
	File   FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures the rotated log file output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig contains lumberjack rotation settings.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

type configRoot struct {
	Netscope GlobalConfig `mapstructure:"netscope"`
}

// Load loads configuration from file.
// The YAML file uses `netscope:` as root key; env vars use the NETSCOPE_ prefix
// (e.g., NETSCOPE_LOG_LEVEL) via the key replacer.
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Netscope

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns a GlobalConfig populated with defaults only, used when no
// config file is given.
func Default() *GlobalConfig {
	v := viper.New()
	setDefaults(v)

	var root configRoot
	// Unmarshal of defaults cannot fail; keep the error check for safety.
	if err := v.Unmarshal(&root); err != nil {
		panic(fmt.Sprintf("config defaults unmarshal: %v", err))
	}
	cfg := root.Netscope
	return &cfg
}

// setDefaults sets default values. All keys use the "netscope." prefix to
// match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Capture defaults
	v.SetDefault("netscope.capture.interface", "")
	v.SetDefault("netscope.capture.snap_len", 65535)
	v.SetDefault("netscope.capture.promiscuous", true)
	v.SetDefault("netscope.capture.buffer_size", 4096)
	v.SetDefault("netscope.capture.block_wait", "250ms")
	v.SetDefault("netscope.capture.simulate.rate", 100)
	v.SetDefault("netscope.capture.simulate.weights", map[string]float64{
		"TCP": 0.5, "UDP": 0.3, "ICMP": 0.1, "ARP": 0.1,
	})

	// Stats defaults
	v.SetDefault("netscope.stats.window", "10s")

	// Store defaults
	v.SetDefault("netscope.store.path", "data/netscope.db")
	v.SetDefault("netscope.store.retry_attempts", 4)
	v.SetDefault("netscope.store.retry_backoff", "25ms")
	v.SetDefault("netscope.store.max_session_history", 100)

	// Export defaults
	v.SetDefault("netscope.export.dir", "exports")

	// Publish defaults
	v.SetDefault("netscope.publish.enabled", false)
	v.SetDefault("netscope.publish.batch_size", 100)
	v.SetDefault("netscope.publish.batch_timeout", "100ms")
	v.SetDefault("netscope.publish.compression", "snappy")
	v.SetDefault("netscope.publish.max_attempts", 3)

	// Metrics defaults
	v.SetDefault("netscope.metrics.enabled", false)
	v.SetDefault("netscope.metrics.listen", ":9099")
	v.SetDefault("netscope.metrics.path", "/metrics")

	// Log defaults
	v.SetDefault("netscope.log.level", "info")
	v.SetDefault("netscope.log.format", "text")
	v.SetDefault("netscope.log.file.enabled", false)
	v.SetDefault("netscope.log.file.path", "logs/netscope.log")
	v.SetDefault("netscope.log.file.rotation.max_size_mb", 100)
	v.SetDefault("netscope.log.file.rotation.max_age_days", 30)
	v.SetDefault("netscope.log.file.rotation.max_backups", 5)
	v.SetDefault("netscope.log.file.rotation.compress", true)
}

// Validate checks configuration consistency.
func (cfg *GlobalConfig) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}

	if cfg.Capture.BufferSize <= 0 {
		return fmt.Errorf("capture.buffer_size must be positive, got %d", cfg.Capture.BufferSize)
	}
	if cfg.Capture.Simulate.Rate <= 0 {
		return fmt.Errorf("capture.simulate.rate must be positive, got %d", cfg.Capture.Simulate.Rate)
	}
	for proto, w := range cfg.Capture.Simulate.Weights {
		if w < 0 {
			return fmt.Errorf("capture.simulate.weights[%s] must be non-negative, got %v", proto, w)
		}
	}

	if cfg.Stats.Window <= 0 {
		return fmt.Errorf("stats.window must be positive, got %v", cfg.Stats.Window)
	}

	if cfg.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if cfg.Store.RetryAttempts < 1 {
		return fmt.Errorf("store.retry_attempts must be at least 1, got %d", cfg.Store.RetryAttempts)
	}

	if cfg.Publish.Enabled {
		if len(cfg.Publish.Brokers) == 0 {
			return fmt.Errorf("publish.brokers is required when publish.enabled=true")
		}
		if cfg.Publish.Topic == "" {
			return fmt.Errorf("publish.topic is required when publish.enabled=true")
		}
	}

	return nil
}
