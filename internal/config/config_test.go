package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
netscope:
  capture:
    interface: "eth0"
    buffer_size: 2048
    simulate:
      rate: 500
      weights:
        TCP: 0.6
        UDP: 0.4
  stats:
    window: "5s"
  store:
    path: "/tmp/netscope-test.db"
  log:
    level: "debug"
    format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Capture.Interface != "eth0" {
		t.Errorf("Expected interface eth0, got %s", cfg.Capture.Interface)
	}
	if cfg.Capture.BufferSize != 2048 {
		t.Errorf("Expected buffer_size 2048, got %d", cfg.Capture.BufferSize)
	}
	if cfg.Capture.Simulate.Rate != 500 {
		t.Errorf("Expected simulate rate 500, got %d", cfg.Capture.Simulate.Rate)
	}
	if cfg.Stats.Window != 5*time.Second {
		t.Errorf("Expected stats window 5s, got %v", cfg.Stats.Window)
	}
	if cfg.Store.Path != "/tmp/netscope-test.db" {
		t.Errorf("Expected store path /tmp/netscope-test.db, got %s", cfg.Store.Path)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.Log.Level)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
netscope:
  log:
    level: "info"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Capture.BufferSize != 4096 {
		t.Errorf("Expected default buffer_size 4096, got %d", cfg.Capture.BufferSize)
	}
	if cfg.Stats.Window != 10*time.Second {
		t.Errorf("Expected default stats window 10s, got %v", cfg.Stats.Window)
	}
	if cfg.Store.RetryAttempts != 4 {
		t.Errorf("Expected default retry_attempts 4, got %d", cfg.Store.RetryAttempts)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Expected default log format text, got %s", cfg.Log.Format)
	}
	if cfg.Publish.Enabled {
		t.Error("Expected publish disabled by default")
	}
}

func TestLoadInvalidLogLevel(t *testing.T) {
	path := writeConfig(t, `
netscope:
  log:
    level: "verbose"
`)

	if _, err := Load(path); err == nil {
		t.Fatal("Expected error for invalid log level, got nil")
	}
}

func TestLoadPublishRequiresBrokers(t *testing.T) {
	path := writeConfig(t, `
netscope:
  publish:
    enabled: true
    topic: "packets"
`)

	if _, err := Load(path); err == nil {
		t.Fatal("Expected error when publish enabled without brokers, got nil")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yml"); err == nil {
		t.Fatal("Expected error for missing config file, got nil")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config should validate, got %v", err)
	}
	if cfg.Capture.Interface != "" {
		t.Errorf("Default interface should be empty (simulated), got %s", cfg.Capture.Interface)
	}
}
