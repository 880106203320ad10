package log

import (
	"log/slog"
	"path/filepath"
	"testing"

	"netscope.xyz/netscope/internal/config"
)

func TestInitLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		cfg := config.LogConfig{Level: level, Format: "text"}
		if err := Init(cfg); err != nil {
			t.Errorf("Init with level %q: %v", level, err)
		}
	}
}

func TestInitInvalidLevel(t *testing.T) {
	cfg := config.LogConfig{Level: "loud", Format: "text"}
	if err := Init(cfg); err == nil {
		t.Fatal("expected error for invalid level, got nil")
	}
}

func TestInitInvalidFormat(t *testing.T) {
	cfg := config.LogConfig{Level: "info", Format: "xml"}
	if err := Init(cfg); err == nil {
		t.Fatal("expected error for invalid format, got nil")
	}
}

func TestInitFileOutput(t *testing.T) {
	dir := t.TempDir()
	cfg := config.LogConfig{
		Level:  "info",
		Format: "json",
		File: config.FileOutputConfig{
			Enabled: true,
			Path:    filepath.Join(dir, "test.log"),
			Rotation: config.RotationConfig{
				MaxSizeMB:  1,
				MaxBackups: 1,
			},
		},
	}
	if err := Init(cfg); err != nil {
		t.Fatalf("Init with file output: %v", err)
	}
	slog.Info("test line", "key", "value")
}

func TestInitFileOutputRequiresPath(t *testing.T) {
	cfg := config.LogConfig{
		Level:  "info",
		Format: "text",
		File:   config.FileOutputConfig{Enabled: true},
	}
	if err := Init(cfg); err == nil {
		t.Fatal("expected error for missing file path, got nil")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"Error":   slog.LevelError,
	}
	for in, want := range cases {
		got, err := parseLevel(in)
		if err != nil {
			t.Errorf("parseLevel(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("parseLevel(%q): got %v, want %v", in, got, want)
		}
	}
}
