package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

type testOptions struct {
	Config string `help:"Settings file"`

	FfmpegPath   string        `toml:"encoder.ffmpeg_path" env:"FFMPEG_PATH"`
	WatchConfig  bool          `toml:"stream.watch" env:"WATCH_CONFIG"`
	Attempts     int           `toml:"session.attempts" env:"ATTEMPTS"`
	StopTimeout  time.Duration `toml:"session.stop_timeout" env:"STOP_TIMEOUT"`
	Threshold    float64       `toml:"monitor.threshold" env:"THRESHOLD"`
	ExtraArgs    []string      `toml:"encoder.extra_args" env:"EXTRA_ARGS"`
	LoggingLevel string        `toml:"logging.level" env:"LOGGING_LEVEL"`
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigFromTOML(t *testing.T) {
	path := writeFile(t, "loopcast.toml", `
[encoder]
ffmpeg_path = "/opt/ffmpeg/bin/ffmpeg"
extra_args = ["-threads", "4"]

[stream]
watch = true

[session]
attempts = 7
stop_timeout = "8s"

[monitor]
threshold = 2.5

[logging]
level = "debug"
`)

	opts := &testOptions{Config: path}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.FfmpegPath != "/opt/ffmpeg/bin/ffmpeg" {
		t.Errorf("FfmpegPath = %q", opts.FfmpegPath)
	}
	if !opts.WatchConfig {
		t.Error("WatchConfig should be true")
	}
	if opts.Attempts != 7 {
		t.Errorf("Attempts = %d, want 7", opts.Attempts)
	}
	if opts.StopTimeout != 8*time.Second {
		t.Errorf("StopTimeout = %v, want 8s", opts.StopTimeout)
	}
	if opts.Threshold != 2.5 {
		t.Errorf("Threshold = %v, want 2.5", opts.Threshold)
	}
	if want := []string{"-threads", "4"}; !reflect.DeepEqual(opts.ExtraArgs, want) {
		t.Errorf("ExtraArgs = %v, want %v", opts.ExtraArgs, want)
	}
	if opts.LoggingLevel != "debug" {
		t.Errorf("LoggingLevel = %q, want debug", opts.LoggingLevel)
	}
}

func TestLoadConfigEnvOverridesToml(t *testing.T) {
	path := writeFile(t, "loopcast.toml", `
[encoder]
ffmpeg_path = "/from/toml"

[session]
attempts = 3
`)
	t.Setenv("LOOPCAST_FFMPEG_PATH", "/from/env")
	t.Setenv("LOOPCAST_STOP_TIMEOUT", "250ms")
	t.Setenv("LOOPCAST_EXTRA_ARGS", " -re , -nostdin ")

	opts := &testOptions{Config: path}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.FfmpegPath != "/from/env" {
		t.Errorf("FfmpegPath = %q, want env value", opts.FfmpegPath)
	}
	if opts.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3 from TOML", opts.Attempts)
	}
	if opts.StopTimeout != 250*time.Millisecond {
		t.Errorf("StopTimeout = %v, want 250ms", opts.StopTimeout)
	}
	if want := []string{"-re", "-nostdin"}; !reflect.DeepEqual(opts.ExtraArgs, want) {
		t.Errorf("ExtraArgs = %v, want %v", opts.ExtraArgs, want)
	}
}

func TestLoadConfigBadEnvValue(t *testing.T) {
	t.Setenv("LOOPCAST_ATTEMPTS", "many")
	if err := LoadConfig(&testOptions{}, nil); err == nil {
		t.Fatal("expected error for non-numeric LOOPCAST_ATTEMPTS")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	opts := &testOptions{Config: filepath.Join(t.TempDir(), "absent.toml")}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("missing settings file should be tolerated: %v", err)
	}
}

func TestLoadConfigInvalidTOML(t *testing.T) {
	path := writeFile(t, "broken.toml", "[encoder\nffmpeg_path = ")
	if err := LoadConfig(&testOptions{Config: path}, nil); err == nil {
		t.Fatal("LoadConfig should fail for invalid TOML")
	}
}

func TestFieldNameToFlag(t *testing.T) {
	tests := map[string]string{
		"Config":       "config",
		"StatusAddr":   "status-addr",
		"FfmpegPath":   "ffmpeg-path",
		"LoggingAPI":   "logging-api",
		"LoggingLevel": "logging-level",
		"WatchConfig":  "watch-config",
	}
	for in, want := range tests {
		if got := fieldNameToFlag(in); got != want {
			t.Errorf("fieldNameToFlag(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGetNestedValue(t *testing.T) {
	data := map[string]any{
		"session": map[string]any{
			"retry": map[string]any{"delay": "5s"},
			"mode":  "forever",
		},
		"root": "value",
	}

	tests := []struct {
		path string
		want any
	}{
		{"root", "value"},
		{"session.mode", "forever"},
		{"session.retry.delay", "5s"},
		{"missing", nil},
		{"root.child", nil},
	}
	for _, tt := range tests {
		if got := getNestedValue(data, tt.path); got != tt.want {
			t.Errorf("getNestedValue(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestLoadLoggingConfig(t *testing.T) {
	path := writeFile(t, "loopcast.toml", `
[logging]
level = "warn"
format = "json"
encoder = "debug"

[logging.modules]
monitor = "error"
`)

	cfg := LoadLoggingConfig(path)
	if cfg.Level != "warn" || cfg.Format != "json" {
		t.Errorf("level/format = %q/%q", cfg.Level, cfg.Format)
	}
	if cfg.Modules["encoder"] != "debug" {
		t.Errorf("encoder level = %q, want debug", cfg.Modules["encoder"])
	}
	if cfg.Modules["monitor"] != "error" {
		t.Errorf("monitor level = %q, want error", cfg.Modules["monitor"])
	}

	if def := LoadLoggingConfig(""); def.Level != "info" || def.Format != "text" {
		t.Errorf("defaults = %+v", def)
	}
}
