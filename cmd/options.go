package cmd

import (
	"time"

	"github.com/smazurov/loopcast/internal/config"
	"github.com/smazurov/loopcast/internal/ffmpeg"
	"github.com/smazurov/loopcast/internal/logging"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to settings file" short:"c" default:"loopcast.toml"`

	// Stream settings
	StreamConfig string `help:"Stream configuration (JSON)" default:"config.json" toml:"stream.config_file" env:"STREAM_CONFIG"`
	Mode         string `help:"Run mode: once, restart or forever (prompts when empty)" toml:"stream.mode" env:"MODE"`
	WatchConfig  bool   `help:"Apply stream config changes with a graceful restart" default:"false" toml:"stream.watch_config" env:"WATCH_CONFIG"`

	// Encoder binaries
	FfmpegPath  string `help:"ffmpeg binary" default:"ffmpeg" toml:"ffmpeg.path" env:"FFMPEG_PATH"`
	FfprobePath string `help:"ffprobe binary (next to ffmpeg or on PATH when empty)" toml:"ffmpeg.ffprobe_path" env:"FFPROBE_PATH"`

	// Supervisor timings
	PollIntervalMs    int `help:"Encoder liveness poll interval in milliseconds" default:"1000" toml:"supervisor.poll_interval_ms" env:"SUPERVISOR_POLL_INTERVAL_MS"`
	GracefulStopMs    int `help:"Wait after SIGINT before killing the encoder, in milliseconds" default:"5000" toml:"supervisor.graceful_stop_ms" env:"SUPERVISOR_GRACEFUL_STOP_MS"`
	KillTimeoutMs     int `help:"Wait after SIGKILL, in milliseconds" default:"5000" toml:"supervisor.kill_timeout_ms" env:"SUPERVISOR_KILL_TIMEOUT_MS"`
	ConfigDebounceMs  int `help:"Quiet period before a changed stream config is reloaded" default:"1500" toml:"supervisor.config_debounce_ms" env:"SUPERVISOR_CONFIG_DEBOUNCE_MS"`
	MetricsIntervalMs int `help:"Encoder metrics event interval in milliseconds" default:"1000" toml:"obs.sse_interval_ms" env:"OBS_SSE_INTERVAL_MS"`

	// Status API
	StatusAddr      string `help:"Status API listen address (disabled when empty)" toml:"server.status_addr" env:"STATUS_ADDR"`
	StatusUsername  string `help:"Status API basic auth username (no auth when empty)" toml:"auth.username" env:"AUTH_USERNAME"`
	StatusPassword  string `help:"Status API basic auth password" toml:"auth.password" env:"AUTH_PASSWORD"`
	StatusRateLimit int    `help:"Status API requests per minute per client (0 disables)" default:"600" toml:"server.rate_limit" env:"STATUS_RATE_LIMIT"`

	// Logging settings
	LoggingLevel       string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat      string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingSession     string `help:"Session supervisor logging level" default:"info" toml:"logging.session" env:"LOGGING_SESSION"`
	LoggingEncoder     string `help:"Encoder output logging level" default:"info" toml:"logging.encoder" env:"LOGGING_ENCODER"`
	LoggingMonitor     string `help:"Resource monitor logging level" default:"info" toml:"logging.monitor" env:"LOGGING_MONITOR"`
	LoggingAPI         string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingDiagnostics string `help:"Diagnostics logging level" default:"info" toml:"logging.diagnostics" env:"LOGGING_DIAGNOSTICS"`
}

// LoggingConfig maps the logging options.
func (o *Options) LoggingConfig() logging.Config {
	return logging.Config{
		Level:  o.LoggingLevel,
		Format: o.LoggingFormat,
		Modules: map[string]string{
			"session":     o.LoggingSession,
			"encoder":     o.LoggingEncoder,
			"monitor":     o.LoggingMonitor,
			"api":         o.LoggingAPI,
			"http":        o.LoggingAPI,
			"diagnostics": o.LoggingDiagnostics,
		},
	}
}

// Binaries resolves the ffmpeg and ffprobe paths.
func (o *Options) Binaries() ffmpeg.Binaries {
	return ffmpeg.ResolveBinaries(o.FfmpegPath, o.FfprobePath)
}

// LoadStream loads and validates the stream configuration.
func (o *Options) LoadStream() (*config.Stream, error) {
	return config.LoadStream(o.StreamConfig)
}

func millis(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// PollInterval returns the configured poll interval.
func (o *Options) PollInterval() time.Duration { return millis(o.PollIntervalMs) }

// GracefulStop returns the configured graceful stop window.
func (o *Options) GracefulStop() time.Duration { return millis(o.GracefulStopMs) }

// KillTimeout returns the configured wait after SIGKILL.
func (o *Options) KillTimeout() time.Duration { return millis(o.KillTimeoutMs) }

// ConfigDebounce returns the stream config reload debounce.
func (o *Options) ConfigDebounce() time.Duration { return millis(o.ConfigDebounceMs) }

// MetricsInterval returns the encoder metrics event interval.
func (o *Options) MetricsInterval() time.Duration { return millis(o.MetricsIntervalMs) }
