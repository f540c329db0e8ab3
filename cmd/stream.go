package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/smazurov/loopcast/internal/api"
	"github.com/smazurov/loopcast/internal/config"
	"github.com/smazurov/loopcast/internal/events"
	"github.com/smazurov/loopcast/internal/ffmpeg"
	"github.com/smazurov/loopcast/internal/logging"
	"github.com/smazurov/loopcast/internal/metrics/exporters"
	"github.com/smazurov/loopcast/internal/monitor"
	"github.com/smazurov/loopcast/internal/session"
	"github.com/smazurov/loopcast/internal/systemd"
)

// PrintStartupError reports a fatal configuration problem with its
// remediation hints.
func PrintStartupError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
	for _, hint := range config.Remediations(err) {
		fmt.Fprintf(w, "  -> %s\n", hint)
	}
}

// RunStream loads the stream configuration and supervises the encoder until
// ctx is cancelled or the restart policy is exhausted. It returns the
// process exit code.
func RunStream(ctx context.Context, opts *Options, in io.Reader, out io.Writer) int {
	logger := logging.GetLogger("main")

	stream, err := opts.LoadStream()
	if err != nil {
		PrintStartupError(out, err)
		return 1
	}

	bins := opts.Binaries()
	if err := bins.Check(); err != nil {
		fmt.Fprintf(out, "Error: %v\n  -> install ffmpeg or point --ffmpeg-path at it\n", err)
		return 1
	}

	mode := opts.Mode
	if mode == "" {
		if mode, err = session.PromptMode(in, out); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			return 1
		}
	}
	policy, err := session.PolicyForMode(mode, stream.Streaming)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return 1
	}

	bus := events.New()
	logging.SetLogCallback(api.LogPublisher(bus))
	defer logging.SetLogCallback(nil)

	monOpts := monitor.OptionsFromConfig(stream.Monitoring)
	monOpts.Publisher = bus
	mon, err := monitor.New(monOpts)
	if err != nil {
		logger.Warn("Resource monitoring disabled", "error", err)
		mon, _ = monitor.New(monitor.Options{})
	}
	defer func() {
		if closeErr := mon.Close(); closeErr != nil {
			logger.Warn("Failed to close monitor log", "error", closeErr)
		}
	}()

	notifier := systemd.NewNotifier()
	sup, err := session.NewSupervisor(session.Options{
		Stream:        stream,
		Policy:        policy,
		FFmpegPath:    bins.FFmpeg,
		Prober:        ffmpeg.NewProber(bins.FFprobe),
		Monitor:       mon,
		Publisher:     bus,
		OnStateChange: notifier.SessionHook(),
		PollInterval:  opts.PollInterval(),
		GracefulStop:  opts.GracefulStop(),
		KillTimeout:   opts.KillTimeout(),
	})
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return 1
	}

	logger.Info("Starting stream",
		"mode", mode,
		"video", stream.Video.File,
		"audio", stream.Audio.File,
		"destination", ffmpeg.MaskStreamKey(stream.DestinationURL()),
		"max_attempts", policy.MaxAttempts)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	var result session.Result
	g.Go(func() error {
		result = sup.Run(gctx)
		// the stream is over, release the helpers below
		cancel()
		return nil
	})

	if opts.StatusAddr != "" {
		srv := api.NewServer(&api.Options{
			AuthUsername:      opts.StatusUsername,
			AuthPassword:      opts.StatusPassword,
			Session:           sup,
			EventBus:          bus,
			PrometheusHandler: exporters.HTTPHandler(),
			RateLimit:         opts.StatusRateLimit,
		})
		g.Go(func() error {
			return srv.Run(gctx, opts.StatusAddr)
		})
	}

	if opts.WatchConfig {
		stop := watchStreamConfig(gctx, opts, sup, bus, logger)
		defer stop()
	}

	g.Go(func() error {
		reloadOnHangup(gctx, opts.StreamConfig, sup, bus, logger)
		return nil
	})

	g.Go(func() error {
		if wdErr := notifier.RunWatchdog(gctx); wdErr != nil {
			logger.Warn("systemd watchdog disabled", "error", wdErr)
		}
		return nil
	})

	sse := exporters.NewSSEExporter(bus)
	sse.SetInterval(opts.MetricsInterval())
	sse.Start(gctx)
	defer sse.Stop()

	groupErr := g.Wait()
	notifier.Stopping()

	switch result.Outcome {
	case session.OutcomeUserStopped:
		logger.Info("Stream stopped", "attempts", result.Attempts)
	case session.OutcomeExhausted:
		logger.Error("Giving up, restart attempts exhausted",
			"attempts", result.Attempts,
			"last_exit_code", result.LastExitCode,
			"error", result.Err)
	default:
		logger.Error("Stream ended", "outcome", result.Outcome, "error", result.Err)
	}

	if groupErr != nil {
		logger.Error("Status API failed", "error", groupErr)
		return 1
	}
	return result.ExitCode()
}

func watchStreamConfig(ctx context.Context, opts *Options, sup *session.Supervisor, bus *events.Bus, logger *slog.Logger) func() {
	w := config.NewConfigWatcher(
		opts.StreamConfig,
		config.LoadStream,
		logger,
		config.WithDebounce[*config.Stream](opts.ConfigDebounce()),
		config.WithErrorHandler[*config.Stream](func(err error) {
			for _, hint := range config.Remediations(err) {
				logger.Warn("Stream config change ignored", "hint", hint)
			}
		}),
	)
	w.OnReload(func(s *config.Stream) {
		sup.RequestReload(s)
		bus.Publish(events.ConfigReloadedEvent{
			Path:      opts.StreamConfig,
			Timestamp: time.Now().Format(time.RFC3339),
		})
	})

	if err := w.Start(ctx); err != nil {
		logger.Warn("Failed to start config watcher, hot-reload disabled", "error", err)
		return func() {}
	}
	return func() { _ = w.Stop() }
}

// reloadOnHangup re-reads the stream config on SIGHUP.
func reloadOnHangup(ctx context.Context, path string, sup *session.Supervisor, bus *events.Bus, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			s, err := config.LoadStream(path)
			if err != nil {
				var verr *config.ValidationError
				if errors.As(err, &verr) {
					logger.Warn("Reload rejected", "key", verr.Key, "error", verr.Err, "hint", verr.Hint)
				} else {
					logger.Warn("Reload rejected", "error", err)
				}
				continue
			}
			logger.Info("Reloading stream config", "signal", "SIGHUP", "path", path)
			sup.RequestReload(s)
			bus.Publish(events.ConfigReloadedEvent{
				Path:      path,
				Timestamp: time.Now().Format(time.RFC3339),
			})
		}
	}
}
