package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/loopcast/cmd"
	"github.com/smazurov/loopcast/internal/config"
	"github.com/smazurov/loopcast/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *cmd.Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		// Modules without a flag of their own can still be tuned in [logging]
		logCfg := opts.LoggingConfig()
		for module, level := range config.LoadLoggingConfig(opts.Config).Modules {
			if _, ok := logCfg.Modules[module]; !ok {
				logCfg.Modules[module] = level
			}
		}
		logging.Initialize(logCfg)

		hooks.OnStart(func() {
			code := cmd.RunStream(ctx, opts, os.Stdin, os.Stdout)
			stop()
			os.Exit(code)
		})
	})

	root := cli.Root()
	root.Use = "loopcast"
	root.Short = "Loop a video and an audio file to an RTMP ingest"
	root.SetContext(ctx)

	root.AddCommand(cmd.ValidateCmd)
	root.AddCommand(cmd.CreateDiagnoseCmd())
	root.AddCommand(cmd.CreateBandwidthCmd())
	root.AddCommand(cmd.CreatePreviewCrossfadeCmd())
	root.AddCommand(cmd.CreateUpdateCmd())
	root.AddCommand(cmd.CreateVersionCmd())

	// Run the CLI
	cli.Run()
}
