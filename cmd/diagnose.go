package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/prometheus/procfs"
	"github.com/spf13/cobra"

	"github.com/smazurov/loopcast/internal/diagnostics"
	"github.com/smazurov/loopcast/internal/ffmpeg"
	"github.com/smazurov/loopcast/internal/logging"
)

// CreateDiagnoseCmd creates the diagnose command.
func CreateDiagnoseCmd() *cobra.Command {
	var host string
	var count int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Check the source, network and encoder for streaming problems",
		Long: `Probes the configured video, pings the ingest server, computes the upload ` +
			`bandwidth the stream needs, lists running ffmpeg processes and suggests configuration changes.`,
		Args: cobra.NoArgs,
		Run: humacli.WithOptions(func(cmd *cobra.Command, _ []string, opts *Options) {
			stream, err := opts.LoadStream()
			if err != nil {
				PrintStartupError(os.Stderr, err)
				os.Exit(1)
			}

			var out io.Writer = os.Stdout
			if asJSON {
				out = os.Stderr
			}

			dopts := diagnostics.Options{
				Stream:    stream,
				Prober:    ffmpeg.NewProber(opts.Binaries().FFprobe),
				Pinger:    diagnostics.ExecPinger{},
				Host:      host,
				PingCount: count,
				Out:       out,
			}
			if fs, fsErr := procfs.NewDefaultFS(); fsErr == nil {
				dopts.ProcFS = &fs
			} else {
				logging.GetLogger("diagnostics").Debug("procfs unavailable, skipping process check", "error", fsErr)
			}

			report := diagnostics.Run(cmd.Context(), dopts)

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(report); encErr != nil {
					fmt.Fprintf(os.Stderr, "Error: %v\n", encErr)
					os.Exit(1)
				}
			}
		}),
	}

	cmd.Flags().StringVar(&host, "host", diagnostics.DefaultIngestHost, "Ingest host to ping")
	cmd.Flags().IntVar(&count, "count", 10, "Number of pings")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Write the report as JSON to stdout (text goes to stderr)")

	return cmd
}

// CreateBandwidthCmd creates the bandwidth command.
func CreateBandwidthCmd() *cobra.Command {
	var host string

	cmd := &cobra.Command{
		Use:   "bandwidth",
		Short: "Quick upload check for the configured bitrates",
		Args:  cobra.NoArgs,
		Run: humacli.WithOptions(func(cmd *cobra.Command, _ []string, opts *Options) {
			stream, err := opts.LoadStream()
			if err != nil {
				PrintStartupError(os.Stderr, err)
				os.Exit(1)
			}

			err = diagnostics.RunBandwidth(cmd.Context(), diagnostics.Options{
				Stream: stream,
				Pinger: diagnostics.ExecPinger{},
				Host:   host,
				Out:    os.Stdout,
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}),
	}

	cmd.Flags().StringVar(&host, "host", diagnostics.DefaultIngestHost, "Ingest host to ping")

	return cmd
}
