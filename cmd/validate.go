package cmd

import (
	"fmt"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/smazurov/loopcast/internal/ffmpeg"
	"github.com/smazurov/loopcast/internal/session"
)

// ValidateCmd loads and validates the stream configuration and prints the
// encoder command it produces. The stream key is masked.
var ValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the stream configuration and print the encoder command",
	Args:  cobra.NoArgs,
	Run: humacli.WithOptions(func(cmd *cobra.Command, _ []string, opts *Options) {
		out := cmd.OutOrStdout()

		stream, err := opts.LoadStream()
		if err != nil {
			PrintStartupError(out, err)
			os.Exit(1)
		}
		fmt.Fprintf(out, "Configuration %s is valid\n", opts.StreamConfig)

		bins := opts.Binaries()
		plan := ffmpeg.SingleTrack("ffprobe not available")
		if checkErr := bins.Check(); checkErr != nil {
			fmt.Fprintf(out, "Warning: %v\n", checkErr)
		} else if probe, _ := cmd.Flags().GetBool("probe"); probe {
			plan = ffmpeg.PlanAudio(cmd.Context(), ffmpeg.NewProber(bins.FFprobe), stream.Audio)
		} else {
			plan = ffmpeg.SingleTrack("audio not probed, pass --probe")
		}

		if policy, policyErr := session.PolicyForMode(session.ModeRestart, stream.Streaming); policyErr == nil {
			limit := fmt.Sprint(policy.MaxAttempts)
			if policy.MaxAttempts == session.Unlimited {
				limit = "unlimited"
			}
			fmt.Fprintf(out, "Restart policy: %s attempts, %s apart\n", limit, policy.Delay)
		}

		command := ffmpeg.Build(stream, plan, bins.FFmpeg)
		fmt.Fprintf(out, "Video: %s\n", command.Video)
		fmt.Fprintf(out, "Audio: %s", command.Audio)
		if plan.Reason != "" {
			fmt.Fprintf(out, " (%s)", plan.Reason)
		}
		fmt.Fprintf(out, "\n\n%s\n", command)
	}),
}

func init() {
	ValidateCmd.Flags().Bool("probe", true, "Probe the audio file to decide on crossfading")
}
