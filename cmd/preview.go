package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/smazurov/loopcast/internal/ffmpeg"
	"github.com/smazurov/loopcast/internal/logging"
	"github.com/smazurov/loopcast/internal/process"
)

// CreatePreviewCrossfadeCmd creates the preview-crossfade command.
func CreatePreviewCrossfadeCmd() *cobra.Command {
	var output string
	var loops int
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "preview-crossfade",
		Short: "Render the crossfaded audio loop to a WAV file",
		Long: `Renders several passes of the configured audio file with the same crossfade ` +
			`the stream uses, so the loop seam can be checked before going live.`,
		Args: cobra.NoArgs,
		Run: humacli.WithOptions(func(cmd *cobra.Command, _ []string, opts *Options) {
			stream, err := opts.LoadStream()
			if err != nil {
				PrintStartupError(os.Stderr, err)
				os.Exit(1)
			}
			bins := opts.Binaries()
			if err := bins.Check(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}

			audio := stream.Audio
			audio.Crossfade = true
			plan := ffmpeg.PlanAudio(cmd.Context(), ffmpeg.NewProber(bins.FFprobe), audio)
			preview, err := ffmpeg.BuildCrossfadePreview(audio.File, plan, ffmpeg.PreviewOptions{
				Binary: bins.FFmpeg,
				Loops:  loops,
				Output: output,
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}

			fmt.Printf("Audio duration: %.2fs, crossfade: %.2fs\n", plan.Duration, plan.Window)
			fmt.Println(preview)
			if dryRun {
				return
			}

			code := renderPreview(cmd.Context(), preview.Argv())
			if code != 0 {
				fmt.Fprintf(os.Stderr, "ffmpeg exited with code %d\n", code)
				os.Exit(1)
			}
			fmt.Printf("Preview written to %s\n", preview.Args[len(preview.Args)-1])
		}),
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output WAV file (default crossfade_preview_<passes>x.wav)")
	cmd.Flags().IntVar(&loops, "loops", 3, "Extra passes of the audio file")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the command without running it")

	return cmd
}

func renderPreview(ctx context.Context, argv []string) int {
	p := process.New("preview", argv, logging.GetLogger("main"),
		process.WithOutputLogger(logging.GetLogger("encoder")))
	if err := p.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return process.ExitCodeStartError
	}
	select {
	case <-ctx.Done():
		return p.Stop()
	case <-p.Done():
		code, _ := p.Wait()
		return code
	}
}
