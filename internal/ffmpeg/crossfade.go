package ffmpeg

import (
	"context"
	"fmt"
	"strconv"

	"github.com/smazurov/loopcast/internal/config"
)

// AudioPlan is the outcome of deciding how the audio loop is rendered.
type AudioPlan struct {
	Mode     AudioMode
	Duration float64 // probed duration in seconds, zero when unknown
	Window   float64 // crossfade window in seconds
	Reason   string  // why crossfade is not used, empty otherwise
}

// SingleTrack returns a plan without crossfade.
func SingleTrack(reason string) AudioPlan {
	return AudioPlan{Mode: AudioSingle, Reason: reason}
}

// PlanAudio decides whether the audio loop can be crossfaded. Probe
// failures never abort the session; they degrade to a single track with
// the reason recorded.
func PlanAudio(ctx context.Context, prober MediaProber, audio config.Audio) AudioPlan {
	if !audio.Crossfade {
		return SingleTrack("crossfade disabled in config")
	}
	if prober == nil {
		return SingleTrack("no media prober available")
	}

	duration, err := ProbeDuration(ctx, prober, audio.File)
	if err != nil {
		return SingleTrack(fmt.Sprintf("duration probe failed: %v", err))
	}
	return PlanForDuration(duration, audio.CrossfadeSeconds)
}

// PlanForDuration applies the crossfade rule to a known duration: the loop
// must be longer than two windows.
func PlanForDuration(duration, window float64) AudioPlan {
	if window <= 0 {
		window = config.DefaultCrossfadeSeconds
	}
	if duration <= 2*window {
		plan := SingleTrack(fmt.Sprintf("audio is %.2fs, crossfade needs more than %.2fs", duration, 2*window))
		plan.Duration = duration
		plan.Window = window
		return plan
	}
	return AudioPlan{Mode: AudioCrossfade, Duration: duration, Window: window}
}

// CrossfadeFilter builds the filter graph that fades input a out over its
// last window seconds, delays input b by delayMs, fades it in, and mixes
// both into [aout].
func CrossfadeFilter(a, b int, fadeOutStart, window float64, delayMs int64) string {
	w := formatSeconds(window)
	return fmt.Sprintf(
		"[%d:a]afade=t=out:st=%s:d=%s:curve=qsin[a1];"+
			"[%d:a]adelay=%d|%d,afade=t=in:st=0:d=%s:curve=qsin[a2];"+
			"[a1][a2]amix=inputs=2:duration=first:dropout_transition=0[aout]",
		a, formatSeconds(fadeOutStart), w,
		b, delayMs, delayMs, w,
	)
}

// PreviewOptions configures a crossfade preview render.
type PreviewOptions struct {
	Binary string
	Loops  int // extra repetitions of the source, 3 renders four passes
	Output string
}

// BuildCrossfadePreview renders the crossfaded loop into a WAV file so the
// seam can be checked before going live.
func BuildCrossfadePreview(audioFile string, plan AudioPlan, opts PreviewOptions) (*Command, error) {
	if plan.Mode != AudioCrossfade {
		return nil, fmt.Errorf("crossfade not applicable: %s", plan.Reason)
	}
	if opts.Binary == "" {
		opts.Binary = DefaultFFmpegPath
	}
	if opts.Loops <= 0 {
		opts.Loops = 3
	}
	if opts.Output == "" {
		opts.Output = fmt.Sprintf("crossfade_preview_%dx.wav", opts.Loops+1)
	}

	start := plan.Duration - plan.Window
	loops := strconv.Itoa(opts.Loops)
	b := &argBuilder{}
	b.add("-hide_banner", "-loglevel", "level+info", "-y")
	b.add("-stream_loop", loops, "-i", audioFile)
	b.add("-stream_loop", loops, "-i", audioFile)
	b.add("-filter_complex", CrossfadeFilter(0, 1, start, plan.Window, int64(start*1000)))
	b.add("-map", "[aout]", "-c:a", "pcm_s16le", "-ar", strconv.Itoa(AudioSampleRate), opts.Output)

	return &Command{Path: opts.Binary, Args: b.args, Video: VideoCopy, Audio: AudioCrossfade}, nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
