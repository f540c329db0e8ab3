package ffmpeg

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/smazurov/loopcast/internal/config"
)

type fakeProber struct {
	result *ProbeResult
	err    error
	calls  int
}

func (f *fakeProber) Probe(context.Context, string) (*ProbeResult, error) {
	f.calls++
	return f.result, f.err
}

func durationResult(d string) *ProbeResult {
	return &ProbeResult{Format: ProbeFormat{Duration: d}}
}

func TestPlanAudio(t *testing.T) {
	audio := config.Audio{File: "music.mp3", Crossfade: true, CrossfadeSeconds: 8}

	tests := []struct {
		name       string
		audio      config.Audio
		prober     *fakeProber
		wantMode   AudioMode
		wantReason string
	}{
		{
			name:     "long track crossfades",
			audio:    audio,
			prober:   &fakeProber{result: durationResult("180.000000")},
			wantMode: AudioCrossfade,
		},
		{
			name:       "exactly two windows is too short",
			audio:      audio,
			prober:     &fakeProber{result: durationResult("16.0")},
			wantMode:   AudioSingle,
			wantReason: "crossfade needs more than 16.00s",
		},
		{
			name:       "probe failure degrades",
			audio:      audio,
			prober:     &fakeProber{err: errors.New("exit status 1")},
			wantMode:   AudioSingle,
			wantReason: "duration probe failed",
		},
		{
			name:       "missing duration degrades",
			audio:      audio,
			prober:     &fakeProber{result: &ProbeResult{}},
			wantMode:   AudioSingle,
			wantReason: ErrNoDuration.Error(),
		},
		{
			name:       "disabled in config",
			audio:      config.Audio{File: "music.mp3", CrossfadeSeconds: 8},
			prober:     &fakeProber{result: durationResult("300")},
			wantMode:   AudioSingle,
			wantReason: "disabled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := PlanAudio(context.Background(), tt.prober, tt.audio)
			if plan.Mode != tt.wantMode {
				t.Errorf("Mode = %v, want %v (reason %q)", plan.Mode, tt.wantMode, plan.Reason)
			}
			if !strings.Contains(plan.Reason, tt.wantReason) {
				t.Errorf("Reason = %q, want it to contain %q", plan.Reason, tt.wantReason)
			}
		})
	}
}

func TestPlanAudioSkipsProbeWhenDisabled(t *testing.T) {
	p := &fakeProber{result: durationResult("300")}
	PlanAudio(context.Background(), p, config.Audio{Crossfade: false})
	if p.calls != 0 {
		t.Errorf("prober called %d times for disabled crossfade", p.calls)
	}
}

func TestCrossfadeFilter(t *testing.T) {
	got := CrossfadeFilter(1, 2, 172.048, 8, 172048)
	want := "[1:a]afade=t=out:st=172.048:d=8:curve=qsin[a1];" +
		"[2:a]adelay=172048|172048,afade=t=in:st=0:d=8:curve=qsin[a2];" +
		"[a1][a2]amix=inputs=2:duration=first:dropout_transition=0[aout]"
	if got != want {
		t.Errorf("CrossfadeFilter =\n%s\nwant\n%s", got, want)
	}
}

func TestBuildCrossfadePreview(t *testing.T) {
	cmd, err := BuildCrossfadePreview("music.mp3", PlanForDuration(60, 8), PreviewOptions{})
	if err != nil {
		t.Fatalf("BuildCrossfadePreview: %v", err)
	}

	want := []string{
		"-hide_banner", "-loglevel", "level+info", "-y",
		"-stream_loop", "3", "-i", "music.mp3",
		"-stream_loop", "3", "-i", "music.mp3",
		"-filter_complex",
		"[0:a]afade=t=out:st=52:d=8:curve=qsin[a1];" +
			"[1:a]adelay=52000|52000,afade=t=in:st=0:d=8:curve=qsin[a2];" +
			"[a1][a2]amix=inputs=2:duration=first:dropout_transition=0[aout]",
		"-map", "[aout]", "-c:a", "pcm_s16le", "-ar", "48000",
		"crossfade_preview_4x.wav",
	}
	if diff := cmp.Diff(want, cmd.Args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildCrossfadePreviewRejectsShortTrack(t *testing.T) {
	if _, err := BuildCrossfadePreview("short.mp3", PlanForDuration(10, 8), PreviewOptions{}); err == nil {
		t.Fatal("expected error for a track shorter than two windows")
	}
}
