package ffmpeg

import (
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/smazurov/loopcast/internal/config"
)

func testStream(codec, preset string) *config.Stream {
	return &config.Stream{
		Video: config.Video{
			File:             "/media/loop.mp4",
			Codec:            codec,
			Bitrate:          "10M",
			MaxRate:          "12M",
			Resolution:       "1920x1080",
			Preset:           preset,
			KeyframeInterval: 2,
		},
		Audio: config.Audio{
			File:             "/media/music.mp3",
			Codec:            "aac",
			Bitrate:          "192k",
			Crossfade:        true,
			CrossfadeSeconds: 8,
		},
		Streaming: config.Streaming{BufferSize: "50M"},
		Endpoint:  config.Endpoint{RTMPURL: "rtmp://a.rtmp.youtube.com/live2", StreamKey: "abcd-1234"},
	}
}

var (
	inputArgs = []string{
		"-hide_banner", "-loglevel", "level+info",
		"-probesize", "50M", "-analyzeduration", "30000000",
		"-stream_loop", "-1", "-i", "/media/loop.mp4",
		"-stream_loop", "-1", "-i", "/media/music.mp3",
	}
	outputArgs = []string{
		"-f", "flv", "-flvflags", "no_duration_filesize",
		"-max_muxing_queue_size", "9999", "-fflags", "+genpts",
		"-reconnect", "1", "-reconnect_streamed", "1", "-reconnect_delay_max", "5",
		"rtmp://a.rtmp.youtube.com/live2/abcd-1234",
	}
	singleAudioArgs = []string{"-map", "1:a:0", "-c:a", "aac", "-b:a", "192k", "-ar", "48000"}
)

func concat(parts ...[]string) []string {
	var out []string
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestBuildCopySingle(t *testing.T) {
	cmd := Build(testStream("copy", "veryfast"), SingleTrack("test"), "")

	want := concat(
		inputArgs,
		[]string{"-map", "0:v:0", "-c:v", "copy", "-bufsize", "50M"},
		singleAudioArgs,
		outputArgs,
	)
	if diff := cmp.Diff(want, cmd.Args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
	if cmd.Path != DefaultFFmpegPath {
		t.Errorf("Path = %q, want %q", cmd.Path, DefaultFFmpegPath)
	}
	if cmd.Video != VideoCopy || cmd.Audio != AudioSingle {
		t.Errorf("modes = %v/%v, want copy/single", cmd.Video, cmd.Audio)
	}

	for _, flag := range []string{"-preset", "-b:v", "-maxrate", "-g", "-refs"} {
		if slices.Contains(cmd.Args, flag) {
			t.Errorf("copy mode must not carry %s", flag)
		}
	}
}

func TestBuildEncodeSingle(t *testing.T) {
	s := testStream("libx264", "medium")
	s.Video.Tune = "film"
	cmd := Build(s, SingleTrack("test"), "/usr/local/bin/ffmpeg")

	want := concat(
		inputArgs,
		[]string{
			"-map", "0:v:0", "-c:v", "libx264",
			"-preset", "medium", "-b:v", "10M", "-maxrate", "12M", "-bufsize", "50M",
			"-s", "1920x1080", "-r", "30", "-g", "60", "-keyint_min", "60", "-sc_threshold", "0",
			"-pix_fmt", "yuv420p", "-profile:v", "high", "-level", "4.2",
			"-tune", "film", "-refs", "3", "-bf", "3",
		},
		singleAudioArgs,
		outputArgs,
	)
	if diff := cmp.Diff(want, cmd.Args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
	if cmd.Argv()[0] != "/usr/local/bin/ffmpeg" {
		t.Errorf("argv[0] = %q", cmd.Argv()[0])
	}
}

func TestBuildCopyCrossfade(t *testing.T) {
	plan := PlanForDuration(30, 8)
	cmd := Build(testStream("copy", ""), plan, "")

	want := concat(
		inputArgs,
		[]string{"-stream_loop", "-1", "-i", "/media/music.mp3"},
		[]string{"-map", "0:v:0", "-c:v", "copy", "-bufsize", "50M"},
		[]string{
			"-filter_complex",
			"[1:a]afade=t=out:st=22:d=8:curve=qsin[a1];" +
				"[2:a]adelay=22000|22000,afade=t=in:st=0:d=8:curve=qsin[a2];" +
				"[a1][a2]amix=inputs=2:duration=first:dropout_transition=0[aout]",
			"-map", "[aout]",
			"-c:a", "aac", "-b:a", "192k", "-ar", "48000",
		},
		outputArgs,
	)
	if diff := cmp.Diff(want, cmd.Args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
	if cmd.Audio != AudioCrossfade {
		t.Errorf("Audio = %v, want crossfade", cmd.Audio)
	}
}

func TestBuildEncodeCrossfade(t *testing.T) {
	cmd := Build(testStream("libx264", "veryfast"), PlanForDuration(185.5, 8), "")

	if cmd.Video != VideoEncode || cmd.Audio != AudioCrossfade {
		t.Fatalf("modes = %v/%v, want encode/crossfade", cmd.Video, cmd.Audio)
	}
	if n := countInputs(cmd.Args); n != 3 {
		t.Errorf("inputs = %d, want 3 (video once, audio twice)", n)
	}

	graph := argAfter(cmd.Args, "-filter_complex")
	for _, part := range []string{"st=177.5:d=8", "adelay=177500|177500"} {
		if !strings.Contains(graph, part) {
			t.Errorf("filter graph %q missing %q", graph, part)
		}
	}
	if argAfter(cmd.Args, "-refs") != "2" || argAfter(cmd.Args, "-bf") != "2" {
		t.Errorf("veryfast preset should use 2 refs and 2 B-frames")
	}
}

func TestReferenceFramesByPreset(t *testing.T) {
	tests := map[string]int{
		"veryfast":  2,
		"faster":    2,
		"fast":      2,
		"medium":    3,
		"slow":      3,
		"ultrafast": 3,
		"":          3,
	}
	for preset, want := range tests {
		if got := ReferenceFrames(preset); got != want {
			t.Errorf("ReferenceFrames(%q) = %d, want %d", preset, got, want)
		}
	}
	for _, preset := range FastPresets {
		if got := ReferenceFrames(preset); got != 2 {
			t.Errorf("fast preset %q gets %d reference frames, want 2", preset, got)
		}
	}
}

func TestGOPSize(t *testing.T) {
	tests := []struct {
		seconds float64
		want    int
	}{
		{0, 60},
		{2, 60},
		{1, 30},
		{4, 120},
		{2.5, 75},
		{0.51, 15},
		{0.001, 1},
	}
	for _, tt := range tests {
		if got := GOPSize(tt.seconds); got != tt.want {
			t.Errorf("GOPSize(%v) = %d, want %d", tt.seconds, got, tt.want)
		}
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	s := testStream("libx264", "fast")
	plan := PlanForDuration(120, 8)
	first := Build(s, plan, "")
	second := Build(s, plan, "")
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("two builds differ:\n%s", diff)
	}
}

func TestCommandStringMasksStreamKey(t *testing.T) {
	cmd := Build(testStream("copy", ""), SingleTrack(""), "")
	s := cmd.String()
	if strings.Contains(s, "abcd-1234") {
		t.Errorf("stream key leaked into %q", s)
	}
	if !strings.HasSuffix(s, "rtmp://a.rtmp.youtube.com/live2/abcd*****") {
		t.Errorf("unexpected masked URL in %q", s)
	}
}

func countInputs(args []string) int {
	n := 0
	for _, a := range args {
		if a == "-i" {
			n++
		}
	}
	return n
}

func argAfter(args []string, flag string) string {
	i := slices.Index(args, flag)
	if i < 0 || i+1 >= len(args) {
		return ""
	}
	return args[i+1]
}
