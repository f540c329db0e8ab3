package ffmpeg

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

const sampleProbe = `{
  "streams": [
    {"index": 0, "codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080,
     "avg_frame_rate": "30000/1001", "r_frame_rate": "30/1", "bit_rate": "8000000", "duration": "120.120000"},
    {"index": 1, "codec_type": "audio", "codec_name": "aac", "sample_rate": "48000", "channels": 2,
     "bit_rate": "192000", "duration": "120.000000"}
  ],
  "format": {"filename": "loop.mp4", "format_name": "mov,mp4,m4a,3gp,3g2,mj2", "duration": "120.120000", "bit_rate": "8200000"}
}`

func TestParseProbeOutput(t *testing.T) {
	result, err := ParseProbeOutput([]byte(sampleProbe))
	if err != nil {
		t.Fatalf("ParseProbeOutput: %v", err)
	}

	d, err := result.Duration()
	if err != nil || d != 120.12 {
		t.Errorf("Duration = %v, %v; want 120.12", d, err)
	}

	v := result.FirstVideo()
	if v == nil || v.CodecName != "h264" || v.Width != 1920 || v.Height != 1080 {
		t.Fatalf("FirstVideo = %+v", v)
	}
	if fps := v.FrameRate(); math.Abs(fps-29.97) > 0.01 {
		t.Errorf("FrameRate = %v, want ~29.97", fps)
	}
	if kbps := v.BitRateKbps(); kbps != 8000 {
		t.Errorf("BitRateKbps = %v, want 8000", kbps)
	}

	a := result.FirstAudio()
	if a == nil || a.CodecName != "aac" || a.Channels != 2 {
		t.Errorf("FirstAudio = %+v", a)
	}
}

func TestProbeDurationFallsBackToStreams(t *testing.T) {
	r := &ProbeResult{Streams: []ProbeStream{{Duration: "10.5"}, {Duration: "12.25"}}}
	if d, err := r.Duration(); err != nil || d != 12.25 {
		t.Errorf("Duration = %v, %v; want 12.25", d, err)
	}

	if _, err := (&ProbeResult{Format: ProbeFormat{Duration: "N/A"}}).Duration(); !errors.Is(err, ErrNoDuration) {
		t.Errorf("err = %v, want ErrNoDuration", err)
	}
}

func TestParseProbeOutputInvalid(t *testing.T) {
	if _, err := ParseProbeOutput([]byte("not json")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestProberRunsBinary(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "ffprobe")
	body := "#!/bin/sh\ncat <<'EOF'\n" + sampleProbe + "\nEOF\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}

	d, err := ProbeDuration(context.Background(), NewProber(script), "loop.mp4")
	if err != nil {
		t.Fatalf("ProbeDuration: %v", err)
	}
	if d != 120.12 {
		t.Errorf("duration = %v, want 120.12", d)
	}
}

func TestProberReportsFailure(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "ffprobe")
	body := "#!/bin/sh\necho 'missing.mp3: No such file or directory' >&2\nexit 1\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}

	_, err := NewProber(script).Probe(context.Background(), "missing.mp3")
	if err == nil {
		t.Fatal("expected error from failing ffprobe")
	}
}

func TestResolveBinaries(t *testing.T) {
	dir := t.TempDir()
	ffmpeg := filepath.Join(dir, "ffmpeg")
	ffprobe := filepath.Join(dir, "ffprobe")
	for _, p := range []string{ffmpeg, ffprobe} {
		if err := os.WriteFile(p, []byte("#!/bin/sh\n"), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name        string
		ffmpeg      string
		ffprobe     string
		wantFFmpeg  string
		wantFFprobe string
	}{
		{"defaults", "", "", DefaultFFmpegPath, DefaultFFprobePath},
		{"explicit ffprobe wins", ffmpeg, "/opt/ffprobe", ffmpeg, "/opt/ffprobe"},
		{"sibling derived", ffmpeg, "", ffmpeg, ffprobe},
		{"bare name not derived", "ffmpeg", "", "ffmpeg", DefaultFFprobePath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := ResolveBinaries(tt.ffmpeg, tt.ffprobe)
			if b.FFmpeg != tt.wantFFmpeg || b.FFprobe != tt.wantFFprobe {
				t.Errorf("got %+v, want ffmpeg=%q ffprobe=%q", b, tt.wantFFmpeg, tt.wantFFprobe)
			}
		})
	}
}
