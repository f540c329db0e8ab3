package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ErrNoDuration is returned when the probe output carries no usable duration.
var ErrNoDuration = errors.New("media duration unavailable")

// DefaultProbeTimeout bounds a single ffprobe run.
const DefaultProbeTimeout = 15 * time.Second

// ProbeResult is the subset of ffprobe JSON output loopcast reads.
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

// ProbeFormat is the container section of the probe output.
type ProbeFormat struct {
	Filename   string `json:"filename"`
	Duration   string `json:"duration"`
	BitRate    string `json:"bit_rate"`
	FormatName string `json:"format_name"`
}

// ProbeStream is one elementary stream of the probe output.
type ProbeStream struct {
	Index        int    `json:"index"`
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	BitRate      string `json:"bit_rate,omitempty"`
	AvgFrameRate string `json:"avg_frame_rate,omitempty"`
	RFrameRate   string `json:"r_frame_rate,omitempty"`
	SampleRate   string `json:"sample_rate,omitempty"`
	Channels     int    `json:"channels,omitempty"`
	Duration     string `json:"duration,omitempty"`
}

// Duration returns the container duration in seconds, falling back to the
// longest stream duration.
func (r *ProbeResult) Duration() (float64, error) {
	if d, err := strconv.ParseFloat(strings.TrimSpace(r.Format.Duration), 64); err == nil && d > 0 {
		return d, nil
	}
	var longest float64
	for _, s := range r.Streams {
		if d, err := strconv.ParseFloat(s.Duration, 64); err == nil && d > longest {
			longest = d
		}
	}
	if longest > 0 {
		return longest, nil
	}
	return 0, ErrNoDuration
}

// FirstVideo returns the first video stream, or nil.
func (r *ProbeResult) FirstVideo() *ProbeStream {
	return r.first("video")
}

// FirstAudio returns the first audio stream, or nil.
func (r *ProbeResult) FirstAudio() *ProbeStream {
	return r.first("audio")
}

func (r *ProbeResult) first(codecType string) *ProbeStream {
	for i := range r.Streams {
		if r.Streams[i].CodecType == codecType {
			return &r.Streams[i]
		}
	}
	return nil
}

// FrameRate evaluates a rational rate such as "30000/1001".
func (s *ProbeStream) FrameRate() float64 {
	rate := s.AvgFrameRate
	if rate == "" || rate == "0/0" {
		rate = s.RFrameRate
	}
	num, den, found := strings.Cut(rate, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// BitRateKbps returns the stream bitrate in kbit/s, zero when unknown.
func (s *ProbeStream) BitRateKbps() float64 {
	b, err := strconv.ParseFloat(s.BitRate, 64)
	if err != nil {
		return 0
	}
	return b / 1000
}

// MediaProber inspects a media file.
type MediaProber interface {
	Probe(ctx context.Context, path string) (*ProbeResult, error)
}

// Prober runs ffprobe and decodes its JSON output.
type Prober struct {
	Binary  string
	Timeout time.Duration
}

// NewProber returns a prober for binary, or the default ffprobe from PATH.
func NewProber(binary string) *Prober {
	if binary == "" {
		binary = DefaultFFprobePath
	}
	return &Prober{Binary: binary, Timeout: DefaultProbeTimeout}
}

// Probe implements MediaProber.
func (p *Prober) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, p.Binary, ProbeArgs(path)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("ffprobe %s: %w: %s", path, err, msg)
		}
		return nil, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	return ParseProbeOutput(out)
}

// ProbeArgs returns the ffprobe arguments used to inspect path.
func ProbeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}
}

// ParseProbeOutput decodes ffprobe JSON output.
func ParseProbeOutput(data []byte) (*ProbeResult, error) {
	var result ProbeResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	return &result, nil
}

// ProbeDuration probes path and returns its duration in seconds.
func ProbeDuration(ctx context.Context, prober MediaProber, path string) (float64, error) {
	result, err := prober.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	return result.Duration()
}
