package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/smazurov/loopcast/internal/config"
	"github.com/smazurov/loopcast/internal/ffmpeg"
)

// ErrNoVideoStream is returned when the source file has no video stream.
var ErrNoVideoStream = errors.New("no video stream in source")

// SourceReport compares the source video with the configured target.
type SourceReport struct {
	File        string  `json:"file"`
	Codec       string  `json:"codec"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	FrameRate   float64 `json:"frame_rate"`
	SourceMbps  float64 `json:"source_mbps"`
	TargetCodec string  `json:"target_codec"`
	TargetMbps  float64 `json:"target_mbps"`
	Copy        bool    `json:"copy"`
}

// Reduced reports whether re-encoding lowers the bitrate of the source.
func (r SourceReport) Reduced() bool {
	return !r.Copy && r.SourceMbps > r.TargetMbps
}

// AnalyzeSource probes the configured video file.
func AnalyzeSource(ctx context.Context, prober ffmpeg.MediaProber, s *config.Stream) (SourceReport, error) {
	res, err := prober.Probe(ctx, s.Video.File)
	if err != nil {
		return SourceReport{}, err
	}
	v := res.FirstVideo()
	if v == nil {
		return SourceReport{}, fmt.Errorf("%s: %w", s.Video.File, ErrNoVideoStream)
	}

	r := SourceReport{
		File:        s.Video.File,
		Codec:       v.CodecName,
		Width:       v.Width,
		Height:      v.Height,
		FrameRate:   v.FrameRate(),
		SourceMbps:  v.BitRateKbps() / 1000,
		TargetCodec: s.Video.Codec,
		Copy:        s.Video.Copy(),
	}
	if target, err := config.ParseBitrate(s.Video.Bitrate); err == nil {
		r.TargetMbps = float64(target) / 1e6
	}
	return r, nil
}

// WriteSource reports r.
func WriteSource(w io.Writer, r SourceReport) {
	Section(w, "Video source")
	line(w, "File:        %s", r.File)
	line(w, "Codec:       %s", r.Codec)
	line(w, "Resolution:  %dx%d @ %.2f fps", r.Width, r.Height, r.FrameRate)
	line(w, "Bitrate:     %.1f Mbps", r.SourceMbps)
	line(w, "Target:      %s at %.1f Mbps", r.TargetCodec, r.TargetMbps)

	switch {
	case r.Copy:
		rated(w, Good, "Codec copy, no re-encoding; streaming at the source bitrate (%.1f Mbps)", r.SourceMbps)
	case r.Reduced():
		rated(w, Moderate, "Re-encoding %s to %s lowers the bitrate from %.1fM to %.1fM", r.Codec, r.TargetCodec, r.SourceMbps, r.TargetMbps)
	default:
		rated(w, Good, "Re-encoding %s to %s, target bitrate is appropriate", r.Codec, r.TargetCodec)
	}
}
