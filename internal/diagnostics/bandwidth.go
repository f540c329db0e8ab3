package diagnostics

import (
	"fmt"
	"io"

	"github.com/smazurov/loopcast/internal/config"
)

// Upload headroom factors applied to the stream bitrate.
const (
	MinimumHeadroom = 1.5
	StableHeadroom  = MinimumHeadroom * 1.5

	// HighBitrateMbps is the total above which stability suffers on
	// typical home uplinks.
	HighBitrateMbps = 15.0
)

// Bandwidth is the upload requirement of a stream configuration.
type Bandwidth struct {
	VideoMbps   float64 `json:"video_mbps"`
	AudioMbps   float64 `json:"audio_mbps"`
	TotalMbps   float64 `json:"total_mbps"`
	MinimumMbps float64 `json:"minimum_upload_mbps"`
	StableMbps  float64 `json:"stable_upload_mbps"`
}

// High reports whether the total bitrate exceeds HighBitrateMbps.
func (b Bandwidth) High() bool {
	return b.TotalMbps > HighBitrateMbps
}

// AnalyzeBandwidth totals the configured bitrates and derives upload
// requirements. With codec copy the video bitrate is only a reference.
func AnalyzeBandwidth(s *config.Stream) (Bandwidth, error) {
	video, err := config.ParseBitrate(s.Video.Bitrate)
	if err != nil {
		return Bandwidth{}, fmt.Errorf("video.bitrate: %w", err)
	}
	audio, err := config.ParseBitrate(s.Audio.Bitrate)
	if err != nil {
		return Bandwidth{}, fmt.Errorf("audio.bitrate: %w", err)
	}

	b := Bandwidth{
		VideoMbps: float64(video) / 1e6,
		AudioMbps: float64(audio) / 1e6,
	}
	b.TotalMbps = b.VideoMbps + b.AudioMbps
	b.MinimumMbps = b.TotalMbps * MinimumHeadroom
	b.StableMbps = b.TotalMbps * StableHeadroom
	return b, nil
}

// WriteBandwidth reports b.
func WriteBandwidth(w io.Writer, b Bandwidth) {
	Section(w, "Bandwidth requirements")
	line(w, "Video:   %.2f Mbps", b.VideoMbps)
	line(w, "Audio:   %.3f Mbps", b.AudioMbps)
	line(w, "Total:   %.2f Mbps", b.TotalMbps)
	line(w, "Upload:  %.2f Mbps minimum (%.1fx)", b.MinimumMbps, MinimumHeadroom)
	line(w, "Upload:  %.2f Mbps stable (%.2fx)", b.StableMbps, StableHeadroom)
	if b.High() {
		rated(w, Moderate, "High bitrate for 1440p streaming")
		line(w, "YouTube recommends 9-18 Mbps for 1440p; 10-12 Mbps is more stable")
	}
}
