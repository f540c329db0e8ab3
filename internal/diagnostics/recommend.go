package diagnostics

import (
	"fmt"
	"io"
	"slices"

	"github.com/smazurov/loopcast/internal/config"
)

// Recommendation categories.
const (
	CategoryQuality   = "quality"
	CategoryStability = "stability"
)

const minBufferBits = 30_000_000

// Recommendation is one suggested configuration change.
type Recommendation struct {
	Category string `json:"category"`
	Summary  string `json:"summary"`
	Detail   string `json:"detail"`
}

var speedPresets = []string{"ultrafast", "superfast", "veryfast"}

// Recommend reviews codec, bitrate, preset and buffer settings.
func Recommend(s *config.Stream) []Recommendation {
	var recs []Recommendation

	if !s.Video.Copy() {
		recs = append(recs, Recommendation{
			Category: CategoryQuality,
			Summary:  "Switch to codec copy to preserve the original quality",
			Detail:   "Re-encoding always loses quality, especially under bitrate limits",
		})
	}

	if bits, err := config.ParseBitrate(s.Video.Bitrate); err == nil {
		mbps := float64(bits) / 1e6
		switch {
		case mbps > HighBitrateMbps:
			recs = append(recs, Recommendation{
				Category: CategoryStability,
				Summary:  fmt.Sprintf("Bitrate %gM is very high for 1440p", mbps),
				Detail:   "Reduce to 10-12M for better stability, or use codec copy",
			})
		case mbps < 8:
			recs = append(recs, Recommendation{
				Category: CategoryQuality,
				Summary:  fmt.Sprintf("Bitrate %gM is low for 1440p", mbps),
				Detail:   "Increase to 10-12M for better quality",
			})
		}
	}

	if !s.Video.Copy() && slices.Contains(speedPresets, s.Video.Preset) {
		recs = append(recs, Recommendation{
			Category: CategoryQuality,
			Summary:  fmt.Sprintf("Preset %q favours speed over quality", s.Video.Preset),
			Detail:   "Use medium or slow for better quality, or codec copy for the best",
		})
	}

	if buf, err := config.ParseBitrate(s.Streaming.BufferSize); err == nil && buf < minBufferBits {
		recs = append(recs, Recommendation{
			Category: CategoryStability,
			Summary:  fmt.Sprintf("Buffer size %s could be larger", s.Streaming.BufferSize),
			Detail:   "Increase to 40M or 50M to absorb network fluctuations",
		})
	}

	return recs
}

// WriteRecommendations reports recs.
func WriteRecommendations(w io.Writer, recs []Recommendation) {
	Section(w, "Recommendations")
	if len(recs) == 0 {
		rated(w, Good, "Configuration looks good")
		return
	}
	for i, r := range recs {
		fmt.Fprintf(w, "\n  %d. [%s] %s\n     %s\n", i+1, r.Category, r.Summary, r.Detail)
	}
}

// WriteTroubleshooting prints the escalation steps used when a stream
// keeps buffering.
func WriteTroubleshooting(w io.Writer) {
	fmt.Fprintln(w)
	Rule(w)
	fmt.Fprintln(w, "If the stream still buffers, try these in order:")
	fmt.Fprintln(w, "  1. Reduce the bitrate to 8M")
	fmt.Fprintln(w, "  2. Reduce the resolution to 1920x1080")
	fmt.Fprintln(w, "  3. Use the ultrafast preset")
	fmt.Fprintln(w, "  4. Check for other applications using upload bandwidth")
	Rule(w)
}
