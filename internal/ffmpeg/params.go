package ffmpeg

import (
	"math"
	"slices"

	"github.com/smazurov/loopcast/internal/config"
)

// VideoMode selects how the video input reaches the output.
type VideoMode int

const (
	// VideoCopy passes the source stream through untouched.
	VideoCopy VideoMode = iota
	// VideoEncode re-encodes with the configured encoder settings.
	VideoEncode
)

func (m VideoMode) String() string {
	if m == VideoCopy {
		return "copy"
	}
	return "encode"
}

// AudioMode selects how the looping audio track is produced.
type AudioMode int

const (
	// AudioSingle maps one looping audio input directly.
	AudioSingle AudioMode = iota
	// AudioCrossfade mixes two offset copies so the loop seam fades over.
	AudioCrossfade
)

func (m AudioMode) String() string {
	if m == AudioSingle {
		return "single"
	}
	return "crossfade"
}

// Fixed encoder settings shared by every command.
const (
	FrameRate         = 30
	AudioSampleRate   = 48000
	ProbeSize         = "50M"
	AnalyzeDuration   = "30000000"
	MuxingQueueSize   = "9999"
	ReconnectDelayMax = "5"
	H264Profile       = "high"
	H264Level         = "4.2"
	PixelFormat       = "yuv420p"
)

// Params holds every value the builder needs, already resolved from
// configuration and probing.
type Params struct {
	Binary string

	VideoFile string
	AudioFile string

	Video VideoMode
	Audio AudioMode

	// Encoder configuration, used when Video == VideoEncode.
	Codec      string
	Preset     string
	Tune       string
	Bitrate    string
	MaxRate    string
	Resolution string
	GOP        int
	References int // also used for the B-frame count

	BufferSize string

	AudioCodec   string
	AudioBitrate string

	// Crossfade timing, used when Audio == AudioCrossfade.
	FadeOutStart float64 // seconds into the first copy
	FadeWindow   float64 // seconds
	DelayMillis  int64   // offset of the second copy

	OutputURL string
}

// NewParams resolves builder parameters from a validated stream
// configuration and an audio plan.
func NewParams(s *config.Stream, plan AudioPlan, binary string) *Params {
	if binary == "" {
		binary = DefaultFFmpegPath
	}

	p := &Params{
		Binary:       binary,
		VideoFile:    s.Video.File,
		AudioFile:    s.Audio.File,
		Codec:        s.Video.Codec,
		BufferSize:   s.Streaming.BufferSize,
		AudioCodec:   s.Audio.Codec,
		AudioBitrate: s.Audio.Bitrate,
		OutputURL:    s.DestinationURL(),
	}

	if s.Video.Copy() {
		p.Video = VideoCopy
	} else {
		p.Video = VideoEncode
		p.Preset = s.Video.Preset
		p.Tune = s.Video.Tune
		p.Bitrate = s.Video.Bitrate
		p.MaxRate = s.Video.MaxRate
		if p.MaxRate == "" {
			p.MaxRate = p.Bitrate
		}
		p.Resolution = s.Video.Resolution
		p.GOP = GOPSize(s.Video.KeyframeInterval)
		p.References = ReferenceFrames(s.Video.Preset)
	}

	if plan.Mode == AudioCrossfade {
		p.Audio = AudioCrossfade
		p.FadeWindow = plan.Window
		p.FadeOutStart = plan.Duration - plan.Window
		p.DelayMillis = int64(p.FadeOutStart * 1000)
	}

	return p
}

// GOPSize converts a keyframe interval in seconds to frames at FrameRate,
// rounded to the nearest frame and never below one. Non-positive intervals
// fall back to the default of two seconds.
func GOPSize(keyframeSeconds float64) int {
	if keyframeSeconds <= 0 {
		keyframeSeconds = config.DefaultKeyframeInterval
	}
	return max(int(math.Round(FrameRate*keyframeSeconds)), 1)
}

// FastPresets are the presets encoded with fewer reference and B-frames.
var FastPresets = []string{"veryfast", "faster", "fast"}

// ReferenceFrames returns the reference and B-frame count for a preset.
// The fast presets trade compression for encoder headroom.
func ReferenceFrames(preset string) int {
	if slices.Contains(FastPresets, preset) {
		return 2
	}
	return 3
}
