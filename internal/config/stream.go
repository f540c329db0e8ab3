package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// StreamKeyPlaceholder is the value shipped in config.example.json.
const StreamKeyPlaceholder = "YOUR_STREAM_KEY_HERE"

// UnlimitedAttempts disables the restart limit.
const UnlimitedAttempts = -1

// Defaults applied when optional keys are absent.
const (
	DefaultKeyframeInterval     = 2
	DefaultCrossfadeSeconds     = 8.0
	DefaultMaxReconnectAttempts = 10
	DefaultReconnectDelay       = 5 * time.Second
	DefaultPrebuffer            = 3 * time.Second
	DefaultMonitorInterval      = 30 * time.Second
	DefaultMonitorLogFile       = "stream_monitor.log"
)

// Stream is the validated stream configuration. It is loaded once and
// treated as read-only while an attempt runs.
type Stream struct {
	Video      Video
	Audio      Audio
	Streaming  Streaming
	Endpoint   Endpoint
	Monitoring Monitoring
}

// Video describes the looping video source and its encoding target.
type Video struct {
	File             string
	Codec            string
	Bitrate          string
	MaxRate          string
	Resolution       string
	Preset           string
	Tune             string
	KeyframeInterval float64 // seconds
}

// Copy reports whether the video stream is passed through without re-encoding.
func (v Video) Copy() bool {
	return v.Codec == "copy"
}

// Audio describes the looping audio source.
type Audio struct {
	File             string
	Codec            string
	Bitrate          string
	Crossfade        bool
	CrossfadeSeconds float64
}

// Streaming holds encoder buffering and restart policy settings.
type Streaming struct {
	BufferSize           string
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	Prebuffer            time.Duration
}

// Endpoint is the RTMP ingest destination.
type Endpoint struct {
	RTMPURL   string
	StreamKey string
}

// Monitoring configures the resource monitor.
type Monitoring struct {
	Enabled     bool
	LogInterval time.Duration
	LogFile     string
}

// DestinationURL joins the ingest base URL and stream key with a single slash.
func (s *Stream) DestinationURL() string {
	return strings.TrimRight(s.Endpoint.RTMPURL, "/") + "/" + s.Endpoint.StreamKey
}

// rawStream mirrors the JSON document. Pointers distinguish absent keys
// from zero values so defaults only fill what the operator left out.
type rawStream struct {
	Video *struct {
		File             string   `json:"file"`
		Codec            string   `json:"codec"`
		Bitrate          string   `json:"bitrate"`
		MaxRate          string   `json:"maxrate"`
		Resolution       string   `json:"resolution"`
		Preset           string   `json:"preset"`
		Tune             string   `json:"tune"`
		KeyframeInterval *float64 `json:"keyframe_interval"`
	} `json:"video"`
	Audio *struct {
		File             string   `json:"file"`
		Codec            string   `json:"codec"`
		Bitrate          string   `json:"bitrate"`
		Crossfade        *bool    `json:"crossfade"`
		CrossfadeSeconds *float64 `json:"crossfade_seconds"`
	} `json:"audio"`
	Streaming *struct {
		BufferSize            string   `json:"buffer_size"`
		MaxReconnectAttempts  *int     `json:"max_reconnect_attempts"`
		ReconnectDelaySeconds *float64 `json:"reconnect_delay_seconds"`
		PrebufferSeconds      *float64 `json:"prebuffer_seconds"`
	} `json:"streaming"`
	YouTube *struct {
		RTMPURL   string `json:"rtmp_url"`
		StreamKey string `json:"stream_key"`
	} `json:"youtube"`
	Monitoring *struct {
		Enabled            bool     `json:"enabled"`
		LogIntervalSeconds *float64 `json:"log_interval_seconds"`
		LogFile            string   `json:"log_file"`
	} `json:"monitoring"`
}

// LoadStream reads, decodes and validates the stream configuration at path.
// Every problem found is reported; the returned error joins one
// *ValidationError per problem.
func LoadStream(path string) (*Stream, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &ValidationError{
			Key:  path,
			Err:  ErrConfigNotFound,
			Hint: "copy config.example.json to " + path + " and fill in your settings",
		}
	}
	if err != nil {
		return nil, fmt.Errorf("read stream config: %w", err)
	}

	stream, err := ParseStream(data)
	if err != nil {
		return nil, err
	}
	if err := stream.Validate(); err != nil {
		return nil, err
	}
	return stream, nil
}

// ParseStream decodes a JSON document and applies defaults. Structural
// problems (missing sections or required keys) are reported here; file
// existence and value checks are left to Validate.
func ParseStream(data []byte) (*Stream, error) {
	var raw rawStream
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode stream config: %w", err)
	}

	var problems []error
	missing := func(key string) {
		problems = append(problems, &ValidationError{
			Key:  key,
			Err:  ErrMissingKey,
			Hint: fmt.Sprintf("add %q to the stream config", key),
		})
	}
	require := func(key, value string) {
		if strings.TrimSpace(value) == "" {
			missing(key)
		}
	}

	s := &Stream{}

	if raw.Video == nil {
		missing("video")
	} else {
		v := raw.Video
		require("video.file", v.File)
		require("video.codec", v.Codec)
		s.Video = Video{
			File:             v.File,
			Codec:            v.Codec,
			Bitrate:          v.Bitrate,
			MaxRate:          v.MaxRate,
			Resolution:       v.Resolution,
			Preset:           v.Preset,
			Tune:             v.Tune,
			KeyframeInterval: DefaultKeyframeInterval,
		}
		if v.KeyframeInterval != nil {
			s.Video.KeyframeInterval = *v.KeyframeInterval
		}
		if !s.Video.Copy() {
			require("video.bitrate", v.Bitrate)
			require("video.resolution", v.Resolution)
			require("video.preset", v.Preset)
		}
		if s.Video.MaxRate == "" {
			s.Video.MaxRate = s.Video.Bitrate
		}
	}

	if raw.Audio == nil {
		missing("audio")
	} else {
		a := raw.Audio
		require("audio.file", a.File)
		require("audio.codec", a.Codec)
		require("audio.bitrate", a.Bitrate)
		s.Audio = Audio{
			File:             a.File,
			Codec:            a.Codec,
			Bitrate:          a.Bitrate,
			Crossfade:        true,
			CrossfadeSeconds: DefaultCrossfadeSeconds,
		}
		if a.Crossfade != nil {
			s.Audio.Crossfade = *a.Crossfade
		}
		if a.CrossfadeSeconds != nil {
			s.Audio.CrossfadeSeconds = *a.CrossfadeSeconds
		}
	}

	if raw.Streaming == nil {
		missing("streaming")
	} else {
		st := raw.Streaming
		require("streaming.buffer_size", st.BufferSize)
		s.Streaming = Streaming{
			BufferSize:           st.BufferSize,
			MaxReconnectAttempts: DefaultMaxReconnectAttempts,
			ReconnectDelay:       DefaultReconnectDelay,
			Prebuffer:            DefaultPrebuffer,
		}
		if st.MaxReconnectAttempts != nil {
			s.Streaming.MaxReconnectAttempts = *st.MaxReconnectAttempts
		}
		if st.ReconnectDelaySeconds != nil {
			s.Streaming.ReconnectDelay = seconds(*st.ReconnectDelaySeconds)
		}
		if st.PrebufferSeconds != nil {
			s.Streaming.Prebuffer = seconds(*st.PrebufferSeconds)
		}
	}

	if raw.YouTube == nil {
		missing("youtube")
	} else {
		require("youtube.rtmp_url", raw.YouTube.RTMPURL)
		require("youtube.stream_key", raw.YouTube.StreamKey)
		s.Endpoint = Endpoint{RTMPURL: raw.YouTube.RTMPURL, StreamKey: raw.YouTube.StreamKey}
	}

	s.Monitoring = Monitoring{
		LogInterval: DefaultMonitorInterval,
		LogFile:     DefaultMonitorLogFile,
	}
	if m := raw.Monitoring; m != nil {
		s.Monitoring.Enabled = m.Enabled
		if m.LogIntervalSeconds != nil {
			s.Monitoring.LogInterval = seconds(*m.LogIntervalSeconds)
		}
		if m.LogFile != "" {
			s.Monitoring.LogFile = m.LogFile
		}
	}

	if len(problems) > 0 {
		return nil, errors.Join(problems...)
	}
	return s, nil
}

// Validate checks values and referenced files. It never touches the
// network and never starts a process.
func (s *Stream) Validate() error {
	var problems []error
	invalid := func(key, hint string) {
		problems = append(problems, &ValidationError{Key: key, Err: ErrInvalidValue, Hint: hint})
	}

	media := []struct{ key, path string }{
		{"video.file", s.Video.File},
		{"audio.file", s.Audio.File},
	}
	for _, m := range media {
		key, path := m.key, m.path
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			problems = append(problems, &ValidationError{
				Key:  key,
				Err:  fmt.Errorf("%w: %s", ErrMediaNotFound, path),
				Hint: "check that " + path + " exists and is readable",
			})
		}
	}

	if s.Endpoint.StreamKey == StreamKeyPlaceholder {
		problems = append(problems, &ValidationError{
			Key:  "youtube.stream_key",
			Err:  ErrStreamKeyPlaceholder,
			Hint: "paste the stream key from YouTube Studio into youtube.stream_key",
		})
	}

	if n := s.Streaming.MaxReconnectAttempts; n != UnlimitedAttempts && n < 1 {
		invalid("streaming.max_reconnect_attempts", "use -1 for unlimited restarts or a count of at least 1")
	}
	if s.Streaming.ReconnectDelay < 0 {
		invalid("streaming.reconnect_delay_seconds", "the restart delay cannot be negative")
	}
	if s.Streaming.Prebuffer < 0 {
		invalid("streaming.prebuffer_seconds", "the pre-buffer window cannot be negative")
	}
	if !s.Video.Copy() && s.Video.KeyframeInterval <= 0 {
		invalid("video.keyframe_interval", "keyframe interval is in seconds and must be positive")
	}
	if s.Audio.CrossfadeSeconds <= 0 {
		invalid("audio.crossfade_seconds", "crossfade window must be positive")
	}
	if s.Monitoring.Enabled && s.Monitoring.LogInterval <= 0 {
		invalid("monitoring.log_interval_seconds", "monitoring interval must be positive")
	}

	return errors.Join(problems...)
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// ParseBitrate converts an encoder rate such as "10M", "192k" or "2500000"
// to bits per second.
func ParseBitrate(value string) (int64, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return 0, fmt.Errorf("%w: empty bitrate", ErrInvalidValue)
	}

	multiplier := 1.0
	switch v[len(v)-1] {
	case 'k', 'K':
		multiplier = 1e3
		v = v[:len(v)-1]
	case 'M', 'm':
		multiplier = 1e6
		v = v[:len(v)-1]
	case 'G', 'g':
		multiplier = 1e9
		v = v[:len(v)-1]
	}

	n, err := strconv.ParseFloat(v, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: bitrate %q", ErrInvalidValue, value)
	}
	return int64(n * multiplier), nil
}
