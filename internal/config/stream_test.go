package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// mediaFixture creates empty video and audio files and returns their paths.
func mediaFixture(t *testing.T) (video, audio string) {
	t.Helper()
	dir := t.TempDir()
	video = filepath.Join(dir, "loop.mp4")
	audio = filepath.Join(dir, "music.mp3")
	for _, p := range []string{video, audio} {
		if err := os.WriteFile(p, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return video, audio
}

func streamJSON(video, audio, extra string) string {
	return fmt.Sprintf(`{
  "video": {"file": %q, "codec": "libx264", "bitrate": "10M", "resolution": "1920x1080", "preset": "veryfast"},
  "audio": {"file": %q, "codec": "aac", "bitrate": "192k"},
  "streaming": {"buffer_size": "50M"%s},
  "youtube": {"rtmp_url": "rtmp://a.rtmp.youtube.com/live2", "stream_key": "abcd-efgh"}
}`, video, audio, extra)
}

func TestLoadStreamDefaults(t *testing.T) {
	video, audio := mediaFixture(t)
	path := writeFile(t, "config.json", streamJSON(video, audio, ""))

	s, err := LoadStream(path)
	if err != nil {
		t.Fatalf("LoadStream: %v", err)
	}

	if s.Video.KeyframeInterval != DefaultKeyframeInterval {
		t.Errorf("KeyframeInterval = %v, want %v", s.Video.KeyframeInterval, DefaultKeyframeInterval)
	}
	if s.Video.MaxRate != "10M" {
		t.Errorf("MaxRate = %q, want bitrate fallback 10M", s.Video.MaxRate)
	}
	if !s.Audio.Crossfade || s.Audio.CrossfadeSeconds != DefaultCrossfadeSeconds {
		t.Errorf("crossfade = %v/%v, want enabled with default window", s.Audio.Crossfade, s.Audio.CrossfadeSeconds)
	}
	if s.Streaming.MaxReconnectAttempts != DefaultMaxReconnectAttempts {
		t.Errorf("MaxReconnectAttempts = %d", s.Streaming.MaxReconnectAttempts)
	}
	if s.Streaming.ReconnectDelay != DefaultReconnectDelay {
		t.Errorf("ReconnectDelay = %v", s.Streaming.ReconnectDelay)
	}
	if s.Monitoring.Enabled || s.Monitoring.LogInterval != DefaultMonitorInterval || s.Monitoring.LogFile != DefaultMonitorLogFile {
		t.Errorf("Monitoring = %+v, want disabled defaults", s.Monitoring)
	}
}

func TestLoadStreamOverrides(t *testing.T) {
	video, audio := mediaFixture(t)
	path := writeFile(t, "config.json", streamJSON(video, audio,
		`, "max_reconnect_attempts": -1, "reconnect_delay_seconds": 2.5, "prebuffer_seconds": 0`))

	s, err := LoadStream(path)
	if err != nil {
		t.Fatalf("LoadStream: %v", err)
	}
	if s.Streaming.MaxReconnectAttempts != UnlimitedAttempts {
		t.Errorf("MaxReconnectAttempts = %d, want unlimited", s.Streaming.MaxReconnectAttempts)
	}
	if s.Streaming.ReconnectDelay != 2500*time.Millisecond {
		t.Errorf("ReconnectDelay = %v, want 2.5s", s.Streaming.ReconnectDelay)
	}
	if s.Streaming.Prebuffer != 0 {
		t.Errorf("Prebuffer = %v, want explicit zero kept", s.Streaming.Prebuffer)
	}
}

func TestLoadStreamMissingFile(t *testing.T) {
	_, err := LoadStream(filepath.Join(t.TempDir(), "config.json"))
	if !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("err = %v, want ErrConfigNotFound", err)
	}
	hints := Remediations(err)
	if len(hints) != 1 || !strings.Contains(hints[0], "config.example.json") {
		t.Errorf("hints = %v", hints)
	}
}

func TestParseStreamMissingKeys(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		keys []string
	}{
		{
			name: "no youtube section",
			doc: `{"video": {"file": "v", "codec": "copy"}, "audio": {"file": "a", "codec": "aac", "bitrate": "128k"},
			       "streaming": {"buffer_size": "20M"}}`,
			keys: []string{"youtube"},
		},
		{
			name: "empty stream key",
			doc: `{"video": {"file": "v", "codec": "copy"}, "audio": {"file": "a", "codec": "aac", "bitrate": "128k"},
			       "streaming": {"buffer_size": "20M"}, "youtube": {"rtmp_url": "rtmp://x/live2", "stream_key": ""}}`,
			keys: []string{"youtube.stream_key"},
		},
		{
			name: "encode without preset or resolution",
			doc: `{"video": {"file": "v", "codec": "libx264", "bitrate": "6M"}, "audio": {"file": "a", "codec": "aac", "bitrate": "128k"},
			       "streaming": {"buffer_size": "20M"}, "youtube": {"rtmp_url": "rtmp://x/live2", "stream_key": "k"}}`,
			keys: []string{"video.resolution", "video.preset"},
		},
		{
			name: "everything missing",
			doc:  `{}`,
			keys: []string{"video", "audio", "streaming", "youtube"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseStream([]byte(tt.doc))
			if !errors.Is(err, ErrMissingKey) {
				t.Fatalf("err = %v, want ErrMissingKey", err)
			}
			for _, key := range tt.keys {
				if !strings.Contains(err.Error(), key+":") {
					t.Errorf("error %q does not mention %s", err, key)
				}
			}
		})
	}
}

func TestParseStreamMalformedJSON(t *testing.T) {
	if _, err := ParseStream([]byte(`{"video": `)); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestValidateRejectsPlaceholderAndMissingMedia(t *testing.T) {
	video, _ := mediaFixture(t)
	doc := streamJSON(video, filepath.Join(t.TempDir(), "gone.mp3"), "")
	doc = strings.Replace(doc, "abcd-efgh", StreamKeyPlaceholder, 1)

	s, err := ParseStream([]byte(doc))
	if err != nil {
		t.Fatalf("ParseStream: %v", err)
	}

	err = s.Validate()
	if !errors.Is(err, ErrStreamKeyPlaceholder) {
		t.Errorf("err = %v, want ErrStreamKeyPlaceholder", err)
	}
	if !errors.Is(err, ErrMediaNotFound) {
		t.Errorf("err = %v, want ErrMediaNotFound", err)
	}

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err does not contain a *ValidationError")
	}
	if got := len(Remediations(err)); got != 2 {
		t.Errorf("got %d remediations, want 2", got)
	}
}

func TestValidateRestartLimit(t *testing.T) {
	video, audio := mediaFixture(t)
	for _, attempts := range []int{0, -2} {
		doc := streamJSON(video, audio, fmt.Sprintf(`, "max_reconnect_attempts": %d`, attempts))
		s, err := ParseStream([]byte(doc))
		if err != nil {
			t.Fatalf("ParseStream: %v", err)
		}
		if err := s.Validate(); !errors.Is(err, ErrInvalidValue) {
			t.Errorf("attempts=%d: err = %v, want ErrInvalidValue", attempts, err)
		}
	}
}

func TestKeyframeIntervalAcceptsFractions(t *testing.T) {
	video, audio := mediaFixture(t)
	withInterval := func(v string) string {
		return strings.Replace(streamJSON(video, audio, ""), `"preset": "veryfast"`,
			`"preset": "veryfast", "keyframe_interval": `+v, 1)
	}

	s, err := ParseStream([]byte(withInterval("2.5")))
	if err != nil {
		t.Fatalf("ParseStream: %v", err)
	}
	if s.Video.KeyframeInterval != 2.5 {
		t.Errorf("KeyframeInterval = %v, want 2.5", s.Video.KeyframeInterval)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	s, err = ParseStream([]byte(withInterval("0")))
	if err != nil {
		t.Fatalf("ParseStream: %v", err)
	}
	err = s.Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Key != "video.keyframe_interval" {
		t.Errorf("Validate(0) = %v, want a video.keyframe_interval error", err)
	}
}

func TestDestinationURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"rtmp://a.rtmp.youtube.com/live2", "rtmp://a.rtmp.youtube.com/live2/key"},
		{"rtmp://a.rtmp.youtube.com/live2/", "rtmp://a.rtmp.youtube.com/live2/key"},
	}
	for _, tt := range tests {
		s := &Stream{Endpoint: Endpoint{RTMPURL: tt.base, StreamKey: "key"}}
		if got := s.DestinationURL(); got != tt.want {
			t.Errorf("DestinationURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestParseBitrate(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"10M", 10_000_000, false},
		{"192k", 192_000, false},
		{"2.5M", 2_500_000, false},
		{"128000", 128_000, false},
		{"", 0, true},
		{"fast", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseBitrate(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseBitrate(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseBitrate(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
