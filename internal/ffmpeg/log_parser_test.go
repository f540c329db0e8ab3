package ffmpeg

import "testing"

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		line      string
		wantLevel string
		wantMsg   string
	}{
		{"[info] Stream mapping:", "info", "Stream mapping:"},
		{"[error] Connection refused", "error", "Connection refused"},
		{"[flv @ 0x55d0c1a2b3c0] [warning] Failed to update header", "warning", "[flv @ 0x55d0c1a2b3c0] Failed to update header"},
		{"[flv @ 0x55d0c1a2b3c0] no level here", "info", "[flv @ 0x55d0c1a2b3c0] no level here"},
		{"plain line", "info", "plain line"},
		{"[", "info", "["},
	}
	for _, tt := range tests {
		level, msg := ParseLogLevel(tt.line)
		if level != tt.wantLevel || msg != tt.wantMsg {
			t.Errorf("ParseLogLevel(%q) = (%q, %q), want (%q, %q)", tt.line, level, msg, tt.wantLevel, tt.wantMsg)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		line string
		want LineKind
	}{
		{"[info] frame= 1200 fps= 30 q=23.0 size=   40960kB time=00:00:40.00 bitrate=8388.6kbits/s speed=1x", LineProgress},
		{"size=   40960kB time=00:00:40.00 bitrate=8388.6kbits/s speed=1.01x", LineProgress},
		{"[error] rtmp://a.rtmp.youtube.com/live2/key: Broken pipe", LineError},
		{"[fatal] Conversion failed!", LineError},
		{"[warning] Past duration 0.999 too large", LineWarning},
		{"[tcp @ 0x1] Connection to tcp://a.rtmp.youtube.com:1935 failed: Connection refused", LineError},
		{"Too many packets buffered for output stream 0:1, dropping", LineWarning},
		{"[info] Stream #0:0: Video: h264", LineInfo},
		{"frame=   10", LineInfo},
	}
	for _, tt := range tests {
		if got, _ := Classify(tt.line); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}
