// Package collectors turns encoder output into metrics.
package collectors

import (
	"strconv"
	"strings"
	"sync"

	"github.com/smazurov/loopcast/internal/ffmpeg"
	"github.com/smazurov/loopcast/internal/metrics"
)

// ProgressCollector parses ffmpeg status lines such as
// "frame= 1200 fps= 30 q=23.0 size= 40960kB time=00:00:40.00 bitrate=8388.6kbits/s dup=0 drop=3 speed=1x"
// and records them as encoder metrics. It satisfies process.OutputHandler.
type ProgressCollector struct {
	mu   sync.Mutex
	last metrics.EncoderProgress
	seen bool
}

// NewProgressCollector creates a collector with no recorded progress.
func NewProgressCollector() *ProgressCollector {
	return &ProgressCollector{}
}

// HandleLine records the line if it is a progress report.
func (c *ProgressCollector) HandleLine(_, line string) {
	_, msg := ffmpeg.ParseLogLevel(line)
	if !ffmpeg.IsProgress(msg) {
		return
	}
	p := ParseProgress(msg)

	c.mu.Lock()
	c.last = p
	c.seen = true
	c.mu.Unlock()

	metrics.SetEncoderProgress(p)
}

// Last returns the most recent progress and whether any was seen.
func (c *ProgressCollector) Last() (metrics.EncoderProgress, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.seen
}

// Reset forgets progress from a finished attempt.
func (c *ProgressCollector) Reset() {
	c.mu.Lock()
	c.last = metrics.EncoderProgress{}
	c.seen = false
	c.mu.Unlock()
	metrics.ResetEncoderProgress()
}

// ParseProgress extracts known fields from a status line. Unknown or
// unparsable fields are left zero.
func ParseProgress(line string) metrics.EncoderProgress {
	fields := progressFields(line)

	var p metrics.EncoderProgress
	if v, err := strconv.ParseInt(fields["frame"], 10, 64); err == nil {
		p.Frame = v
	}
	if v, err := strconv.ParseFloat(fields["fps"], 64); err == nil {
		p.FPS = v
	}
	if v, err := strconv.ParseFloat(strings.TrimSuffix(fields["bitrate"], "kbits/s"), 64); err == nil {
		p.BitrateKbps = v
	}
	if v, err := strconv.ParseFloat(strings.TrimSuffix(fields["speed"], "x"), 64); err == nil {
		p.Speed = v
	}
	if v, err := strconv.ParseFloat(fields["drop"], 64); err == nil {
		p.DroppedFrames = v
	}
	if v, err := strconv.ParseFloat(fields["dup"], 64); err == nil {
		p.DuplicateFrames = v
	}
	p.OutTime = fields["time"]
	return p
}

// progressFields splits "key= value key=value" pairs. ffmpeg pads values
// with spaces after the '=' so a value is the next non-empty token.
func progressFields(line string) map[string]string {
	fields := make(map[string]string)
	tokens := strings.Fields(line)
	for i := 0; i < len(tokens); i++ {
		key, value, ok := strings.Cut(tokens[i], "=")
		if !ok || key == "" {
			continue
		}
		if value == "" && i+1 < len(tokens) && !strings.Contains(tokens[i+1], "=") {
			i++
			value = tokens[i]
		}
		fields[key] = value
	}
	return fields
}
