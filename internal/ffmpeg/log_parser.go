package ffmpeg

import "strings"

// LineKind classifies one line of encoder output.
type LineKind int

const (
	LineInfo LineKind = iota
	LineProgress
	LineWarning
	LineError
)

func (k LineKind) String() string {
	switch k {
	case LineProgress:
		return "progress"
	case LineWarning:
		return "warning"
	case LineError:
		return "error"
	default:
		return "info"
	}
}

// ParseLogLevel extracts the log level from ffmpeg output.
// FFmpeg with -loglevel level+info outputs lines like "[info] message"
// or "[component @ 0x...] [level] message" for component-specific logs.
// Returns the level and the message with level stripped but component preserved.
func ParseLogLevel(line string) (level, msg string) {
	if len(line) < 3 || line[0] != '[' {
		return "info", line
	}

	end := strings.Index(line, "] ")
	if end == -1 {
		return "info", line
	}

	bracket := line[1:end]
	if isLogLevel(bracket) {
		return bracket, line[end+2:]
	}

	component := line[:end+2]
	rest := line[end+2:]
	if len(rest) > 2 && rest[0] == '[' {
		if nextEnd := strings.Index(rest, "] "); nextEnd != -1 {
			nextBracket := rest[1:nextEnd]
			if isLogLevel(nextBracket) {
				return nextBracket, component + rest[nextEnd+2:]
			}
		}
	}

	return "info", line
}

func isLogLevel(s string) bool {
	switch s {
	case "quiet", "panic", "fatal", "error", "warning", "info", "verbose", "debug", "trace":
		return true
	}
	return false
}

var errorKeywords = []string{
	"error",
	"failed",
	"failure",
	"invalid",
	"broken pipe",
	"connection refused",
	"connection reset",
	"timed out",
	"could not",
}

var warningKeywords = []string{
	"warning",
	"dropping",
	"non-monotonic",
	"past duration",
	"queue",
}

// Classify sorts a raw output line. The parsed level wins; untagged lines
// fall back to keyword matching so warnings from banner-less builds are
// still surfaced.
func Classify(line string) (LineKind, string) {
	level, msg := ParseLogLevel(line)
	if IsProgress(msg) {
		return LineProgress, msg
	}

	switch level {
	case "panic", "fatal", "error":
		return LineError, msg
	case "warning":
		return LineWarning, msg
	}

	lower := strings.ToLower(msg)
	for _, kw := range errorKeywords {
		if strings.Contains(lower, kw) {
			return LineError, msg
		}
	}
	for _, kw := range warningKeywords {
		if strings.Contains(lower, kw) {
			return LineWarning, msg
		}
	}
	return LineInfo, msg
}

// IsProgress reports whether msg is an encoder status line such as
// "frame= 1200 fps= 30 q=23.0 size= 40960kB time=00:00:40.00 bitrate=8388.6kbits/s speed=1x".
func IsProgress(msg string) bool {
	trimmed := strings.TrimSpace(msg)
	if !strings.HasPrefix(trimmed, "frame=") && !strings.HasPrefix(trimmed, "size=") {
		return false
	}
	return strings.Contains(trimmed, "time=") || strings.Contains(trimmed, "speed=")
}
