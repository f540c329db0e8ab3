package ffmpeg

import (
	"strconv"
	"strings"

	"github.com/smazurov/loopcast/internal/config"
)

// Command is a fully built encoder invocation.
type Command struct {
	Path  string
	Args  []string
	Video VideoMode
	Audio AudioMode
}

// Argv returns the program path followed by its arguments.
func (c *Command) Argv() []string {
	return append([]string{c.Path}, c.Args...)
}

// String renders the command for logs. The stream key is masked.
func (c *Command) String() string {
	argv := c.Argv()
	out := make([]string, len(argv))
	for i, a := range argv {
		switch {
		case i == len(argv)-1 && strings.Contains(a, "://"):
			out[i] = MaskStreamKey(a)
		case strings.ContainsAny(a, " ;[]|"):
			out[i] = strconv.Quote(a)
		default:
			out[i] = a
		}
	}
	return strings.Join(out, " ")
}

// MaskStreamKey hides all but the first four characters of the last path
// segment of url.
func MaskStreamKey(url string) string {
	i := strings.LastIndex(url, "/")
	if i < 0 || i == len(url)-1 || strings.HasSuffix(url[:i+1], "://") {
		return url
	}
	key := url[i+1:]
	if len(key) <= 4 {
		return url[:i+1] + "****"
	}
	return url[:i+1] + key[:4] + strings.Repeat("*", len(key)-4)
}

// Build resolves parameters and builds the command. It is pure: the same
// stream and plan always produce the same argument vector.
func Build(s *config.Stream, plan AudioPlan, binary string) *Command {
	return BuildCommand(NewParams(s, plan, binary))
}

// BuildCommand assembles the argument vector from resolved parameters.
func BuildCommand(p *Params) *Command {
	b := &argBuilder{}

	b.add("-hide_banner", "-loglevel", "level+info")
	b.add("-probesize", ProbeSize, "-analyzeduration", AnalyzeDuration)
	b.add("-stream_loop", "-1", "-i", p.VideoFile)
	b.add("-stream_loop", "-1", "-i", p.AudioFile)
	if p.Audio == AudioCrossfade {
		b.add("-stream_loop", "-1", "-i", p.AudioFile)
	}

	b.add("-map", "0:v:0", "-c:v", p.Codec)
	switch p.Video {
	case VideoCopy:
		b.add("-bufsize", p.BufferSize)
	case VideoEncode:
		gop := strconv.Itoa(p.GOP)
		b.add(
			"-preset", p.Preset,
			"-b:v", p.Bitrate,
			"-maxrate", p.MaxRate,
			"-bufsize", p.BufferSize,
			"-s", p.Resolution,
			"-r", strconv.Itoa(FrameRate),
			"-g", gop,
			"-keyint_min", gop,
			"-sc_threshold", "0",
			"-pix_fmt", PixelFormat,
			"-profile:v", H264Profile,
			"-level", H264Level,
		)
		if p.Tune != "" {
			b.add("-tune", p.Tune)
		}
		refs := strconv.Itoa(p.References)
		b.add("-refs", refs, "-bf", refs)
	}

	switch p.Audio {
	case AudioSingle:
		b.add("-map", "1:a:0")
	case AudioCrossfade:
		b.add("-filter_complex", CrossfadeFilter(1, 2, p.FadeOutStart, p.FadeWindow, p.DelayMillis))
		b.add("-map", "[aout]")
	}
	b.add("-c:a", p.AudioCodec, "-b:a", p.AudioBitrate, "-ar", strconv.Itoa(AudioSampleRate))

	b.add(
		"-f", "flv",
		"-flvflags", "no_duration_filesize",
		"-max_muxing_queue_size", MuxingQueueSize,
		"-fflags", "+genpts",
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", ReconnectDelayMax,
		p.OutputURL,
	)

	return &Command{Path: p.Binary, Args: b.args, Video: p.Video, Audio: p.Audio}
}

type argBuilder struct {
	args []string
}

func (b *argBuilder) add(args ...string) {
	b.args = append(b.args, args...)
}
