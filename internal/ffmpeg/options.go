package ffmpeg

import (
	"os/exec"
	"path/filepath"
	"strings"
)

// Default binaries, resolved through PATH.
const (
	DefaultFFmpegPath  = "ffmpeg"
	DefaultFFprobePath = "ffprobe"
)

// Binaries names the encoder and prober executables.
type Binaries struct {
	FFmpeg  string
	FFprobe string
}

// ResolveBinaries fills in missing paths. An explicit ffprobe wins; otherwise
// it is derived from a concrete ffmpeg path when a sibling ffprobe exists,
// and finally falls back to PATH.
func ResolveBinaries(ffmpegPath, ffprobePath string) Binaries {
	b := Binaries{
		FFmpeg:  strings.TrimSpace(ffmpegPath),
		FFprobe: strings.TrimSpace(ffprobePath),
	}
	if b.FFmpeg == "" {
		b.FFmpeg = DefaultFFmpegPath
	}
	if b.FFprobe != "" {
		return b
	}

	b.FFprobe = DefaultFFprobePath
	if strings.ContainsRune(b.FFmpeg, filepath.Separator) && filepath.Base(b.FFmpeg) == "ffmpeg" {
		candidate := filepath.Join(filepath.Dir(b.FFmpeg), "ffprobe")
		if _, err := exec.LookPath(candidate); err == nil {
			b.FFprobe = candidate
		}
	}
	return b
}

// Check reports whether both executables can be found.
func (b Binaries) Check() error {
	for _, bin := range []string{b.FFmpeg, b.FFprobe} {
		if _, err := exec.LookPath(bin); err != nil {
			return err
		}
	}
	return nil
}
