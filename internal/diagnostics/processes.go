package diagnostics

import (
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/prometheus/procfs"
)

// EncoderProcess is one running encoder found in /proc.
type EncoderProcess struct {
	PID           int     `json:"pid"`
	Command       string  `json:"command"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	RSSBytes      uint64  `json:"rss_bytes"`
}

// FindProcesses lists processes whose name or executable is name. CPU is
// averaged over the process lifetime, the way ps reports it.
func FindProcesses(fs procfs.FS, name string) ([]EncoderProcess, error) {
	procs, err := fs.AllProcs()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	var memTotal uint64
	if mi, err := fs.Meminfo(); err == nil && mi.MemTotal != nil {
		memTotal = *mi.MemTotal * 1024
	}
	now := float64(time.Now().UnixNano()) / 1e9

	var found []EncoderProcess
	for _, p := range procs {
		cmdline, _ := p.CmdLine()
		comm, err := p.Comm()
		if err != nil {
			// exited while scanning
			continue
		}
		if comm != name && (len(cmdline) == 0 || filepath.Base(cmdline[0]) != name) {
			continue
		}

		stat, err := p.Stat()
		if err != nil {
			continue
		}
		ep := EncoderProcess{
			PID:      p.PID,
			Command:  strings.Join(cmdline, " "),
			RSSBytes: uint64(stat.ResidentMemory()),
		}
		if ep.Command == "" {
			ep.Command = comm
		}
		if start, err := stat.StartTime(); err == nil && now > start {
			ep.CPUPercent = stat.CPUTime() / (now - start) * 100
		}
		if memTotal > 0 {
			ep.MemoryPercent = float64(ep.RSSBytes) / float64(memTotal) * 100
		}
		found = append(found, ep)
	}

	slices.SortFunc(found, func(a, b EncoderProcess) int { return a.PID - b.PID })
	return found, nil
}

// FindEncoderProcesses lists running ffmpeg processes.
func FindEncoderProcesses(fs procfs.FS) ([]EncoderProcess, error) {
	return FindProcesses(fs, "ffmpeg")
}

// WriteProcesses reports the encoder processes found.
func WriteProcesses(w io.Writer, procs []EncoderProcess) {
	Section(w, "FFmpeg processes")
	if len(procs) == 0 {
		rated(w, Poor, "FFmpeg is not running")
		return
	}
	rated(w, Good, "FFmpeg is running")
	for _, p := range procs {
		line(w, "pid %d | CPU: %.1f%% | RAM: %.1f%% (%.1f MB)", p.PID, p.CPUPercent, p.MemoryPercent, float64(p.RSSBytes)/(1<<20))
	}
}
