package monitor

import (
	"errors"
	"fmt"

	"github.com/prometheus/procfs"
)

// ErrProcessGone is returned when the sampled process no longer exists.
var ErrProcessGone = errors.New("process not found")

// SystemReading holds cumulative counters read from the kernel.
type SystemReading struct {
	CPUTotal     float64 // seconds across all CPUs
	CPUIdle      float64 // idle + iowait seconds
	MemTotal     uint64  // bytes
	MemAvailable uint64  // bytes
}

// ProcessReading holds cumulative counters for one process.
type ProcessReading struct {
	CPUSeconds float64 // utime + stime
	RSSBytes   uint64
}

// Sampler reads raw resource counters.
type Sampler interface {
	System() (SystemReading, error)
	Process(pid int) (ProcessReading, error)
}

// ProcfsSampler reads counters from /proc.
type ProcfsSampler struct {
	fs procfs.FS
}

// NewProcfsSampler opens the proc filesystem at mountPoint, or the default
// mount when empty.
func NewProcfsSampler(mountPoint string) (*ProcfsSampler, error) {
	if mountPoint == "" {
		mountPoint = procfs.DefaultMountPoint
	}
	fs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, fmt.Errorf("open procfs: %w", err)
	}
	return &ProcfsSampler{fs: fs}, nil
}

// System implements Sampler.
func (s *ProcfsSampler) System() (SystemReading, error) {
	stat, err := s.fs.Stat()
	if err != nil {
		return SystemReading{}, fmt.Errorf("read stat: %w", err)
	}
	mem, err := s.fs.Meminfo()
	if err != nil {
		return SystemReading{}, fmt.Errorf("read meminfo: %w", err)
	}

	c := stat.CPUTotal
	r := SystemReading{
		CPUTotal: c.User + c.Nice + c.System + c.Idle + c.Iowait + c.IRQ + c.SoftIRQ + c.Steal,
		CPUIdle:  c.Idle + c.Iowait,
	}
	if mem.MemTotal != nil {
		r.MemTotal = *mem.MemTotal * 1024
	}
	switch {
	case mem.MemAvailable != nil:
		r.MemAvailable = *mem.MemAvailable * 1024
	case mem.MemFree != nil:
		r.MemAvailable = *mem.MemFree * 1024
	}
	return r, nil
}

// Process implements Sampler.
func (s *ProcfsSampler) Process(pid int) (ProcessReading, error) {
	proc, err := s.fs.Proc(pid)
	if err != nil {
		return ProcessReading{}, fmt.Errorf("%w: pid %d", ErrProcessGone, pid)
	}
	stat, err := proc.Stat()
	if err != nil {
		return ProcessReading{}, fmt.Errorf("%w: pid %d: %v", ErrProcessGone, pid, err)
	}
	return ProcessReading{
		CPUSeconds: stat.CPUTime(),
		RSSBytes:   uint64(stat.ResidentMemory()),
	}, nil
}
