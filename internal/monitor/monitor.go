// Package monitor samples host and encoder resource usage while a session
// is streaming.
package monitor

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/smazurov/loopcast/internal/config"
	"github.com/smazurov/loopcast/internal/events"
	"github.com/smazurov/loopcast/internal/logging"
	"github.com/smazurov/loopcast/internal/metrics"
)

const (
	bytesPerGB = 1 << 30
	bytesPerMB = 1 << 20
)

// EventPublisher publishes monitor samples.
type EventPublisher interface {
	Publish(ev events.Event)
}

// Options configures a Monitor.
type Options struct {
	Enabled  bool
	Interval time.Duration
	LogFile  string

	Logger    logging.Logger
	Sampler   Sampler
	Publisher EventPublisher

	Clock func() time.Time
}

// OptionsFromConfig maps the monitoring section of a stream config.
func OptionsFromConfig(m config.Monitoring) Options {
	return Options{
		Enabled:  m.Enabled,
		Interval: m.LogInterval,
		LogFile:  m.LogFile,
	}
}

// Sample is one emitted reading.
type Sample struct {
	Time            time.Time
	CPUPercent      float64
	MemoryPercent   float64
	MemoryUsedBytes uint64

	EncoderSampled  bool
	EncoderCPU      float64
	EncoderRSSBytes uint64
}

// MemoryUsedGB returns used memory in GiB.
func (s Sample) MemoryUsedGB() float64 {
	return float64(s.MemoryUsedBytes) / bytesPerGB
}

// EncoderRSSMB returns encoder resident memory in MiB.
func (s Sample) EncoderRSSMB() float64 {
	return float64(s.EncoderRSSBytes) / bytesPerMB
}

// String renders the console form of the sample.
func (s Sample) String() string {
	line := fmt.Sprintf("CPU: %.1f%% | RAM: %.1f%% (%.2f GB)", s.CPUPercent, s.MemoryPercent, s.MemoryUsedGB())
	if s.EncoderSampled {
		line += fmt.Sprintf(" | FFmpeg CPU: %.1f%% | FFmpeg RAM: %.1f MB", s.EncoderCPU, s.EncoderRSSMB())
	}
	return line
}

type processBaseline struct {
	pid     int
	reading ProcessReading
	at      time.Time
}

// Monitor emits a resource sample at most once per interval. It is owned by
// one session run and is not safe for concurrent use.
type Monitor struct {
	opts   Options
	logger logging.Logger
	sink   *slog.Logger
	file   io.Closer

	lastEmit time.Time
	system   *SystemReading
	process  *processBaseline
}

// New creates a monitor. When enabled it opens the log file for appending.
// A disabled monitor never touches the sampler or the filesystem.
func New(opts Options) (*Monitor, error) {
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger("monitor")
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Interval <= 0 {
		opts.Interval = config.DefaultMonitorInterval
	}

	m := &Monitor{opts: opts, logger: opts.Logger}
	if !opts.Enabled {
		return m, nil
	}

	if opts.Sampler == nil {
		sampler, err := NewProcfsSampler("")
		if err != nil {
			return nil, err
		}
		m.opts.Sampler = sampler
	}

	if opts.LogFile != "" {
		f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open monitor log: %w", err)
		}
		m.file = f
		m.sink = slog.New(slog.NewTextHandler(f, nil))
		m.sink.Info("stream monitoring started", "interval", opts.Interval)
	}

	m.logger.Info("Stream monitoring started", "interval", opts.Interval, "log_file", opts.LogFile)
	return m, nil
}

// Enabled reports whether Sample can emit.
func (m *Monitor) Enabled() bool {
	return m.opts.Enabled
}

// Sample emits a reading if the interval has elapsed since the last one.
// pid <= 0 samples the host only. A process that cannot be read is left
// out of the sample. Sample never blocks: a call that finds no CPU baseline
// for the host or for pid records one and emits nothing, and the next call
// emits the delta.
func (m *Monitor) Sample(pid int) (Sample, bool) {
	if !m.opts.Enabled {
		return Sample{}, false
	}
	now := m.opts.Clock()
	if !m.lastEmit.IsZero() && now.Sub(m.lastEmit) < m.opts.Interval {
		return Sample{}, false
	}
	if m.prime(pid) {
		return Sample{}, false
	}
	m.lastEmit = now

	s, err := m.read(pid)
	if err != nil {
		m.logger.Warn("Failed to read resource usage", "error", err)
		return Sample{}, false
	}
	m.emit(s)
	return s, true
}

// prime takes the baseline readings that are missing and reports whether
// it took any.
func (m *Monitor) prime(pid int) bool {
	sampler := m.opts.Sampler
	primed := false

	if m.system == nil {
		first, err := sampler.System()
		if err != nil {
			// read reports it
			return false
		}
		m.system = &first
		primed = true
	}

	if pid > 0 && (m.process == nil || m.process.pid != pid) {
		first, err := sampler.Process(pid)
		if err != nil {
			m.process = nil
			m.logger.Debug("Encoder process not readable", "pid", pid, "error", err)
			return primed
		}
		m.process = &processBaseline{pid: pid, reading: first, at: m.opts.Clock()}
		primed = true
	}
	return primed
}

func (m *Monitor) read(pid int) (Sample, error) {
	cur, err := m.opts.Sampler.System()
	if err != nil {
		return Sample{}, err
	}

	s := Sample{Time: m.opts.Clock()}
	if m.system != nil {
		s.CPUPercent = cpuPercent(*m.system, cur)
	}
	if cur.MemTotal > 0 {
		used := cur.MemTotal - min(cur.MemAvailable, cur.MemTotal)
		s.MemoryUsedBytes = used
		s.MemoryPercent = float64(used) / float64(cur.MemTotal) * 100
	}
	m.system = &cur

	if pid > 0 {
		m.readProcess(pid, &s)
	} else {
		m.process = nil
	}
	return s, nil
}

func (m *Monitor) readProcess(pid int, s *Sample) {
	if m.process == nil || m.process.pid != pid {
		return
	}

	cur, err := m.opts.Sampler.Process(pid)
	if err != nil {
		m.process = nil
		m.logger.Debug("Encoder process not readable", "pid", pid, "error", err)
		return
	}
	now := m.opts.Clock()
	elapsed := now.Sub(m.process.at).Seconds()
	if elapsed > 0 {
		s.EncoderCPU = max(cur.CPUSeconds-m.process.reading.CPUSeconds, 0) / elapsed * 100
	}
	s.EncoderRSSBytes = cur.RSSBytes
	s.EncoderSampled = true
	m.process = &processBaseline{pid: pid, reading: cur, at: now}
}

func cpuPercent(prev, cur SystemReading) float64 {
	total := cur.CPUTotal - prev.CPUTotal
	if total <= 0 {
		return 0
	}
	busy := total - (cur.CPUIdle - prev.CPUIdle)
	return max(busy, 0) / total * 100
}

func (m *Monitor) emit(s Sample) {
	if m.sink != nil {
		attrs := []any{
			"cpu_percent", round1(s.CPUPercent),
			"mem_percent", round1(s.MemoryPercent),
			"mem_used_gb", round2(s.MemoryUsedGB()),
		}
		if s.EncoderSampled {
			attrs = append(attrs,
				"encoder_cpu_percent", round1(s.EncoderCPU),
				"encoder_rss_mb", round1(s.EncoderRSSMB()),
			)
		}
		m.sink.Info("resource sample", attrs...)
	}

	m.logger.Info(s.String())

	metrics.SetHostSample(metrics.HostSample{
		Time:            s.Time,
		CPUPercent:      s.CPUPercent,
		MemoryPercent:   s.MemoryPercent,
		MemoryUsedBytes: s.MemoryUsedBytes,
		EncoderRunning:  s.EncoderSampled,
		EncoderCPU:      s.EncoderCPU,
		EncoderRSSBytes: s.EncoderRSSBytes,
	})

	if m.opts.Publisher != nil {
		ev := events.HostMetricsEvent{
			CPUPercent:     round1(s.CPUPercent),
			MemoryPercent:  round1(s.MemoryPercent),
			MemoryUsedGB:   round2(s.MemoryUsedGB()),
			EncoderRunning: s.EncoderSampled,
			Timestamp:      s.Time.Format(time.RFC3339),
		}
		if s.EncoderSampled {
			ev.EncoderCPU = round1(s.EncoderCPU)
			ev.EncoderMemoryMB = round1(s.EncoderRSSMB())
		}
		m.opts.Publisher.Publish(ev)
	}
}

// Close releases the log file.
func (m *Monitor) Close() error {
	if m.file == nil {
		return nil
	}
	if m.sink != nil {
		m.sink.Info("stream monitoring stopped")
	}
	err := m.file.Close()
	m.file = nil
	m.sink = nil
	if err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}

func round1(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
