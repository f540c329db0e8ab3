package monitor

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/loopcast/internal/events"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// fakeSampler returns scripted readings in order, repeating the last one.
type fakeSampler struct {
	systems   []SystemReading
	processes []ProcessReading
	procErr   error
	sysCalls  int
	procCalls int
}

func (f *fakeSampler) System() (SystemReading, error) {
	r := f.systems[min(f.sysCalls, len(f.systems)-1)]
	f.sysCalls++
	return r, nil
}

func (f *fakeSampler) Process(int) (ProcessReading, error) {
	if f.procErr != nil {
		return ProcessReading{}, f.procErr
	}
	r := f.processes[min(f.procCalls, len(f.processes)-1)]
	f.procCalls++
	return r, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ev events.Event) {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMonitor(t *testing.T, sampler Sampler, clock *fakeClock, logFile string) *Monitor {
	t.Helper()
	m, err := New(Options{
		Enabled:  true,
		Interval: 30 * time.Second,
		LogFile:  logFile,
		Logger:   testLogger(),
		Sampler:  sampler,
		Clock:    clock.Now,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

const gib = 1 << 30

func TestSampleComputesPercentages(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	sampler := &fakeSampler{
		systems: []SystemReading{
			{CPUTotal: 1000, CPUIdle: 800, MemTotal: 16 * gib, MemAvailable: 12 * gib},
			{CPUTotal: 1100, CPUIdle: 850, MemTotal: 16 * gib, MemAvailable: 12 * gib},
		},
		processes: []ProcessReading{
			{CPUSeconds: 10, RSSBytes: 200 << 20},
			{CPUSeconds: 10.15, RSSBytes: 256 << 20},
		},
	}
	m := newTestMonitor(t, sampler, clock, "")

	if _, ok := m.Sample(4242); ok {
		t.Fatal("first call only records baselines")
	}
	clock.Advance(100 * time.Millisecond)
	s, ok := m.Sample(4242)
	if !ok {
		t.Fatal("second call should emit")
	}
	if s.CPUPercent != 50 {
		t.Errorf("CPUPercent = %v, want 50", s.CPUPercent)
	}
	if s.MemoryPercent != 25 {
		t.Errorf("MemoryPercent = %v, want 25", s.MemoryPercent)
	}
	if s.MemoryUsedGB() != 4 {
		t.Errorf("MemoryUsedGB = %v, want 4", s.MemoryUsedGB())
	}
	// 0.15 CPU seconds over the 100ms since the baseline
	if !s.EncoderSampled || math.Abs(s.EncoderCPU-150) > 1e-6 {
		t.Errorf("EncoderCPU = %v (sampled %v), want 150", s.EncoderCPU, s.EncoderSampled)
	}
	if s.EncoderRSSMB() != 256 {
		t.Errorf("EncoderRSSMB = %v, want 256", s.EncoderRSSMB())
	}
}

func TestSampleRespectsInterval(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	sampler := &fakeSampler{systems: []SystemReading{{CPUTotal: 100, MemTotal: gib}}}
	m := newTestMonitor(t, sampler, clock, "")

	m.Sample(0)
	if _, ok := m.Sample(0); !ok {
		t.Fatal("sample after the baseline should emit")
	}
	calls := sampler.sysCalls

	clock.Advance(10 * time.Second)
	if _, ok := m.Sample(0); ok {
		t.Error("sample inside the interval must be a no-op")
	}
	if sampler.sysCalls != calls {
		t.Error("no-op sample must not read counters")
	}

	clock.Advance(25 * time.Second)
	if _, ok := m.Sample(0); !ok {
		t.Error("sample after the interval should emit")
	}
}

func TestBaselinesAreRecordedWithoutEmitting(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	sampler := &fakeSampler{
		systems:   []SystemReading{{CPUTotal: 100, CPUIdle: 50, MemTotal: gib}},
		processes: []ProcessReading{{CPUSeconds: 1, RSSBytes: 1 << 20}},
	}
	m := newTestMonitor(t, sampler, clock, "")

	if _, ok := m.Sample(10); ok {
		t.Fatal("call without baselines must not emit")
	}
	if sampler.sysCalls != 1 || sampler.procCalls != 1 {
		t.Fatalf("baseline reads = %d system, %d process, want 1 each", sampler.sysCalls, sampler.procCalls)
	}
	if clock.now != time.Unix(1_700_000_000, 0) {
		t.Error("taking baselines must not wait")
	}

	if _, ok := m.Sample(10); !ok {
		t.Fatal("second call should emit")
	}

	// a restarted encoder has a new pid and needs its own baseline
	clock.Advance(time.Minute)
	if _, ok := m.Sample(11); ok {
		t.Error("new pid must be baselined before it is reported")
	}
	clock.Advance(time.Second)
	s, ok := m.Sample(11)
	if !ok || !s.EncoderSampled {
		t.Errorf("Sample(11) = %+v, %v", s, ok)
	}
}

func TestDisabledMonitorIsNoop(t *testing.T) {
	sampler := &fakeSampler{}
	m, err := New(Options{Enabled: false, Sampler: sampler, Logger: testLogger(), LogFile: filepath.Join(t.TempDir(), "never.log")})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Sample(1); ok {
		t.Error("disabled monitor emitted a sample")
	}
	if sampler.sysCalls != 0 {
		t.Error("disabled monitor read counters")
	}
	if err := m.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestVanishedProcessIsSkipped(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	sampler := &fakeSampler{
		systems: []SystemReading{{CPUTotal: 100, CPUIdle: 50, MemTotal: gib}},
		procErr: ErrProcessGone,
	}
	m := newTestMonitor(t, sampler, clock, "")

	m.Sample(99999)
	s, ok := m.Sample(99999)
	if !ok {
		t.Fatal("host sample should still emit")
	}
	if s.EncoderSampled {
		t.Error("vanished process must be left out")
	}
	if strings.Contains(s.String(), "FFmpeg") {
		t.Errorf("console line mentions encoder: %q", s.String())
	}
}

func TestSampleWritesLogFileAndPublishes(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	sampler := &fakeSampler{
		systems:   []SystemReading{{CPUTotal: 0, MemTotal: 8 * gib, MemAvailable: 6 * gib}, {CPUTotal: 100, CPUIdle: 90, MemTotal: 8 * gib, MemAvailable: 6 * gib}},
		processes: []ProcessReading{{CPUSeconds: 1, RSSBytes: 100 << 20}},
	}
	logFile := filepath.Join(t.TempDir(), "stream_monitor.log")
	pub := &recordingPublisher{}

	m, err := New(Options{
		Enabled:   true,
		Interval:  time.Second,
		LogFile:   logFile,
		Logger:    testLogger(),
		Sampler:   sampler,
		Publisher: pub,
		Clock:     clock.Now,
	})
	if err != nil {
		t.Fatal(err)
	}
	m.Sample(7)
	clock.Advance(time.Second)
	m.Sample(7)
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`msg="resource sample"`, "cpu_percent=10", "mem_percent=25", "mem_used_gb=2", "encoder_rss_mb=100"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("log file missing %q:\n%s", want, data)
		}
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	ev, ok := pub.events[0].(events.HostMetricsEvent)
	if !ok || ev.CPUPercent != 10 || !ev.EncoderRunning {
		t.Errorf("event = %#v", pub.events[0])
	}
}

func TestLogFileAppends(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "stream_monitor.log")
	if err := os.WriteFile(logFile, []byte("previous run\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newTestMonitor(t, &fakeSampler{systems: []SystemReading{{CPUTotal: 1, MemTotal: gib}}}, clock, logFile)
	m.Sample(0)
	m.Close()

	data, _ := os.ReadFile(logFile)
	if !strings.HasPrefix(string(data), "previous run\n") {
		t.Errorf("log file was truncated:\n%s", data)
	}
}

func TestSampleString(t *testing.T) {
	s := Sample{CPUPercent: 23.45, MemoryPercent: 61.2, MemoryUsedBytes: 5 * gib / 2, EncoderSampled: true, EncoderCPU: 180, EncoderRSSBytes: 312 << 20}
	want := "CPU: 23.4% | RAM: 61.2% (2.50 GB) | FFmpeg CPU: 180.0% | FFmpeg RAM: 312.0 MB"
	if got := s.String(); got != want && got != strings.Replace(want, "23.4", "23.5", 1) {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestCPUPercentNoDelta(t *testing.T) {
	r := SystemReading{CPUTotal: 10, CPUIdle: 5}
	if got := cpuPercent(r, r); got != 0 {
		t.Errorf("cpuPercent with no delta = %v, want 0", got)
	}
}

func TestProcfsSampler(t *testing.T) {
	if _, err := os.Stat("/proc/self/stat"); err != nil {
		t.Skip("procfs not available")
	}
	s, err := NewProcfsSampler("")
	if err != nil {
		t.Fatalf("NewProcfsSampler: %v", err)
	}
	sys, err := s.System()
	if err != nil {
		t.Fatalf("System: %v", err)
	}
	if sys.CPUTotal <= 0 || sys.MemTotal == 0 {
		t.Errorf("System = %+v", sys)
	}
	proc, err := s.Process(os.Getpid())
	if err != nil {
		t.Fatalf("Process(self): %v", err)
	}
	if proc.RSSBytes == 0 {
		t.Error("expected non-zero RSS for the test process")
	}
	if _, err := s.Process(1 << 30); !errors.Is(err, ErrProcessGone) {
		t.Errorf("Process(bogus) = %v, want ErrProcessGone", err)
	}
}
