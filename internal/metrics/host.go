package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	systemCPU = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "host",
		Name:      "cpu_percent",
		Help:      "System-wide CPU utilization percentage",
	})

	systemMemory = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "host",
		Name:      "memory_percent",
		Help:      "System-wide memory utilization percentage",
	})

	systemMemoryUsed = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "host",
		Name:      "memory_used_bytes",
		Help:      "System-wide memory in use",
	})

	encoderCPU = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "encoder",
		Name:      "cpu_percent",
		Help:      "Encoder process CPU utilization percentage",
	})

	encoderRSS = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "encoder",
		Name:      "resident_memory_bytes",
		Help:      "Encoder process resident memory",
	})

	hostCache   *HostSample
	hostCacheMu sync.RWMutex
)

// HostSample is one resource reading. Encoder fields are meaningful only
// when EncoderRunning is set.
type HostSample struct {
	Time            time.Time
	CPUPercent      float64
	MemoryPercent   float64
	MemoryUsedBytes uint64
	EncoderRunning  bool
	EncoderCPU      float64
	EncoderRSSBytes uint64
}

// SetHostSample records a resource reading.
func SetHostSample(s HostSample) {
	systemCPU.Set(s.CPUPercent)
	systemMemory.Set(s.MemoryPercent)
	systemMemoryUsed.Set(float64(s.MemoryUsedBytes))
	if s.EncoderRunning {
		encoderCPU.Set(s.EncoderCPU)
		encoderRSS.Set(float64(s.EncoderRSSBytes))
	} else {
		encoderCPU.Set(0)
		encoderRSS.Set(0)
	}

	hostCacheMu.Lock()
	hostCache = &s
	hostCacheMu.Unlock()
}

// GetHostSample returns a copy of the latest reading, or nil before the
// first sample.
func GetHostSample() *HostSample {
	hostCacheMu.RLock()
	defer hostCacheMu.RUnlock()
	if hostCache == nil {
		return nil
	}
	dup := *hostCache
	return &dup
}
