// Package metrics provides Prometheus metrics for the streaming session,
// the encoder process and the host it runs on.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "loopcast"

var (
	encoderFPS = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "encoder",
		Name:      "fps",
		Help:      "Current encoder output frames per second",
	})

	encoderBitrate = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "encoder",
		Name:      "bitrate_kbps",
		Help:      "Current output bitrate reported by the encoder",
	})

	encoderSpeed = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "encoder",
		Name:      "processing_speed",
		Help:      "Encoder processing speed multiplier",
	})

	encoderDroppedFrames = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "encoder",
		Name:      "dropped_frames",
		Help:      "Frames dropped by the encoder in the current attempt",
	})

	encoderDuplicateFrames = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "encoder",
		Name:      "duplicate_frames",
		Help:      "Frames duplicated by the encoder in the current attempt",
	})

	// Local cache for the SSE exporter and status API.
	encoderCache   *EncoderProgress
	encoderCacheMu sync.RWMutex
)

// EncoderProgress holds the latest values parsed from encoder progress output.
type EncoderProgress struct {
	Frame           int64
	FPS             float64
	BitrateKbps     float64
	Speed           float64
	DroppedFrames   float64
	DuplicateFrames float64
	OutTime         string
}

// SetEncoderProgress records one progress report.
func SetEncoderProgress(p EncoderProgress) {
	encoderFPS.Set(p.FPS)
	encoderBitrate.Set(p.BitrateKbps)
	encoderSpeed.Set(p.Speed)
	encoderDroppedFrames.Set(p.DroppedFrames)
	encoderDuplicateFrames.Set(p.DuplicateFrames)

	encoderCacheMu.Lock()
	encoderCache = &p
	encoderCacheMu.Unlock()
}

// ResetEncoderProgress zeroes encoder gauges when an attempt ends.
func ResetEncoderProgress() {
	encoderFPS.Set(0)
	encoderBitrate.Set(0)
	encoderSpeed.Set(0)
	encoderDroppedFrames.Set(0)
	encoderDuplicateFrames.Set(0)

	encoderCacheMu.Lock()
	encoderCache = nil
	encoderCacheMu.Unlock()
}

// GetEncoderProgress returns a copy of the latest progress, or nil when no
// attempt has reported yet.
func GetEncoderProgress() *EncoderProgress {
	encoderCacheMu.RLock()
	defer encoderCacheMu.RUnlock()
	if encoderCache == nil {
		return nil
	}
	dup := *encoderCache
	return &dup
}
