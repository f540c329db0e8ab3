package exporters

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/smazurov/loopcast/internal/events"
	"github.com/smazurov/loopcast/internal/metrics"
)

// EventPublisher interface for publishing events.
type EventPublisher interface {
	Publish(ev events.Event)
}

// SSEExporter periodically publishes encoder progress on the event bus.
type SSEExporter struct {
	eventBus EventPublisher
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSSEExporter creates a new SSE exporter.
func NewSSEExporter(eventBus EventPublisher) *SSEExporter {
	return &SSEExporter{
		eventBus: eventBus,
		interval: 1 * time.Second,
	}
}

// SetInterval changes the publish interval. It must be called before Start.
func (s *SSEExporter) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// Start begins the SSE export loop.
func (s *SSEExporter) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run()
}

// Stop stops the SSE exporter and waits for the goroutine to finish.
func (s *SSEExporter) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *SSEExporter) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.publishMetrics()
		}
	}
}

func (s *SSEExporter) publishMetrics() {
	m := metrics.GetEncoderProgress()
	if m == nil {
		return
	}
	s.eventBus.Publish(events.EncoderMetricsEvent{
		EventType:       "encoder_metrics",
		FPS:             strconv.FormatFloat(m.FPS, 'f', 2, 64),
		BitrateKbps:     strconv.FormatFloat(m.BitrateKbps, 'f', 1, 64),
		Speed:           strconv.FormatFloat(m.Speed, 'f', 3, 64),
		DroppedFrames:   strconv.FormatFloat(m.DroppedFrames, 'f', 0, 64),
		DuplicateFrames: strconv.FormatFloat(m.DuplicateFrames, 'f', 0, 64),
	})
}
