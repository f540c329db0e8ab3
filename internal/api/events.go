package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/loopcast/internal/events"
)

// registerSSERoutes registers the session event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Session state changes, crashes, config reloads, encoder progress and resource samples",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"session-state":   events.SessionStateChangedEvent{},
		"session-crashed": events.SessionCrashedEvent{},
		"config-reloaded": events.ConfigReloadedEvent{},
		"encoder-metrics": events.EncoderMetricsEvent{},
		"host-metrics":    events.HostMetricsEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.SessionStateChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.SessionCrashedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ConfigReloadedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.EncoderMetricsEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.HostMetricsEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// Start every client from the current state.
		if s.options.Session != nil {
			st := s.options.Session.Status()
			if err := send.Data(events.SessionStateChangedEvent{
				From:      string(st.State),
				To:        string(st.State),
				Attempt:   st.Attempt,
				Restarts:  st.Restarts,
				Timestamp: time.Now().Format(time.RFC3339),
			}); err != nil {
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
