package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stop results recorded by ObserveStop.
const (
	StopGraceful = "graceful"
	StopKilled   = "killed"
)

var (
	sessionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "state",
		Help:      "1 for the current session state, 0 otherwise",
	}, []string{"state"})

	sessionAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "attempts_total",
		Help:      "Encoder launches, including the first",
	})

	sessionRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "restarts_total",
		Help:      "Encoder relaunches after a crash",
	})

	sessionCrashes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "crashes_total",
		Help:      "Encoder exits that were not requested",
	})

	sessionReloads = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "reloads_total",
		Help:      "Encoder relaunches caused by a configuration change",
	})

	encoderStops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "encoder",
		Name:      "stops_total",
		Help:      "Requested encoder stops by how the process ended",
	}, []string{"result"})

	currentState   string
	currentStateMu sync.Mutex
)

// SetSessionState marks state as current and clears the previous one.
func SetSessionState(state string) {
	currentStateMu.Lock()
	defer currentStateMu.Unlock()
	if currentState != "" && currentState != state {
		sessionState.WithLabelValues(currentState).Set(0)
	}
	sessionState.WithLabelValues(state).Set(1)
	currentState = state
}

// IncAttempts counts an encoder launch.
func IncAttempts() {
	sessionAttempts.Inc()
}

// IncRestarts counts a relaunch after a crash.
func IncRestarts() {
	sessionRestarts.Inc()
}

// IncCrashes counts an unrequested encoder exit.
func IncCrashes() {
	sessionCrashes.Inc()
}

// IncReloads counts a relaunch caused by a configuration change.
func IncReloads() {
	sessionReloads.Inc()
}

// ObserveStop counts a requested stop by result.
func ObserveStop(result string) {
	encoderStops.WithLabelValues(result).Inc()
}
