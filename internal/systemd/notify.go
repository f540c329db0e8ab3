// Package systemd reports service state to systemd through the notify
// socket. Every call is a no-op when the process was not started by a
// Type=notify unit.
package systemd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/smazurov/loopcast/internal/logging"
	"github.com/smazurov/loopcast/internal/session"
)

// Notifier sends sd_notify messages.
type Notifier struct {
	logger logging.Logger
	notify func(unsetEnvironment bool, state string) (bool, error)

	mu    sync.Mutex
	ready bool
}

// NewNotifier creates a notifier backed by the NOTIFY_SOCKET of this process.
func NewNotifier() *Notifier {
	return &Notifier{
		logger: logging.GetLogger("systemd"),
		notify: daemon.SdNotify,
	}
}

func (n *Notifier) send(state string) {
	sent, err := n.notify(false, state)
	if err != nil {
		n.logger.Warn("sd_notify failed", "state", state, "error", err)
		return
	}
	if sent {
		n.logger.Debug("sd_notify", "state", state)
	}
}

// Ready reports startup completion. Only the first call is sent.
func (n *Notifier) Ready() {
	n.mu.Lock()
	if n.ready {
		n.mu.Unlock()
		return
	}
	n.ready = true
	n.mu.Unlock()
	n.send(daemon.SdNotifyReady)
}

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(text string) {
	n.send("STATUS=" + text)
}

// Stopping reports that shutdown has begun.
func (n *Notifier) Stopping() {
	n.send(daemon.SdNotifyStopping)
}

// SessionHook returns a state change observer that keeps the unit status
// current and reports readiness once the first attempt is streaming.
func (n *Notifier) SessionHook() session.StateChangeFunc {
	return func(_, to session.State, st session.Status) {
		n.Status(FormatStatus(to, st))
		if to == session.StateStreaming {
			n.Ready()
		}
	}
}

// FormatStatus renders the unit status line for a session state.
func FormatStatus(state session.State, st session.Status) string {
	if st.Attempt == 0 {
		return string(state)
	}
	if st.MaxAttempts == session.Unlimited {
		return fmt.Sprintf("%s attempt %d", state, st.Attempt)
	}
	return fmt.Sprintf("%s attempt %d/%d", state, st.Attempt, st.MaxAttempts)
}

// RunWatchdog pings the systemd watchdog at half the configured interval
// until ctx is done. It returns immediately when no watchdog is configured.
func (n *Notifier) RunWatchdog(ctx context.Context) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return fmt.Errorf("read watchdog settings: %w", err)
	}
	if interval <= 0 {
		return nil
	}
	n.runWatchdog(ctx, interval/2)
	return nil
}

func (n *Notifier) runWatchdog(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}
