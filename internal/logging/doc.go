// Package logging provides structured logging with per-module log levels.
//
// Records fan out to the console (text or json), the systemd journal when
// journald is reachable, and an in-memory ring buffer that the status API
// serves at /api/logs.
//
// Initialize once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"encoder": "debug",
//			"monitor": "warn",
//		},
//	})
//
// and fetch a logger per module:
//
//	logger := logging.GetLogger("session")
//	logger.Info("Attempt started", "attempt", 1, "pid", pid)
//
// Module names used by loopcast: session, encoder, monitor, config, api,
// diagnostics, updater.
//
// Journal records are tagged with SYSLOG_IDENTIFIER=loopcast:
//
//	journalctl -t loopcast -f
//	journalctl -t loopcast MODULE=encoder -p warning
package logging
