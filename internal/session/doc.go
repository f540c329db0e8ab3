// Package session supervises one streaming run: it launches the encoder,
// holds it in pre-buffer until it proves alive, watches it while streaming
// and restarts it on crashes as the restart policy allows.
//
// A run moves through these states:
//
//	idle -> starting -> prebuffering -> streaming -> terminated
//	terminated -> awaiting_retry -> starting      (crash, policy allows)
//	terminated -> starting                        (config reload)
//	terminated -> stopped | exhausted
//
// Cancelling the context passed to Run always stops the encoder with
// SIGINT first and escalates to SIGKILL only after the graceful window.
package session
