// Package process runs one external encoder process.
//
// Process wraps os/exec for a single launch:
//   - The child runs in its own process group so helper processes are
//     signalled along with it
//   - Stop sends SIGINT, waits a graceful window, then SIGKILL
//   - Both output pipes are drained continuously and classified into
//     progress, warning and error lines
//   - The last lines of output are kept for crash reports
//
// A Process is started at most once; the session supervisor creates a new
// one for every attempt.
package process
