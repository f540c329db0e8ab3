// Package diagnostics holds the one-shot checks behind the diagnose and
// bandwidth commands: network quality to the ingest host, upload
// requirements, source file analysis, running encoder processes and
// configuration recommendations. Every check writes a human-readable
// report to an io.Writer and also returns its findings.
package diagnostics
