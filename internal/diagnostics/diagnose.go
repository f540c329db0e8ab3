package diagnostics

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/procfs"

	"github.com/smazurov/loopcast/internal/config"
	"github.com/smazurov/loopcast/internal/ffmpeg"
)

// Options configures a full diagnostic run.
type Options struct {
	Stream *config.Stream
	Prober ffmpeg.MediaProber
	Pinger Pinger
	// ProcFS is nil when /proc is not available.
	ProcFS *procfs.FS

	Host         string
	PingCount    int
	PingInterval time.Duration

	Out io.Writer
}

// Report collects the findings of a diagnostic run. A check that failed
// leaves its field nil and its error in Errors.
type Report struct {
	Source          *SourceReport    `json:"source,omitempty"`
	Network         *PingStats       `json:"network,omitempty"`
	Bandwidth       *Bandwidth       `json:"bandwidth,omitempty"`
	Encoders        []EncoderProcess `json:"encoders"`
	Recommendations []Recommendation `json:"recommendations"`
	Errors          []string         `json:"errors,omitempty"`
}

// Run performs every check in order and writes the report. Individual
// failures are reported and do not stop later checks.
func Run(ctx context.Context, opts Options) Report {
	w := opts.Out
	if opts.Host == "" {
		opts.Host = DefaultIngestHost
	}
	if opts.PingCount <= 0 {
		opts.PingCount = 10
	}

	var rep Report
	fail := func(check string, err error) {
		msg := fmt.Sprintf("%s: %v", check, err)
		rep.Errors = append(rep.Errors, msg)
	}

	fmt.Fprintf(w, "loopcast diagnostics, %s\n", time.Now().Format("2006-01-02 15:04:05"))

	if src, err := AnalyzeSource(ctx, opts.Prober, opts.Stream); err != nil {
		Section(w, "Video source")
		line(w, "Video analysis failed: %v", err)
		fail("source", err)
	} else {
		WriteSource(w, src)
		rep.Source = &src
	}

	if stats, err := CheckNetwork(ctx, w, opts.Pinger, opts.Host, opts.PingCount, opts.PingInterval); err != nil {
		fail("network", err)
	} else {
		rep.Network = &stats
	}

	if bw, err := AnalyzeBandwidth(opts.Stream); err != nil {
		Section(w, "Bandwidth requirements")
		line(w, "Config analysis failed: %v", err)
		fail("bandwidth", err)
	} else {
		WriteBandwidth(w, bw)
		rep.Bandwidth = &bw
	}

	if opts.ProcFS != nil {
		procs, err := FindEncoderProcesses(*opts.ProcFS)
		if err != nil {
			Section(w, "FFmpeg processes")
			line(w, "Process check failed: %v", err)
			fail("processes", err)
		} else {
			WriteProcesses(w, procs)
			rep.Encoders = procs
		}
	}

	rep.Recommendations = Recommend(opts.Stream)
	WriteRecommendations(w, rep.Recommendations)

	fmt.Fprintln(w)
	Rule(w)
	fmt.Fprintln(w, "Diagnostics complete")
	Rule(w)
	return rep
}

// RunBandwidth is the quick upload check: a dense ping burst followed by
// the bitrate requirements of the stream.
func RunBandwidth(ctx context.Context, opts Options) error {
	w := opts.Out
	if opts.Host == "" {
		opts.Host = DefaultIngestHost
	}
	if opts.PingCount <= 0 {
		opts.PingCount = 20
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 200 * time.Millisecond
	}

	if _, err := CheckNetwork(ctx, w, opts.Pinger, opts.Host, opts.PingCount, opts.PingInterval); err != nil {
		line(w, "Continuing without network figures")
	}

	bw, err := AnalyzeBandwidth(opts.Stream)
	if err != nil {
		return err
	}
	WriteBandwidth(w, bw)
	WriteRecommendations(w, Recommend(opts.Stream))
	WriteTroubleshooting(w)
	return nil
}
