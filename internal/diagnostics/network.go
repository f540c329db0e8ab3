package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultIngestHost is the primary YouTube RTMP ingest.
const DefaultIngestHost = "a.rtmp.youtube.com"

// Pinger runs ping and returns its raw output.
type Pinger interface {
	Ping(ctx context.Context, host string, count int, interval time.Duration) (string, error)
}

// ExecPinger shells out to the system ping binary.
type ExecPinger struct {
	Binary string
}

// Ping runs "ping -c count [-i interval] host". ping exits non-zero on
// packet loss, so output is returned whenever any was produced.
func (p ExecPinger) Ping(ctx context.Context, host string, count int, interval time.Duration) (string, error) {
	bin := p.Binary
	if bin == "" {
		bin = "ping"
	}
	args := []string{"-c", strconv.Itoa(count)}
	if interval > 0 {
		args = append(args, "-i", strconv.FormatFloat(interval.Seconds(), 'f', -1, 64))
	}
	args = append(args, host)

	out, err := exec.CommandContext(ctx, bin, args...).Output()
	if len(out) > 0 {
		return string(out), nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		return "", fmt.Errorf("ping %s: %s", host, strings.TrimSpace(string(exitErr.Stderr)))
	}
	if err != nil {
		return "", fmt.Errorf("ping %s: %w", host, err)
	}
	return "", fmt.Errorf("ping %s: no output", host)
}

var (
	lossRe = regexp.MustCompile(`([\d.]+)% packet loss`)
	rttRe  = regexp.MustCompile(`min/avg/max(?:/(?:stddev|mdev))? = ([\d.]+)/([\d.]+)/([\d.]+)`)
)

// PingStats is the parsed summary of a ping run.
type PingStats struct {
	Host       string  `json:"host"`
	PacketLoss float64 `json:"packet_loss_percent"`
	HasLoss    bool    `json:"-"`
	MinMs      float64 `json:"min_ms"`
	AvgMs      float64 `json:"avg_ms"`
	MaxMs      float64 `json:"max_ms"`
	HasRTT     bool    `json:"-"`
	LossLine   string  `json:"-"`
	RTTLine    string  `json:"-"`
}

// ParsePing extracts packet loss and round-trip times from ping output.
// Both the BSD (stddev) and Linux (mdev) summary forms are accepted.
func ParsePing(out string) PingStats {
	var s PingStats
	for l := range strings.SplitSeq(out, "\n") {
		l = strings.TrimSpace(l)
		if m := lossRe.FindStringSubmatch(l); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				s.PacketLoss, s.HasLoss, s.LossLine = v, true, l
			}
		}
		if m := rttRe.FindStringSubmatch(l); m != nil {
			minV, err1 := strconv.ParseFloat(m[1], 64)
			avgV, err2 := strconv.ParseFloat(m[2], 64)
			maxV, err3 := strconv.ParseFloat(m[3], 64)
			if err1 == nil && err2 == nil && err3 == nil {
				s.MinMs, s.AvgMs, s.MaxMs, s.HasRTT, s.RTTLine = minV, avgV, maxV, true, l
			}
		}
	}
	return s
}

// LossRating grades packet loss: any loss is moderate, above 5% is poor.
func (s PingStats) LossRating() Rating {
	switch {
	case s.PacketLoss > 5:
		return Poor
	case s.PacketLoss > 0:
		return Moderate
	default:
		return Good
	}
}

// LatencyRating grades average round trip: above 80ms is moderate,
// above 150ms is poor.
func (s PingStats) LatencyRating() Rating {
	switch {
	case s.AvgMs > 150:
		return Poor
	case s.AvgMs > 80:
		return Moderate
	default:
		return Good
	}
}

// CheckNetwork pings host and reports loss and latency.
func CheckNetwork(ctx context.Context, w io.Writer, p Pinger, host string, count int, interval time.Duration) (PingStats, error) {
	Section(w, "Network to "+host)

	out, err := p.Ping(ctx, host, count, interval)
	if err != nil {
		line(w, "Network test failed: %v", err)
		return PingStats{Host: host}, err
	}
	stats := ParsePing(out)
	stats.Host = host

	if stats.HasLoss {
		line(w, "Packet loss: %g%%", stats.PacketLoss)
		switch stats.LossRating() {
		case Poor:
			rated(w, Poor, "High packet loss, the network is unstable")
		case Moderate:
			rated(w, Moderate, "Minor packet loss detected")
		default:
			rated(w, Good, "No packet loss")
		}
	}
	if stats.HasRTT {
		line(w, "Round trip: min %.1fms / avg %.1fms / max %.1fms", stats.MinMs, stats.AvgMs, stats.MaxMs)
		switch stats.LatencyRating() {
		case Poor:
			rated(w, Poor, "High latency, may cause streaming issues")
		case Moderate:
			rated(w, Moderate, "Moderate latency")
		default:
			rated(w, Good, "Good latency")
		}
	}
	if !stats.HasLoss && !stats.HasRTT {
		return stats, fmt.Errorf("ping %s: unrecognised output", host)
	}
	return stats, nil
}
