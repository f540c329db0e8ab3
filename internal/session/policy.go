package session

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/smazurov/loopcast/internal/config"
)

// Unlimited disables the attempt limit.
const Unlimited = config.UnlimitedAttempts

// Policy bounds encoder launches across a run.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Allows reports whether another launch may follow attempt.
func (p Policy) Allows(attempt int) bool {
	return p.MaxAttempts == Unlimited || attempt < p.MaxAttempts
}

// Run modes selectable on the command line.
const (
	ModeOnce    = "once"
	ModeRestart = "restart"
	ModeForever = "forever"
)

// PolicyForMode returns the restart policy for a run mode.
func PolicyForMode(mode string, s config.Streaming) (Policy, error) {
	switch mode {
	case ModeOnce:
		return Policy{MaxAttempts: 1, Delay: s.ReconnectDelay}, nil
	case ModeRestart:
		return Policy{MaxAttempts: s.MaxReconnectAttempts, Delay: s.ReconnectDelay}, nil
	case ModeForever:
		return Policy{MaxAttempts: Unlimited, Delay: s.ReconnectDelay}, nil
	default:
		return Policy{}, fmt.Errorf("unknown mode %q (want %s, %s or %s)", mode, ModeOnce, ModeRestart, ModeForever)
	}
}

// PromptMode asks which run mode to use. Anything other than "2" selects a
// single run.
func PromptMode(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprintln(out, "\nOptions:")
	fmt.Fprintln(out, "1. Stream once (manual restart if disconnected)")
	fmt.Fprintln(out, "2. Auto-restart on disconnection (recommended for 24/7)")
	fmt.Fprint(out, "\nSelect option (1 or 2): ")

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		if err == io.EOF {
			return ModeOnce, nil
		}
		return "", fmt.Errorf("read choice: %w", err)
	}
	if strings.TrimSpace(line) == "2" {
		return ModeForever, nil
	}
	return ModeOnce, nil
}
