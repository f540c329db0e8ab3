package process

import (
	"sync"
	"time"
)

// Info is a point-in-time view of a process.
type Info struct {
	ID        string
	PID       int
	StartedAt time.Time
	Running   bool
	ExitCode  int
}

// Info returns a snapshot of the process.
func (p *Process) Info() Info {
	code, exited := p.Poll()
	info := Info{
		ID:        p.id,
		PID:       p.PID(),
		StartedAt: p.startedAt,
		Running:   p.cmd != nil && !exited,
		ExitCode:  -1,
	}
	if exited {
		info.ExitCode = code
	}
	return info
}

// tailBuffer keeps the last n output lines.
type tailBuffer struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

func newTailBuffer(n int) *tailBuffer {
	return &tailBuffer{lines: make([]string, n)}
}

func (b *tailBuffer) Add(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines[b.next] = line
	b.next = (b.next + 1) % len(b.lines)
	if b.next == 0 {
		b.full = true
	}
}

func (b *tailBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.full {
		out := make([]string, b.next)
		copy(out, b.lines[:b.next])
		return out
	}
	out := make([]string, 0, len(b.lines))
	out = append(out, b.lines[b.next:]...)
	return append(out, b.lines[:b.next]...)
}
