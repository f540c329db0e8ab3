package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/smazurov/loopcast/internal/ffmpeg"
	"github.com/smazurov/loopcast/internal/logging"
	"github.com/smazurov/loopcast/internal/metrics"
)

// Exit codes reported when the process did not exit on its own terms.
const (
	ExitCodeKilled     = 137 // 128 + SIGKILL
	ExitCodeStartError = 1
)

const (
	defaultGracefulTimeout  = 5 * time.Second
	defaultKillTimeout      = 5 * time.Second
	defaultProgressInterval = 5 * time.Second
	defaultDrainTimeout     = 2 * time.Second
	defaultTailLines        = 50
)

// ErrNotStarted is returned by operations that need a running process.
var ErrNotStarted = errors.New("process not started")

// OutputHandler receives output lines from the subprocess.
type OutputHandler interface {
	HandleLine(source, line string)
}

// OutputHandlerFunc adapts a function to OutputHandler.
type OutputHandlerFunc func(source, line string)

// HandleLine implements OutputHandler.
func (f OutputHandlerFunc) HandleLine(source, line string) {
	f(source, line)
}

// LineClassifier maps a raw output line to its kind and display message.
type LineClassifier func(line string) (ffmpeg.LineKind, string)

// Process owns exactly one external process. It is started once; a new
// attempt needs a new Process.
type Process struct {
	id     string
	argv   []string
	logger logging.Logger

	outputLogger     logging.Logger
	outputHandler    OutputHandler
	classify         LineClassifier
	gracefulTimeout  time.Duration
	killTimeout      time.Duration
	progressInterval time.Duration
	drainTimeout     time.Duration

	cmd       *exec.Cmd
	startedAt time.Time
	done      chan struct{}
	exitCode  atomic.Int64
	waitErr   error
	drained   sync.WaitGroup
	tail      *tailBuffer

	stopOnce      sync.Once
	stopRequested atomic.Bool
	stopCode      int

	// onSignal observes every signal delivered by Stop.
	onSignal func(syscall.Signal)
}

// Option configures a Process.
type Option func(*Process)

// WithOutputLogger routes subprocess output to a dedicated logger.
func WithOutputLogger(logger logging.Logger) Option {
	return func(p *Process) { p.outputLogger = logger }
}

// WithOutputHandler forwards every output line to h.
func WithOutputHandler(h OutputHandler) Option {
	return func(p *Process) { p.outputHandler = h }
}

// WithClassifier overrides the default ffmpeg line classifier.
func WithClassifier(c LineClassifier) Option {
	return func(p *Process) { p.classify = c }
}

// WithTimeouts sets the graceful stop window and the reap window after SIGKILL.
func WithTimeouts(graceful, kill time.Duration) Option {
	return func(p *Process) {
		if graceful > 0 {
			p.gracefulTimeout = graceful
		}
		if kill > 0 {
			p.killTimeout = kill
		}
	}
}

// WithProgressInterval limits how often progress lines are logged.
func WithProgressInterval(d time.Duration) Option {
	return func(p *Process) { p.progressInterval = d }
}

// New prepares a process for argv. Nothing runs until Start.
func New(id string, argv []string, logger logging.Logger, opts ...Option) *Process {
	p := &Process{
		id:               id,
		argv:             argv,
		logger:           logger,
		classify:         ffmpeg.Classify,
		gracefulTimeout:  defaultGracefulTimeout,
		killTimeout:      defaultKillTimeout,
		progressInterval: defaultProgressInterval,
		drainTimeout:     defaultDrainTimeout,
		done:             make(chan struct{}),
		tail:             newTailBuffer(defaultTailLines),
	}
	p.exitCode.Store(-1)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ID returns the identifier given to New.
func (p *Process) ID() string {
	return p.id
}

// Start launches the process in its own process group and begins draining
// its output.
func (p *Process) Start() error {
	if len(p.argv) == 0 {
		return fmt.Errorf("empty command")
	}
	if p.cmd != nil {
		return fmt.Errorf("process %s already started", p.id)
	}

	cmd := exec.Command(p.argv[0], p.argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.argv[0], err)
	}
	p.cmd = cmd
	p.startedAt = time.Now()

	p.logger.Info("Process started", "id", p.id, "pid", cmd.Process.Pid)

	progress := &rate.Sometimes{Interval: p.progressInterval}
	p.drained.Add(2)
	go p.streamOutput(stdout, "stdout", progress)
	go p.streamOutput(stderr, "stderr", progress)

	go p.reap(stdout, stderr)

	return nil
}

// reap waits for the direct child to exit, independent of its output. A
// descendant that inherited the pipes can hold them open long after the
// child is gone, so the drains get drainTimeout to reach EOF before the
// pipes are closed under them.
func (p *Process) reap(pipes ...io.Closer) {
	state, err := p.cmd.Process.Wait()
	if err == nil && !state.Success() {
		err = &exec.ExitError{ProcessState: state}
	}

	drained := make(chan struct{})
	go func() {
		p.drained.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(p.drainTimeout):
		p.logger.Debug("Output still open after exit, closing pipes", "id", p.id)
	}
	for _, c := range pipes {
		_ = c.Close()
	}
	<-drained

	p.waitErr = err
	p.exitCode.Store(int64(exitCodeFromError(err)))
	close(p.done)
}

// PID returns the process id, or 0 before Start.
func (p *Process) PID() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// StartedAt returns when Start succeeded.
func (p *Process) StartedAt() time.Time {
	return p.startedAt
}

// Done is closed once the process has exited and been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Poll reports the exit code without blocking.
func (p *Process) Poll() (exitCode int, exited bool) {
	select {
	case <-p.done:
		return int(p.exitCode.Load()), true
	default:
		return 0, false
	}
}

// Err returns the error from reaping the process, nil for a clean exit.
func (p *Process) Err() error {
	select {
	case <-p.done:
		return p.waitErr
	default:
		return nil
	}
}

// Wait blocks until the process exits and returns its exit code.
func (p *Process) Wait() (int, error) {
	if p.cmd == nil {
		return ExitCodeStartError, ErrNotStarted
	}
	<-p.done
	return int(p.exitCode.Load()), nil
}

// Tail returns the last lines of combined output, oldest first.
func (p *Process) Tail() []string {
	return p.tail.Lines()
}

// StopRequested reports whether Stop was called, telling a requested exit
// apart from a crash.
func (p *Process) StopRequested() bool {
	return p.stopRequested.Load()
}

// Stop asks the process to exit with SIGINT, waits up to the graceful
// timeout, then sends SIGKILL and waits up to the kill timeout for the
// reap. Only the first call runs the sequence; later calls return its
// result.
func (p *Process) Stop() int {
	p.stopOnce.Do(func() {
		p.stopRequested.Store(true)
		p.stopCode = p.stop()
	})
	return p.stopCode
}

func (p *Process) stop() int {
	if p.cmd == nil {
		return ExitCodeStartError
	}
	if code, exited := p.Poll(); exited {
		return code
	}

	p.logger.Info("Sending SIGINT to process", "pid", p.PID())
	p.signal(syscall.SIGINT)

	select {
	case <-p.done:
		code := int(p.exitCode.Load())
		metrics.ObserveStop(metrics.StopGraceful)
		p.logger.Info("Process exited after SIGINT", "exit_code", code)
		return code
	case <-time.After(p.gracefulTimeout):
	}

	p.logger.Warn("Graceful shutdown timeout, forcing kill", "timeout", p.gracefulTimeout)
	p.signal(syscall.SIGKILL)
	metrics.ObserveStop(metrics.StopKilled)

	select {
	case <-p.done:
	case <-time.After(p.killTimeout):
		p.logger.Error("Process did not exit after kill signal", "pid", p.PID())
	}
	return ExitCodeKilled
}

// signal delivers sig to the whole process group.
func (p *Process) signal(sig syscall.Signal) {
	if p.onSignal != nil {
		p.onSignal(sig)
	}
	pid := p.PID()
	if pid == 0 {
		return
	}
	if err := syscall.Kill(-pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		p.logger.Warn("Failed to signal process group", "signal", sig.String(), "error", err)
		if err := p.cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
			p.logger.Error("Failed to signal process", "signal", sig.String(), "error", err)
		}
	}
}

// exitCodeFromError extracts exit code from process error.
// Returns 0 for nil error, the exit code for ExitError, or 1 for other errors.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return 128 + int(status.Signal())
		}
	}
	return 1
}

// streamOutput drains one pipe until it closes so the encoder never blocks
// on a full pipe buffer.
func (p *Process) streamOutput(reader io.Reader, source string, progress *rate.Sometimes) {
	defer p.drained.Done()

	logger := p.outputLogger
	if logger == nil {
		logger = p.logger
	}

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(scanLines)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		p.tail.Add(line)
		if p.outputHandler != nil {
			p.outputHandler.HandleLine(source, line)
		}

		kind, msg := p.classify(line)
		switch kind {
		case ffmpeg.LineError:
			logger.Error(msg, "source", source)
		case ffmpeg.LineWarning:
			logger.Warn(msg, "source", source)
		case ffmpeg.LineProgress:
			progress.Do(func() { logger.Info(msg) })
		default:
			logger.Debug(msg, "source", source)
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		p.logger.Warn("Error reading output", "source", source, "error", err)
	}
}

// scanLines splits on \n and on bare \r, which ffmpeg uses to redraw its
// progress line in place.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	for i, b := range data {
		if b == '\n' || b == '\r' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
