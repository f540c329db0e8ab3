package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/smazurov/loopcast/internal/config"
	"github.com/smazurov/loopcast/internal/events"
	"github.com/smazurov/loopcast/internal/ffmpeg"
	"github.com/smazurov/loopcast/internal/logging"
	"github.com/smazurov/loopcast/internal/metrics"
	"github.com/smazurov/loopcast/internal/metrics/collectors"
	"github.com/smazurov/loopcast/internal/monitor"
	"github.com/smazurov/loopcast/internal/process"
)

// Default supervisor timings.
const (
	DefaultPollInterval = time.Second
	DefaultGracefulStop = 5 * time.Second
	DefaultKillTimeout  = 5 * time.Second

	maxTailLinesLogged = 20
)

// Sampler is the part of the resource monitor the supervisor drives.
type Sampler interface {
	Sample(pid int) (monitor.Sample, bool)
}

// EventPublisher publishes session events.
type EventPublisher interface {
	Publish(ev events.Event)
}

// CommandFunc builds the argument vector for an attempt.
type CommandFunc func(s *config.Stream, plan ffmpeg.AudioPlan) []string

// StateChangeFunc observes state transitions.
type StateChangeFunc func(from, to State, status Status)

// Options configures a Supervisor.
type Options struct {
	Stream *config.Stream
	Policy Policy

	FFmpegPath string
	Prober     ffmpeg.MediaProber
	// Command overrides the ffmpeg command line, mainly for tests.
	Command CommandFunc

	Monitor       Sampler
	Publisher     EventPublisher
	OutputHandler process.OutputHandler
	OnStateChange StateChangeFunc

	Logger       logging.Logger
	OutputLogger logging.Logger

	// Prebuffer is the liveness window after launch. Zero takes it from the
	// stream config of each attempt, so a reload can change it.
	Prebuffer    time.Duration
	PollInterval time.Duration
	GracefulStop time.Duration
	KillTimeout  time.Duration
}

// Supervisor owns the encoder lifecycle and the restart policy around it.
// Run drives everything from a single goroutine; Status and RequestReload
// are safe to call concurrently.
type Supervisor struct {
	opts     Options
	logger   logging.Logger
	progress *collectors.ProgressCollector
	reloadCh chan *config.Stream

	now   func() time.Time
	after func(time.Duration) <-chan time.Time

	mu      sync.RWMutex
	status  Status
	stream  *config.Stream
	plan    ffmpeg.AudioPlan
	running bool
}

// NewSupervisor creates a supervisor. Run starts it.
func NewSupervisor(opts Options) (*Supervisor, error) {
	if opts.Stream == nil {
		return nil, errors.New("stream config is required")
	}
	if opts.Policy.MaxAttempts == 0 {
		return nil, errors.New("policy must allow at least one attempt")
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger("session")
	}
	if opts.OutputLogger == nil {
		opts.OutputLogger = logging.GetLogger("encoder")
	}
	if opts.Prober == nil {
		opts.Prober = ffmpeg.NewProber(ffmpeg.DefaultFFprobePath)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.GracefulStop <= 0 {
		opts.GracefulStop = DefaultGracefulStop
	}
	if opts.KillTimeout <= 0 {
		opts.KillTimeout = DefaultKillTimeout
	}

	return &Supervisor{
		opts:     opts,
		logger:   opts.Logger,
		progress: collectors.NewProgressCollector(),
		reloadCh: make(chan *config.Stream, 1),
		now:      time.Now,
		after:    time.After,
		stream:   opts.Stream,
		status: Status{
			State:        StateIdle,
			MaxAttempts:  opts.Policy.MaxAttempts,
			LastExitCode: -1,
		},
	}, nil
}

// Status returns a snapshot of the supervisor.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// RequestReload replaces the stream config. The current attempt is stopped
// gracefully and the next one starts right away with the new config,
// without counting against the restart policy. A newer request replaces
// one that has not been picked up yet.
func (s *Supervisor) RequestReload(stream *config.Stream) {
	for {
		select {
		case s.reloadCh <- stream:
			return
		default:
		}
		select {
		case <-s.reloadCh:
		default:
		}
	}
}

// Run supervises attempts until ctx is cancelled or the policy is
// exhausted. It must be called at most once.
func (s *Supervisor) Run(ctx context.Context) Result {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return Result{Outcome: OutcomeUserStopped, Err: errors.New("supervisor already running")}
	}
	s.running = true
	s.mu.Unlock()

	s.replan(ctx, s.stream)

	var last AttemptResult
	launched := 0
	attempt := 1
	for {
		if ctx.Err() != nil {
			return s.finish(OutcomeUserStopped, launched, last)
		}

		s.setAttempt(attempt)
		metrics.IncAttempts()
		last = s.runAttempt(ctx, attempt)
		launched = attempt

		switch last.Outcome {
		case OutcomeUserStopped:
			return s.finish(OutcomeUserStopped, attempt, last)

		case OutcomeReloaded:
			metrics.IncReloads()
			s.logger.Info("Restarting encoder with new configuration", "attempt", attempt)
			continue
		}

		// Crashed
		if !s.opts.Policy.Allows(attempt) {
			s.logger.Error("Max reconnection attempts reached", "max_attempts", s.opts.Policy.MaxAttempts)
			return s.finish(OutcomeExhausted, attempt, last)
		}
		if !s.awaitRetry(ctx, attempt) {
			return s.finish(OutcomeUserStopped, attempt, last)
		}
		attempt++
		metrics.IncRestarts()
		s.mu.Lock()
		s.status.Restarts++
		s.mu.Unlock()
	}
}

func (s *Supervisor) finish(outcome Outcome, attempts int, last AttemptResult) Result {
	final := StateStopped
	if outcome == OutcomeExhausted {
		final = StateExhausted
	}
	s.setState(final)
	return Result{
		Outcome:      outcome,
		Attempts:     attempts,
		LastExitCode: last.ExitCode,
		Err:          last.Err,
		Last:         last,
	}
}

// runAttempt launches one encoder and returns when it ends. Every path that
// started a process goes through exactly one Stop.
func (s *Supervisor) runAttempt(ctx context.Context, attempt int) AttemptResult {
	res := AttemptResult{Attempt: attempt, StartedAt: s.now(), ExitCode: -1}

	s.mu.RLock()
	stream, plan := s.stream, s.plan
	s.mu.RUnlock()

	s.setState(StateStarting)
	argv := s.command(stream, plan)
	s.logger.Info("Starting stream", "attempt", attempt, "destination", ffmpeg.MaskStreamKey(stream.DestinationURL()))

	handler := process.OutputHandlerFunc(func(source, line string) {
		s.progress.HandleLine(source, line)
		if s.opts.OutputHandler != nil {
			s.opts.OutputHandler.HandleLine(source, line)
		}
	})
	p := process.New(fmt.Sprintf("attempt-%d", attempt), argv, s.logger,
		process.WithOutputLogger(s.opts.OutputLogger),
		process.WithOutputHandler(handler),
		process.WithTimeouts(s.opts.GracefulStop, s.opts.KillTimeout),
	)
	defer s.progress.Reset()

	if err := p.Start(); err != nil {
		s.logger.Error("Failed to start encoder", "error", err)
		res.Outcome = OutcomeCrashed
		res.ExitCode = process.ExitCodeStartError
		res.Err = err
		return s.endAttempt(res, nil)
	}
	s.setProcess(p)
	s.logger.Info("FFmpeg process started", "pid", p.PID())

	prebuffer := s.prebufferFor(stream)
	s.setState(StatePrebuffering)
	s.logger.Info("Pre-buffering before going live", "duration", prebuffer)

	if r, done := s.watch(ctx, p, s.after(prebuffer)); done {
		res.Outcome, res.ExitCode, res.Err, res.Tail = r.Outcome, r.ExitCode, r.Err, r.Tail
		return s.endAttempt(res, p)
	}

	s.setState(StateStreaming)
	s.logger.Info("Pre-buffer ready, now streaming")

	for {
		if r, done := s.watch(ctx, p, s.after(s.opts.PollInterval)); done {
			res.Outcome, res.ExitCode, res.Err, res.Tail = r.Outcome, r.ExitCode, r.Err, r.Tail
			return s.endAttempt(res, p)
		}
		if code, exited := p.Poll(); exited {
			r := s.crashed(p, code)
			res.Outcome, res.ExitCode, res.Err, res.Tail = r.Outcome, r.ExitCode, r.Err, r.Tail
			return s.endAttempt(res, p)
		}
		if s.opts.Monitor != nil {
			s.opts.Monitor.Sample(p.PID())
		}
	}
}

func (s *Supervisor) prebufferFor(stream *config.Stream) time.Duration {
	if s.opts.Prebuffer > 0 {
		return s.opts.Prebuffer
	}
	return stream.Streaming.Prebuffer
}

// watch waits for tick while handling cancellation, reloads and exits.
// It reports done when the attempt is over. Cancellation wins over any
// other event that is ready at the same time.
func (s *Supervisor) watch(ctx context.Context, p *process.Process, tick <-chan time.Time) (AttemptResult, bool) {
	select {
	case <-ctx.Done():
		return s.stopForCancel(p), true

	case <-p.Done():
		if ctx.Err() != nil {
			return s.stopForCancel(p), true
		}
		code, _ := p.Poll()
		return s.crashed(p, code), true

	case next := <-s.reloadCh:
		if ctx.Err() != nil {
			return s.stopForCancel(p), true
		}
		s.logger.Info("Configuration changed, stopping encoder")
		code := p.Stop()
		s.replan(ctx, next)
		return AttemptResult{Outcome: OutcomeReloaded, ExitCode: code}, true

	case <-tick:
		return AttemptResult{}, false
	}
}

func (s *Supervisor) stopForCancel(p *process.Process) AttemptResult {
	s.logger.Info("Stopping stream")
	code := p.Stop()
	s.logger.Info("Stream stopped", "exit_code", code)
	return AttemptResult{Outcome: OutcomeUserStopped, ExitCode: code}
}

func (s *Supervisor) crashed(p *process.Process, code int) AttemptResult {
	tail := p.Tail()
	s.logger.Error("FFmpeg process terminated unexpectedly", "exit_code", code)
	for _, line := range tail[max(len(tail)-maxTailLinesLogged, 0):] {
		s.logger.Error("  " + line)
	}
	metrics.IncCrashes()
	if s.opts.Publisher != nil {
		s.opts.Publisher.Publish(events.SessionCrashedEvent{
			ExitCode:  code,
			Attempt:   s.Status().Attempt,
			Tail:      tail,
			Timestamp: s.now().Format(time.RFC3339),
		})
	}
	return AttemptResult{
		Outcome:  OutcomeCrashed,
		ExitCode: code,
		Err:      fmt.Errorf("encoder exited with code %d", code),
		Tail:     tail,
	}
}

func (s *Supervisor) endAttempt(res AttemptResult, p *process.Process) AttemptResult {
	if p != nil {
		// No-op when the process already exited; reaps it otherwise.
		p.Stop()
	}
	res.EndedAt = s.now()

	s.mu.Lock()
	s.status.PID = 0
	s.status.LastExitCode = res.ExitCode
	s.status.LastError = ""
	if res.Err != nil {
		s.status.LastError = res.Err.Error()
	}
	s.mu.Unlock()

	s.setState(StateTerminated)
	return res
}

// awaitRetry waits out the policy delay. It returns false on cancellation.
// A config change during the wait is applied to the next attempt.
func (s *Supervisor) awaitRetry(ctx context.Context, attempt int) bool {
	deadline := s.now().Add(s.opts.Policy.Delay)
	s.mu.Lock()
	s.status.RetryAt = deadline
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.status.RetryAt = time.Time{}
		s.mu.Unlock()
	}()

	s.setState(StateAwaitingRetry)
	s.logger.Info("Restarting after delay", "attempt", attempt, "delay", s.opts.Policy.Delay)

	timer := s.after(s.opts.Policy.Delay)
	for {
		select {
		case <-ctx.Done():
			return false
		case next := <-s.reloadCh:
			s.replan(ctx, next)
		case <-timer:
			return ctx.Err() == nil
		}
	}
}

// replan adopts stream and probes the audio once for it.
func (s *Supervisor) replan(ctx context.Context, stream *config.Stream) {
	plan := ffmpeg.PlanAudio(ctx, s.opts.Prober, stream.Audio)
	if plan.Mode == ffmpeg.AudioCrossfade {
		s.logger.Info("Audio crossfade enabled", "duration", plan.Duration, "window", plan.Window)
	} else if stream.Audio.Crossfade {
		s.logger.Warn("Audio crossfade disabled", "reason", plan.Reason)
	}

	video := ffmpeg.VideoEncode
	if stream.Video.Copy() {
		video = ffmpeg.VideoCopy
	}

	s.mu.Lock()
	s.stream = stream
	s.plan = plan
	s.status.VideoMode = video.String()
	s.status.AudioMode = plan.Mode.String()
	s.mu.Unlock()
}

func (s *Supervisor) command(stream *config.Stream, plan ffmpeg.AudioPlan) []string {
	if s.opts.Command != nil {
		argv := s.opts.Command(stream, plan)
		s.logger.Debug("Encoder command", "command", strings.Join(argv, " "))
		return argv
	}
	cmd := ffmpeg.Build(stream, plan, s.opts.FFmpegPath)
	s.logger.Debug("Encoder command", "command", cmd.String())
	return cmd.Argv()
}

func (s *Supervisor) setAttempt(attempt int) {
	s.mu.Lock()
	s.status.Attempt = attempt
	s.mu.Unlock()
}

func (s *Supervisor) setProcess(p *process.Process) {
	s.mu.Lock()
	s.status.PID = p.PID()
	s.status.StartedAt = p.StartedAt()
	s.mu.Unlock()
}

func (s *Supervisor) setState(to State) {
	s.mu.Lock()
	from := s.status.State
	s.status.State = to
	snapshot := s.status
	s.mu.Unlock()

	if from == to {
		return
	}
	s.logger.Debug("State changed", "from", from, "to", to, "attempt", snapshot.Attempt)
	metrics.SetSessionState(string(to))

	if s.opts.Publisher != nil {
		s.opts.Publisher.Publish(events.SessionStateChangedEvent{
			From:      string(from),
			To:        string(to),
			Attempt:   snapshot.Attempt,
			Restarts:  snapshot.Restarts,
			Timestamp: s.now().Format(time.RFC3339),
		})
	}
	if s.opts.OnStateChange != nil {
		s.opts.OnStateChange(from, to, snapshot)
	}
}
