package session

import "time"

// State is a supervisor lifecycle state.
type State string

// Supervisor states.
const (
	StateIdle          State = "idle"
	StateStarting      State = "starting"
	StatePrebuffering  State = "prebuffering"
	StateStreaming     State = "streaming"
	StateTerminated    State = "terminated"     // attempt ended, deciding what next
	StateAwaitingRetry State = "awaiting_retry" // crashed, waiting for the retry deadline
	StateStopped       State = "stopped"        // user cancellation
	StateExhausted     State = "exhausted"      // policy denied another attempt
)

// Outcome is how an attempt or a whole run ended.
type Outcome string

// Outcomes.
const (
	OutcomeUserStopped Outcome = "user_stopped"
	OutcomeCrashed     Outcome = "crashed"
	OutcomeReloaded    Outcome = "reloaded" // attempt only: replaced after a config change
	OutcomeExhausted   Outcome = "exhausted"
)

// AttemptResult describes one encoder launch.
type AttemptResult struct {
	Attempt   int
	StartedAt time.Time
	EndedAt   time.Time
	Outcome   Outcome
	ExitCode  int
	Err       error
	// Tail holds the last encoder output lines of a crashed attempt.
	Tail []string
}

// Result is returned by Run.
type Result struct {
	Outcome      Outcome
	Attempts     int
	LastExitCode int
	Err          error
	Last         AttemptResult
}

// ExitCode maps the run outcome to a process exit code.
func (r Result) ExitCode() int {
	if r.Outcome == OutcomeUserStopped {
		return 0
	}
	return 1
}

// Status is a snapshot of the supervisor for the status API.
type Status struct {
	State        State     `json:"state" example:"streaming" doc:"Current supervisor state"`
	Attempt      int       `json:"attempt" example:"1" doc:"Encoder launch count"`
	MaxAttempts  int       `json:"max_attempts" example:"10" doc:"Launch limit, -1 for unlimited"`
	Restarts     int       `json:"restarts" example:"0" doc:"Relaunches after crashes"`
	PID          int       `json:"pid,omitempty" example:"4242" doc:"Encoder process id"`
	StartedAt    time.Time `json:"started_at,omitzero" doc:"Start of the current attempt"`
	RetryAt      time.Time `json:"retry_at,omitzero" doc:"Deadline of the pending retry"`
	LastExitCode int       `json:"last_exit_code" example:"0" doc:"Exit code of the previous attempt"`
	LastError    string    `json:"last_error,omitempty" doc:"Error of the previous attempt"`
	VideoMode    string    `json:"video_mode,omitempty" example:"copy" doc:"copy or encode"`
	AudioMode    string    `json:"audio_mode,omitempty" example:"crossfade" doc:"single or crossfade"`
}
