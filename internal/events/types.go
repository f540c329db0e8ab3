package events

// Event type constants for kelindar/event.
const (
	TypeSessionStateChanged uint32 = iota + 1
	TypeSessionCrashed
	TypeConfigReloaded
	TypeEncoderMetrics
	TypeHostMetrics
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// SessionStateChangedEvent is published on every supervisor state transition.
type SessionStateChangedEvent struct {
	From      string `json:"from" example:"starting" doc:"Previous state"`
	To        string `json:"to" example:"streaming" doc:"New state"`
	Attempt   int    `json:"attempt" example:"1" doc:"Encoder launch count for this session"`
	Restarts  int    `json:"restarts" example:"0" doc:"Restarts after crashes"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Transition time"`
}

// Type returns the event type identifier for SessionStateChangedEvent.
func (e SessionStateChangedEvent) Type() uint32 { return TypeSessionStateChanged }

// SessionCrashedEvent is published when the encoder exits without being asked to.
type SessionCrashedEvent struct {
	ExitCode  int      `json:"exit_code" example:"1" doc:"Encoder exit code"`
	Attempt   int      `json:"attempt" example:"3" doc:"Attempt that crashed"`
	Tail      []string `json:"tail,omitempty" doc:"Last lines of encoder output"`
	Timestamp string   `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Crash time"`
}

// Type returns the event type identifier for SessionCrashedEvent.
func (e SessionCrashedEvent) Type() uint32 { return TypeSessionCrashed }

// ConfigReloadedEvent is published after the stream configuration file changed
// and was accepted.
type ConfigReloadedEvent struct {
	Path      string `json:"path" example:"config.json" doc:"Configuration file"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Reload time"`
}

// Type returns the event type identifier for ConfigReloadedEvent.
func (e ConfigReloadedEvent) Type() uint32 { return TypeConfigReloaded }

// EncoderMetricsEvent carries the latest encoder progress.
type EncoderMetricsEvent struct {
	EventType       string `json:"type"`
	FPS             string `json:"fps"`
	BitrateKbps     string `json:"bitrate_kbps"`
	Speed           string `json:"speed"`
	DroppedFrames   string `json:"dropped_frames"`
	DuplicateFrames string `json:"duplicate_frames"`
}

// Type returns the event type identifier for EncoderMetricsEvent.
func (e EncoderMetricsEvent) Type() uint32 { return TypeEncoderMetrics }

// HostMetricsEvent carries one resource monitor sample.
type HostMetricsEvent struct {
	CPUPercent      float64 `json:"cpu_percent" doc:"System CPU utilization"`
	MemoryPercent   float64 `json:"memory_percent" doc:"System memory utilization"`
	MemoryUsedGB    float64 `json:"memory_used_gb" doc:"System memory in use"`
	EncoderRunning  bool    `json:"encoder_running" doc:"Whether an encoder process was sampled"`
	EncoderCPU      float64 `json:"encoder_cpu_percent,omitempty" doc:"Encoder CPU utilization"`
	EncoderMemoryMB float64 `json:"encoder_memory_mb,omitempty" doc:"Encoder resident memory"`
	Timestamp       string  `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Sample time"`
}

// Type returns the event type identifier for HostMetricsEvent.
func (e HostMetricsEvent) Type() uint32 { return TypeHostMetrics }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2026-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"session" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
