package simulation

import "time"

// State is the lifecycle state of a Loop.
type State int32

// Loop states. Transitions: Stopped -> Starting -> Running -> Stopping -> Stopped,
// and Starting -> Stopped when preparation fails.
const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	}
	return "unknown"
}

// Reasons a run ended.
const (
	StopRequested        = "stop requested"
	StopCancelled        = "context cancelled"
	StopRunStateUnusable = "run state unavailable"
)

// Stats describes the current or most recent run.
type Stats struct {
	RunID      string     `json:"run_id,omitempty"`
	State      string     `json:"state"`
	Subjects   int        `json:"subjects"`
	Cycles     int64      `json:"cycles"`
	Published  int64      `json:"published"`
	Failed     int64      `json:"failed"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	StoppedAt  *time.Time `json:"stopped_at,omitempty"`
	StopReason string     `json:"stop_reason,omitempty"`
}
