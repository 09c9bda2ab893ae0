package scripts

import "time"

// State is the execution lifecycle state. Transitions are monotonic:
// IDLE -> RUNNING -> {COMPLETED, ERROR}. Terminal states never change.
type State string

const (
	StateIdle      State = "IDLE"
	StateRunning   State = "RUNNING"
	StateCompleted State = "COMPLETED"
	StateError     State = "ERROR"
)

// ParseState converts a stored string into a State.
func ParseState(value string) (State, bool) {
	switch State(value) {
	case StateIdle, StateRunning, StateCompleted, StateError:
		return State(value), true
	default:
		return "", false
	}
}

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateError
}

// CanTransition reports whether moving to next is a legal lifecycle step.
func (s State) CanTransition(next State) bool {
	switch s {
	case StateIdle:
		return next == StateRunning
	case StateRunning:
		return next == StateCompleted || next == StateError
	default:
		return false
	}
}

// Script is an uploaded experiment script. Content never changes after
// upload; the id is daemon-assigned.
type Script struct {
	ID        string
	Name      string
	Content   string
	CreatedAt time.Time
}

// Execution is one run of a script. StartTimeNS/EndTimeNS are UTC
// nanoseconds; EndTimeNS is zero until a terminal state is reached.
type Execution struct {
	ExecutionID  string
	ScriptID     string
	State        State
	ErrorMessage string
	StartTimeNS  int64
	EndTimeNS    int64
}
