package bridge

import (
	"errors"
	"time"
)

// State is the lifecycle position of a bridge.
type State int

const (
	Disconnected State = iota
	Starting
	AwaitingReady
	Ready
	ShuttingDown
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Starting:
		return "starting"
	case AwaitingReady:
		return "awaiting_ready"
	case Ready:
		return "ready"
	case ShuttingDown:
		return "shutting_down"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// StateChange is delivered to subscribers on every transition. Err is set
// when the transition was caused by a failure.
type StateChange struct {
	Upstream string
	From     State
	To       State
	Err      error
	At       time.Time
}

var (
	// ErrSpawn means the upstream process could not be started, or exited
	// before answering the readiness probe.
	ErrSpawn = errors.New("upstream spawn failed")

	// ErrReadyTimeout means the readiness probe went unanswered.
	ErrReadyTimeout = errors.New("upstream readiness timeout")

	// ErrRequestTimeout means a single request went unanswered.
	ErrRequestTimeout = errors.New("request timeout")

	// ErrClosed means the bridge is shutting down or closed. Every call still
	// outstanding at teardown resolves with it.
	ErrClosed = errors.New("bridge closed")
)
