// Package supervise runs the bitcoind child process and keeps its lifecycle
// coupled to configuration changes.
//
// The manager holds at most one child at a time. Starting when a child
// already exists is a no-op, which is the mechanism that prevents duplicate
// daemons. Unexpected exits are captured as crash diagnostics with a bounded
// log tail and broadcast to subscribers; the manager itself keeps running.
package supervise

import (
	"time"
)

// ExitInfo is the diagnostic captured when the child terminates without a
// prior stop request, or synthesized when a start could not spawn at all.
type ExitInfo struct {
	// Code is the process exit code, or -1 when the child never spawned.
	Code int `json:"code"`

	// Signal names the terminating signal, empty for a plain exit.
	Signal string `json:"signal,omitempty"`

	// LogTail holds the most recent output lines, oldest first.
	LogTail []string `json:"log_tail"`

	// Message is a human-readable summary.
	Message string `json:"message"`

	// At is when the exit was observed.
	At time.Time `json:"at"`
}

// ManagerStatus is a point-in-time view of the supervised child.
type ManagerStatus struct {
	Running   bool      `json:"running"`
	StartedAt time.Time `json:"started_at,omitzero"`
	PID       int       `json:"pid,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// Result tags the outcome of a lifecycle call.
type Result string

const (
	// ResultNoOp means the call changed nothing: start with a child already
	// running, or stop with no child.
	ResultNoOp Result = "no_op"

	// ResultStarted means a child was spawned.
	ResultStarted Result = "started"

	// ResultStopped means the child was stopped.
	ResultStopped Result = "stopped"
)

// State tracks where the child is in its lifecycle.
type State int

const (
	// StateStopped is the initial state, and the state after a graceful stop.
	StateStopped State = iota
	// StateStarting covers version resolution and spawn.
	StateStarting
	// StateRunning means the child is alive.
	StateRunning
	// StateCrashed means the child exited without a stop request.
	StateCrashed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}
