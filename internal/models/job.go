// Package models defines the job record and its lifecycle states.
package models

import (
	"time"

	"github.com/cockroachdb/errors"
)

// State represents the lifecycle state of a job
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateDead      State = "dead"
)

// States lists every valid state, in lifecycle order.
func States() []State {
	return []State{StatePending, StateRunning, StateCompleted, StateFailed, StateDead}
}

// ParseState validates a state string supplied by a caller
func ParseState(s string) (State, error) {
	switch State(s) {
	case StatePending, StateRunning, StateCompleted, StateFailed, StateDead:
		return State(s), nil
	default:
		return "", errors.Newf("unknown job state %q", s)
	}
}

// Job is the central entity: one shell command and its execution history.
//
// id and command are immutable after creation. state is mutated only through
// the repository's conditional transitions. attempts is incremented by the
// claim, never elsewhere.
type Job struct {
	ID          string     `json:"id"`
	Command     string     `json:"command"`
	State       State      `json:"state"`
	Attempts    int        `json:"attempts"`
	MaxRetries  int        `json:"max_retries"`
	BackoffBase float64    `json:"backoff_base"`
	NextRunAt   time.Time  `json:"next_run_at"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Duration    float64    `json:"duration,omitempty"` // wall-clock seconds of the last attempt
	Error       string     `json:"error,omitempty"`    // most recent failure message
	LogPath     string     `json:"log_path,omitempty"`
}

// Terminal reports whether the job has reached a state the engine never
// leaves on its own (DLQ retry is a manual operator action).
func (j *Job) Terminal() bool {
	return j.State == StateCompleted || j.State == StateDead
}
