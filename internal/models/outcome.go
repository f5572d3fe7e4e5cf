package models

import "time"

// Outcome is the result classification of one execution attempt. It is
// produced by the executor and consumed by the retry scheduler; it never
// touches the store itself.
type Outcome struct {
	Completed bool
	Duration  time.Duration
	Error     string // empty on success
	LogPath   string // where combined stdout/stderr was written
}

// CompletedOutcome builds a success outcome
func CompletedOutcome(d time.Duration, logPath string) Outcome {
	return Outcome{Completed: true, Duration: d, LogPath: logPath}
}

// FailedOutcome builds a failure outcome. Timeouts, non-zero exits and spawn
// errors all land here; the distinction lives in the error message.
func FailedOutcome(d time.Duration, msg string, logPath string) Outcome {
	return Outcome{Duration: d, Error: msg, LogPath: logPath}
}
