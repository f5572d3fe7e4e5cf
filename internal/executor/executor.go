// Package executor runs a claimed job's command under a hard wall-clock
// limit. It is a pure function from (job, timeout) to an Outcome plus a log
// artifact; it never mutates the job store.
package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"queuectl/internal/models"
)

// Executor spawns job commands and captures their output
type Executor struct {
	logsDir string
}

// New creates an executor writing logs under logsDir
func New(logsDir string) *Executor {
	return &Executor{logsDir: logsDir}
}

// LogPath returns the log file location for a job id. One artifact per job;
// a retry overwrites the previous attempt's output, matching the record's
// single log_path field.
func (e *Executor) LogPath(jobID string) string {
	return filepath.Join(e.logsDir, fmt.Sprintf("job-%s.log", jobID))
}

// Run executes the job's command via `sh -c` with combined stdout/stderr
// redirected to the job's log file. The subprocess is killed once timeout
// elapses. Every failure mode is folded into the returned Outcome; Run never
// returns an error because execution failures are job state, not process
// errors.
func (e *Executor) Run(ctx context.Context, job *models.Job, timeout time.Duration) models.Outcome {
	logPath := e.LogPath(job.ID)

	// Per-job, per-attempt artifact; never shared between workers, so plain
	// file IO needs no locking.
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return models.FailedOutcome(0, fmt.Sprintf("failed to open log file: %v", err), "")
	}
	defer logFile.Close()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", job.Command)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		// Report the configured bound, not the measured wall clock, so the
		// recorded duration is deterministic.
		fmt.Fprintf(logFile, "\ncommand timed out after %s\n", timeout)
		return models.FailedOutcome(timeout, "timed out", logPath)
	case runErr == nil:
		return models.CompletedOutcome(duration, logPath)
	default:
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			return models.FailedOutcome(duration, fmt.Sprintf("exit code %d", exitErr.ExitCode()), logPath)
		}
		// Spawn-level failure: sh missing, permission denied, fd limits
		return models.FailedOutcome(0, runErr.Error(), logPath)
	}
}
