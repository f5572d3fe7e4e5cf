// Package scheduler turns an execution outcome into the job's next persisted
// state: completed, pending with a backed-off next_run_at, or dead once the
// retry budget is exhausted.
package scheduler

import (
	"context"
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"queuectl/internal/models"
	"queuectl/internal/repository"
)

// Scheduler applies outcomes to the job store
type Scheduler struct {
	repo repository.JobRepository
	log  *zap.SugaredLogger
}

// New creates a retry scheduler
func New(repo repository.JobRepository, log *zap.SugaredLogger) *Scheduler {
	return &Scheduler{repo: repo, log: log}
}

// Backoff computes the retry delay before the next attempt. The first retry
// waits base^0 = 1 second, growing exponentially with each failed attempt.
func Backoff(base float64, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return time.Duration(math.Pow(base, float64(attempts-1)) * float64(time.Second))
}

// Apply writes the outcome of the job's current attempt. Every write is
// conditioned on the job still being running, so a duplicate Apply after a
// worker crash (or a racing stale-requeue) affects zero rows instead of
// rescheduling a job twice.
func (s *Scheduler) Apply(ctx context.Context, job *models.Job, out models.Outcome, now time.Time) error {
	var tr repository.Transition

	switch {
	case out.Completed:
		tr = repository.Transition{
			State:      models.StateCompleted,
			FinishedAt: &now,
			Duration:   ptr(out.Duration.Seconds()),
			Error:      ptr(""),
			LogPath:    &out.LogPath,
		}

	case job.Attempts <= job.MaxRetries:
		next := now.Add(Backoff(job.BackoffBase, job.Attempts))
		tr = repository.Transition{
			State:     models.StatePending,
			NextRunAt: &next,
			Duration:  ptr(out.Duration.Seconds()),
			Error:     &out.Error,
			LogPath:   &out.LogPath,
		}
		s.log.Infow("retry scheduled",
			"job_id", job.ID,
			"attempts", job.Attempts,
			"max_retries", job.MaxRetries,
			"next_run_at", next,
		)

	default:
		tr = repository.Transition{
			State:      models.StateDead,
			FinishedAt: &now,
			Duration:   ptr(out.Duration.Seconds()),
			Error:      &out.Error,
			LogPath:    &out.LogPath,
		}
		s.log.Warnw("retries exhausted, job moved to dead letter queue",
			"job_id", job.ID,
			"attempts", job.Attempts,
			"error", out.Error,
		)
	}

	applied, err := s.repo.ApplyIf(ctx, job.ID, models.StateRunning, tr)
	if err != nil {
		return errors.Wrapf(err, "failed to apply outcome for job %s", job.ID)
	}
	if !applied {
		// Terminal idempotence: someone else already moved the job on
		s.log.Warnw("outcome dropped, job no longer running", "job_id", job.ID, "state", tr.State)
	}

	return nil
}

func ptr[T any](v T) *T { return &v }
