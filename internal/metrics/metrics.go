// Package metrics computes summary statistics from the job store. It is
// read-only: no locking beyond the store's own read path, and bad individual
// records never fail the aggregate.
package metrics

import (
	"context"

	"github.com/cockroachdb/errors"

	"queuectl/internal/models"
	"queuectl/internal/repository"
)

// Summary is the aggregated view over all job records
type Summary struct {
	TotalJobs   int                  `json:"total_jobs"`
	ByState     map[models.State]int `json:"by_state"`
	SuccessRate float64              `json:"success_rate"` // completed / (completed + dead)
	AvgAttempts float64              `json:"avg_attempts"` // over completed and dead jobs
	AvgDuration float64              `json:"avg_duration"` // seconds, over completed jobs
}

// Summarize scans the store and aggregates
func Summarize(ctx context.Context, repo repository.JobRepository) (*Summary, error) {
	jobs, err := repo.List(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan jobs")
	}

	s := &Summary{ByState: make(map[models.State]int, len(models.States()))}
	for _, st := range models.States() {
		s.ByState[st] = 0
	}

	var attemptsSum, durationSum float64
	var terminal, completed int

	for _, job := range jobs {
		s.TotalJobs++
		s.ByState[job.State]++

		if job.Terminal() {
			terminal++
			attemptsSum += float64(job.Attempts)
		}
		if job.State == models.StateCompleted {
			completed++
			durationSum += job.Duration
		}
	}

	if terminal > 0 {
		s.SuccessRate = float64(completed) / float64(terminal)
		s.AvgAttempts = attemptsSum / float64(terminal)
	}
	if completed > 0 {
		s.AvgDuration = durationSum / float64(completed)
	}

	return s, nil
}
