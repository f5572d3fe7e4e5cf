// Package repository provides durable storage for job records. All state
// transitions after insert go through conditional updates keyed on the
// expected prior state, which is the only synchronization primitive the
// system needs under concurrent workers.
package repository

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"queuectl/internal/models"
)

var (
	// ErrDuplicateID is returned by Insert when the job id already exists
	ErrDuplicateID = errors.New("job id already exists")
	// ErrNotFound is returned when no job matches the given id
	ErrNotFound = errors.New("job not found")
)

// Transition describes a conditional mutation of a job record. Nil pointer
// fields are left untouched. UpdatedAt is always refreshed by the store.
type Transition struct {
	State         models.State
	NextRunAt     *time.Time
	FinishedAt    *time.Time
	Duration      *float64
	Error         *string
	LogPath       *string
	ResetAttempts bool
}

// JobRepository defines the persistence contract for jobs
type JobRepository interface {
	Insert(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, id string) (*models.Job, error)
	List(ctx context.Context, state *models.State) ([]*models.Job, error)
	CountsByState(ctx context.Context) (map[models.State]int, error)

	// Claim atomically hands one eligible job (pending, next_run_at <= now)
	// to the caller: state becomes running, started_at is set, attempts is
	// incremented. Returns (nil, nil) when nothing is eligible.
	Claim(ctx context.Context, now time.Time) (*models.Job, error)

	// ApplyIf applies tr only when the job's current state equals expected.
	// Returns false (and no error) when the condition was lost or the id is
	// unknown; callers that need the distinction follow up with Get.
	ApplyIf(ctx context.Context, id string, expected models.State, tr Transition) (bool, error)

	// RequeueStale returns to pending every running job not touched since
	// cutoff, recovering work orphaned by a crashed worker process.
	RequeueStale(ctx context.Context, cutoff time.Time) (int, error)

	Close() error
}
