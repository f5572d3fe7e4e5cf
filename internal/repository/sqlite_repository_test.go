package repository

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queuectl/internal/models"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newJob(id string, nextRun time.Time) *models.Job {
	now := time.Now().UTC().Truncate(time.Second)
	return &models.Job{
		ID:          id,
		Command:     "echo hi",
		State:       models.StatePending,
		MaxRetries:  3,
		BackoffBase: 2,
		NextRunAt:   nextRun,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestInsertAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, repo.Insert(ctx, newJob("j1", now)))

	job, err := repo.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, "j1", job.ID)
	assert.Equal(t, "echo hi", job.Command)
	assert.Equal(t, models.StatePending, job.State)
	assert.Equal(t, 0, job.Attempts)
	assert.Equal(t, now, job.NextRunAt)
	assert.Nil(t, job.StartedAt)
	assert.Nil(t, job.FinishedAt)
}

func TestInsertDuplicateID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Insert(ctx, newJob("j1", now)))

	err := repo.Insert(ctx, newJob("j1", now))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateID))
}

func TestGetNotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListByState(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Insert(ctx, newJob("j1", now)))
	require.NoError(t, repo.Insert(ctx, newJob("j2", now)))

	done := newJob("j3", now)
	done.State = models.StateCompleted
	require.NoError(t, repo.Insert(ctx, done))

	all, err := repo.List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	pending := models.StatePending
	jobs, err := repo.List(ctx, &pending)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	counts, err := repo.CountsByState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.StatePending])
	assert.Equal(t, 1, counts[models.StateCompleted])
	assert.Equal(t, 0, counts[models.StateDead])
}

func TestClaimPicksEarliestEligible(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, repo.Insert(ctx, newJob("later", now.Add(-10*time.Second))))
	require.NoError(t, repo.Insert(ctx, newJob("earlier", now.Add(-20*time.Second))))
	require.NoError(t, repo.Insert(ctx, newJob("future", now.Add(time.Hour))))

	job, err := repo.Claim(ctx, now)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "earlier", job.ID)
	assert.Equal(t, models.StateRunning, job.State)
	assert.Equal(t, 1, job.Attempts)
	require.NotNil(t, job.StartedAt)
	assert.Equal(t, now, *job.StartedAt)

	job, err = repo.Claim(ctx, now)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "later", job.ID)

	// Only the future job remains; nothing is eligible
	job, err = repo.Claim(ctx, now)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestClaimTieBreaksByID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, repo.Insert(ctx, newJob("b", now)))
	require.NoError(t, repo.Insert(ctx, newJob("a", now)))

	job, err := repo.Claim(ctx, now)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "a", job.ID)
}

func TestClaimEligibilityBoundary(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	runAt := now.Add(30 * time.Second)

	require.NoError(t, repo.Insert(ctx, newJob("j1", runAt)))

	// Strictly before next_run_at: never claimable
	job, err := repo.Claim(ctx, runAt.Add(-time.Second))
	require.NoError(t, err)
	assert.Nil(t, job)

	// Eligible exactly at next_run_at
	job, err = repo.Claim(ctx, runAt)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "j1", job.ID)
}

func TestClaimExclusivity(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, repo.Insert(ctx, newJob("j1", now.Add(-time.Second))))

	const attempts = 16
	var wg sync.WaitGroup
	claims := make(chan *models.Job, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, err := repo.Claim(ctx, now)
			assert.NoError(t, err)
			if job != nil {
				claims <- job
			}
		}()
	}
	wg.Wait()
	close(claims)

	var won []*models.Job
	for job := range claims {
		won = append(won, job)
	}
	require.Len(t, won, 1, "exactly one concurrent claim may succeed")
	assert.Equal(t, 1, won[0].Attempts)
}

func TestApplyIfConditional(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, repo.Insert(ctx, newJob("j1", now)))
	_, err := repo.Claim(ctx, now)
	require.NoError(t, err)

	finished := now.Add(2 * time.Second)
	dur := 2.0
	empty := ""
	applied, err := repo.ApplyIf(ctx, "j1", models.StateRunning, Transition{
		State:      models.StateCompleted,
		FinishedAt: &finished,
		Duration:   &dur,
		Error:      &empty,
	})
	require.NoError(t, err)
	assert.True(t, applied)

	// The same write again loses the condition: the job is no longer running
	applied, err = repo.ApplyIf(ctx, "j1", models.StateRunning, Transition{State: models.StateDead})
	require.NoError(t, err)
	assert.False(t, applied)

	job, err := repo.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, job.State)
	assert.Equal(t, 2.0, job.Duration)
	require.NotNil(t, job.FinishedAt)
	assert.Equal(t, finished, *job.FinishedAt)

	// Unknown id is a lost condition, not an error
	applied, err = repo.ApplyIf(ctx, "ghost", models.StateRunning, Transition{State: models.StateDead})
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestApplyIfResetAttempts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	job := newJob("j1", now)
	job.State = models.StateDead
	job.Attempts = 4
	require.NoError(t, repo.Insert(ctx, job))
	_, err := repo.db.Exec(`UPDATE jobs SET attempts = 4 WHERE id = ?`, "j1")
	require.NoError(t, err)

	applied, err := repo.ApplyIf(ctx, "j1", models.StateDead, Transition{
		State:         models.StatePending,
		NextRunAt:     &now,
		ResetAttempts: true,
	})
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := repo.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, got.State)
	assert.Equal(t, 0, got.Attempts)
}

func TestRequeueStale(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, repo.Insert(ctx, newJob("stuck", now.Add(-time.Hour))))
	require.NoError(t, repo.Insert(ctx, newJob("fresh", now.Add(-time.Hour))))

	_, err := repo.Claim(ctx, now.Add(-30*time.Minute))
	require.NoError(t, err)
	_, err = repo.Claim(ctx, now)
	require.NoError(t, err)

	// Backdate the first claim so it looks orphaned
	_, err = repo.db.Exec(`UPDATE jobs SET updated_at = ? WHERE id = ?`, now.Add(-30*time.Minute).Unix(), "stuck")
	require.NoError(t, err)

	n, err := repo.RequeueStale(ctx, now.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stuck, err := repo.Get(ctx, "stuck")
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, stuck.State)

	fresh, err := repo.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, models.StateRunning, fresh.State)
}
