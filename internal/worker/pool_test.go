package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"queuectl/internal/config"
	"queuectl/internal/models"
	"queuectl/internal/repository"
)

func newTestPool(t *testing.T, workers int) (*Pool, repository.JobRepository, *config.Config) {
	t.Helper()

	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)
	// Tight loop so the tests do not wait out the default poll interval
	require.NoError(t, cfg.Set(config.KeyPollInterval, "0"))
	require.NoError(t, cfg.Set(config.KeyJobTimeout, "5"))

	repo, err := repository.NewSQLiteRepository(cfg.DBPath())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	return NewPool(cfg, repo, zap.NewNop().Sugar(), workers), repo, cfg
}

func seedJob(t *testing.T, repo repository.JobRepository, id, command string, maxRetries int, backoffBase float64) {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.Insert(context.Background(), &models.Job{
		ID:          id,
		Command:     command,
		State:       models.StatePending,
		MaxRetries:  maxRetries,
		BackoffBase: backoffBase,
		NextRunAt:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}))
}

func runPool(t *testing.T, pool *Pool) (cancel context.CancelFunc, wait func()) {
	t.Helper()
	ctx, cancelCtx := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	return cancelCtx, func() {
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Fatal("pool did not shut down")
		}
	}
}

func jobInState(repo repository.JobRepository, id string, state models.State) func() bool {
	return func() bool {
		job, err := repo.Get(context.Background(), id)
		return err == nil && job.State == state
	}
}

func TestPoolCompletesJob(t *testing.T) {
	pool, repo, _ := newTestPool(t, 1)
	seedJob(t, repo, "j1", "echo hi", 3, 2)

	cancel, wait := runPool(t, pool)
	defer wait()
	defer cancel()

	require.Eventually(t, jobInState(repo, "j1", models.StateCompleted), 10*time.Second, 50*time.Millisecond)

	job, err := repo.Get(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, 1, job.Attempts)
	assert.Empty(t, job.Error)
	assert.NotEmpty(t, job.LogPath)
	require.NotNil(t, job.FinishedAt)
}

func TestPoolMovesFailingJobToDead(t *testing.T) {
	pool, repo, _ := newTestPool(t, 1)
	seedJob(t, repo, "j1", "exit 3", 0, 2)

	cancel, wait := runPool(t, pool)
	defer wait()
	defer cancel()

	require.Eventually(t, jobInState(repo, "j1", models.StateDead), 10*time.Second, 50*time.Millisecond)

	job, err := repo.Get(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, "exit code 3", job.Error)
}

func TestPoolRetriesBeforeDead(t *testing.T) {
	pool, repo, _ := newTestPool(t, 2)
	// max_retries=1 allows two executions; base 1 keeps the retry delay at 1s
	seedJob(t, repo, "j1", "exit 1", 1, 1)

	cancel, wait := runPool(t, pool)
	defer wait()
	defer cancel()

	require.Eventually(t, jobInState(repo, "j1", models.StateDead), 15*time.Second, 50*time.Millisecond)

	job, err := repo.Get(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, 2, job.Attempts)
	assert.Equal(t, "exit code 1", job.Error)
}

func TestPoolStopsOnStopFlag(t *testing.T) {
	pool, _, cfg := newTestPool(t, 2)

	cancel, wait := runPool(t, pool)
	defer cancel()

	require.NoError(t, RequestStop(cfg.DataDir))
	wait()
}

func TestPoolRequeuesStaleOnStartup(t *testing.T) {
	pool, repo, _ := newTestPool(t, 1)
	ctx := context.Background()

	// A job claimed an hour ago and never finished looks orphaned
	old := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, repo.Insert(ctx, &models.Job{
		ID:          "j1",
		Command:     "echo recovered",
		State:       models.StatePending,
		MaxRetries:  3,
		BackoffBase: 2,
		NextRunAt:   old,
		CreatedAt:   old,
		UpdatedAt:   old,
	}))
	claimed, err := repo.Claim(ctx, old)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	cancel, wait := runPool(t, pool)
	defer wait()
	defer cancel()

	require.Eventually(t, jobInState(repo, "j1", models.StateCompleted), 10*time.Second, 50*time.Millisecond)

	job, err := repo.Get(ctx, "j1")
	require.NoError(t, err)
	// The recovery requeue does not touch attempts; the rerun claims again
	assert.Equal(t, 2, job.Attempts)
}
