// Package worker runs the claim -> execute -> apply loop. Workers are
// stateless beyond their context; all coordination happens through the job
// store's conditional updates.
package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"queuectl/internal/config"
	"queuectl/internal/executor"
	"queuectl/internal/models"
	"queuectl/internal/repository"
	"queuectl/internal/scheduler"
)

// staleGrace is added on top of 2x the job timeout when deciding that a
// running job was orphaned by a crashed worker. A live worker always writes
// an outcome within one timeout, so twice that plus a minute is safely past
// any legitimate execution.
const staleGrace = time.Minute

// Pool manages a set of worker goroutines sharing one store
type Pool struct {
	cfg   *config.Config
	repo  repository.JobRepository
	exec  *executor.Executor
	sched *scheduler.Scheduler
	log   *zap.SugaredLogger
	count int

	wg sync.WaitGroup
}

// NewPool creates a pool of count workers
func NewPool(cfg *config.Config, repo repository.JobRepository, log *zap.SugaredLogger, count int) *Pool {
	if count < 1 {
		count = 1
	}
	return &Pool{
		cfg:   cfg,
		repo:  repo,
		exec:  executor.New(cfg.LogsDir()),
		sched: scheduler.New(repo, log),
		log:   log,
		count: count,
	}
}

// Run starts the workers and blocks until ctx is cancelled or a stop is
// requested via the stop flag, then waits for in-flight jobs to finish.
func (p *Pool) Run(ctx context.Context) error {
	// Crash recovery before polling begins: jobs stuck in running well past
	// any plausible execution window go back to pending.
	cutoff := time.Now().UTC().Add(-(2*p.cfg.JobTimeout() + staleGrace))
	if n, err := p.repo.RequeueStale(ctx, cutoff); err != nil {
		p.log.Warnw("stale job recovery failed", "error", err)
	} else if n > 0 {
		p.log.Infow("requeued stale running jobs", "count", n)
	}

	pidFile, err := registerPool(p.cfg.DataDir, p.count)
	if err != nil {
		return err
	}
	defer unregisterPool(pidFile)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Cooperative cross-process stop: another invocation creates the flag,
	// we notice it between claims and wind down.
	go p.watchStopFlag(runCtx, cancel)

	p.log.Infow("workers started", "count", p.count, "poll_interval", p.cfg.PollInterval())

	for i := 0; i < p.count; i++ {
		p.wg.Add(1)
		go p.worker(runCtx, i+1)
	}

	p.wg.Wait()
	p.log.Infow("all workers stopped")
	return nil
}

func (p *Pool) watchStopFlag(ctx context.Context, cancel context.CancelFunc) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if StopRequested(p.cfg.DataDir) {
				p.log.Infow("stop flag detected, shutting down workers")
				cancel()
				return
			}
		}
	}
}

func (p *Pool) worker(ctx context.Context, idx int) {
	defer p.wg.Done()
	log := p.log.With("worker", idx)

	for {
		select {
		case <-ctx.Done():
			log.Debugw("worker exiting")
			return
		default:
		}

		job, err := p.repo.Claim(ctx, time.Now().UTC())
		if err != nil {
			// Store unavailable is a reason to pause and retry, not crash
			log.Warnw("claim failed, store unavailable", "error", err)
			sleepCtx(ctx, p.cfg.PollInterval())
			continue
		}
		if job == nil {
			sleepCtx(ctx, p.cfg.PollInterval())
			continue
		}

		p.process(log, job)
	}
}

// process runs one claimed job to its next persisted state. Execution and
// the outcome write deliberately use a fresh context: a shutdown request
// lets the in-flight job finish (bounded by its own timeout) rather than
// abandoning a running record.
func (p *Pool) process(log *zap.SugaredLogger, job *models.Job) {
	log.Infow("executing job", "job_id", job.ID, "command", job.Command, "attempt", job.Attempts)

	out := p.exec.Run(context.Background(), job, p.cfg.JobTimeout())

	if out.Completed {
		log.Infow("job completed", "job_id", job.ID, "duration", out.Duration.Seconds())
	} else {
		log.Warnw("job failed", "job_id", job.ID, "error", out.Error)
	}

	if err := p.sched.Apply(context.Background(), job, out, time.Now().UTC()); err != nil {
		log.Errorw("failed to persist outcome", "job_id", job.ID, "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
