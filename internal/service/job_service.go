// Package service implements the submission, listing and dead-letter
// operations exposed by the CLI.
package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"queuectl/internal/config"
	"queuectl/internal/models"
	"queuectl/internal/repository"
)

// SubmitRequest carries a job submission. Exactly one of RunAt and
// DelaySeconds may be set; both absent means eligible immediately.
type SubmitRequest struct {
	Command      string   `json:"command"`
	ID           string   `json:"id,omitempty"`
	MaxRetries   *int     `json:"max_retries,omitempty"`
	BackoffBase  *float64 `json:"backoff_base,omitempty"`
	RunAt        string   `json:"run_at,omitempty"`
	DelaySeconds *int     `json:"delay_seconds,omitempty"`
}

// JobService handles job business logic
type JobService struct {
	repo repository.JobRepository
	cfg  *config.Config
	log  *zap.SugaredLogger
}

// NewJobService creates a new job service
func NewJobService(repo repository.JobRepository, cfg *config.Config, log *zap.SugaredLogger) *JobService {
	return &JobService{repo: repo, cfg: cfg, log: log}
}

// ParseSubmitRequest decodes the JSON payload form of a submission
func ParseSubmitRequest(payload string) (*SubmitRequest, error) {
	var req SubmitRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return nil, errors.Wrap(err, "invalid job JSON")
	}
	return &req, nil
}

// Submit validates the request, fills defaults from config and persists the
// job in pending state. Returns the created record.
func (s *JobService) Submit(ctx context.Context, req *SubmitRequest) (*models.Job, error) {
	if req.Command == "" {
		return nil, errors.New("job command must not be empty")
	}
	if req.RunAt != "" && req.DelaySeconds != nil {
		return nil, errors.New("run_at and delay_seconds are mutually exclusive")
	}

	now := time.Now().UTC().Truncate(time.Second)

	nextRun := now
	switch {
	case req.RunAt != "":
		t, err := parseRunAt(req.RunAt)
		if err != nil {
			return nil, err
		}
		nextRun = t
	case req.DelaySeconds != nil:
		if *req.DelaySeconds < 0 {
			return nil, errors.New("delay_seconds must not be negative")
		}
		nextRun = now.Add(time.Duration(*req.DelaySeconds) * time.Second)
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	maxRetries := s.cfg.MaxRetries()
	if req.MaxRetries != nil {
		if *req.MaxRetries < 0 {
			return nil, errors.New("max_retries must not be negative")
		}
		maxRetries = *req.MaxRetries
	}

	backoffBase := s.cfg.BackoffBase()
	if req.BackoffBase != nil {
		if *req.BackoffBase < 1 {
			return nil, errors.New("backoff_base must be >= 1")
		}
		backoffBase = *req.BackoffBase
	}

	job := &models.Job{
		ID:          id,
		Command:     req.Command,
		State:       models.StatePending,
		Attempts:    0,
		MaxRetries:  maxRetries,
		BackoffBase: backoffBase,
		NextRunAt:   nextRun,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Insert(ctx, job); err != nil {
		return nil, err
	}

	s.log.Infow("job enqueued", "job_id", job.ID, "command", job.Command, "next_run_at", job.NextRunAt)
	return job, nil
}

// Get retrieves a job by id
func (s *JobService) Get(ctx context.Context, id string) (*models.Job, error) {
	return s.repo.Get(ctx, id)
}

// List retrieves jobs, optionally filtered by state
func (s *JobService) List(ctx context.Context, state *models.State) ([]*models.Job, error) {
	return s.repo.List(ctx, state)
}

// DLQList returns all jobs whose retries are exhausted
func (s *JobService) DLQList(ctx context.Context) ([]*models.Job, error) {
	dead := models.StateDead
	return s.repo.List(ctx, &dead)
}

// DLQRetry resets a dead job to pending with a fresh retry budget. Fails
// with ErrNotFound when the id is unknown or the job is not dead.
func (s *JobService) DLQRetry(ctx context.Context, id string) (*models.Job, error) {
	now := time.Now().UTC().Truncate(time.Second)
	empty := ""

	applied, err := s.repo.ApplyIf(ctx, id, models.StateDead, repository.Transition{
		State:         models.StatePending,
		NextRunAt:     &now,
		Error:         &empty,
		ResetAttempts: true,
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		// Distinguish unknown id from wrong state for the error message,
		// but both are not-found conditions for the caller.
		job, getErr := s.repo.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, errors.Mark(
			errors.Newf("job %q is not in the dead letter queue (state=%s)", id, job.State),
			repository.ErrNotFound,
		)
	}

	s.log.Infow("dead job requeued", "job_id", id)
	return s.repo.Get(ctx, id)
}

func parseRunAt(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.Newf("run_at must be an RFC 3339 or YYYY-MM-DDTHH:MM:SS timestamp, got %q", raw)
}
