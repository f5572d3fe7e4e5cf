package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mattn/go-sqlite3"

	"queuectl/internal/models"
)

// SQLiteRepository implements JobRepository on a single SQLite database.
// Durability and atomicity both come from SQLite itself: the claim and every
// later transition are single UPDATE statements, so no in-memory locking is
// needed even with workers in separate processes.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (creating if necessary) the job database
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
	}

	repo := &SQLiteRepository{db: db}
	if err := repo.initSchema(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize schema")
	}

	return repo, nil
}

// Close closes the database connection
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		command TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		max_retries INTEGER NOT NULL DEFAULT 3,
		backoff_base REAL NOT NULL DEFAULT 2,
		next_run_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		started_at INTEGER,
		finished_at INTEGER,
		updated_at INTEGER NOT NULL,
		duration REAL NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		log_path TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_state_next_run ON jobs(state, next_run_at);
	`

	_, err := r.db.Exec(schema)
	return err
}

const jobColumns = `id, command, state, attempts, max_retries, backoff_base,
	next_run_at, created_at, started_at, finished_at, updated_at,
	duration, error, log_path`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var job models.Job
	var nextRunAt, createdAt, updatedAt int64
	var startedAt, finishedAt sql.NullInt64

	err := row.Scan(
		&job.ID,
		&job.Command,
		&job.State,
		&job.Attempts,
		&job.MaxRetries,
		&job.BackoffBase,
		&nextRunAt,
		&createdAt,
		&startedAt,
		&finishedAt,
		&updatedAt,
		&job.Duration,
		&job.Error,
		&job.LogPath,
	)
	if err != nil {
		return nil, err
	}

	job.NextRunAt = time.Unix(nextRunAt, 0).UTC()
	job.CreatedAt = time.Unix(createdAt, 0).UTC()
	job.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if startedAt.Valid {
		t := time.Unix(startedAt.Int64, 0).UTC()
		job.StartedAt = &t
	}
	if finishedAt.Valid {
		t := time.Unix(finishedAt.Int64, 0).UTC()
		job.FinishedAt = &t
	}

	return &job, nil
}

// Insert persists a new job record
func (r *SQLiteRepository) Insert(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO jobs (id, command, state, attempts, max_retries, backoff_base,
			next_run_at, created_at, updated_at, error, log_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		job.ID,
		job.Command,
		job.State,
		job.Attempts,
		job.MaxRetries,
		job.BackoffBase,
		job.NextRunAt.Unix(),
		job.CreatedAt.Unix(),
		job.UpdatedAt.Unix(),
		job.Error,
		job.LogPath,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) &&
			(sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
				sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique) {
			return errors.Mark(errors.Newf("job %q already exists", job.ID), ErrDuplicateID)
		}
		return errors.Wrap(err, "failed to insert job")
	}

	return nil
}

// Get retrieves a job by id
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Mark(errors.Newf("job %q", id), ErrNotFound)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get job")
	}

	return job, nil
}

// List returns all jobs, optionally filtered by state, created_at ascending
func (r *SQLiteRepository) List(ctx context.Context, state *models.State) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any
	if state != nil {
		query += ` WHERE state = ?`
		args = append(args, *state)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate jobs")
	}

	return jobs, nil
}

// CountsByState returns the number of jobs in each state. States with no
// jobs are present with a zero count so callers render a stable summary.
func (r *SQLiteRepository) CountsByState(ctx context.Context) (map[models.State]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM jobs GROUP BY state`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count jobs")
	}
	defer rows.Close()

	counts := make(map[models.State]int, len(models.States()))
	for _, s := range models.States() {
		counts[s] = 0
	}
	for rows.Next() {
		var state models.State
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, errors.Wrap(err, "failed to scan count")
		}
		counts[state] = count
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate counts")
	}

	return counts, nil
}

// Claim atomically transitions the earliest eligible pending job to running.
//
// The subselect and the guarded UPDATE form one statement, so two workers can
// never observe the same job as claimable: SQLite serializes writers, and the
// `state = 'pending'` condition on the outer UPDATE makes a lost race a no-op
// rather than a double claim. Ties on next_run_at break by id ascending.
func (r *SQLiteRepository) Claim(ctx context.Context, now time.Time) (*models.Job, error) {
	query := `
		UPDATE jobs
		SET state = ?, started_at = ?, attempts = attempts + 1, updated_at = ?
		WHERE id = (
			SELECT id FROM jobs
			WHERE state = ? AND next_run_at <= ?
			ORDER BY next_run_at ASC, id ASC
			LIMIT 1
		) AND state = ?
		RETURNING ` + jobColumns

	row := r.db.QueryRowContext(ctx, query,
		models.StateRunning,
		now.Unix(),
		now.Unix(),
		models.StatePending,
		now.Unix(),
		models.StatePending,
	)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // nothing eligible; not an error
	}
	if err != nil {
		if isBusy(err) {
			return nil, nil // writer contention; caller polls again
		}
		return nil, errors.Wrap(err, "failed to claim job")
	}

	return job, nil
}

// ApplyIf applies a conditional transition. The WHERE clause carries the
// expected prior state, so a retried write after a worker crash cannot
// reschedule a job twice: the second attempt affects zero rows.
func (r *SQLiteRepository) ApplyIf(ctx context.Context, id string, expected models.State, tr Transition) (bool, error) {
	set := []string{"state = ?", "updated_at = ?"}
	args := []any{tr.State, time.Now().UTC().Unix()}

	if tr.NextRunAt != nil {
		set = append(set, "next_run_at = ?")
		args = append(args, tr.NextRunAt.Unix())
	}
	if tr.FinishedAt != nil {
		set = append(set, "finished_at = ?")
		args = append(args, tr.FinishedAt.Unix())
	}
	if tr.Duration != nil {
		set = append(set, "duration = ?")
		args = append(args, *tr.Duration)
	}
	if tr.Error != nil {
		set = append(set, "error = ?")
		args = append(args, *tr.Error)
	}
	if tr.LogPath != nil {
		set = append(set, "log_path = ?")
		args = append(args, *tr.LogPath)
	}
	if tr.ResetAttempts {
		set = append(set, "attempts = 0")
	}

	query := `UPDATE jobs SET ` + strings.Join(set, ", ") + ` WHERE id = ? AND state = ?`
	args = append(args, id, expected)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, errors.Wrap(err, "failed to apply transition")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to get rows affected")
	}

	return affected > 0, nil
}

// RequeueStale returns running jobs untouched since cutoff to pending.
// Their next_run_at is left alone (it is already in the past), which keeps
// the monotonicity invariant and makes them immediately eligible again.
func (r *SQLiteRepository) RequeueStale(ctx context.Context, cutoff time.Time) (int, error) {
	query := `
		UPDATE jobs
		SET state = ?, updated_at = ?
		WHERE state = ? AND updated_at < ?
	`

	result, err := r.db.ExecContext(ctx, query,
		models.StatePending,
		time.Now().UTC().Unix(),
		models.StateRunning,
		cutoff.Unix(),
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to requeue stale jobs")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}

	return int(affected), nil
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}
