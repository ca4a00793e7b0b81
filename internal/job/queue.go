package job

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Job is one queued unit of work.
type Job struct {
	ID          uuid.UUID  `db:"id"`
	Queue       string     `db:"queue"`
	Type        Type       `db:"job_type"`
	Payload     []byte     `db:"payload"`
	Attempts    int        `db:"attempts"`
	MaxAttempts int        `db:"max_attempts"`
	RunAt       time.Time  `db:"run_at"`
	LockedAt    *time.Time `db:"locked_at"`
	CompletedAt *time.Time `db:"completed_at"`
	LastError   *string    `db:"last_error"`
	CreatedAt   time.Time  `db:"created_at"`
}

// Store defines persistence for the job queue.
type Store interface {
	// Enqueue inserts a job.
	Enqueue(ctx context.Context, j *Job) error

	// Claim atomically locks and returns the next runnable job on any of the
	// given queues, or nil when none is due. A lock older than lockTimeout is
	// treated as abandoned and reclaimed.
	Claim(ctx context.Context, queues []string, lockTimeout time.Duration) (*Job, error)

	// Complete marks a job as done.
	Complete(ctx context.Context, id uuid.UUID) error

	// Reschedule releases a failed job to run again at runAt.
	Reschedule(ctx context.Context, id uuid.UUID, runAt time.Time, lastError string) error

	// Park terminates a job that exhausted its attempts, keeping the error.
	Park(ctx context.Context, id uuid.UUID, lastError string) error
}

// pgStore implements Store on PostgreSQL. Claiming uses FOR UPDATE SKIP
// LOCKED so concurrent workers, in this process or another, never take the
// same job twice while a lock is live.
type pgStore struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewStore creates a PostgreSQL-backed job store.
func NewStore(pool *pgxpool.Pool, logger zerolog.Logger) Store {
	return &pgStore{
		pool:   pool,
		logger: logger.With().Str("component", "job-store").Logger(),
	}
}

// Enqueue inserts a job.
func (s *pgStore) Enqueue(ctx context.Context, j *Job) error {
	query := `
		INSERT INTO jobs (id, queue, job_type, payload, attempts, max_attempts, run_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.pool.Exec(ctx, query,
		j.ID, j.Queue, string(j.Type), j.Payload, j.Attempts, j.MaxAttempts, j.RunAt, j.CreatedAt)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("job_id", j.ID.String()).
			Str("job_type", string(j.Type)).
			Msg("failed to enqueue job")
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	return nil
}

// Claim atomically locks and returns the next runnable job.
func (s *pgStore) Claim(ctx context.Context, queues []string, lockTimeout time.Duration) (*Job, error) {
	query := `
		UPDATE jobs
		SET locked_at = now(), attempts = attempts + 1
		WHERE id = (
			SELECT id FROM jobs
			WHERE queue = ANY($1)
			  AND completed_at IS NULL
			  AND run_at <= now()
			  AND (locked_at IS NULL OR locked_at < now() - $2::interval)
			ORDER BY run_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, queue, job_type, payload, attempts, max_attempts, run_at, locked_at, completed_at, last_error, created_at
	`

	interval := fmt.Sprintf("%d seconds", int(lockTimeout.Seconds()))

	var j Job
	var jobType string
	err := s.pool.QueryRow(ctx, query, queues, interval).Scan(
		&j.ID, &j.Queue, &jobType, &j.Payload, &j.Attempts, &j.MaxAttempts,
		&j.RunAt, &j.LockedAt, &j.CompletedAt, &j.LastError, &j.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		s.logger.Error().Err(err).Msg("failed to claim job")
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	j.Type = Type(jobType)

	return &j, nil
}

// Complete marks a job as done.
func (s *pgStore) Complete(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE jobs SET completed_at = now(), locked_at = NULL WHERE id = $1`

	_, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", id.String()).Msg("failed to complete job")
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

// Reschedule releases a failed job to run again at runAt.
func (s *pgStore) Reschedule(ctx context.Context, id uuid.UUID, runAt time.Time, lastError string) error {
	query := `UPDATE jobs SET locked_at = NULL, run_at = $2, last_error = $3 WHERE id = $1`

	_, err := s.pool.Exec(ctx, query, id, runAt, lastError)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", id.String()).Msg("failed to reschedule job")
		return fmt.Errorf("failed to reschedule job: %w", err)
	}
	return nil
}

// Park terminates a job that exhausted its attempts.
func (s *pgStore) Park(ctx context.Context, id uuid.UUID, lastError string) error {
	query := `UPDATE jobs SET completed_at = now(), locked_at = NULL, last_error = $2 WHERE id = $1`

	_, err := s.pool.Exec(ctx, query, id, lastError)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", id.String()).Msg("failed to park job")
		return fmt.Errorf("failed to park job: %w", err)
	}
	return nil
}
