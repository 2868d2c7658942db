package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"docpack/internal/errs"
	"docpack/internal/models"
)

const jobColumns = `
	id, package_id, status, target_version, error_message,
	started_at, finished_at, created_at, updated_at`

// CreateGenerationJob reserves the next target version and creates a queued
// job, all in one transaction. The package row is locked so two concurrent
// submissions serialize: the loser sees the fresh non-terminal job and gets
// a conflict. The partial unique index on jobs backs this up.
func (s *Store) CreateGenerationJob(ctx context.Context, packageID string) (models.Job, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Job{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // safe no-op on commit

	var reserved int
	err = tx.QueryRow(ctx, `
		UPDATE packages
		SET reserved_version = reserved_version + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING reserved_version
	`, packageID).Scan(&reserved)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, errs.New(errs.CodeNotFound, "package not found")
	}
	if err != nil {
		return models.Job{}, fmt.Errorf("reserve version: %w", err)
	}

	var active int
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM jobs WHERE package_id = $1 AND status IN ($2, $3)
	`, packageID, models.JobQueued, models.JobRunning).Scan(&active); err != nil {
		return models.Job{}, fmt.Errorf("check active jobs: %w", err)
	}
	if active > 0 {
		return models.Job{}, errs.New(errs.CodeConflict, "package already has a job in progress")
	}

	id := uuid.New().String()
	row := tx.QueryRow(ctx, `
		INSERT INTO jobs (id, package_id, status, target_version)
		VALUES ($1, $2, $3, $4)
		RETURNING`+jobColumns+`
	`, id, packageID, models.JobQueued, reserved)
	job, err := scanJob(row)
	if isUniqueViolation(err) {
		// Lost the race despite the row lock; same outcome as the count check.
		return models.Job{}, errs.New(errs.CodeConflict, "package already has a job in progress")
	}
	if err != nil {
		return models.Job{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Job{}, fmt.Errorf("commit: %w", err)
	}
	return job, nil
}

// GetJob fetches a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (models.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT`+jobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, errs.New(errs.CodeNotFound, "job not found")
	}
	return job, err
}

// ClaimJob moves a queued job to running on the first payload fetch. A
// running job is returned as-is so workers can re-fetch after a transient
// failure; terminal jobs are rejected.
func (s *Store) ClaimJob(ctx context.Context, id string) (models.Job, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Job{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT`+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, errs.New(errs.CodeNotFound, "job not found")
	}
	if err != nil {
		return models.Job{}, err
	}

	switch job.Status {
	case models.JobRunning:
		// Re-fetch by a retrying worker; read-only.
	case models.JobQueued:
		row := tx.QueryRow(ctx, `
			UPDATE jobs
			SET status = $2, started_at = NOW(), error_message = NULL, updated_at = NOW()
			WHERE id = $1
			RETURNING`+jobColumns+`
		`, id, models.JobRunning)
		if job, err = scanJob(row); err != nil {
			return models.Job{}, err
		}
	default:
		return models.Job{}, errs.Newf(errs.CodeInvalidTransition, "job already finished with status %s", job.Status)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Job{}, fmt.Errorf("commit: %w", err)
	}
	return job, nil
}

// MarkScheduleFailed flags a freshly created job whose dispatch message could
// not be enqueued. Guarded on queued so a concurrently claimed job is not
// clobbered.
func (s *Store) MarkScheduleFailed(ctx context.Context, id string, msg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $2, error_message = $3, finished_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $4
	`, id, models.JobError, msg, models.JobQueued)
	return err
}

// StaleJobs returns non-terminal jobs with no progress since the cutoff.
func (s *Store) StaleJobs(ctx context.Context, cutoff time.Time, limit int) ([]models.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT`+jobColumns+`
		FROM jobs
		WHERE status IN ($1, $2) AND updated_at < $3
		ORDER BY updated_at ASC
		LIMIT $4
	`, models.JobQueued, models.JobRunning, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("query stale jobs: %w", err)
	}
	defer rows.Close()

	var out []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func scanJob(row pgx.Row) (models.Job, error) {
	var j models.Job
	var errMsg pgtype.Text
	var started, finished pgtype.Timestamptz
	err := row.Scan(&j.ID, &j.PackageID, &j.Status, &j.TargetVersion, &errMsg, &started, &finished, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
			return models.Job{}, err
		}
		return models.Job{}, fmt.Errorf("scan job: %w", err)
	}
	j.ErrorMessage = textPtr(errMsg)
	j.StartedAt = timePtr(started)
	j.FinishedAt = timePtr(finished)
	return j, nil
}
