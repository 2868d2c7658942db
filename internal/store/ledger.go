package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"docpack/internal/errs"
	"docpack/internal/models"
)

// maxErrorMessage bounds worker-reported failure text.
const maxErrorMessage = 2000

// CompleteJob commits a worker's successful report: document rows are
// inserted at the job's target version, the package counter advances, and
// the job goes terminal, all in one transaction. Documents therefore become
// visible exactly when the job reaches done.
//
// The version precondition is re-validated here, not just at reservation
// time: the job's target must still be the latest reservation and ahead of
// the committed counter. A violation means the serialization invariant broke
// somewhere and is surfaced as a version conflict rather than papered over.
func (s *Store) CompleteJob(ctx context.Context, jobID string, files []models.Document) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	job, pkg, err := lockJobAndPackage(ctx, tx, jobID)
	if err != nil {
		return err
	}
	if err := commitPrecondition(job, pkg); err != nil {
		return err
	}

	for _, f := range files {
		_, err := tx.Exec(ctx, `
			INSERT INTO documents (id, package_id, doc_type, version, filename, storage_key, content_type)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, uuid.New().String(), pkg.ID, f.DocType, job.TargetVersion, f.Filename, f.StorageKey, f.ContentType)
		if isUniqueViolation(err) {
			return errs.Newf(errs.CodeVersionConflict, "document %s already exists at version %d", f.DocType, job.TargetVersion)
		}
		if err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE packages
		SET version_counter = $2, status = $3, updated_at = NOW()
		WHERE id = $1
	`, pkg.ID, job.TargetVersion, models.PackageGenerated); err != nil {
		return fmt.Errorf("advance version counter: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE jobs
		SET status = $2, error_message = NULL, finished_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, job.ID, models.JobDone); err != nil {
		return fmt.Errorf("finish job: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// FailJob records a worker-reported failure. The package is only downgraded
// to error when it has never generated successfully; a failed regeneration
// leaves the previous good version and its documents untouched.
func (s *Store) FailJob(ctx context.Context, jobID string, message string) error {
	if len(message) > maxErrorMessage {
		message = message[:maxErrorMessage]
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	job, pkg, err := lockJobAndPackage(ctx, tx, jobID)
	if err != nil {
		return err
	}
	if !models.CanTransition(job.Status, models.JobError) {
		return errs.Newf(errs.CodeInvalidTransition, "cannot fail job in status %s", job.Status)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE jobs
		SET status = $2, error_message = $3, finished_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, job.ID, models.JobError, message); err != nil {
		return fmt.Errorf("fail job: %w", err)
	}

	if failureDowngradesPackage(pkg) {
		if _, err := tx.Exec(ctx, `
			UPDATE packages SET status = $2, updated_at = NOW() WHERE id = $1
		`, pkg.ID, models.PackageError); err != nil {
			return fmt.Errorf("mark package error: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// commitPrecondition decides whether a job may commit its version against
// the package state it holds locked: the job must still be running and its
// target must be both the latest reservation and ahead of the committed
// counter.
func commitPrecondition(job models.Job, pkg models.Package) error {
	if job.Status != models.JobRunning {
		return errs.Newf(errs.CodeInvalidTransition, "cannot complete job in status %s", job.Status)
	}
	if job.TargetVersion != pkg.ReservedVersion || job.TargetVersion <= pkg.VersionCounter {
		return errs.Newf(errs.CodeVersionConflict,
			"job target version %d does not match package state (counter=%d reserved=%d)",
			job.TargetVersion, pkg.VersionCounter, pkg.ReservedVersion)
	}
	return nil
}

// failureDowngradesPackage reports whether a failed job drags its package to
// error. Only packages that have never generated go down; a failed
// regeneration keeps the last good version visible.
func failureDowngradesPackage(pkg models.Package) bool {
	return pkg.VersionCounter == 0
}

func lockJobAndPackage(ctx context.Context, tx pgx.Tx, jobID string) (models.Job, models.Package, error) {
	row := tx.QueryRow(ctx, `SELECT`+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, models.Package{}, errs.New(errs.CodeNotFound, "job not found")
	}
	if err != nil {
		return models.Job{}, models.Package{}, err
	}

	row = tx.QueryRow(ctx, `SELECT`+packageColumns+` FROM packages WHERE id = $1 FOR UPDATE`, job.PackageID)
	pkg, err := scanPackage(row)
	if err != nil {
		return models.Job{}, models.Package{}, err
	}
	return job, pkg, nil
}

// ListDocuments returns a package's document history, oldest first. Rows are
// only ever written inside CompleteJob, so everything here belongs to a done
// job.
func (s *Store) ListDocuments(ctx context.Context, packageID string) ([]models.Document, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, package_id, doc_type, version, filename, storage_key, content_type, created_at
		FROM documents WHERE package_id = $1
		ORDER BY version ASC, created_at ASC
	`, packageID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(&d.ID, &d.PackageID, &d.DocType, &d.Version, &d.Filename, &d.StorageKey, &d.ContentType, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// FindBundle returns the bundle document at the given version, or when
// version is 0 the highest bundle version on record.
func (s *Store) FindBundle(ctx context.Context, packageID string, version int) (models.Document, error) {
	var row pgx.Row
	if version > 0 {
		row = s.pool.QueryRow(ctx, `
			SELECT id, package_id, doc_type, version, filename, storage_key, content_type, created_at
			FROM documents WHERE package_id = $1 AND doc_type = $2 AND version = $3
		`, packageID, models.DocBundle, version)
	} else {
		row = s.pool.QueryRow(ctx, `
			SELECT id, package_id, doc_type, version, filename, storage_key, content_type, created_at
			FROM documents WHERE package_id = $1 AND doc_type = $2
			ORDER BY version DESC LIMIT 1
		`, packageID, models.DocBundle)
	}
	var d models.Document
	err := row.Scan(&d.ID, &d.PackageID, &d.DocType, &d.Version, &d.Filename, &d.StorageKey, &d.ContentType, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Document{}, errs.New(errs.CodeNotFound, "bundle not found")
	}
	if err != nil {
		return models.Document{}, fmt.Errorf("scan document: %w", err)
	}
	return d, nil
}
