package queue

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"clipforge/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; existing databases report a mismatch instead of corrupting.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the
// expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store persists batch history in SQLite.
type Store struct {
	db   *sql.DB
	path string
	lock *flock.Flock
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open initializes or connects to the history database under the configured
// log directory. A file lock next to the database guards against concurrent
// writers from a second process.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.LogDir, "history.db")
	lock := flock.New(dbPath + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire history lock: %w", err)
	}
	if !ok {
		return nil, errors.New("history database is locked by another clipforge process")
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath, lock: lock}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}
	if err := store.recoverInterrupted(context.Background()); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}
	return store, nil
}

// recoverInterrupted marks jobs left pending or running by a previous process
// as failed. The lock file guarantees no other writer exists, so anything
// still in-flight here was interrupted.
func (s *Store) recoverInterrupted(ctx context.Context) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		"UPDATE jobs SET status = ?, failure_kind = ?, error_message = ?, updated_at = ? WHERE status IN (?, ?)",
		string(StatusFailed), string(FailureProcess), "interrupted before completion", now,
		string(StatusPending), string(StatusRunning),
	)
	if err != nil {
		return fmt.Errorf("recover interrupted jobs: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"UPDATE batches SET status = ?, finished_at = ? WHERE status = ?",
		string(BatchPartiallyFailed), now, string(BatchRunning),
	)
	if err != nil {
		return fmt.Errorf("recover interrupted batches: %w", err)
	}
	return nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database and releases the process lock.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	if s.lock != nil {
		if unlockErr := s.lock.Unlock(); err == nil {
			err = unlockErr
		}
	}
	return err
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// CreateBatch records a new batch and its jobs in one transaction. Jobs start
// as StatusPending and the batch as BatchRunning.
func (s *Store) CreateBatch(ctx context.Context, batchID string, jobs []*Job) error {
	ctx = ensureContext(ctx)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin batch tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO batches (id, status, created_at) VALUES (?, ?, ?)",
			batchID, string(BatchRunning), now,
		); err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}
		for _, job := range jobs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO jobs (id, batch_id, source_path, output_path, mode, status, failure_kind, error_message, progress_percent, notes, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
				job.ID, batchID, job.SourcePath, nullableString(job.OutputPath),
				nullableString(job.Mode), string(StatusPending), nil, nil,
				nullableString(job.Notes), now, now,
			); err != nil {
				return fmt.Errorf("insert job %s: %w", job.ID, err)
			}
		}
		return tx.Commit()
	})
}

// UpdateJobStatus persists a job transition with optional failure detail.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status Status, kind FailureKind, message string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return s.execWithoutResultRetry(ctx,
		"UPDATE jobs SET status = ?, failure_kind = ?, error_message = ?, updated_at = ? WHERE id = ?",
		string(status), nullableString(string(kind)), nullableString(message), now, jobID,
	)
}

// UpdateJobProgress persists the latest completion percentage.
func (s *Store) UpdateJobProgress(ctx context.Context, jobID string, percent float64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return s.execWithoutResultRetry(ctx,
		"UPDATE jobs SET progress_percent = ?, updated_at = ? WHERE id = ?",
		percent, now, jobID,
	)
}

// FinishBatch records the aggregate outcome of a batch.
func (s *Store) FinishBatch(ctx context.Context, batchID string, status BatchStatus) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return s.execWithoutResultRetry(ctx,
		"UPDATE batches SET status = ?, finished_at = ? WHERE id = ?",
		string(status), now, batchID,
	)
}

const jobColumns = "id, batch_id, source_path, output_path, mode, status, failure_kind, error_message, progress_percent, notes, created_at, updated_at"

// JobByID fetches one job.
func (s *Store) JobByID(ctx context.Context, jobID string) (*Job, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	return job, err
}

// BatchJobs returns a batch's jobs in insertion order.
func (s *Store) BatchJobs(ctx context.Context, batchID string) ([]*Job, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+jobColumns+" FROM jobs WHERE batch_id = ? ORDER BY created_at, id", batchID)
	if err != nil {
		return nil, fmt.Errorf("query batch jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// RecentBatches returns the newest batches first, with job counts.
func (s *Store) RecentBatches(ctx context.Context, limit int) ([]*Batch, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT b.id, b.status, b.created_at, b.finished_at, COUNT(j.id)
		 FROM batches b LEFT JOIN jobs j ON j.batch_id = b.id
		 GROUP BY b.id ORDER BY b.created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	var batches []*Batch
	for rows.Next() {
		var (
			batch       Batch
			statusStr   string
			createdRaw  string
			finishedRaw sql.NullString
		)
		if err := rows.Scan(&batch.ID, &statusStr, &createdRaw, &finishedRaw, &batch.JobCount); err != nil {
			return nil, err
		}
		batch.Status = BatchStatus(statusStr)
		if created, err := parseTimeString(createdRaw); err == nil {
			batch.CreatedAt = created
		}
		if finishedRaw.Valid {
			if finished, err := parseTimeString(finishedRaw.String); err == nil {
				batch.FinishedAt = &finished
			}
		}
		batches = append(batches, &batch)
	}
	return batches, rows.Err()
}

// Stats aggregates job counts per lifecycle state.
func (s *Store) Stats(ctx context.Context) (Summary, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(1) FROM jobs GROUP BY status")
	if err != nil {
		return Summary{}, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	var summary Summary
	for rows.Next() {
		var (
			statusStr string
			count     int
		)
		if err := rows.Scan(&statusStr, &count); err != nil {
			return Summary{}, err
		}
		summary.Total += count
		switch Status(statusStr) {
		case StatusPending:
			summary.Pending = count
		case StatusRunning:
			summary.Running = count
		case StatusCompleted:
			summary.Completed = count
		case StatusFailed:
			summary.Failed = count
		case StatusCancelled:
			summary.Cancelled = count
		}
	}
	return summary, rows.Err()
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id           string
		batchID      string
		sourcePath   string
		outputPath   sql.NullString
		mode         sql.NullString
		statusStr    string
		failureKind  sql.NullString
		errorMessage sql.NullString
		progress     sql.NullFloat64
		notes        sql.NullString
		createdRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(
		&id, &batchID, &sourcePath, &outputPath, &mode, &statusStr,
		&failureKind, &errorMessage, &progress, &notes, &createdRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:              id,
		BatchID:         batchID,
		SourcePath:      sourcePath,
		OutputPath:      outputPath.String,
		Mode:            mode.String,
		Status:          Status(statusStr),
		FailureKind:     FailureKind(failureKind.String),
		ErrorMessage:    errorMessage.String,
		ProgressPercent: progress.Float64,
		Notes:           notes.String,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithoutResultRetry(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}
