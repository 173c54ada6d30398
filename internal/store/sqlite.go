package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed job history
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a new Store, opening the SQLite database and running migrations
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Debug("store initialized", "path", dbPath)
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// CreateJob inserts a new running Job and sets its ID
func (s *Store) CreateJob(job *Job) error {
	if job.Status == "" {
		job.Status = StatusRunning
	}
	if job.StartTime.IsZero() {
		job.StartTime = time.Now()
	}

	const query = `
		INSERT INTO jobs (
			kind, url, partitions, status, error_message,
			bytes_written, artifact, start_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(
		query,
		job.Kind, job.URL, job.Partitions, job.Status, job.ErrorMessage,
		job.BytesWritten, job.Artifact, job.StartTime,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	job.ID = id
	return nil
}

// FinishJob marks a Job as finished, recording its outcome
func (s *Store) FinishJob(job *Job) error {
	if job.EndTime.IsZero() {
		job.EndTime = time.Now()
	}

	const query = `
		UPDATE jobs SET
			status = ?, error_message = ?, bytes_written = ?,
			artifact = ?, end_time = ?
		WHERE id = ?
	`

	result, err := s.db.Exec(
		query,
		job.Status, job.ErrorMessage, job.BytesWritten,
		job.Artifact, job.EndTime, job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("job not found: %d", job.ID)
	}

	return nil
}

// ListRecentJobs returns the most recent jobs, newest first
func (s *Store) ListRecentJobs(limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 20
	}

	const query = `
		SELECT id, kind, url, partitions, status, error_message,
		       bytes_written, artifact, start_time, COALESCE(end_time, start_time)
		FROM jobs
		ORDER BY start_time DESC, id DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(
			&j.ID, &j.Kind, &j.URL, &j.Partitions, &j.Status, &j.ErrorMessage,
			&j.BytesWritten, &j.Artifact, &j.StartTime, &j.EndTime,
		); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", err)
	}

	return jobs, nil
}
