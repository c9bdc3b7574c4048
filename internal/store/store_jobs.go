package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a background job.
type JobStatus string

const (
	JobInactive JobStatus = "INACTIVE"
	JobRunning  JobStatus = "RUNNING"
	JobSuccess  JobStatus = "SUCCESS"
	JobError    JobStatus = "ERROR"
)

// Terminal reports whether the job has finished.
func (s JobStatus) Terminal() bool {
	return s == JobSuccess || s == JobError
}

// Job is a persisted background job with its running log.
type Job struct {
	ID        string
	Title     string
	Type      string
	UserID    string
	Status    JobStatus
	Log       string
	CreatedAt time.Time
	UpdatedAt time.Time
}

const jobColumns = "id, title, type, user_id, status, log, created_at, updated_at"

func scanJob(row scanner) (*Job, error) {
	var (
		job        Job
		user       sql.NullString
		status     string
		createdRaw string
		updatedRaw string
	)
	if err := row.Scan(&job.ID, &job.Title, &job.Type, &user, &status, &job.Log, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	job.UserID = user.String
	job.Status = JobStatus(status)
	job.CreatedAt, _ = parseTimeString(createdRaw)
	job.UpdatedAt, _ = parseTimeString(updatedRaw)
	return &job, nil
}

// CreateJob records a new inactive job.
func (s *Store) CreateJob(ctx context.Context, title, jobType, userID string) (*Job, error) {
	if strings.TrimSpace(jobType) == "" {
		return nil, errors.New("create job: type required")
	}
	id := uuid.NewString()
	now := nowString()
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, '', ?, ?)`,
		id, title, jobType, nullableString(userID), JobInactive, now, now,
	); err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return s.GetJob(ctx, id)
}

// UpdateJob appends logLine (when non-empty) and sets status (when non-empty).
func (s *Store) UpdateJob(ctx context.Context, id, logLine string, status JobStatus) error {
	if logLine != "" && !strings.HasSuffix(logLine, "\n") {
		logLine += "\n"
	}
	if _, err := s.execWithRetry(ctx,
		`UPDATE jobs SET log = log || ?, status = COALESCE(?, status), updated_at = ? WHERE id = ?`,
		logLine, nullableString(string(status)), nowString(), id,
	); err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// GetJob fetches a job by identifier.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns the most recent jobs first.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
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

// FailRunningJobs marks jobs left RUNNING by a crashed process as ERROR.
func (s *Store) FailRunningJobs(ctx context.Context, reason string) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, log = log || ?, updated_at = ? WHERE status = ?`,
		JobError, reason+"\n", nowString(), JobRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("fail running jobs: %w", err)
	}
	return res.RowsAffected()
}
