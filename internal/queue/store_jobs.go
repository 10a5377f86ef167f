package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const jobColumns = `id, composition_id, output_path, codec, concurrency,
	start_frame, end_frame, input_props_json, status, progress,
	error_message, cancel_requested, created_at, updated_at`

// Enqueue inserts a new job in the queued state and returns it with its
// assigned id.
func (s *Store) Enqueue(ctx context.Context, job *Job) (*Job, error) {
	if job == nil {
		return nil, errors.New("job required")
	}
	if strings.TrimSpace(job.CompositionID) == "" {
		return nil, errors.New("composition id required")
	}
	if strings.TrimSpace(job.OutputPath) == "" {
		return nil, errors.New("output path required")
	}
	now := nowStamp()
	res, err := s.execWithRetry(ctx,
		`INSERT INTO render_jobs
		 (composition_id, output_path, codec, concurrency, start_frame, end_frame,
		  input_props_json, status, progress, error_message, cancel_requested, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, '', 0, ?, ?)`,
		job.CompositionID, job.OutputPath, job.Codec, job.Concurrency,
		job.StartFrame, job.EndFrame, job.InputPropsJSON, StatusQueued, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("job id: %w", err)
	}
	return s.GetJob(ctx, id)
}

// GetJob fetches one job by id.
func (s *Store) GetJob(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+jobColumns+" FROM render_jobs WHERE id = ?", id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrJobNotFound, id)
	}
	return job, err
}

// NextQueued returns the oldest queued job, or nil when the queue is empty.
func (s *Store) NextQueued(ctx context.Context) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+jobColumns+" FROM render_jobs WHERE status = ? ORDER BY created_at, id LIMIT 1",
		StatusQueued)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

// ActiveJob returns the currently in-flight job, or nil when none is
// active.
func (s *Store) ActiveJob(ctx context.Context) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+jobColumns+` FROM render_jobs
		 WHERE status IN (?, ?, ?, ?) ORDER BY updated_at DESC LIMIT 1`,
		StatusBundling, StatusFetchingMetadata, StatusRendering, StatusEncoding)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

// List returns all jobs, newest first.
func (s *Store) List(ctx context.Context) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+jobColumns+" FROM render_jobs ORDER BY created_at DESC, id DESC")
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

// Transition moves a job to a new status, enforcing the state machine. The
// error message is persisted alongside error transitions.
func (s *Store) Transition(ctx context.Context, id int64, to Status, errorMessage string) (*Job, error) {
	if _, ok := statusSet[to]; !ok {
		return nil, fmt.Errorf("unknown status %q", to)
	}
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(job.Status, to) {
		return nil, fmt.Errorf("%w: %s → %s for job %d", ErrInvalidTransition, job.Status, to, id)
	}
	if _, err := s.execWithRetry(ctx,
		"UPDATE render_jobs SET status = ?, error_message = ?, updated_at = ? WHERE id = ?",
		to, strings.TrimSpace(errorMessage), nowStamp(), id,
	); err != nil {
		return nil, fmt.Errorf("transition job %d: %w", id, err)
	}
	return s.GetJob(ctx, id)
}

// UpdateProgress persists the job's completion fraction.
func (s *Store) UpdateProgress(ctx context.Context, id int64, progress float64) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	if _, err := s.execWithRetry(ctx,
		"UPDATE render_jobs SET progress = ?, updated_at = ? WHERE id = ?",
		progress, nowStamp(), id,
	); err != nil {
		return fmt.Errorf("update progress for job %d: %w", id, err)
	}
	return nil
}

// RequestCancel flags a job for cooperative cancellation. Queued jobs are
// cancelled immediately; in-flight jobs stop before their next frame task.
func (s *Store) RequestCancel(ctx context.Context, id int64) (*Job, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s → %s for job %d", ErrInvalidTransition, job.Status, StatusCancelled, id)
	}
	if job.Status == StatusQueued {
		return s.Transition(ctx, id, StatusCancelled, "")
	}
	if _, err := s.execWithRetry(ctx,
		"UPDATE render_jobs SET cancel_requested = 1, updated_at = ? WHERE id = ?",
		nowStamp(), id,
	); err != nil {
		return nil, fmt.Errorf("request cancel for job %d: %w", id, err)
	}
	return s.GetJob(ctx, id)
}

// ResetStuckJobs fails jobs left in an active state by a previous process,
// so the scheduler never sees two active jobs after a crash.
func (s *Store) ResetStuckJobs(ctx context.Context, reason string) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE render_jobs SET status = ?, error_message = ?, updated_at = ?
		 WHERE status IN (?, ?, ?, ?)`,
		StatusError, reason, nowStamp(),
		StatusBundling, StatusFetchingMetadata, StatusRendering, StatusEncoding,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck jobs: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var status string
	var cancelRequested int
	var createdAt, updatedAt string
	err := row.Scan(
		&job.ID, &job.CompositionID, &job.OutputPath, &job.Codec, &job.Concurrency,
		&job.StartFrame, &job.EndFrame, &job.InputPropsJSON, &status, &job.Progress,
		&job.ErrorMessage, &cancelRequested, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Status = Status(status)
	job.CancelRequested = cancelRequested != 0
	job.CreatedAt = parseStamp(createdAt)
	job.UpdatedAt = parseStamp(updatedAt)
	return &job, nil
}
