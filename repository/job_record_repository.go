package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/luantaraschi/petichat-definitive/models"
)

// JobRecordRepository keeps a durable copy of terminal job outcomes so failed
// jobs stay inspectable after the queue trims its retention lists
type JobRecordRepository struct {
	db *pgxpool.Pool
}

// NewJobRecordRepository creates a new job record repository
func NewJobRecordRepository(db *pgxpool.Pool) *JobRecordRepository {
	return &JobRecordRepository{db: db}
}

// Save upserts a job record by queue id
func (r *JobRecordRepository) Save(ctx context.Context, job *models.JobRecord) error {
	query := `
		INSERT INTO job_records (
			id, kind, status, progress, attempts, max_attempts,
			payload, result, last_error, created_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			progress = EXCLUDED.progress,
			attempts = EXCLUDED.attempts,
			result = EXCLUDED.result,
			last_error = EXCLUDED.last_error,
			finished_at = EXCLUDED.finished_at`

	_, err := r.db.Exec(
		ctx, query,
		job.ID,
		job.Kind,
		job.Status,
		job.Progress,
		job.Attempts,
		job.MaxAttempts,
		job.Payload,
		job.Result,
		job.LastError,
		job.CreatedAt,
		job.FinishedAt,
	)
	return err
}

// GetByID retrieves a stored job record
func (r *JobRecordRepository) GetByID(ctx context.Context, id string) (*models.JobRecord, error) {
	job := &models.JobRecord{}
	err := r.db.QueryRow(ctx, `
		SELECT id, kind, status, progress, attempts, max_attempts,
			payload, result, last_error, created_at, finished_at
		FROM job_records WHERE id = $1`, id,
	).Scan(
		&job.ID,
		&job.Kind,
		&job.Status,
		&job.Progress,
		&job.Attempts,
		&job.MaxAttempts,
		&job.Payload,
		&job.Result,
		&job.LastError,
		&job.CreatedAt,
		&job.FinishedAt,
	)
	if err != nil {
		return nil, notFound(err, "job")
	}
	return job, nil
}

// ListFailed returns failed jobs, optionally of one kind, newest first
func (r *JobRecordRepository) ListFailed(ctx context.Context, kind string, limit int) ([]*models.JobRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, kind, status, progress, attempts, max_attempts,
			payload, result, last_error, created_at, finished_at
		FROM job_records
		WHERE status = $1 AND ($2::text = '' OR kind = $2)
		ORDER BY finished_at DESC
		LIMIT $3`, models.JobStatusFailed, kind, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.JobRecord
	for rows.Next() {
		job := &models.JobRecord{}
		err := rows.Scan(
			&job.ID,
			&job.Kind,
			&job.Status,
			&job.Progress,
			&job.Attempts,
			&job.MaxAttempts,
			&job.Payload,
			&job.Result,
			&job.LastError,
			&job.CreatedAt,
			&job.FinishedAt,
		)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
