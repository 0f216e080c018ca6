package postgres

import (
	"context"
	"fmt"

	"github.com/Jacoby6000/panoptoconverter/internal/domain/entity"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

// EnsureSchema creates the export_jobs table when it does not exist yet.
func (r *JobRepository) EnsureSchema(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS export_jobs (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			video_key TEXT NOT NULL,
			archive_key TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			cells_total INT NOT NULL DEFAULT 0,
			cells_skipped INT NOT NULL DEFAULT 0,
			frame_count INT NOT NULL DEFAULT 0,
			file_size BIGINT NOT NULL DEFAULT 0,
			video_duration DOUBLE PRECISION NOT NULL DEFAULT 0,
			attempt INT NOT NULL DEFAULT 0,
			max_attempts INT NOT NULL DEFAULT 0,
			error_message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ
		)`

	if _, err := r.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (r *JobRepository) Create(ctx context.Context, job *entity.ExportJob) error {
	query := `
		INSERT INTO export_jobs (
			id, user_id, video_key, archive_key, status, cells_total,
			cells_skipped, frame_count, file_size, video_duration,
			attempt, max_attempts, error_message,
			created_at, updated_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`

	_, err := r.pool.Exec(ctx, query,
		job.ID, job.UserID, job.VideoKey, job.ArchiveKey, string(job.Status),
		job.CellsTotal, job.CellsSkipped, job.FrameCount,
		job.FileSize, job.VideoDuration,
		job.Attempt, job.MaxAttempts, job.ErrorMessage,
		job.CreatedAt, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) Update(ctx context.Context, job *entity.ExportJob) error {
	query := `
		UPDATE export_jobs SET
			status=$2, archive_key=$3, cells_total=$4, cells_skipped=$5,
			frame_count=$6, video_duration=$7, attempt=$8,
			error_message=$9, updated_at=$10, completed_at=$11
		WHERE id=$1`

	_, err := r.pool.Exec(ctx, query,
		job.ID, string(job.Status), job.ArchiveKey, job.CellsTotal,
		job.CellsSkipped, job.FrameCount, job.VideoDuration,
		job.Attempt, job.ErrorMessage,
		job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.ExportJob, error) {
	query := `
		SELECT id, user_id, video_key, archive_key, status, cells_total,
			cells_skipped, frame_count, file_size, video_duration,
			attempt, max_attempts, error_message,
			created_at, updated_at, completed_at
		FROM export_jobs WHERE id=$1`

	job := &entity.ExportJob{}
	var status string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.UserID, &job.VideoKey, &job.ArchiveKey, &status,
		&job.CellsTotal, &job.CellsSkipped, &job.FrameCount,
		&job.FileSize, &job.VideoDuration,
		&job.Attempt, &job.MaxAttempts, &job.ErrorMessage,
		&job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("find job by id: %w", err)
	}
	job.Status = entity.JobStatus(status)
	return job, nil
}
