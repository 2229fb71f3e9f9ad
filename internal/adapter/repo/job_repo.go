package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"genstudio/internal/domain"
	"genstudio/internal/infra"
	"genstudio/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.GenerationJob) error {
	request, err := json.Marshal(job.Request)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	progress, err := json.Marshal(job.Progress)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	_, err = r.sql.Exec(ctx, sqlinline.QInsertGenerationJob,
		job.ID,
		job.Request.OwnerID,
		job.Request.ModelID,
		string(job.Request.GenerationType),
		job.Request.ProjectID,
		request,
		string(job.Status),
		job.ProviderJobID,
		progress,
		job.CreatedAt,
		job.UpdatedAt,
	)
	return err
}

// Update writes every mutable field of job. The request is frozen and never rewritten.
func (r *JobRepositoryPG) Update(ctx context.Context, job *domain.GenerationJob) error {
	progress, err := json.Marshal(job.Progress)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	var errKind, errMsg string
	if job.Error != nil {
		errKind = string(job.Error.Kind)
		errMsg = job.Error.Message
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QUpdateGenerationJob,
		job.ID,
		string(job.Status),
		job.ProviderJobID,
		progress,
		job.OutputAssetID,
		errKind,
		errMsg,
		job.UpdatedAt,
		job.CompletedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.GenerationJob, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, domain.ErrNotFound
	}
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectGenerationJobByID, jobID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// ListByStatus returns up to limit jobs in status, oldest first.
func (r *JobRepositoryPG) ListByStatus(ctx context.Context, status domain.JobStatus, limit int) ([]*domain.GenerationJob, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListGenerationJobsByStatus, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.GenerationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*domain.GenerationJob, error) {
	var (
		job         domain.GenerationJob
		status      string
		request     []byte
		progress    []byte
		errKind     string
		errMsg      string
		completedAt *time.Time
	)
	if err := row.Scan(
		&job.ID,
		&request,
		&status,
		&job.ProviderJobID,
		&progress,
		&job.OutputAssetID,
		&errKind,
		&errMsg,
		&job.CreatedAt,
		&job.UpdatedAt,
		&completedAt,
	); err != nil {
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	if err := json.Unmarshal(request, &job.Request); err != nil {
		return nil, fmt.Errorf("decode request of job %s: %w", job.ID, err)
	}
	if len(progress) > 0 {
		if err := json.Unmarshal(progress, &job.Progress); err != nil {
			return nil, fmt.Errorf("decode progress of job %s: %w", job.ID, err)
		}
	}
	if errKind != "" || errMsg != "" {
		job.Error = &domain.JobError{Kind: domain.Kind(errKind), Message: errMsg}
	}
	job.CompletedAt = completedAt
	return &job, nil
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
