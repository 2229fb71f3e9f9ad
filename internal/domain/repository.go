package domain

import "context"

// JobRepository persists generation jobs.
type JobRepository interface {
	Create(ctx context.Context, job *GenerationJob) error
	Update(ctx context.Context, job *GenerationJob) error
	GetByID(ctx context.Context, jobID string) (*GenerationJob, error)
	ListByStatus(ctx context.Context, status JobStatus, limit int) ([]*GenerationJob, error)
}

// AssetRepository persists assets. CreateForJob is idempotent per job id: a
// second call for the same job returns the asset created by the first.
type AssetRepository interface {
	CreateForJob(ctx context.Context, jobID string, asset NewAsset) (*Asset, error)
	GetByID(ctx context.Context, assetID string) (*Asset, error)
	GetBySourceGeneration(ctx context.Context, jobID string) (*Asset, error)
	// ListUnlinked returns generation assets that their job does not link to.
	ListUnlinked(ctx context.Context, limit int) ([]Asset, error)
	// Delete removes an asset no job links to. A linked or missing asset
	// reports ErrNotFound.
	Delete(ctx context.Context, assetID string) error
}
