// Package memory provides in-process repositories for development runs
// without Postgres and for tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"genstudio/internal/domain"
)

// Store keeps jobs and assets in maps. It satisfies both repository contracts.
type Store struct {
	mu     sync.Mutex
	jobs   map[string]*domain.GenerationJob
	assets map[string]*domain.Asset
	byJob  map[string]string
	now    func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		jobs:   make(map[string]*domain.GenerationJob),
		assets: make(map[string]*domain.Asset),
		byJob:  make(map[string]string),
		now:    time.Now,
	}
}

// Jobs returns the store as a JobRepository.
func (s *Store) Jobs() *JobRepo { return &JobRepo{s: s} }

// Assets returns the store as an AssetRepository.
func (s *Store) Assets() *AssetRepo { return &AssetRepo{s: s} }

// JobRepo is the job half of Store.
type JobRepo struct{ s *Store }

func (r *JobRepo) Create(_ context.Context, job *domain.GenerationJob) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.jobs[job.ID] = job.Clone()
	return nil
}

func (r *JobRepo) Update(_ context.Context, job *domain.GenerationJob) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.jobs[job.ID]; !ok {
		return domain.ErrNotFound
	}
	r.s.jobs[job.ID] = job.Clone()
	return nil
}

func (r *JobRepo) GetByID(_ context.Context, jobID string) (*domain.GenerationJob, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	job, ok := r.s.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return job.Clone(), nil
}

func (r *JobRepo) ListByStatus(_ context.Context, status domain.JobStatus, limit int) ([]*domain.GenerationJob, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.GenerationJob
	for _, job := range r.s.jobs {
		if job.Status == status {
			out = append(out, job.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AssetRepo is the asset half of Store.
type AssetRepo struct{ s *Store }

func (r *AssetRepo) CreateForJob(_ context.Context, jobID string, in domain.NewAsset) (*domain.Asset, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if id, ok := r.s.byJob[jobID]; ok {
		a := *r.s.assets[id]
		return &a, nil
	}
	a := &domain.Asset{
		ID:           uuid.NewString(),
		OwnerID:      in.OwnerID,
		Type:         in.Type,
		StorageRef:   in.StorageRef,
		ThumbnailRef: in.ThumbnailRef,
		Metadata:     in.Metadata,
		Provenance:   domain.Provenance{SourceType: domain.SourceGeneration, SourceGenerationID: jobID},
		CreatedAt:    r.s.now().UTC(),
	}
	r.s.assets[a.ID] = a
	r.s.byJob[jobID] = a.ID
	out := *a
	return &out, nil
}

func (r *AssetRepo) GetByID(_ context.Context, assetID string) (*domain.Asset, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.assets[assetID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *a
	return &out, nil
}

func (r *AssetRepo) GetBySourceGeneration(_ context.Context, jobID string) (*domain.Asset, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.byJob[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *r.s.assets[id]
	return &out, nil
}

// ListUnlinked returns generation assets that their job does not link to.
func (r *AssetRepo) ListUnlinked(_ context.Context, limit int) ([]domain.Asset, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Asset
	for jobID, assetID := range r.s.byJob {
		job, ok := r.s.jobs[jobID]
		if !ok || job.OutputAssetID != "" {
			continue
		}
		out = append(out, *r.s.assets[assetID])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Delete removes an asset that no job links to.
func (r *AssetRepo) Delete(_ context.Context, assetID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.assets[assetID]
	if !ok {
		return domain.ErrNotFound
	}
	for _, job := range r.s.jobs {
		if job.OutputAssetID == assetID {
			return domain.ErrNotFound
		}
	}
	delete(r.s.assets, assetID)
	if jobID := a.Provenance.SourceGenerationID; r.s.byJob[jobID] == assetID {
		delete(r.s.byJob, jobID)
	}
	return nil
}

var (
	_ domain.JobRepository   = (*JobRepo)(nil)
	_ domain.AssetRepository = (*AssetRepo)(nil)
)
