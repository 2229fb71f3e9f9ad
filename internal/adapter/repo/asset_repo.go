package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"genstudio/internal/domain"
	"genstudio/internal/infra"
	"genstudio/internal/sqlinline"
)

// AssetRepositoryPG implements domain.AssetRepository using PostgreSQL.
type AssetRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewAssetRepository constructs a new asset repository instance.
func NewAssetRepository(sql infra.SQLExecutor) *AssetRepositoryPG {
	return &AssetRepositoryPG{sql: sql}
}

// CreateForJob inserts the generation asset of jobID. The unique
// source_generation_id column turns a second insert into a read of the first.
func (r *AssetRepositoryPG) CreateForJob(ctx context.Context, jobID string, in domain.NewAsset) (*domain.Asset, error) {
	meta, err := json.Marshal(in.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	asset, err := scanAsset(r.sql.QueryRow(ctx, sqlinline.QInsertGenerationAsset,
		in.OwnerID,
		string(in.Type),
		in.StorageRef,
		in.ThumbnailRef,
		meta,
		jobID,
	))
	if err == nil {
		return asset, nil
	}
	if !infra.IsNoRows(err) {
		return nil, err
	}
	return r.GetBySourceGeneration(ctx, jobID)
}

// GetByID fetches an asset by its identifier.
func (r *AssetRepositoryPG) GetByID(ctx context.Context, assetID string) (*domain.Asset, error) {
	return r.getOne(ctx, sqlinline.QSelectAssetByID, assetID)
}

// GetBySourceGeneration returns the asset produced by jobID.
func (r *AssetRepositoryPG) GetBySourceGeneration(ctx context.Context, jobID string) (*domain.Asset, error) {
	return r.getOne(ctx, sqlinline.QSelectAssetBySourceGeneration, jobID)
}

func (r *AssetRepositoryPG) getOne(ctx context.Context, query, id string) (*domain.Asset, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	asset, err := scanAsset(r.sql.QueryRow(ctx, query, id))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return asset, nil
}

// ListUnlinked returns generation assets whose job has no output recorded.
func (r *AssetRepositoryPG) ListUnlinked(ctx context.Context, limit int) ([]domain.Asset, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListUnlinkedAssets, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []domain.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, *asset)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assets, nil
}

// Delete removes an asset that no job links to.
func (r *AssetRepositoryPG) Delete(ctx context.Context, assetID string) error {
	if _, err := uuid.Parse(assetID); err != nil {
		return domain.ErrNotFound
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QDeleteUnlinkedAsset, assetID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanAsset(row scanner) (*domain.Asset, error) {
	var (
		asset      domain.Asset
		kind       string
		sourceType string
		meta       []byte
	)
	if err := row.Scan(
		&asset.ID,
		&asset.OwnerID,
		&kind,
		&asset.StorageRef,
		&asset.ThumbnailRef,
		&meta,
		&sourceType,
		&asset.Provenance.SourceGenerationID,
		&asset.CreatedAt,
	); err != nil {
		return nil, err
	}
	asset.Type = domain.MediaKind(kind)
	asset.Provenance.SourceType = domain.SourceType(sourceType)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &asset.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of asset %s: %w", asset.ID, err)
		}
	}
	return &asset, nil
}

var _ domain.AssetRepository = (*AssetRepositoryPG)(nil)
