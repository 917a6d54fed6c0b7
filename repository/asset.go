package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/mosaiclabs/mosaic-media-service/entity"
	"gorm.io/gorm"
)

type AssetRepository struct {
	db *gorm.DB
}

func NewAssetRepository(db *gorm.DB) *AssetRepository {
	return &AssetRepository{db: db}
}

// Create creates a new asset row
func (r *AssetRepository) Create(ctx context.Context, asset *entity.Asset) error {
	return r.db.WithContext(ctx).Create(asset).Error
}

// CreateBatch creates several asset rows in one transaction.
func (r *AssetRepository) CreateBatch(ctx context.Context, assets []entity.Asset) error {
	if len(assets) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&assets).Error
}

// FindByID finds an asset by its ID
func (r *AssetRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Asset, error) {
	var asset entity.Asset
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&asset).Error
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

// FindByIDAndOwner finds an asset owned by the given user.
func (r *AssetRepository) FindByIDAndOwner(ctx context.Context, id, ownerID uuid.UUID) (*entity.Asset, error) {
	var asset entity.Asset
	err := r.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&asset).Error
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

// FindDerivedByJobID returns the derived assets a job has already produced.
// The worker checks this before creating new rows so a redelivered job never
// duplicates its output.
func (r *AssetRepository) FindDerivedByJobID(ctx context.Context, jobID uuid.UUID) ([]entity.Asset, error) {
	var assets []entity.Asset
	err := r.db.WithContext(ctx).Where("job_id = ?", jobID).Find(&assets).Error
	return assets, err
}
