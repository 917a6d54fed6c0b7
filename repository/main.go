package repository

import (
	"github.com/mosaiclabs/mosaic-media-service/infra"
)

type Repository struct {
	UploadSessionRepo *UploadSessionRepository
	JobRepo           *JobRepository
	AssetRepo         *AssetRepository
}

func InitRepository(infra *infra.Infra) *Repository {
	return &Repository{
		UploadSessionRepo: NewUploadSessionRepository(infra.Postgres.DB),
		JobRepo:           NewJobRepository(infra.Postgres.DB),
		AssetRepo:         NewAssetRepository(infra.Postgres.DB),
	}
}
