package controller

import (
	"github.com/mosaiclabs/mosaic-media-service/config"
	"github.com/mosaiclabs/mosaic-media-service/infra"
	"github.com/mosaiclabs/mosaic-media-service/repository"
	"github.com/mosaiclabs/mosaic-media-service/service"
)

type Controller struct {
	Config     *config.Config
	Infra      *infra.Infra
	Repository *repository.Repository
	Uploads    *service.UploadSessionService
	Jobs       *service.JobService
	Hub        *service.Hub
}

func NewController(config *config.Config, infra *infra.Infra, repo *repository.Repository, hub *service.Hub) *Controller {
	if repo == nil {
		panic("Failed to initialize Repository")
	}

	jobs := service.NewJobService(repo.JobRepo, infra.Produce.JobService, hub, infra.Logger, config.EnvConfig)
	uploads := service.NewUploadSessionService(
		repo.UploadSessionRepo,
		repo.AssetRepo,
		jobs,
		infra.Minio,
		hub,
		infra.Redis,
		infra.Logger,
		config.EnvConfig,
	)

	return &Controller{
		Config:     config,
		Infra:      infra,
		Repository: repo,
		Uploads:    uploads,
		Jobs:       jobs,
		Hub:        hub,
	}
}
