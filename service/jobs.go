package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mosaiclabs/mosaic-media-service/config"
	"github.com/mosaiclabs/mosaic-media-service/entity"
	"github.com/mosaiclabs/mosaic-media-service/infra"
	"github.com/mosaiclabs/mosaic-media-service/infra/produce"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// JobStore is the ledger surface for processing jobs. Implemented by
// repository.JobRepository.
type JobStore interface {
	Create(ctx context.Context, job *entity.ProcessingJob) error
	FindByIDAndOwner(ctx context.Context, id, ownerID uuid.UUID) (*entity.ProcessingJob, error)
}

// JobPublisher pushes job references onto the durable queue. Implemented by
// produce.JobProduceService.
type JobPublisher interface {
	PublishStyleJob(ctx context.Context, msg produce.StyleJobMessage) error
}

// JobService creates processing jobs and hands them to the queue. The job
// row is written before the queue publish so the worker always finds the
// source of truth.
type JobService struct {
	jobs      JobStore
	publisher JobPublisher
	events    EventPublisher
	logger    *infra.LoggerClient
	cfg       *config.EnvConfig
}

func NewJobService(jobs JobStore, publisher JobPublisher, events EventPublisher, logger *infra.LoggerClient, cfg *config.EnvConfig) *JobService {
	return &JobService{
		jobs:      jobs,
		publisher: publisher,
		events:    events,
		logger:    logger,
		cfg:       cfg,
	}
}

// Enqueue records a queued job for an existing asset and publishes its
// reference. Must only be called once the source asset row exists.
func (s *JobService) Enqueue(ctx context.Context, asset *entity.Asset, styleParams datatypes.JSON, intensity float64) (*entity.ProcessingJob, error) {
	if len(styleParams) == 0 {
		return nil, &ValidationError{Field: "style_params", Reason: "must not be empty"}
	}

	job := &entity.ProcessingJob{
		ID:          uuid.New(),
		AssetID:     asset.ID,
		OwnerID:     asset.OwnerID,
		ProjectID:   asset.ProjectID,
		StyleParams: styleParams,
		Intensity:   intensity,
		Status:      entity.JobStatusQueued,
		MaxAttempts: s.cfg.Worker.MaxAttempts,
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist processing job: %w", err)
	}

	msg := produce.StyleJobMessage{
		JobID:     job.ID.String(),
		AssetID:   asset.ID.String(),
		OwnerID:   asset.OwnerID.String(),
		ProjectID: asset.ProjectID.String(),
	}
	if err := s.publisher.PublishStyleJob(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to publish processing job %s: %w", job.ID, err)
	}

	s.events.Publish(ctx, entity.JobTopic(job.ID), entity.NewNotificationEvent(entity.EventJobStatusChange, map[string]any{
		"job_id": job.ID.String(),
		"status": string(entity.JobStatusQueued),
	}))

	s.logger.InfoWithContextf(ctx, "[Job] Enqueued style job %s for asset %s", job.ID, asset.ID)
	return job, nil
}

// GetJob returns a job the caller owns; reconnecting subscribers use this to
// re-fetch authoritative state.
func (s *JobService) GetJob(ctx context.Context, jobID, ownerID uuid.UUID) (*entity.ProcessingJob, error) {
	job, err := s.jobs.FindByIDAndOwner(ctx, jobID, ownerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "processing job", ID: jobID}
		}
		return nil, fmt.Errorf("failed to load processing job: %w", err)
	}
	return job, nil
}
