package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mosaiclabs/mosaic-media-service/config"
	"github.com/mosaiclabs/mosaic-media-service/entity"
	"github.com/mosaiclabs/mosaic-media-service/infra"
	"github.com/mosaiclabs/mosaic-media-service/infra/produce"
	"github.com/mosaiclabs/mosaic-media-service/service"
	amqp "github.com/rabbitmq/amqp091-go"
)

// JobStore is the ledger surface the worker needs. Implemented by
// repository.JobRepository.
type JobStore interface {
	AcquireLease(ctx context.Context, id uuid.UUID, owner string, ttl time.Duration) (*entity.ProcessingJob, bool, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, leaseToken int64) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, leaseToken int64, errorMessage string) (bool, error)
	Requeue(ctx context.Context, id uuid.UUID, leaseToken int64, errorMessage string) (bool, error)
}

// AssetStore is the asset surface the worker needs. Implemented by
// repository.AssetRepository.
type AssetStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Asset, error)
	FindDerivedByJobID(ctx context.Context, jobID uuid.UUID) ([]entity.Asset, error)
	CreateBatch(ctx context.Context, assets []entity.Asset) error
}

// ObjectStore moves asset bytes in and out of the object store. Implemented
// by infra.MinioClient.
type ObjectStore interface {
	GetObjectBytes(ctx context.Context, key string) ([]byte, error)
	PutObjectBytes(ctx context.Context, key string, data []byte, contentType string) error
}

// Processor is the opaque style-transformation collaborator. Implemented by
// infra.StyleProcessorClient.
type Processor interface {
	Transform(ctx context.Context, assetBytes []byte, styleParams []byte, intensity float64) ([]byte, error)
	Thumbnail(ctx context.Context, assetBytes []byte) ([]byte, error)
}

// RetryPublisher re-enqueues a job with a backoff delay. Implemented by
// produce.JobProduceService.
type RetryPublisher interface {
	PublishStyleJobRetry(ctx context.Context, msg produce.StyleJobMessage, delay time.Duration) error
}

// EventPublisher fans job transitions out to live subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event entity.NotificationEvent)
}

// UsageCounter records per-owner accounting. Implemented by
// infra.RedisClient; may be nil.
type UsageCounter interface {
	Increment(ctx context.Context, key string) (int64, error)
}

// StyleJobConsumer pulls style jobs off the durable queue and executes them.
// Queue delivery is at-least-once; every step is idempotent under
// redelivery, and the lease's fencing token keeps a stale worker from
// overwriting a takeover's results.
type StyleJobConsumer struct {
	channel   *amqp.Channel
	workerID  string
	jobs      JobStore
	assets    AssetStore
	storage   ObjectStore
	processor Processor
	retry     RetryPublisher
	events    EventPublisher
	usage     UsageCounter
	logger    *infra.LoggerClient
	cfg       *config.EnvConfig
}

func NewStyleJobConsumer(
	channel *amqp.Channel,
	jobs JobStore,
	assets AssetStore,
	storage ObjectStore,
	processor Processor,
	retry RetryPublisher,
	events EventPublisher,
	usage UsageCounter,
	logger *infra.LoggerClient,
	cfg *config.EnvConfig,
) *StyleJobConsumer {
	return &StyleJobConsumer{
		channel:   channel,
		workerID:  fmt.Sprintf("worker-%s", uuid.NewString()),
		jobs:      jobs,
		assets:    assets,
		storage:   storage,
		processor: processor,
		retry:     retry,
		events:    events,
		usage:     usage,
		logger:    logger,
		cfg:       cfg,
	}
}

func (c *StyleJobConsumer) Start(ctx context.Context) error {
	if err := c.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}

	msgs, err := c.channel.Consume(
		produce.StyleJobQueue,
		c.workerID,
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register style job consumer: %w", err)
	}

	c.logger.InfoWithContextf(ctx, "[Style Worker] %s listening on queue: %s", c.workerID, produce.StyleJobQueue)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.logger.InfoWithContextf(ctx, "[Style Worker] Shutting down...")
				return
			case msg, ok := <-msgs:
				if !ok {
					c.logger.WarningWithContextf(ctx, "[Style Worker] Channel closed")
					return
				}
				c.handleDelivery(ctx, msg)
			}
		}
	}()

	return nil
}

func (c *StyleJobConsumer) handleDelivery(ctx context.Context, msg amqp.Delivery) {
	var payload produce.StyleJobMessage
	if err := json.Unmarshal(msg.Body, &payload); err != nil {
		c.logger.ErrorWithContextf(ctx, err, "[Style Worker] Failed to unmarshal message")
		_ = msg.Nack(false, false)
		return
	}

	// The HTTP request that enqueued the job is long gone; run against a
	// background context so a publisher timeout cannot cancel processing.
	if err := c.ProcessJob(context.Background(), payload); err != nil {
		// No outcome was recorded for this delivery; hand it back to the
		// queue rather than consuming it with the job still queued.
		c.logger.ErrorWithContextf(ctx, err, "[Style Worker] Job %s handling failed", payload.JobID)
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}

// ProcessJob executes one delivery end to end. Retries go back through the
// delayed queue rather than redelivering the same message, so the outcome
// here is always terminal for this delivery.
func (c *StyleJobConsumer) ProcessJob(ctx context.Context, payload produce.StyleJobMessage) error {
	jobID, err := uuid.Parse(payload.JobID)
	if err != nil {
		return fmt.Errorf("invalid job ID %q: %w", payload.JobID, err)
	}

	job, acquired, err := c.jobs.AcquireLease(ctx, jobID, c.workerID, c.cfg.Worker.LeaseTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire lease for job %s: %w", jobID, err)
	}
	if !acquired {
		// Another worker holds a live lease, or the job is already terminal.
		c.logger.InfoWithContextf(ctx, "[Style Worker] Dropping duplicate delivery for job %s", jobID)
		return nil
	}

	// Always announce processing before any terminal event for this job.
	c.publishStatus(ctx, job, entity.JobStatusProcessing, "")

	result, err := c.execute(ctx, job)
	if err != nil {
		return c.handleFailure(ctx, job, err)
	}

	ok, err := c.jobs.MarkCompleted(ctx, job.ID, job.LeaseToken)
	if err != nil {
		return fmt.Errorf("failed to mark job %s completed: %w", job.ID, err)
	}
	if !ok {
		c.logger.WarningWithContextf(ctx, "[Style Worker] Lost lease for job %s before completion", job.ID)
		return nil
	}

	c.publishStatus(ctx, job, entity.JobStatusCompleted, "")
	c.events.Publish(ctx, entity.ProjectTopic(job.ProjectID), entity.NewNotificationEvent(entity.EventProjectUpdate, map[string]any{
		"job_id":    job.ID.String(),
		"status":    string(entity.JobStatusCompleted),
		"asset_ids": result,
	}))

	c.countUsage(ctx, job)

	c.logger.InfoWithContextf(ctx, "[Style Worker] Completed job %s (attempt %d)", job.ID, job.Attempts)
	return nil
}

// countUsage bumps the owner's processed-job counter. Accounting failures
// never block the job outcome.
func (c *StyleJobConsumer) countUsage(ctx context.Context, job *entity.ProcessingJob) {
	if c.usage == nil {
		return
	}
	key := fmt.Sprintf("usage:jobs:%s", job.OwnerID)
	if _, err := c.usage.Increment(ctx, key); err != nil {
		c.logger.WarningWithContextf(ctx, "[Style Worker] Failed to record usage for %s: %v", key, err)
	}
}

// execute produces the derived assets, reusing any a previous delivery
// already created. Returns the derived asset IDs.
func (c *StyleJobConsumer) execute(ctx context.Context, job *entity.ProcessingJob) ([]string, error) {
	existing, err := c.assets.FindDerivedByJobID(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check for derived assets: %w", err)
	}
	if len(existing) > 0 {
		// A previous delivery finished the work but crashed before the
		// terminal status landed.
		ids := make([]string, 0, len(existing))
		for _, a := range existing {
			ids = append(ids, a.ID.String())
		}
		return ids, nil
	}

	original, err := c.assets.FindByID(ctx, job.AssetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load source asset %s: %w", job.AssetID, err)
	}

	assetBytes, err := c.storage.GetObjectBytes(ctx, original.StorageKey)
	if err != nil {
		return nil, &service.TransientProcessingError{Err: fmt.Errorf("download source asset: %w", err)}
	}
	c.publishProgress(ctx, job, 25)

	styled, err := c.processor.Transform(ctx, assetBytes, job.StyleParams, job.Intensity)
	if err != nil {
		return nil, &service.TransientProcessingError{Err: fmt.Errorf("transform: %w", err)}
	}
	c.publishProgress(ctx, job, 60)

	thumbnail, err := c.processor.Thumbnail(ctx, styled)
	if err != nil {
		return nil, &service.TransientProcessingError{Err: fmt.Errorf("thumbnail: %w", err)}
	}
	c.publishProgress(ctx, job, 80)

	styledAsset := entity.Asset{
		ID:          uuid.New(),
		OwnerID:     job.OwnerID,
		ProjectID:   job.ProjectID,
		JobID:       &job.ID,
		StorageKey:  fmt.Sprintf("styled/%s/%s", job.OwnerID, job.ID),
		ContentType: original.ContentType,
		SizeBytes:   int64(len(styled)),
		Kind:        entity.AssetKindStyled,
	}
	thumbAsset := entity.Asset{
		ID:          uuid.New(),
		OwnerID:     job.OwnerID,
		ProjectID:   job.ProjectID,
		JobID:       &job.ID,
		StorageKey:  fmt.Sprintf("thumbnails/%s/%s", job.OwnerID, job.ID),
		ContentType: original.ContentType,
		SizeBytes:   int64(len(thumbnail)),
		Kind:        entity.AssetKindThumbnail,
	}

	if err := c.storage.PutObjectBytes(ctx, styledAsset.StorageKey, styled, styledAsset.ContentType); err != nil {
		return nil, &service.TransientProcessingError{Err: fmt.Errorf("upload styled asset: %w", err)}
	}
	if err := c.storage.PutObjectBytes(ctx, thumbAsset.StorageKey, thumbnail, thumbAsset.ContentType); err != nil {
		return nil, &service.TransientProcessingError{Err: fmt.Errorf("upload thumbnail: %w", err)}
	}

	if err := c.assets.CreateBatch(ctx, []entity.Asset{styledAsset, thumbAsset}); err != nil {
		return nil, fmt.Errorf("failed to persist derived assets: %w", err)
	}
	c.publishProgress(ctx, job, 100)

	return []string{styledAsset.ID.String(), thumbAsset.ID.String()}, nil
}

// handleFailure routes a failed execution to either a delayed retry or the
// terminal failed state, depending on the attempt budget.
func (c *StyleJobConsumer) handleFailure(ctx context.Context, job *entity.ProcessingJob, cause error) error {
	if job.Attempts < job.MaxAttempts {
		ok, err := c.jobs.Requeue(ctx, job.ID, job.LeaseToken, cause.Error())
		if err != nil {
			return fmt.Errorf("failed to requeue job %s: %w", job.ID, err)
		}
		if !ok {
			// Lost the lease; the takeover owns the retry schedule now.
			c.logger.WarningWithContextf(ctx, "[Style Worker] Lost lease for job %s before requeue", job.ID)
			return nil
		}

		delay := c.cfg.Worker.BackoffBase * (1 << job.Attempts)
		msg := produce.StyleJobMessage{
			JobID:     job.ID.String(),
			AssetID:   job.AssetID.String(),
			OwnerID:   job.OwnerID.String(),
			ProjectID: job.ProjectID.String(),
			Attempt:   job.Attempts,
		}
		if err := c.retry.PublishStyleJobRetry(ctx, msg, delay); err != nil {
			return fmt.Errorf("failed to publish retry for job %s: %w", job.ID, err)
		}

		c.logger.WarningWithContextf(ctx, "[Style Worker] Job %s attempt %d/%d failed, retrying in %s: %v",
			job.ID, job.Attempts, job.MaxAttempts, delay, cause)
		return nil
	}

	perm := &service.PermanentProcessingError{Attempts: job.Attempts, Err: cause}
	ok, err := c.jobs.MarkFailed(ctx, job.ID, job.LeaseToken, perm.Error())
	if err != nil {
		return fmt.Errorf("failed to mark job %s failed: %w", job.ID, err)
	}
	if !ok {
		c.logger.WarningWithContextf(ctx, "[Style Worker] Lost lease for job %s before failure record", job.ID)
		return nil
	}

	c.publishStatus(ctx, job, entity.JobStatusFailed, perm.Error())
	c.events.Publish(ctx, entity.ProjectTopic(job.ProjectID), entity.NewNotificationEvent(entity.EventError, map[string]any{
		"job_id":  job.ID.String(),
		"status":  string(entity.JobStatusFailed),
		"message": perm.Error(),
	}))

	c.logger.ErrorWithContextf(ctx, cause, "[Style Worker] Job %s failed permanently after %d attempts", job.ID, job.Attempts)
	return nil
}

func (c *StyleJobConsumer) publishStatus(ctx context.Context, job *entity.ProcessingJob, status entity.JobStatus, message string) {
	payload := map[string]any{
		"job_id": job.ID.String(),
		"status": string(status),
	}
	if message != "" {
		payload["message"] = message
	}
	c.events.Publish(ctx, entity.JobTopic(job.ID), entity.NewNotificationEvent(entity.EventJobStatusChange, payload))
}

func (c *StyleJobConsumer) publishProgress(ctx context.Context, job *entity.ProcessingJob, percent int) {
	c.events.Publish(ctx, entity.JobTopic(job.ID), entity.NewNotificationEvent(entity.EventProcessingProgress, map[string]any{
		"job_id":   job.ID.String(),
		"progress": percent,
	}))
}
