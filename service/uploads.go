package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/mosaiclabs/mosaic-media-service/config"
	"github.com/mosaiclabs/mosaic-media-service/entity"
	"github.com/mosaiclabs/mosaic-media-service/infra"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SessionStore is the ledger surface the coordinator needs. Implemented by
// repository.UploadSessionRepository.
type SessionStore interface {
	Create(ctx context.Context, session *entity.UploadSession) error
	FindByIDAndOwner(ctx context.Context, id, ownerID uuid.UUID) (*entity.UploadSession, error)
	RegisterPart(ctx context.Context, part *entity.UploadPart) error
	CountParts(ctx context.Context, sessionID uuid.UUID) (int64, error)
	ListPartsOrdered(ctx context.Context, sessionID uuid.UUID) ([]entity.UploadPart, error)
	MarkInProgress(ctx context.Context, id uuid.UUID) error
	FinalizeCompletion(ctx context.Context, sessionID uuid.UUID, asset *entity.Asset) (bool, error)
	MarkCancelled(ctx context.Context, id uuid.UUID) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID) (bool, error)
}

// AssetStore is the asset lookup surface. Implemented by
// repository.AssetRepository.
type AssetStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Asset, error)
}

// StorageGateway is the object-store façade. Implemented by
// infra.MinioClient.
type StorageGateway interface {
	GenerateUploadURL(ctx context.Context, key, contentType string, expires time.Duration) (string, error)
	CreateMultipartUpload(ctx context.Context, key, contentType string) (string, error)
	GeneratePartURLs(ctx context.Context, key, uploadID string, partCount int, expires time.Duration) ([]entity.PartURL, error)
	CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []entity.PartETag) (entity.FinalizedObject, error)
	AbortMultipartUpload(ctx context.Context, key, uploadID string) error
	GenerateDownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// EventPublisher fans a state change out to live subscribers. Publishing is
// fire-and-forget; the implementation logs its own failures.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event entity.NotificationEvent)
}

// ProgressCache shaves repeated progress polls off the ledger. Implemented
// by infra.RedisClient; may be nil.
type ProgressCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Increment(ctx context.Context, key string) (int64, error)
}

const (
	progressCacheTTL = 2 * time.Second

	// finalizeAttempts bounds the in-call retry of the storage finalize.
	finalizeAttempts = 3
)

// CreateSessionInput is what the client supplies on upload initiation.
type CreateSessionInput struct {
	ProjectID   uuid.UUID
	FileName    string
	FileSize    int64
	ContentType string
	StyleParams datatypes.JSON
	Intensity   float64
}

// UploadSessionService owns the multipart-upload state machine:
// pending -> in_progress -> {completed | cancelled}, with failed reserved
// for an unrecoverable storage error during completion.
type UploadSessionService struct {
	sessions SessionStore
	assets   AssetStore
	jobs     *JobService
	gateway  StorageGateway
	events   EventPublisher
	cache    ProgressCache
	logger   *infra.LoggerClient
	cfg      *config.EnvConfig
}

func NewUploadSessionService(
	sessions SessionStore,
	assets AssetStore,
	jobs *JobService,
	gateway StorageGateway,
	events EventPublisher,
	cache ProgressCache,
	logger *infra.LoggerClient,
	cfg *config.EnvConfig,
) *UploadSessionService {
	return &UploadSessionService{
		sessions: sessions,
		assets:   assets,
		jobs:     jobs,
		gateway:  gateway,
		events:   events,
		cache:    cache,
		logger:   logger,
		cfg:      cfg,
	}
}

// CreateSession chooses the single-part or multipart strategy by file size
// and persists a new pending session. Single-part sessions have TotalParts 0
// and no storage upload ID: the client PUTs the whole object through one
// presigned URL and calls complete without registering parts.
func (s *UploadSessionService) CreateSession(ctx context.Context, ownerID uuid.UUID, in CreateSessionInput) (*entity.SessionDescriptor, error) {
	if in.FileName == "" {
		return nil, &ValidationError{Field: "filename", Reason: "must not be empty"}
	}
	if in.FileSize < 1 {
		return nil, &ValidationError{Field: "file_size", Reason: "must be at least 1 byte"}
	}
	contentType := in.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	intensity := in.Intensity
	if intensity == 0 {
		intensity = 1
	}

	uploadID := uuid.New()
	storageKey := fmt.Sprintf("uploads/%s/%s/%s", ownerID, uploadID, in.FileName)
	expiresAt := time.Now().Add(s.cfg.Upload.SessionTTL)

	session := &entity.UploadSession{
		ID:          uploadID,
		OwnerID:     ownerID,
		ProjectID:   in.ProjectID,
		FileName:    in.FileName,
		FileSize:    in.FileSize,
		ContentType: contentType,
		StorageKey:  storageKey,
		Status:      entity.UploadStatusPending,
		StyleParams: in.StyleParams,
		Intensity:   intensity,
		ExpiresAt:   expiresAt,
	}

	descriptor := &entity.SessionDescriptor{
		UploadID:  uploadID,
		ExpiresAt: expiresAt,
	}

	if in.FileSize <= s.cfg.Upload.SinglePartThreshold {
		uploadURL, err := s.gateway.GenerateUploadURL(ctx, storageKey, contentType, s.cfg.Upload.URLTTL)
		if err != nil {
			return nil, &StorageError{Op: "presign upload", Retryable: true, Err: err}
		}
		session.ChunkSize = in.FileSize
		session.TotalParts = 0
		descriptor.ChunkSize = in.FileSize
		descriptor.UploadURL = uploadURL
	} else {
		chunkSize := s.cfg.Upload.ChunkSize
		totalParts := int((in.FileSize + chunkSize - 1) / chunkSize)

		storageUploadID, err := s.gateway.CreateMultipartUpload(ctx, storageKey, contentType)
		if err != nil {
			return nil, &StorageError{Op: "create multipart upload", Retryable: true, Err: err}
		}
		partURLs, err := s.gateway.GeneratePartURLs(ctx, storageKey, storageUploadID, totalParts, s.cfg.Upload.URLTTL)
		if err != nil {
			return nil, &StorageError{Op: "presign part URLs", Retryable: true, Err: err}
		}

		session.StorageUploadID = storageUploadID
		session.ChunkSize = chunkSize
		session.TotalParts = totalParts
		descriptor.ChunkSize = chunkSize
		descriptor.TotalParts = totalParts
		descriptor.PartURLs = partURLs
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to persist upload session: %w", err)
	}

	s.logger.InfoWithContextf(ctx, "[Upload] Created session %s for file '%s' (%d bytes, %d parts)",
		uploadID, in.FileName, in.FileSize, session.TotalParts)

	return descriptor, nil
}

// RegisterPart records one uploaded chunk. Idempotent: re-registering the
// same part number with the same ETag changes nothing, and a new ETag for
// the same number supersedes the prior row. The returned count is derived
// from committed part rows, so concurrent registrations never double-count.
func (s *UploadSessionService) RegisterPart(ctx context.Context, sessionID, ownerID uuid.UUID, partNumber int, etag string, sizeBytes int64) (*entity.ProgressInfo, error) {
	if partNumber < 1 {
		return nil, &ValidationError{Field: "part_number", Reason: "must be at least 1"}
	}
	if etag == "" {
		return nil, &ValidationError{Field: "etag", Reason: "must not be empty"}
	}
	if sizeBytes < 1 {
		return nil, &ValidationError{Field: "size_bytes", Reason: "must be at least 1 byte"}
	}

	session, err := s.findSession(ctx, sessionID, ownerID)
	if err != nil {
		return nil, err
	}
	if session.Status.IsTerminal() {
		return nil, &ConflictError{Reason: fmt.Sprintf("upload session is %s", session.Status)}
	}
	if partNumber > session.TotalParts {
		return nil, &ValidationError{
			Field:  "part_number",
			Reason: fmt.Sprintf("must be between 1 and %d", session.TotalParts),
		}
	}

	part := &entity.UploadPart{
		SessionID:  sessionID,
		PartNumber: partNumber,
		SizeBytes:  sizeBytes,
		ETag:       etag,
		UploadedAt: time.Now(),
	}
	if err := s.sessions.RegisterPart(ctx, part); err != nil {
		return nil, fmt.Errorf("failed to register part %d: %w", partNumber, err)
	}
	if err := s.sessions.MarkInProgress(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("failed to advance session status: %w", err)
	}

	progress, err := s.progressOf(ctx, session)
	if err != nil {
		return nil, err
	}

	s.invalidateProgressCache(ctx, sessionID)
	s.events.Publish(ctx, entity.ProjectTopic(session.ProjectID), entity.NewNotificationEvent(entity.EventProjectUpdate, map[string]any{
		"upload_id":      sessionID.String(),
		"status":         string(entity.UploadStatusInProgress),
		"uploaded_parts": progress.UploadedParts,
		"total_parts":    progress.TotalParts,
		"progress":       progress.Percent,
	}))

	return progress, nil
}

// Complete finalizes the object in storage and creates the original asset.
// Exactly-once: a session already completed returns the previously created
// asset without touching storage, and a storage failure leaves the session
// in_progress so the client can retry completion.
func (s *UploadSessionService) Complete(ctx context.Context, sessionID, ownerID uuid.UUID) (*entity.Asset, error) {
	session, err := s.findSession(ctx, sessionID, ownerID)
	if err != nil {
		return nil, err
	}

	switch session.Status {
	case entity.UploadStatusCompleted:
		return s.completedAsset(ctx, session)
	case entity.UploadStatusCancelled, entity.UploadStatusFailed:
		return nil, &ConflictError{Reason: fmt.Sprintf("upload session is %s", session.Status)}
	}

	count, err := s.sessions.CountParts(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to count parts: %w", err)
	}
	if session.TotalParts > 0 && count != int64(session.TotalParts) {
		return nil, &ConflictError{
			Reason:        "upload is incomplete",
			UploadedParts: int(count),
			TotalParts:    session.TotalParts,
		}
	}

	assetSize := session.FileSize
	if session.StorageUploadID != "" {
		parts, err := s.sessions.ListPartsOrdered(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to list parts: %w", err)
		}

		etags := make([]entity.PartETag, 0, len(parts))
		var totalBytes int64
		for _, p := range parts {
			etags = append(etags, entity.PartETag{PartNumber: p.PartNumber, ETag: p.ETag})
			totalBytes += p.SizeBytes
		}

		if err := s.finalizeInStorage(ctx, session, etags); err != nil {
			return nil, err
		}
		assetSize = totalBytes
	}

	asset := &entity.Asset{
		ID:          uuid.New(),
		OwnerID:     session.OwnerID,
		ProjectID:   session.ProjectID,
		StorageKey:  session.StorageKey,
		ContentType: session.ContentType,
		SizeBytes:   assetSize,
		Kind:        entity.AssetKindOriginal,
	}

	created, err := s.sessions.FinalizeCompletion(ctx, sessionID, asset)
	if err != nil {
		return nil, fmt.Errorf("failed to finalize session: %w", err)
	}
	if !created {
		// Lost the completion race; hand back the winner's asset.
		session, err = s.findSession(ctx, sessionID, ownerID)
		if err != nil {
			return nil, err
		}
		if session.Status == entity.UploadStatusCompleted {
			return s.completedAsset(ctx, session)
		}
		return nil, &ConflictError{Reason: fmt.Sprintf("upload session is %s", session.Status)}
	}

	s.invalidateProgressCache(ctx, sessionID)
	s.countUsage(ctx, fmt.Sprintf("usage:uploads:%s", session.OwnerID))

	s.events.Publish(ctx, entity.ProjectTopic(session.ProjectID), entity.NewNotificationEvent(entity.EventProjectUpdate, map[string]any{
		"upload_id": sessionID.String(),
		"asset_id":  asset.ID.String(),
		"status":    string(entity.UploadStatusCompleted),
	}))
	s.events.Publish(ctx, entity.UserTopic(session.OwnerID), entity.NewNotificationEvent(entity.EventProjectUpdate, map[string]any{
		"upload_id": sessionID.String(),
		"asset_id":  asset.ID.String(),
		"status":    string(entity.UploadStatusCompleted),
	}))

	if len(session.StyleParams) > 0 && s.jobs != nil {
		if _, err := s.jobs.Enqueue(ctx, asset, session.StyleParams, session.Intensity); err != nil {
			// The asset exists; the client can re-request processing.
			s.logger.ErrorWithContextf(ctx, err, "[Upload] Failed to enqueue style job for asset %s", asset.ID)
		}
	}

	s.logger.InfoWithContextf(ctx, "[Upload] Completed session %s, asset %s (%d bytes)", sessionID, asset.ID, assetSize)
	return asset, nil
}

// Abort marks the session cancelled. The storage abort is best-effort: the
// cancellation is recorded regardless of the store's answer. Aborting an
// already-cancelled session is a no-op.
func (s *UploadSessionService) Abort(ctx context.Context, sessionID, ownerID uuid.UUID) error {
	session, err := s.findSession(ctx, sessionID, ownerID)
	if err != nil {
		return err
	}

	switch session.Status {
	case entity.UploadStatusCancelled:
		return nil
	case entity.UploadStatusCompleted, entity.UploadStatusFailed:
		return &ConflictError{Reason: fmt.Sprintf("upload session is %s", session.Status)}
	}

	if session.StorageUploadID != "" {
		if err := s.gateway.AbortMultipartUpload(ctx, session.StorageKey, session.StorageUploadID); err != nil {
			s.logger.WarningWithContextf(ctx, "[Upload] Best-effort storage abort failed for session %s: %v", sessionID, err)
		}
	}

	if _, err := s.sessions.MarkCancelled(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to cancel session: %w", err)
	}

	s.invalidateProgressCache(ctx, sessionID)
	s.events.Publish(ctx, entity.ProjectTopic(session.ProjectID), entity.NewNotificationEvent(entity.EventProjectUpdate, map[string]any{
		"upload_id": sessionID.String(),
		"status":    string(entity.UploadStatusCancelled),
	}))

	s.logger.InfoWithContextf(ctx, "[Upload] Cancelled session %s", sessionID)
	return nil
}

// GetProgress returns the current part count and percentage for a session.
// The ownership lookup always runs; the cache only shaves the part count off
// repeated polls.
func (s *UploadSessionService) GetProgress(ctx context.Context, sessionID, ownerID uuid.UUID) (*entity.ProgressInfo, error) {
	session, err := s.findSession(ctx, sessionID, ownerID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		var cached entity.ProgressInfo
		if err := s.cache.Get(ctx, progressCacheKey(sessionID), &cached); err == nil {
			return &cached, nil
		}
	}

	progress, err := s.progressOf(ctx, session)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, progressCacheKey(sessionID), progress, progressCacheTTL); err != nil {
			s.logger.WarningWithContextf(ctx, "[Upload] Failed to cache progress for session %s: %v", sessionID, err)
		}
	}
	return progress, nil
}

// DownloadURL returns a presigned download URL for an owned asset.
func (s *UploadSessionService) DownloadURL(ctx context.Context, asset *entity.Asset) (string, error) {
	url, err := s.gateway.GenerateDownloadURL(ctx, asset.StorageKey, s.cfg.Upload.DownloadURLTTL)
	if err != nil {
		return "", &StorageError{Op: "presign download", Retryable: true, Err: err}
	}
	return url, nil
}

// finalizeInStorage drives the store's multipart complete, retrying
// transient errors up to finalizeAttempts within the call. A transient
// exhaustion leaves the session in_progress so the client may call complete
// again; a finalize the store can never satisfy moves the session to failed.
func (s *UploadSessionService) finalizeInStorage(ctx context.Context, session *entity.UploadSession, etags []entity.PartETag) error {
	var lastErr error
	for attempt := 1; attempt <= finalizeAttempts; attempt++ {
		_, err := s.gateway.CompleteMultipartUpload(ctx, session.StorageKey, session.StorageUploadID, etags)
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, infra.ErrMultipartUploadGone) {
			s.logger.ErrorWithContextf(ctx, err, "[Upload] Storage finalize unrecoverable for session %s", session.ID)
			if _, markErr := s.sessions.MarkFailed(ctx, session.ID); markErr != nil {
				s.logger.ErrorWithContextf(ctx, markErr, "[Upload] Failed to record failure for session %s", session.ID)
			}
			s.invalidateProgressCache(ctx, session.ID)
			s.events.Publish(ctx, entity.ProjectTopic(session.ProjectID), entity.NewNotificationEvent(entity.EventError, map[string]any{
				"upload_id": session.ID.String(),
				"status":    string(entity.UploadStatusFailed),
				"message":   "storage finalize failed",
			}))
			return &StorageError{Op: "complete multipart upload", Retryable: false, Err: err}
		}

		s.logger.WarningWithContextf(ctx, "[Upload] Storage finalize attempt %d/%d failed for session %s: %v",
			attempt, finalizeAttempts, session.ID, err)
	}

	// The session stays in_progress; the client may retry completion.
	s.logger.ErrorWithContextf(ctx, lastErr, "[Upload] Storage finalize failed for session %s", session.ID)
	return &StorageError{Op: "complete multipart upload", Retryable: true, Err: lastErr}
}

func (s *UploadSessionService) findSession(ctx context.Context, sessionID, ownerID uuid.UUID) (*entity.UploadSession, error) {
	session, err := s.sessions.FindByIDAndOwner(ctx, sessionID, ownerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "upload session", ID: sessionID}
		}
		return nil, fmt.Errorf("failed to load upload session: %w", err)
	}
	return session, nil
}

func (s *UploadSessionService) completedAsset(ctx context.Context, session *entity.UploadSession) (*entity.Asset, error) {
	if session.AssetID == nil {
		return nil, fmt.Errorf("completed session %s has no asset reference", session.ID)
	}
	asset, err := s.assets.FindByID(ctx, *session.AssetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load asset for completed session %s: %w", session.ID, err)
	}
	return asset, nil
}

func (s *UploadSessionService) progressOf(ctx context.Context, session *entity.UploadSession) (*entity.ProgressInfo, error) {
	count, err := s.sessions.CountParts(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count parts: %w", err)
	}

	percent := 0.0
	switch {
	case session.TotalParts > 0:
		percent = math.Round(float64(count)/float64(session.TotalParts)*10000) / 100
	case session.Status == entity.UploadStatusCompleted:
		percent = 100
	}

	return &entity.ProgressInfo{
		UploadedParts: int(count),
		TotalParts:    session.TotalParts,
		Percent:       percent,
	}, nil
}

func (s *UploadSessionService) invalidateProgressCache(ctx context.Context, sessionID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, progressCacheKey(sessionID)); err != nil {
		s.logger.WarningWithContextf(ctx, "[Upload] Failed to invalidate progress cache for session %s: %v", sessionID, err)
	}
}

// countUsage bumps a usage counter. Accounting failures never block the
// primary operation.
func (s *UploadSessionService) countUsage(ctx context.Context, key string) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.Increment(ctx, key); err != nil {
		s.logger.WarningWithContextf(ctx, "[Upload] Failed to record usage for %s: %v", key, err)
	}
}

func progressCacheKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("upload:progress:%s", sessionID)
}
