package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mosaiclabs/mosaic-media-service/config"
	"github.com/mosaiclabs/mosaic-media-service/entity"
	"github.com/mosaiclabs/mosaic-media-service/infra"
)

// SweepStore is the session surface the sweeper needs. Implemented by
// repository.UploadSessionRepository.
type SweepStore interface {
	FindStale(ctx context.Context, now time.Time) ([]entity.UploadSession, error)
	MarkCancelled(ctx context.Context, id uuid.UUID) (bool, error)
}

// Aborter discards a stale session's uploaded parts. Implemented by
// infra.MinioClient.
type Aborter interface {
	AbortMultipartUpload(ctx context.Context, key, uploadID string) error
}

// SessionSweeper reaps upload sessions stuck non-terminal past their TTL
// with no part activity. The storage abort is best-effort; the cancellation
// is always recorded.
type SessionSweeper struct {
	sessions SweepStore
	storage  Aborter
	events   EventPublisher
	logger   *infra.LoggerClient
	cfg      *config.EnvConfig
}

func NewSessionSweeper(sessions SweepStore, storage Aborter, events EventPublisher, logger *infra.LoggerClient, cfg *config.EnvConfig) *SessionSweeper {
	return &SessionSweeper{
		sessions: sessions,
		storage:  storage,
		events:   events,
		logger:   logger,
		cfg:      cfg,
	}
}

// Run blocks until the context is cancelled, sweeping on a fixed interval.
func (s *SessionSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Worker.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep cancels every expired non-terminal session.
func (s *SessionSweeper) Sweep(ctx context.Context) {
	stale, err := s.sessions.FindStale(ctx, time.Now())
	if err != nil {
		s.logger.ErrorWithContextf(ctx, err, "[Sweeper] Failed to list stale sessions")
		return
	}

	for _, session := range stale {
		if session.StorageUploadID != "" {
			if err := s.storage.AbortMultipartUpload(ctx, session.StorageKey, session.StorageUploadID); err != nil {
				s.logger.WarningWithContextf(ctx, "[Sweeper] Best-effort storage abort failed for session %s: %v", session.ID, err)
			}
		}

		cancelled, err := s.sessions.MarkCancelled(ctx, session.ID)
		if err != nil {
			s.logger.ErrorWithContextf(ctx, err, "[Sweeper] Failed to cancel stale session %s", session.ID)
			continue
		}
		if !cancelled {
			continue
		}

		s.events.Publish(ctx, entity.ProjectTopic(session.ProjectID), entity.NewNotificationEvent(entity.EventProjectUpdate, map[string]any{
			"upload_id": session.ID.String(),
			"status":    string(entity.UploadStatusCancelled),
			"reason":    "expired",
		}))
		s.logger.InfoWithContextf(ctx, "[Sweeper] Cancelled expired session %s", session.ID)
	}
}
