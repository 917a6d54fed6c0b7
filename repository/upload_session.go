package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mosaiclabs/mosaic-media-service/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UploadSessionRepository struct {
	db *gorm.DB
}

func NewUploadSessionRepository(db *gorm.DB) *UploadSessionRepository {
	return &UploadSessionRepository{db: db}
}

// Create creates a new upload session
func (r *UploadSessionRepository) Create(ctx context.Context, session *entity.UploadSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

// FindByIDAndOwner finds an upload session owned by the given user.
func (r *UploadSessionRepository) FindByIDAndOwner(ctx context.Context, id, ownerID uuid.UUID) (*entity.UploadSession, error) {
	var session entity.UploadSession
	err := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// RegisterPart inserts a part row, or supersedes the existing row for the
// same part number. The upsert makes re-registration idempotent: the derived
// part count only ever reflects distinct part numbers.
func (r *UploadSessionRepository) RegisterPart(ctx context.Context, part *entity.UploadPart) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}, {Name: "part_number"}},
			DoUpdates: clause.AssignmentColumns([]string{"size_bytes", "etag", "uploaded_at"}),
		}).
		Create(part).Error
}

// CountParts counts committed part rows for a session. This is the only
// uploaded-part counter; there is no stored field to race on.
func (r *UploadSessionRepository) CountParts(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.UploadPart{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	return count, err
}

// ListPartsOrdered returns all parts sorted by part number, ready for
// storage finalize.
func (r *UploadSessionRepository) ListPartsOrdered(ctx context.Context, sessionID uuid.UUID) ([]entity.UploadPart, error) {
	var parts []entity.UploadPart
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("part_number ASC").
		Find(&parts).Error
	return parts, err
}

// MarkInProgress moves a pending session to in_progress. No-op when the
// session already advanced.
func (r *UploadSessionRepository) MarkInProgress(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&entity.UploadSession{}).
		Where("id = ? AND status = ?", id, entity.UploadStatusPending).
		Update("status", entity.UploadStatusInProgress).Error
}

// FinalizeCompletion transitions the session to completed and creates the
// original asset row in one transaction. The conditional status update is
// the exactly-once guard: a concurrent completion loses the race, gets
// created=false and must return the winner's asset instead. The part count
// is re-verified inside the transaction so it is consistent with the
// committed part rows.
func (r *UploadSessionRepository) FinalizeCompletion(ctx context.Context, sessionID uuid.UUID, asset *entity.Asset) (bool, error) {
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session entity.UploadSession
		if err := tx.Set("gorm:query_option", "FOR UPDATE").
			Where("id = ?", sessionID).
			First(&session).Error; err != nil {
			return err
		}

		if session.Status.IsTerminal() {
			return nil
		}

		var count int64
		if err := tx.Model(&entity.UploadPart{}).
			Where("session_id = ?", sessionID).
			Count(&count).Error; err != nil {
			return err
		}
		if session.TotalParts > 0 && count != int64(session.TotalParts) {
			return fmt.Errorf("part count changed during completion: have %d, want %d", count, session.TotalParts)
		}

		if err := tx.Create(asset).Error; err != nil {
			return err
		}

		now := time.Now()
		res := tx.Model(&entity.UploadSession{}).
			Where("id = ? AND status IN ?", sessionID,
				[]entity.UploadStatus{entity.UploadStatusPending, entity.UploadStatusInProgress}).
			Updates(map[string]interface{}{
				"status":       entity.UploadStatusCompleted,
				"asset_id":     asset.ID,
				"completed_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected == 1
		return nil
	})
	return created, err
}

// MarkCancelled moves a non-terminal session to cancelled. Returns false
// when the session was already terminal.
func (r *UploadSessionRepository) MarkCancelled(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&entity.UploadSession{}).
		Where("id = ? AND status IN ?", id,
			[]entity.UploadStatus{entity.UploadStatusPending, entity.UploadStatusInProgress}).
		Update("status", entity.UploadStatusCancelled)
	return res.RowsAffected == 1, res.Error
}

// MarkFailed records an unrecoverable storage failure during completion.
func (r *UploadSessionRepository) MarkFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&entity.UploadSession{}).
		Where("id = ? AND status IN ?", id,
			[]entity.UploadStatus{entity.UploadStatusPending, entity.UploadStatusInProgress}).
		Update("status", entity.UploadStatusFailed)
	return res.RowsAffected == 1, res.Error
}

// FindStale returns non-terminal sessions whose TTL elapsed with no part
// activity, for the background sweeper to abort.
func (r *UploadSessionRepository) FindStale(ctx context.Context, now time.Time) ([]entity.UploadSession, error) {
	var sessions []entity.UploadSession
	err := r.db.WithContext(ctx).
		Where("expires_at < ? AND status IN ?", now,
			[]entity.UploadStatus{entity.UploadStatusPending, entity.UploadStatusInProgress}).
		Find(&sessions).Error
	return sessions, err
}
