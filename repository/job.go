package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mosaiclabs/mosaic-media-service/entity"
	"gorm.io/gorm"
)

type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create creates a new processing job
func (r *JobRepository) Create(ctx context.Context, job *entity.ProcessingJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// FindByID finds a processing job by its ID
func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.ProcessingJob, error) {
	var job entity.ProcessingJob
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// FindByIDAndOwner finds a job owned by the given user.
func (r *JobRepository) FindByIDAndOwner(ctx context.Context, id, ownerID uuid.UUID) (*entity.ProcessingJob, error) {
	var job entity.ProcessingJob
	err := r.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// AcquireLease takes exclusive time-bounded ownership of a job. A fresh
// acquisition (queued job, or processing job whose lease lapsed) bumps the
// fencing token and the attempt counter; a duplicate delivery to the worker
// already holding a live lease only extends it. Returns the job as leased,
// or acquired=false when another worker owns it.
func (r *JobRepository) AcquireLease(ctx context.Context, id uuid.UUID, owner string, ttl time.Duration) (*entity.ProcessingJob, bool, error) {
	now := time.Now()
	expires := now.Add(ttl)

	res := r.db.WithContext(ctx).
		Model(&entity.ProcessingJob{}).
		Where("id = ? AND (status = ? OR (status = ? AND lease_expires_at < ?))",
			id, entity.JobStatusQueued, entity.JobStatusProcessing, now).
		Updates(map[string]interface{}{
			"status":           entity.JobStatusProcessing,
			"attempts":         gorm.Expr("attempts + 1"),
			"lease_owner":      owner,
			"lease_token":      gorm.Expr("lease_token + 1"),
			"lease_expires_at": expires,
			"started_at":       gorm.Expr("COALESCE(started_at, ?)", now),
		})
	if res.Error != nil {
		return nil, false, res.Error
	}

	if res.RowsAffected == 0 {
		// Relock: duplicate delivery to the live lease holder.
		res = r.db.WithContext(ctx).
			Model(&entity.ProcessingJob{}).
			Where("id = ? AND status = ? AND lease_owner = ? AND lease_expires_at >= ?",
				id, entity.JobStatusProcessing, owner, now).
			Update("lease_expires_at", expires)
		if res.Error != nil {
			return nil, false, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, false, nil
		}
	}

	job, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return job, true, nil
}

// MarkCompleted finishes a job. The fencing token guards against a stale
// worker whose lease was taken over.
func (r *JobRepository) MarkCompleted(ctx context.Context, id uuid.UUID, leaseToken int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&entity.ProcessingJob{}).
		Where("id = ? AND status = ? AND lease_token = ?", id, entity.JobStatusProcessing, leaseToken).
		Updates(map[string]interface{}{
			"status":       entity.JobStatusCompleted,
			"completed_at": time.Now(),
			"lease_owner":  "",
		})
	return res.RowsAffected == 1, res.Error
}

// MarkFailed terminates a job after its retry budget is exhausted.
func (r *JobRepository) MarkFailed(ctx context.Context, id uuid.UUID, leaseToken int64, errorMessage string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&entity.ProcessingJob{}).
		Where("id = ? AND status = ? AND lease_token = ?", id, entity.JobStatusProcessing, leaseToken).
		Updates(map[string]interface{}{
			"status":        entity.JobStatusFailed,
			"completed_at":  time.Now(),
			"error_message": errorMessage,
			"lease_owner":   "",
		})
	return res.RowsAffected == 1, res.Error
}

// Requeue releases the lease and puts the job back in queued for a retry.
// The recorded error message keeps the last failure visible while waiting.
func (r *JobRepository) Requeue(ctx context.Context, id uuid.UUID, leaseToken int64, errorMessage string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&entity.ProcessingJob{}).
		Where("id = ? AND status = ? AND lease_token = ?", id, entity.JobStatusProcessing, leaseToken).
		Updates(map[string]interface{}{
			"status":        entity.JobStatusQueued,
			"error_message": errorMessage,
			"lease_owner":   "",
		})
	return res.RowsAffected == 1, res.Error
}
