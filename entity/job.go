package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// JobStatus represents the status of a processing job
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether the job accepts no further mutation.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ProcessingJob is one asynchronous style-transformation request. Only the
// worker holding the current lease mutates a job; LeaseToken is a fencing
// token incremented on every fresh lease acquisition so a stale worker's
// writes are rejected.
type ProcessingJob struct {
	ID             uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	AssetID        uuid.UUID      `json:"asset_id" gorm:"type:uuid;not null;index"`
	OwnerID        uuid.UUID      `json:"owner_id" gorm:"type:uuid;not null;index"`
	ProjectID      uuid.UUID      `json:"project_id" gorm:"type:uuid;not null;index"`
	StyleParams    datatypes.JSON `json:"style_params" gorm:"type:jsonb"`
	Intensity      float64        `json:"intensity" gorm:"not null;default:1"`
	Status         JobStatus      `json:"status" gorm:"type:varchar(32);not null;default:'queued';index"`
	Attempts       int            `json:"attempts" gorm:"not null;default:0"`
	MaxAttempts    int            `json:"max_attempts" gorm:"not null;default:3"`
	LeaseOwner     string         `json:"-" gorm:"type:varchar(255)"`
	LeaseToken     int64          `json:"-" gorm:"not null;default:0"`
	LeaseExpiresAt *time.Time     `json:"-"`
	ErrorMessage   string         `json:"error_message,omitempty" gorm:"type:text"`
	CreatedAt      time.Time      `json:"created_at" gorm:"not null;autoCreateTime"`
	UpdatedAt      time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}
