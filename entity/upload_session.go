package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// UploadStatus represents the status of an upload session
type UploadStatus string

const (
	UploadStatusPending    UploadStatus = "pending"
	UploadStatusInProgress UploadStatus = "in_progress"
	UploadStatusCompleted  UploadStatus = "completed"
	UploadStatusCancelled  UploadStatus = "cancelled"
	UploadStatusFailed     UploadStatus = "failed"
)

// IsTerminal reports whether no further mutation of the session is accepted.
func (s UploadStatus) IsTerminal() bool {
	return s == UploadStatusCompleted || s == UploadStatusCancelled || s == UploadStatusFailed
}

// UploadSession represents one client file transfer, single-part or multipart.
// The uploaded-part count is always derived by counting UploadPart rows,
// never stored on the session itself.
type UploadSession struct {
	ID              uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	OwnerID         uuid.UUID      `json:"owner_id" gorm:"type:uuid;not null;index"`
	ProjectID       uuid.UUID      `json:"project_id" gorm:"type:uuid;not null;index"`
	FileName        string         `json:"file_name" gorm:"type:varchar(512);not null"`
	FileSize        int64          `json:"file_size" gorm:"not null"`
	ContentType     string         `json:"content_type" gorm:"type:varchar(255)"`
	StorageKey      string         `json:"storage_key" gorm:"type:varchar(1024);not null"`
	StorageUploadID string         `json:"storage_upload_id" gorm:"type:varchar(512)"` // empty for the single-part path
	ChunkSize       int64          `json:"chunk_size" gorm:"not null"`
	TotalParts      int            `json:"total_parts" gorm:"not null"`
	Status          UploadStatus   `json:"status" gorm:"type:varchar(32);not null;default:'pending';index"`
	AssetID         *uuid.UUID     `json:"asset_id,omitempty" gorm:"type:uuid"`
	StyleParams     datatypes.JSON `json:"style_params,omitempty" gorm:"type:jsonb"` // non-nil enqueues a style job on completion
	Intensity       float64        `json:"intensity" gorm:"not null;default:1"`
	CreatedAt       time.Time      `json:"created_at" gorm:"not null;autoCreateTime"`
	UpdatedAt       time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	ExpiresAt       time.Time      `json:"expires_at" gorm:"not null;index"`
}

// UploadPart is one registered chunk of a multipart session. Part numbers are
// 1-based and unique per session; a re-registered part with a new ETag
// supersedes the prior row in place.
type UploadPart struct {
	SessionID  uuid.UUID `json:"session_id" gorm:"type:uuid;primaryKey"`
	PartNumber int       `json:"part_number" gorm:"primaryKey"`
	SizeBytes  int64     `json:"size_bytes" gorm:"not null"`
	ETag       string    `json:"etag" gorm:"type:varchar(255);not null"`
	UploadedAt time.Time `json:"uploaded_at" gorm:"not null;autoCreateTime"`
}

// PartURL pairs a 1-based part number with its presigned upload URL.
type PartURL struct {
	PartNumber int    `json:"part_number"`
	URL        string `json:"url"`
}

// PartETag identifies one finished part for storage finalize.
type PartETag struct {
	PartNumber int    `json:"part_number"`
	ETag       string `json:"etag"`
}

// FinalizedObject is what the storage gateway returns after assembling parts.
type FinalizedObject struct {
	Location string `json:"location"`
	ETag     string `json:"etag"`
	Size     int64  `json:"size"`
}

// SessionDescriptor is returned to the client on session creation and carries
// everything it needs to drive the upload directly against storage.
type SessionDescriptor struct {
	UploadID   uuid.UUID `json:"upload_id"`
	ChunkSize  int64     `json:"chunk_size"`
	TotalParts int       `json:"total_parts"`
	UploadURL  string    `json:"upload_url,omitempty"` // single-part path only
	PartURLs   []PartURL `json:"part_urls,omitempty"`  // multipart path only
	ExpiresAt  time.Time `json:"expires_at"`
}

// ProgressInfo reports upload progress for a session.
type ProgressInfo struct {
	UploadedParts int     `json:"uploaded_parts"`
	TotalParts    int     `json:"total_parts"`
	Percent       float64 `json:"progress"`
}
