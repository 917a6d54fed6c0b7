package entity

import (
	"time"

	"github.com/google/uuid"
)

// AssetKind distinguishes originals from worker-produced derivatives.
type AssetKind string

const (
	AssetKindOriginal  AssetKind = "original"
	AssetKindStyled    AssetKind = "styled"
	AssetKindThumbnail AssetKind = "thumbnail"
)

// Asset is a stored binary. Assets are never mutated, only superseded by new
// rows; derived assets carry the producing job's ID.
type Asset struct {
	ID          uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	OwnerID     uuid.UUID  `json:"owner_id" gorm:"type:uuid;not null;index"`
	ProjectID   uuid.UUID  `json:"project_id" gorm:"type:uuid;not null;index"`
	JobID       *uuid.UUID `json:"job_id,omitempty" gorm:"type:uuid;index"`
	StorageKey  string     `json:"storage_key" gorm:"type:varchar(1024);not null"`
	ContentType string     `json:"content_type" gorm:"type:varchar(255)"`
	SizeBytes   int64      `json:"size_bytes" gorm:"not null"`
	Kind        AssetKind  `json:"kind" gorm:"type:varchar(32);not null;index"`
	CreatedAt   time.Time  `json:"created_at" gorm:"not null;autoCreateTime"`
}
