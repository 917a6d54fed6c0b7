package dto

import "encoding/json"

// InitUploadRequest initializes an upload session. StyleParams, when set,
// queues a style-transformation job automatically once the upload completes.
type InitUploadRequest struct {
	FileName    string          `json:"file_name" binding:"required"`
	FileSize    int64           `json:"file_size" binding:"required,gt=0"`
	ContentType string          `json:"content_type"`
	ProjectID   string          `json:"project_id" binding:"required,uuid"`
	StyleParams json.RawMessage `json:"style_params,omitempty"`
	Intensity   float64         `json:"intensity,omitempty"`
}

// Upload action names accepted by the multi-action endpoint.
const (
	UploadActionRegister = "register"
	UploadActionComplete = "complete"
	UploadActionProgress = "progress"
	UploadActionAbort    = "abort"
)

// UploadActionRequest is the multi-action envelope for a live session:
// register a part, complete, query progress or abort. Part fields are only
// read for the register action. Clients may resend the file metadata
// (project_id, file_name, file_size, content_type) with the complete action;
// those fields are ignored here since init captured them on the session.
type UploadActionRequest struct {
	Action     string `json:"action" binding:"required,oneof=register complete progress abort"`
	UploadID   string `json:"upload_id" binding:"required,uuid"`
	PartNumber int    `json:"part_number,omitempty"`
	ETag       string `json:"etag,omitempty"`
	SizeBytes  int64  `json:"size_bytes,omitempty"`
}

// RegisterPartResponse reports derived progress after a part registration.
type RegisterPartResponse struct {
	Success       bool    `json:"success"`
	UploadedParts int     `json:"uploaded_parts"`
	TotalParts    int     `json:"total_parts"`
	Progress      float64 `json:"progress"`
}

// CompleteUploadResponse carries the created (or previously created) asset.
type CompleteUploadResponse struct {
	Success bool        `json:"success"`
	AssetID string      `json:"asset_id"`
	Asset   interface{} `json:"asset"`
}

// AbortUploadResponse acknowledges a cancellation.
type AbortUploadResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
}

// UploadProgressResponse is the progress poll answer.
type UploadProgressResponse struct {
	UploadID      string  `json:"upload_id"`
	UploadedParts int     `json:"uploaded_parts"`
	TotalParts    int     `json:"total_parts"`
	Progress      float64 `json:"progress"`
}

// DownloadURLResponse carries a presigned, short-lived download URL.
type DownloadURLResponse struct {
	AssetID   string `json:"asset_id"`
	URL       string `json:"url"`
	ExpiresIn string `json:"expires_in"`
}

// StreamRoomRequest mutates the room set of a live event stream.
type StreamRoomRequest struct {
	Action string `json:"action" binding:"required,oneof=join-room leave-room subscribe-job unsubscribe-job"`
	Topic  string `json:"topic" binding:"required"`
}
