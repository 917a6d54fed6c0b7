package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event names emitted to live subscribers. Clients switch on these to drive
// per-project and per-job UIs.
const (
	EventProjectUpdate      = "project-update"
	EventJobStatusChange    = "job-status-change"
	EventProcessingProgress = "processing-progress"
	EventError              = "error"
)

// NotificationEvent is an ephemeral state-change message. Events are never
// persisted and are delivered at most once per live subscriber; a client that
// reconnects must re-fetch authoritative state over HTTP.
type NotificationEvent struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

// NewNotificationEvent stamps the event at construction time so per-publisher
// ordering is visible to subscribers.
func NewNotificationEvent(eventType string, payload map[string]any) NotificationEvent {
	return NotificationEvent{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// Topic builders. Fan-out rooms are keyed by user, project or job.

func UserTopic(userID uuid.UUID) string {
	return fmt.Sprintf("user:%s", userID)
}

func ProjectTopic(projectID uuid.UUID) string {
	return fmt.Sprintf("project:%s", projectID)
}

func JobTopic(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s", jobID)
}
