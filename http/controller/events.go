package controller

import (
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mosaiclabs/mosaic-media-service/entity"
	"github.com/mosaiclabs/mosaic-media-service/http/controller/dto"
	"github.com/mosaiclabs/mosaic-media-service/utils"
)

// StreamEvents opens a server-sent-events stream over the rooms the caller
// asked for. The first event names the stream so the client can mutate its
// room set later; delivery is at-most-once and reconnecting clients re-fetch
// state over the regular API.
func (ctrl *Controller) StreamEvents(c *gin.Context) {
	ctx := c.Request.Context()

	ownerID, err := utils.GetUserIDFromContext(c)
	if err != nil {
		utils.JSON401(c, "Unauthorized: user_id not found")
		return
	}

	var topics []string
	for _, topic := range strings.Split(c.Query("rooms"), ",") {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			continue
		}
		if !ctrl.authorizeTopic(c, topic, ownerID) {
			utils.JSON403(c, "Not allowed to join room "+topic)
			return
		}
		topics = append(topics, topic)
	}
	if len(topics) == 0 {
		topics = []string{entity.UserTopic(ownerID)}
	}

	sub := ctrl.Hub.Subscribe(ownerID, topics...)
	defer ctrl.Hub.Unsubscribe(sub)

	ctrl.Infra.Logger.InfoWithContextf(ctx, "[Events] Stream %s opened by user %s on %d rooms", sub.ID, ownerID, len(topics))

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	c.SSEvent("stream-open", gin.H{"stream_id": sub.ID.String()})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case topicEvent, ok := <-sub.Events():
			if !ok {
				return false
			}
			c.SSEvent(topicEvent.Event.Type, gin.H{
				"topic":     topicEvent.Topic,
				"timestamp": topicEvent.Event.Timestamp,
				"payload":   topicEvent.Event.Payload,
			})
			return true
		}
	})
}

// UpdateStreamRooms mutates the room set of a live stream: join-room,
// leave-room, subscribe-job and unsubscribe-job.
func (ctrl *Controller) UpdateStreamRooms(c *gin.Context) {
	ctx := c.Request.Context()

	ownerID, err := utils.GetUserIDFromContext(c)
	if err != nil {
		utils.JSON401(c, "Unauthorized: user_id not found")
		return
	}

	streamID, err := uuid.Parse(c.Param("stream_id"))
	if err != nil {
		utils.JSON400(c, "Invalid stream_id format")
		return
	}

	var req dto.StreamRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSON400(c, "Invalid request payload")
		return
	}

	sub, ok := ctrl.Hub.Get(streamID)
	if !ok {
		utils.JSON404(c, "Stream not found")
		return
	}
	if sub.OwnerID != ownerID {
		utils.JSON403(c, "Not your stream")
		return
	}

	switch req.Action {
	case "join-room", "subscribe-job":
		if !ctrl.authorizeTopic(c, req.Topic, ownerID) {
			utils.JSON403(c, "Not allowed to join room "+req.Topic)
			return
		}
		ctrl.Hub.Join(sub, req.Topic)
	case "leave-room", "unsubscribe-job":
		ctrl.Hub.Leave(sub, req.Topic)
	}

	ctrl.Infra.Logger.InfoWithContextf(ctx, "[Events] Stream %s: %s %s", streamID, req.Action, req.Topic)
	utils.JSON200(c, gin.H{"stream_id": streamID.String(), "action": req.Action, "topic": req.Topic})
}

// authorizeTopic decides whether a user may observe a room. Users see their
// own user room, any project room, and rooms of jobs they own. Project
// membership lives upstream of this service, so project rooms are open to
// any authenticated user.
func (ctrl *Controller) authorizeTopic(c *gin.Context, topic string, ownerID uuid.UUID) bool {
	switch {
	case strings.HasPrefix(topic, "user:"):
		return topic == entity.UserTopic(ownerID)
	case strings.HasPrefix(topic, "project:"):
		_, err := uuid.Parse(strings.TrimPrefix(topic, "project:"))
		return err == nil
	case strings.HasPrefix(topic, "job:"):
		jobID, err := uuid.Parse(strings.TrimPrefix(topic, "job:"))
		if err != nil {
			return false
		}
		_, err = ctrl.Repository.JobRepo.FindByIDAndOwner(c.Request.Context(), jobID, ownerID)
		return err == nil
	default:
		return false
	}
}
