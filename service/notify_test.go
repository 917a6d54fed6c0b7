package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/mosaiclabs/mosaic-media-service/entity"
	"github.com/mosaiclabs/mosaic-media-service/infra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub() *Hub {
	return NewHub(nil, infra.NewTestLogger())
}

func drainOne(t *testing.T, sub *Subscriber) TopicEvent {
	t.Helper()
	select {
	case event := <-sub.Events():
		return event
	default:
		t.Fatal("expected a buffered event")
		return TopicEvent{}
	}
}

func TestHubPublishReachesTopicSubscribers(t *testing.T) {
	hub := newTestHub()
	ownerID := uuid.New()
	projectID := uuid.New()
	topic := entity.ProjectTopic(projectID)

	sub := hub.Subscribe(ownerID, topic)
	other := hub.Subscribe(ownerID, entity.ProjectTopic(uuid.New()))

	hub.Publish(context.Background(), topic, entity.NewNotificationEvent(entity.EventProjectUpdate, map[string]any{"k": "v"}))

	got := drainOne(t, sub)
	assert.Equal(t, topic, got.Topic)
	assert.Equal(t, entity.EventProjectUpdate, got.Event.Type)
	assert.False(t, got.Event.Timestamp.IsZero())

	select {
	case event := <-other.Events():
		t.Fatalf("subscriber on another room received %v", event)
	default:
	}
}

func TestHubJoinAndLeave(t *testing.T) {
	hub := newTestHub()
	ownerID := uuid.New()
	jobTopic := entity.JobTopic(uuid.New())

	sub := hub.Subscribe(ownerID, entity.UserTopic(ownerID))

	hub.Publish(context.Background(), jobTopic, entity.NewNotificationEvent(entity.EventJobStatusChange, nil))
	select {
	case <-sub.Events():
		t.Fatal("received event for a room never joined")
	default:
	}

	hub.Join(sub, jobTopic)
	hub.Publish(context.Background(), jobTopic, entity.NewNotificationEvent(entity.EventJobStatusChange, nil))
	got := drainOne(t, sub)
	assert.Equal(t, jobTopic, got.Topic)

	hub.Leave(sub, jobTopic)
	hub.Publish(context.Background(), jobTopic, entity.NewNotificationEvent(entity.EventJobStatusChange, nil))
	select {
	case <-sub.Events():
		t.Fatal("received event after leaving room")
	default:
	}
}

func TestHubSlowSubscriberDropsEvents(t *testing.T) {
	hub := newTestHub()
	topic := entity.UserTopic(uuid.New())
	sub := hub.Subscribe(uuid.New(), topic)

	// Fill the buffer and keep publishing; the overflow is dropped, never
	// blocked on.
	for i := 0; i < subscriberBuffer+10; i++ {
		hub.Publish(context.Background(), topic, entity.NewNotificationEvent(entity.EventProcessingProgress, map[string]any{"i": i}))
	}

	received := 0
	for {
		select {
		case <-sub.Events():
			received++
			continue
		default:
		}
		break
	}
	assert.Equal(t, subscriberBuffer, received)
}

func TestHubUnsubscribeClosesStream(t *testing.T) {
	hub := newTestHub()
	ownerID := uuid.New()
	sub := hub.Subscribe(ownerID, entity.UserTopic(ownerID))

	found, ok := hub.Get(sub.ID)
	require.True(t, ok)
	assert.Equal(t, sub, found)

	hub.Unsubscribe(sub)

	_, ok = hub.Get(sub.ID)
	assert.False(t, ok)

	_, open := <-sub.Events()
	assert.False(t, open)

	// Unsubscribing twice must not panic on a closed channel.
	hub.Unsubscribe(sub)
}
