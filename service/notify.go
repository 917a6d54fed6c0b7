package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mosaiclabs/mosaic-media-service/entity"
	"github.com/mosaiclabs/mosaic-media-service/infra"
	"github.com/redis/go-redis/v9"
)

const bridgeChannelPrefix = "mosaic:events:"

// TopicEvent is one event tagged with the room it was published to.
type TopicEvent struct {
	Topic string                   `json:"topic"`
	Event entity.NotificationEvent `json:"event"`
}

// Bridge carries events between processes. Implemented by infra.RedisClient;
// nil means single-process fan-out only.
type Bridge interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	PSubscribe(ctx context.Context, patterns ...string) *redis.PubSub
}

type bridgeEnvelope struct {
	Origin string                   `json:"origin"`
	Topic  string                   `json:"topic"`
	Event  entity.NotificationEvent `json:"event"`
}

// Subscriber is one live observer attached to a set of topics. Its channel
// is buffered; a subscriber that cannot keep up silently loses events, which
// is the at-most-once contract. Reconnecting clients re-fetch state over
// HTTP.
type Subscriber struct {
	ID      uuid.UUID
	OwnerID uuid.UUID
	ch      chan TopicEvent
}

// Events is the stream of events for the subscriber's current topics. The
// channel is closed when the subscriber is removed from the hub.
func (s *Subscriber) Events() <-chan TopicEvent {
	return s.ch
}

const subscriberBuffer = 32

// Hub republishes ledger state transitions to subscribed observers grouped
// by user/project/job rooms. Publishing adds no durability: failures are
// logged and never roll back the ledger write that triggered them.
type Hub struct {
	id     string
	bridge Bridge
	logger *infra.LoggerClient

	mu          sync.RWMutex
	subscribers map[uuid.UUID]*Subscriber
	topics      map[string]map[uuid.UUID]*Subscriber
}

func NewHub(bridge Bridge, logger *infra.LoggerClient) *Hub {
	return &Hub{
		id:          uuid.NewString(),
		bridge:      bridge,
		logger:      logger,
		subscribers: make(map[uuid.UUID]*Subscriber),
		topics:      make(map[string]map[uuid.UUID]*Subscriber),
	}
}

// Publish fans one event out to every live subscriber of the topic, locally
// and through the bridge. Fire-and-forget.
func (h *Hub) Publish(ctx context.Context, topic string, event entity.NotificationEvent) {
	h.deliver(topic, event)

	if h.bridge == nil {
		return
	}
	payload, err := json.Marshal(bridgeEnvelope{Origin: h.id, Topic: topic, Event: event})
	if err != nil {
		h.logger.WarningWithContextf(ctx, "[Notify] Failed to marshal event for topic %s: %v", topic, err)
		return
	}
	if err := h.bridge.Publish(ctx, bridgeChannelPrefix+topic, payload); err != nil {
		h.logger.WarningWithContextf(ctx, "[Notify] Failed to bridge event for topic %s: %v", topic, err)
	}
}

func (h *Hub) deliver(topic string, event entity.NotificationEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.topics[topic] {
		select {
		case sub.ch <- TopicEvent{Topic: topic, Event: event}:
		default:
			// Slow subscriber; drop rather than block the publisher.
		}
	}
}

// Subscribe registers a new observer on the given topics and returns its
// stream handle.
func (h *Hub) Subscribe(ownerID uuid.UUID, topics ...string) *Subscriber {
	sub := &Subscriber{
		ID:      uuid.New(),
		OwnerID: ownerID,
		ch:      make(chan TopicEvent, subscriberBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[sub.ID] = sub
	for _, topic := range topics {
		h.joinLocked(sub, topic)
	}
	return sub
}

// Get finds a live subscriber by stream ID.
func (h *Hub) Get(streamID uuid.UUID) (*Subscriber, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sub, ok := h.subscribers[streamID]
	return sub, ok
}

// Join adds the subscriber to a topic.
func (h *Hub) Join(sub *Subscriber, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joinLocked(sub, topic)
}

// Leave removes the subscriber from a topic.
func (h *Hub) Leave(sub *Subscriber, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.topics[topic]; ok {
		delete(members, sub.ID)
		if len(members) == 0 {
			delete(h.topics, topic)
		}
	}
}

// Unsubscribe removes the observer from every topic and closes its stream.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subscribers[sub.ID]; !ok {
		return
	}
	delete(h.subscribers, sub.ID)
	for topic, members := range h.topics {
		delete(members, sub.ID)
		if len(members) == 0 {
			delete(h.topics, topic)
		}
	}
	close(sub.ch)
}

func (h *Hub) joinLocked(sub *Subscriber, topic string) {
	members, ok := h.topics[topic]
	if !ok {
		members = make(map[uuid.UUID]*Subscriber)
		h.topics[topic] = members
	}
	members[sub.ID] = sub
}

// RunBridge consumes events published by other processes and re-delivers
// them locally. Blocks until the context is cancelled.
func (h *Hub) RunBridge(ctx context.Context) {
	if h.bridge == nil {
		return
	}

	pubsub := h.bridge.PSubscribe(ctx, bridgeChannelPrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var envelope bridgeEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
				h.logger.WarningWithContextf(ctx, "[Notify] Dropping malformed bridge message: %v", err)
				continue
			}
			if envelope.Origin == h.id {
				continue
			}
			topic := envelope.Topic
			if topic == "" {
				topic = strings.TrimPrefix(msg.Channel, bridgeChannelPrefix)
			}
			h.deliver(topic, envelope.Event)
		}
	}
}
