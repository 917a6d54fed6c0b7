package produce

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	MediaExchange = "media.exchange"

	StyleJobQueue      = "media.jobs"
	StyleJobRoutingKey = "media.jobs.style"

	// StyleJobRetryQueue parks failed jobs until their per-message TTL
	// expires, after which the dead-letter exchange routes them back to the
	// work queue. This is how the worker gets exponential backoff without
	// sleeping in-process.
	StyleJobRetryQueue      = "media.jobs.retry"
	StyleJobRetryRoutingKey = "media.jobs.retry"
)

// StyleJobMessage is the durable queue reference to a ProcessingJob row. The
// row is the source of truth; the message only says "go look at this job".
type StyleJobMessage struct {
	JobID     string `json:"job_id"`
	AssetID   string `json:"asset_id"`
	OwnerID   string `json:"owner_id"`
	ProjectID string `json:"project_id"`
	Attempt   int    `json:"attempt"`
	Timestamp int64  `json:"timestamp"`
}

// JobProduceService publishes style-job messages. Queue delivery is
// at-least-once; consumers must be idempotent.
type JobProduceService struct {
	channel *amqp.Channel
}

func InitJobProduceService(channel *amqp.Channel) (*JobProduceService, error) {
	if err := channel.ExchangeDeclare(
		MediaExchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return nil, fmt.Errorf("failed to declare media exchange: %w", err)
	}

	if _, err := channel.QueueDeclare(
		StyleJobQueue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return nil, fmt.Errorf("failed to declare style job queue: %w", err)
	}

	if err := channel.QueueBind(StyleJobQueue, StyleJobRoutingKey, MediaExchange, false, nil); err != nil {
		return nil, fmt.Errorf("failed to bind style job queue: %w", err)
	}

	if _, err := channel.QueueDeclare(
		StyleJobRetryQueue,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    MediaExchange,
			"x-dead-letter-routing-key": StyleJobRoutingKey,
		},
	); err != nil {
		return nil, fmt.Errorf("failed to declare style job retry queue: %w", err)
	}

	if err := channel.QueueBind(StyleJobRetryQueue, StyleJobRetryRoutingKey, MediaExchange, false, nil); err != nil {
		return nil, fmt.Errorf("failed to bind style job retry queue: %w", err)
	}

	return &JobProduceService{channel: channel}, nil
}

// PublishStyleJob pushes a job reference onto the work queue.
func (s *JobProduceService) PublishStyleJob(ctx context.Context, msg StyleJobMessage) error {
	return s.publish(ctx, StyleJobRoutingKey, msg, 0)
}

// PublishStyleJobRetry parks the message on the retry queue for the given
// delay before it is redelivered to the work queue.
func (s *JobProduceService) PublishStyleJobRetry(ctx context.Context, msg StyleJobMessage, delay time.Duration) error {
	return s.publish(ctx, StyleJobRetryRoutingKey, msg, delay)
}

func (s *JobProduceService) publish(ctx context.Context, routingKey string, msg StyleJobMessage, delay time.Duration) error {
	msg.Timestamp = time.Now().Unix()

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
	}
	if delay > 0 {
		publishing.Expiration = strconv.FormatInt(delay.Milliseconds(), 10)
	}

	return s.channel.PublishWithContext(
		ctx,
		MediaExchange,
		routingKey,
		false, // mandatory
		false, // immediate
		publishing,
	)
}
