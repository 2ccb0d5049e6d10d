package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/vaultgate/vaultgate/internal/config"
	"github.com/vaultgate/vaultgate/pkg/models"
)

const (
	GapQueueName = "reconciliation_gaps"
	ExchangeName = "vaultgate"
)

// Queue journals reconciliation gaps on a durable broker queue. The gateway
// publishes a gap when a delete-release cannot reach the ledger; the
// reconciler drains the queue and replays the release.
type Queue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// New creates a new queue client
func New(cfg config.QueueConfig) (*Queue, error) {
	url := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Vhost)

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	// Declare exchange
	err = channel.ExchangeDeclare(
		ExchangeName,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	// Declare queue
	_, err = channel.QueueDeclare(
		GapQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	// Bind queue to exchange
	err = channel.QueueBind(
		GapQueueName,
		GapQueueName,
		ExchangeName,
		false,
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	return &Queue{
		conn:    conn,
		channel: channel,
	}, nil
}

// Close closes the queue connection
func (q *Queue) Close() error {
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

// PublishGap journals a reconciliation gap
func (q *Queue) PublishGap(ctx context.Context, gap *models.ReconciliationGap) error {
	body, err := json.Marshal(gap)
	if err != nil {
		return fmt.Errorf("failed to marshal gap: %w", err)
	}

	err = q.channel.PublishWithContext(ctx,
		ExchangeName,
		GapQueueName,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish gap: %w", err)
	}

	return nil
}

// ConsumeGaps delivers journaled gaps to the handler. A gap is acked only
// after the handler succeeds; failed gaps are requeued so the release is
// never lost.
func (q *Queue) ConsumeGaps(ctx context.Context, handler func(*models.ReconciliationGap) error) error {
	// Process one gap at a time
	err := q.channel.Qos(
		1,     // prefetch count
		0,     // prefetch size
		false, // global
	)
	if err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := q.channel.Consume(
		GapQueueName,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("gap channel closed")
			}

			var gap models.ReconciliationGap
			if err := json.Unmarshal(msg.Body, &gap); err != nil {
				// Malformed payloads can never succeed; drop them
				msg.Nack(false, false)
				continue
			}

			if err := handler(&gap); err != nil {
				msg.Nack(false, true)
				continue
			}

			msg.Ack(false)
		}
	}
}
