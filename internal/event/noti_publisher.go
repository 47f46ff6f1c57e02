package event

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"school-portal/internal/logging"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

type NotificationType string

const (
	TypePasswordResetCode NotificationType = "PASSWORD_RESET_CODE"
	TypeSuspiciousLogin   NotificationType = "SUSPICIOUS_LOGIN"
)

type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// NotificationMessage is the body consumers of the notification queue receive.
type NotificationMessage struct {
	ID          string           `json:"id"`
	Type        NotificationType `json:"type"`
	Priority    Priority         `json:"priority"`
	RecipientID string           `json:"recipient_id"`
	Payload     map[string]any   `json:"payload"`
	CreatedAt   time.Time        `json:"created_at"`
}

// amqpChannel is the slice of *amqp.Channel the publisher uses.
type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type NotificationPublisher struct {
	channel amqpChannel
	queue   string

	// amqp channels are not safe for concurrent publishing
	mu       sync.Mutex
	declared bool

	messagesPublished int64
	messagesFailed    int64
}

func NewNotificationPublisher(conn *RabbitMQConnection, queue string) *NotificationPublisher {
	return newPublisher(conn.Channel, queue)
}

func newPublisher(ch amqpChannel, queue string) *NotificationPublisher {
	return &NotificationPublisher{channel: ch, queue: queue}
}

func (p *NotificationPublisher) Publish(ctx context.Context, msgType NotificationType, recipientID string, payload map[string]any) error {
	priority := PriorityNormal
	if msgType == TypeSuspiciousLogin {
		priority = PriorityHigh
	}
	msg := NotificationMessage{
		ID:          uuid.NewString(),
		Type:        msgType,
		Priority:    priority,
		RecipientID: recipientID,
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal notification event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.declared {
		if _, err := p.channel.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
			p.messagesFailed++
			return fmt.Errorf("failed to declare queue: %w", err)
		}
		p.declared = true
	}

	err = p.channel.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    msg.ID,
		Type:         string(msgType),
		Body:         body,
		Timestamp:    msg.CreatedAt,
	})
	if err != nil {
		p.messagesFailed++
		return fmt.Errorf("failed to publish notification event: %w", err)
	}

	p.messagesPublished++
	logging.Debug().Str("queue", p.queue).Str("type", string(msgType)).Msg("notification event published")
	return nil
}

func (p *NotificationPublisher) Stats() (published, failed int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.messagesPublished, p.messagesFailed
}
