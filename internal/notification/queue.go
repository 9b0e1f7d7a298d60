package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// publisher is the part of *amqp.Channel the queue provider uses.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// QueueJob is the JSON body published for an external sender worker.
type QueueJob struct {
	ID           string   `json:"id"`
	SubmissionID string   `json:"submission_id"`
	Channel      string   `json:"channel"`
	To           []string `json:"to"`
	Subject      string   `json:"subject"`
	Text         string   `json:"text"`
	HTML         string   `json:"html,omitempty"`
}

// QueueProvider hands rendered mail to RabbitMQ instead of sending it
// inline.
type QueueProvider struct {
	queue string

	mu   sync.Mutex
	ch   publisher
	conn *amqp.Connection
}

// DialQueueProvider connects to RabbitMQ and declares a durable queue.
func DialQueueProvider(url, queue string) (*QueueProvider, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return &QueueProvider{queue: queue, ch: ch, conn: conn}, nil
}

func newQueueProvider(queue string, ch publisher) *QueueProvider {
	return &QueueProvider{queue: queue, ch: ch}
}

func (p *QueueProvider) Name() string { return "queue" }

// Deliver publishes msg as a persistent JSON job. The returned id is the
// AMQP message id.
func (p *QueueProvider) Deliver(ctx context.Context, msg Message) (string, error) {
	if len(msg.To) == 0 {
		return "", ErrNoRecipient
	}
	body, err := json.Marshal(QueueJob{
		ID:           msg.ID,
		SubmissionID: msg.SubmissionID,
		Channel:      string(msg.Channel),
		To:           msg.To,
		Subject:      msg.Subject,
		Text:         msg.Text,
		HTML:         msg.HTML,
	})
	if err != nil {
		return "", fmt.Errorf("marshal queue job: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", p.queue, err)
	}
	return msg.ID, nil
}

// Close releases the AMQP connection.
func (p *QueueProvider) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}
