package services

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"alfredoptarigan/resume-coach/internal/models"
)

// JobUpdate is published whenever a generation job changes status.
type JobUpdate struct {
	JobID     string           `json:"job_id"`
	SessionID string           `json:"session_id"`
	Status    models.JobStatus `json:"status"`
	ErrorKind string           `json:"error_kind,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

type Notifier interface {
	PublishJobUpdate(update JobUpdate) error
	Close() error
}

type amqpNotifier struct {
	conn     *amqp.Connection
	exchange string
	mu       sync.Mutex
	ch       *amqp.Channel
}

// NewAMQPNotifier publishes to a topic exchange with routing key
// "session.<sessionId>".
func NewAMQPNotifier(url, exchange string) (Notifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("error connecting to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &amqpNotifier{conn: conn, exchange: exchange, ch: ch}, nil
}

func (n *amqpNotifier) PublishJobUpdate(update JobUpdate) error {
	body, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("failed to encode job update: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	return n.ch.Publish(
		n.exchange,
		fmt.Sprintf("session.%s", update.SessionID),
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   update.Timestamp,
			Body:        body,
		},
	)
}

func (n *amqpNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.ch.Close(); err != nil {
		log.Printf("⚠️  Failed to close RabbitMQ channel: %v\n", err)
	}
	return n.conn.Close()
}

type noopNotifier struct{}

// NewNoopNotifier is used when no broker is configured.
func NewNoopNotifier() Notifier {
	return noopNotifier{}
}

func (noopNotifier) PublishJobUpdate(JobUpdate) error { return nil }
func (noopNotifier) Close() error                     { return nil }
