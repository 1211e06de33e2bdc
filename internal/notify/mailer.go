package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	routingKeyEmailOutbox = "email.outbox"
	publisherAppID        = "collections-engine"
)

// Email is a message for the best-effort email side channel.
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Mailer delivers or enqueues an email.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// LogMailer only logs the email. Used in development.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger.With("component", "LogMailer")}
}

func (m *LogMailer) Send(ctx context.Context, email Email) error {
	m.logger.InfoContext(ctx, "Email simulated", "to", email.To, "subject", email.Subject, "bodySize", len(email.Body))
	return nil
}

// AMQPMailer publishes emails to a RabbitMQ exchange acting as an outbox;
// a separate worker performs SMTP delivery.
type AMQPMailer struct {
	conn         *amqp.Connection
	exchangeName string
	logger       *slog.Logger
}

func NewAMQPMailer(conn *amqp.Connection, exchangeName string, logger *slog.Logger) (*AMQPMailer, error) {
	if conn == nil {
		return nil, fmt.Errorf("RabbitMQ connection cannot be nil")
	}
	if exchangeName == "" {
		return nil, fmt.Errorf("RabbitMQ exchange name cannot be empty")
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel for exchange declaration: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchangeName, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare exchange '%s': %w", exchangeName, err)
	}
	logger.Info("Ensured RabbitMQ exchange exists", "exchange", exchangeName, "type", amqp.ExchangeTopic)

	return &AMQPMailer{
		conn:         conn,
		exchangeName: exchangeName,
		logger:       logger.With("component", "AMQPMailer", "exchange", exchangeName),
	}, nil
}

func (m *AMQPMailer) Send(ctx context.Context, email Email) error {
	ch, err := m.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	body, err := json.Marshal(email)
	if err != nil {
		return fmt.Errorf("failed to marshal email: %w", err)
	}

	err = ch.PublishWithContext(ctx, m.exchangeName, routingKeyEmailOutbox, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
		AppId:        publisherAppID,
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to publish email", "to", email.To, slog.Any("error", err))
		return fmt.Errorf("failed to publish email: %w", err)
	}

	m.logger.DebugContext(ctx, "Email enqueued", "to", email.To)
	return nil
}
