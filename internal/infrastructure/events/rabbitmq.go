package events

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/crmhub/crm-api/internal/core/domain"
)

// Channel is the subset of *amqp.Channel the sink uses.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQSink publishes audit events as persistent JSON messages to a
// durable queue.
type RabbitMQSink struct {
	conn  *amqp.Connection
	ch    Channel
	queue string
}

// NewRabbitMQSink dials the server, opens a channel and declares the queue.
func NewRabbitMQSink(url, queue string) (*RabbitMQSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	s, err := NewRabbitMQSinkWithChannel(ch, queue)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	s.conn = conn
	return s, nil
}

// NewRabbitMQSinkWithChannel declares the queue on an existing channel.
func NewRabbitMQSinkWithChannel(ch Channel, queue string) (*RabbitMQSink, error) {
	_, err := ch.QueueDeclare(
		queue, // name of queue
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq declare %s: %w", queue, err)
	}
	return &RabbitMQSink{ch: ch, queue: queue}, nil
}

func (s *RabbitMQSink) Write(ctx context.Context, event domain.AuditEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	err = s.ch.PublishWithContext(
		ctx,
		"",      // exchange
		s.queue, // routing key (queue name)
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ID,
			Type:         event.Action,
			Timestamp:    event.OccurredAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

// Close closes the channel, then the connection when the sink owns it.
func (s *RabbitMQSink) Close() error {
	if err := s.ch.Close(); err != nil {
		return err
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
