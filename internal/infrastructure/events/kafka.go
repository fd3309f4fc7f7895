// Package events delivers audit events to external systems.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	skafka "github.com/segmentio/kafka-go"

	"github.com/crmhub/crm-api/internal/core/domain"
)

// Writer defines the subset of segmentio kafka.Writer we need. This makes the
// sink testable.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...skafka.Message) error
	Close() error
}

// KafkaSink writes audit events as JSON messages keyed by resource id, so
// events of one resource land on one partition in order.
type KafkaSink struct {
	writer Writer
}

// NewKafkaSink creates a sink that writes to the provided broker/topic.
func NewKafkaSink(brokerURL, topic string) *KafkaSink {
	w := &skafka.Writer{
		Addr:                   skafka.TCP(brokerURL),
		Topic:                  topic,
		Balancer:               &skafka.Hash{},
		RequiredAcks:           skafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &KafkaSink{writer: w}
}

// NewKafkaSinkWithWriter allows injecting a test writer.
func NewKafkaSinkWithWriter(w Writer) *KafkaSink {
	return &KafkaSink{writer: w}
}

func (s *KafkaSink) Write(ctx context.Context, event domain.AuditEvent) error {
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	msg := skafka.Message{
		Key:   []byte(event.ResourceKind + ":" + event.ResourceID),
		Value: b,
		Time:  event.OccurredAt,
		Headers: []skafka.Header{
			{Key: "action", Value: []byte(event.Action)},
			{Key: "event_id", Value: []byte(event.ID)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// Close closes the underlying writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
