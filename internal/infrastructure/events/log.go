package events

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/crmhub/crm-api/internal/core/domain"
)

// LogSink writes audit events to the structured log.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Write(_ context.Context, event domain.AuditEvent) error {
	ev := s.log.Info().
		Str("event_id", event.ID).
		Str("action", event.Action).
		Str("resource_kind", event.ResourceKind).
		Str("resource_id", event.ResourceID).
		Time("occurred_at", event.OccurredAt)
	if event.ActorID != nil {
		ev = ev.Str("actor_id", *event.ActorID)
	}
	if len(event.Metadata) > 0 {
		ev = ev.Interface("metadata", event.Metadata)
	}
	ev.Msg("audit")
	return nil
}

func (s *LogSink) Close() error { return nil }
