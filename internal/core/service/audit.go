package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/crmhub/crm-api/internal/core/domain"
	"github.com/crmhub/crm-api/internal/core/policy"
	"github.com/crmhub/crm-api/internal/core/ports"
)

const blobCleanupTimeout = 10 * time.Second

type nopPublisher struct{}

func (nopPublisher) Publish(domain.AuditEvent) {}

type nopUserCache struct{}

func (nopUserCache) Get(context.Context, string) (*domain.User, bool) { return nil, false }
func (nopUserCache) Set(context.Context, *domain.User)                {}
func (nopUserCache) Invalidate(context.Context, string)               {}

func publisherOrNop(p ports.EventPublisher) ports.EventPublisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}

func cacheOrNop(c ports.UserCache) ports.UserCache {
	if c == nil {
		return nopUserCache{}
	}
	return c
}

func newAuditEvent(action string, kind policy.ResourceKind, actor *domain.User, resourceID string, meta map[string]any) domain.AuditEvent {
	var actorID *string
	if actor != nil {
		id := actor.ID
		actorID = &id
	}
	return domain.AuditEvent{
		ID:           uuid.NewString(),
		Action:       action,
		ActorID:      actorID,
		ResourceKind: string(kind),
		ResourceID:   resourceID,
		Metadata:     meta,
		OccurredAt:   time.Now().UTC(),
	}
}

// detached returns a context that survives cancellation of ctx, used for
// cleanup that must run after the request has gone away.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), blobCleanupTimeout)
}

func stringPtr(s string) *string {
	return &s
}
