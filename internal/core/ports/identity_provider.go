package ports

import (
	"context"

	"github.com/crmhub/crm-api/internal/core/domain"
)

// ExternalIdentity is the verified identity returned by an OAuth provider.
type ExternalIdentity struct {
	Provider      string
	SubjectID     string
	Email         string
	EmailVerified bool
	GivenName     string
	FamilyName    string
}

// IdentityProvider resolves an external identity from either an
// authorization code or a provider-issued access token. Any failure is
// reported wrapped in domain.ErrUpstreamAuth. AuthCodeURL builds the consent
// page URL a client redirects to in order to obtain a code.
type IdentityProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*ExternalIdentity, error)
	Identify(ctx context.Context, accessToken string) (*ExternalIdentity, error)
}

// EventPublisher accepts audit events for asynchronous delivery. Publish must
// not block the request path.
type EventPublisher interface {
	Publish(event domain.AuditEvent)
}

// EventSink delivers a single audit event to an external system.
type EventSink interface {
	Write(ctx context.Context, event domain.AuditEvent) error
	Close() error
}
