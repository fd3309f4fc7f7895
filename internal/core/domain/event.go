package domain

import "time"

// Audit actions emitted by the services.
const (
	ActionCustomerCreated     = "customer.created"
	ActionCustomerUpdated     = "customer.updated"
	ActionCustomerDeleted     = "customer.deleted"
	ActionUserCreated         = "user.created"
	ActionUserUpdated         = "user.updated"
	ActionUserDeleted         = "user.deleted"
	ActionUserAdminChanged    = "user.admin_status_changed"
	ActionUserRegistered      = "user.registered"
	ActionUserSocialLinked    = "user.social_linked"
	ActionUserProfileUpdated  = "user.profile_updated"
	ActionUserPasswordChanged = "user.password_changed"
)

// AuditEvent records a state change made through the API.
type AuditEvent struct {
	ID           string         `json:"id"`
	Action       string         `json:"action"`
	ActorID      *string        `json:"actor_id"`
	ResourceKind string         `json:"resource_kind"`
	ResourceID   string         `json:"resource_id"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
}
