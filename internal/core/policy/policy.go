// Package policy decides whether a caller may perform an operation on a
// resource kind. It is a pure function of its inputs and is evaluated both by
// the HTTP middleware (before any body is read) and by the services.
package policy

import (
	"github.com/crmhub/crm-api/internal/core/domain"
)

// ResourceKind names a family of resources guarded by the same rule.
type ResourceKind string

const (
	KindCustomer ResourceKind = "customer"
	KindUser     ResourceKind = "user"
)

// Operation is the action a caller attempts on a resource kind.
type Operation string

const (
	OpList           Operation = "list"
	OpRead           Operation = "read"
	OpCreate         Operation = "create"
	OpUpdate         Operation = "update"
	OpDelete         Operation = "delete"
	OpSetAdminStatus Operation = "set_admin_status"
)

// Authorize returns nil when caller may perform op on kind.
//
//	nil or inactive caller  → domain.ErrUnauthorized
//	KindUser, not admin     → domain.ErrForbidden
//	KindCustomer            → allowed for any authenticated caller
//
// Unknown kinds are denied.
func Authorize(caller *domain.User, kind ResourceKind, op Operation) error {
	if caller == nil || !caller.IsActive {
		return domain.ErrUnauthorized
	}

	switch kind {
	case KindCustomer:
		return nil
	case KindUser:
		if caller.IsAdmin {
			return nil
		}
		return domain.ErrForbidden
	default:
		return domain.ErrForbidden
	}
}

// IsAuthorized is the boolean form of Authorize.
func IsAuthorized(caller *domain.User, kind ResourceKind, op Operation) bool {
	return Authorize(caller, kind, op) == nil
}
