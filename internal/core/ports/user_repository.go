package ports

import (
	"context"
	"time"

	"github.com/crmhub/crm-api/internal/core/domain"
)

// UserRepository defines persistence for user accounts. Implementations
// return domain.ErrUserNotFound for unknown ids and domain.ErrUserExists when a
// unique constraint (username, email, social binding) is violated.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) (*domain.User, error)
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindBySocial(ctx context.Context, provider, socialID string) (*domain.User, error)
	List(ctx context.Context) ([]*domain.User, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

// UserCache is a read-through cache for user lookups made on every
// authenticated request. Implementations must treat backend failures as misses.
type UserCache interface {
	Get(ctx context.Context, id string) (*domain.User, bool)
	Set(ctx context.Context, user *domain.User)
	Invalidate(ctx context.Context, id string)
}

// TokenStore tracks revoked access tokens by their token id.
type TokenStore interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}
