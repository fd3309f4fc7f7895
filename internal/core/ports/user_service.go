package ports

import (
	"context"

	"github.com/crmhub/crm-api/internal/core/domain"
)

// CreateUserInput carries an admin-issued account creation.
type CreateUserInput struct {
	Username string `json:"username" validate:"required,max=150,username"`
	Email    string `json:"email" validate:"omitempty,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	IsAdmin  bool   `json:"is_admin"`
	IsActive *bool  `json:"is_active"`
}

// UpdateUserInput carries a full or partial account update. Nil pointers
// leave the stored value untouched; a full update requires Username.
type UpdateUserInput struct {
	Username *string `json:"username" validate:"omitnil,min=1,max=150,username"`
	Email    *string `json:"email" validate:"omitnil,max=254"`
	Password *string `json:"password" validate:"omitnil,min=8,max=128"`
	IsAdmin  *bool   `json:"is_admin"`
	IsActive *bool   `json:"is_active"`
}

type UserService interface {
	List(ctx context.Context, caller *domain.User) ([]*domain.User, error)
	Get(ctx context.Context, caller *domain.User, id string) (*domain.User, error)
	Create(ctx context.Context, caller *domain.User, input CreateUserInput) (*domain.User, error)
	Update(ctx context.Context, caller *domain.User, id string, input UpdateUserInput, partial bool) (*domain.User, error)
	Delete(ctx context.Context, caller *domain.User, id string) error
	SetAdminStatus(ctx context.Context, caller *domain.User, id string, isAdmin bool) (*domain.User, error)
}
