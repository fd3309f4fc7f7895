package ports

import (
	"context"
	"io"

	"github.com/crmhub/crm-api/internal/core/domain"
)

// PhotoUpload is an uploaded image. Content is read once by the service.
type PhotoUpload struct {
	Filename string
	Size     int64
	Content  io.Reader
}

// CreateCustomerInput carries a new customer.
type CreateCustomerInput struct {
	Name    string `json:"name" validate:"required,max=100"`
	Surname string `json:"surname" validate:"required,max=100"`
	Photo   *PhotoUpload
}

// UpdateCustomerInput carries a full or partial customer update. ClearPhoto
// detaches the current photo; it is ignored when Photo is set.
type UpdateCustomerInput struct {
	Name       *string `json:"name" validate:"omitnil,min=1,max=100"`
	Surname    *string `json:"surname" validate:"omitnil,min=1,max=100"`
	Photo      *PhotoUpload
	ClearPhoto bool
}

type CustomerService interface {
	List(ctx context.Context, caller *domain.User) ([]*domain.Customer, error)
	Get(ctx context.Context, caller *domain.User, id string) (*domain.Customer, error)
	Create(ctx context.Context, caller *domain.User, input CreateCustomerInput) (*domain.Customer, error)
	Update(ctx context.Context, caller *domain.User, id string, input UpdateCustomerInput, partial bool) (*domain.Customer, error)
	Delete(ctx context.Context, caller *domain.User, id string) error
}
