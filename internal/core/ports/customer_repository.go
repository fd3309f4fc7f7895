package ports

import (
	"context"
	"io"
	"time"

	"github.com/crmhub/crm-api/internal/core/domain"
)

// CustomerRepository defines persistence for customers. The store owns the
// CreatedAt/UpdatedAt timestamps and never changes CreatedBy on Update.
type CustomerRepository interface {
	Create(ctx context.Context, customer *domain.Customer) (*domain.Customer, error)
	Update(ctx context.Context, customer *domain.Customer) (*domain.Customer, error)
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*domain.Customer, error)
	List(ctx context.Context) ([]*domain.Customer, error)
	// ClearUserReferences nulls created_by/modified_by wherever they point at userID.
	ClearUserReferences(ctx context.Context, userID string) error
}

// BlobInfo describes a stored blob.
type BlobInfo struct {
	Size        int64
	ContentType string
	ModTime     time.Time
}

// BlobStore holds customer photos keyed by an opaque path-like key.
// Open returns domain.ErrBlobNotFound for unknown keys; Delete of an unknown
// key is not an error.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, *BlobInfo, error)
	Delete(ctx context.Context, key string) error
}
