package sql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/crmhub/crm-api/internal/core/domain"
)

type customerRow struct {
	ID         string  `gorm:"primaryKey;type:varchar(36)"`
	Name       string  `gorm:"type:varchar(100);not null"`
	Surname    string  `gorm:"type:varchar(100);not null"`
	PhotoKey   string  `gorm:"type:varchar(255);not null;default:''"`
	CreatedBy  *string `gorm:"type:varchar(36);index"`
	ModifiedBy *string `gorm:"type:varchar(36);index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (customerRow) TableName() string { return "customers" }

func (r *customerRow) toDomain() *domain.Customer {
	return &domain.Customer{
		ID:         r.ID,
		Name:       r.Name,
		Surname:    r.Surname,
		PhotoKey:   r.PhotoKey,
		CreatedBy:  r.CreatedBy,
		ModifiedBy: r.ModifiedBy,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

// CustomerRepository is a GORM implementation of ports.CustomerRepository.
type CustomerRepository struct {
	db *gorm.DB
}

func NewCustomerRepository(db *gorm.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

func (r *CustomerRepository) Create(ctx context.Context, c *domain.Customer) (*domain.Customer, error) {
	row := &customerRow{
		ID:         uuid.New().String(),
		Name:       c.Name,
		Surname:    c.Surname,
		PhotoKey:   c.PhotoKey,
		CreatedBy:  c.CreatedBy,
		ModifiedBy: c.ModifiedBy,
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}
	return row.toDomain(), nil
}

// Update writes name, surname, photo and modified_by; created_by and
// created_at are left untouched.
func (r *CustomerRepository) Update(ctx context.Context, c *domain.Customer) (*domain.Customer, error) {
	if _, err := r.FindByID(ctx, c.ID); err != nil {
		return nil, err
	}

	err := r.db.WithContext(ctx).
		Model(&customerRow{ID: c.ID}).
		Select("name", "surname", "photo_key", "modified_by", "updated_at").
		Updates(&customerRow{
			Name:       c.Name,
			Surname:    c.Surname,
			PhotoKey:   c.PhotoKey,
			ModifiedBy: c.ModifiedBy,
			UpdatedAt:  time.Now().UTC(),
		}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to update customer %s: %w", c.ID, err)
	}
	return r.FindByID(ctx, c.ID)
}

func (r *CustomerRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&customerRow{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete customer %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrCustomerNotFound
	}
	return nil
}

func (r *CustomerRepository) FindByID(ctx context.Context, id string) (*domain.Customer, error) {
	var row customerRow
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("failed to get customer %s: %w", id, err)
	}
	return row.toDomain(), nil
}

// List returns customers, oldest first.
func (r *CustomerRepository) List(ctx context.Context) ([]*domain.Customer, error) {
	var rows []customerRow
	if err := r.db.WithContext(ctx).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}

	out := make([]*domain.Customer, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

// ClearUserReferences sets created_by and modified_by to NULL wherever they
// point at userID, in one transaction. updated_at is not touched.
func (r *CustomerRepository) ClearUserReferences(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, col := range []string{"created_by", "modified_by"} {
			err := tx.Model(&customerRow{}).
				Where(col+" = ?", userID).
				UpdateColumn(col, gorm.Expr("NULL")).Error
			if err != nil {
				return fmt.Errorf("failed to clear %s: %w", col, err)
			}
		}
		return nil
	})
}
