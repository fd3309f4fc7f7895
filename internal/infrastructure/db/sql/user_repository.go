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

// userRow is the users table. Email and the social binding are NULL when
// absent so their unique indexes only apply to present values.
type userRow struct {
	ID             string    `gorm:"primaryKey;type:varchar(36)"`
	Username       string    `gorm:"uniqueIndex;type:varchar(150);not null"`
	Email          *string   `gorm:"uniqueIndex;type:varchar(254)"`
	PasswordHash   string    `gorm:"type:varchar(255);not null"`
	IsAdmin        bool      `gorm:"not null"`
	IsSuperuser    bool      `gorm:"not null"`
	IsActive       bool      `gorm:"not null"`
	SocialProvider *string   `gorm:"type:varchar(32);uniqueIndex:idx_users_social"`
	SocialID       *string   `gorm:"type:varchar(255);uniqueIndex:idx_users_social"`
	DateJoined     time.Time `gorm:"not null"`
	LastLogin      *time.Time
	UpdatedAt      time.Time
}

func (userRow) TableName() string { return "users" }

func toUserRow(u *domain.User) *userRow {
	row := &userRow{
		ID:           u.ID,
		Username:     u.Username,
		Email:        nullable(u.Email),
		PasswordHash: u.PasswordHash,
		IsAdmin:      u.IsAdmin,
		IsSuperuser:  u.IsSuperuser,
		IsActive:     u.IsActive,
		DateJoined:   u.DateJoined,
		LastLogin:    u.LastLogin,
	}
	if u.SocialID != "" {
		row.SocialProvider = nullable(u.SocialProvider)
		row.SocialID = nullable(u.SocialID)
	}
	return row
}

func (r *userRow) toDomain() *domain.User {
	return &domain.User{
		ID:             r.ID,
		Username:       r.Username,
		Email:          value(r.Email),
		PasswordHash:   r.PasswordHash,
		IsAdmin:        r.IsAdmin,
		IsSuperuser:    r.IsSuperuser,
		IsActive:       r.IsActive,
		SocialProvider: value(r.SocialProvider),
		SocialID:       value(r.SocialID),
		DateJoined:     r.DateJoined.UTC(),
		LastLogin:      r.LastLogin,
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

// UserRepository is a GORM implementation of ports.UserRepository.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	row := toUserRow(user)
	if row.ID == "" {
		row.ID = uuid.New().String()
	}
	if row.DateJoined.IsZero() {
		row.DateJoined = time.Now().UTC()
	}

	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return row.toDomain(), nil
}

// Update writes every mutable column. id and date_joined are never changed.
func (r *UserRepository) Update(ctx context.Context, user *domain.User) (*domain.User, error) {
	if _, err := r.FindByID(ctx, user.ID); err != nil {
		return nil, err
	}

	row := toUserRow(user)
	err := r.db.WithContext(ctx).
		Model(&userRow{ID: user.ID}).
		Select("*").
		Omit("id", "date_joined").
		Updates(row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("failed to update user %s: %w", user.ID, err)
	}
	return r.FindByID(ctx, user.ID)
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&userRow{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete user %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.first(ctx, "username = ?", username)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	if email == "" {
		return nil, domain.ErrUserNotFound
	}
	return r.first(ctx, "email = ?", email)
}

func (r *UserRepository) FindBySocial(ctx context.Context, provider, socialID string) (*domain.User, error) {
	return r.first(ctx, "social_provider = ? AND social_id = ?", provider, socialID)
}

// List returns all users ordered by username.
func (r *UserRepository) List(ctx context.Context) ([]*domain.User, error) {
	var rows []userRow
	if err := r.db.WithContext(ctx).Order("username").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	out := make([]*domain.User, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

func (r *UserRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&userRow{}).
		Where("id = ?", id).
		UpdateColumn("last_login", at.UTC())
	if res.Error != nil {
		return fmt.Errorf("failed to touch last login of %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) first(ctx context.Context, query string, args ...any) (*domain.User, error) {
	var row userRow
	if err := r.db.WithContext(ctx).Where(query, args...).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return row.toDomain(), nil
}
