package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/crmhub/crm-api/internal/core/domain"
	"github.com/crmhub/crm-api/internal/core/policy"
	"github.com/crmhub/crm-api/internal/core/ports"
)

// UserService implements admin-only account management.
type UserService struct {
	repo      ports.UserRepository
	customers ports.CustomerRepository
	cache     ports.UserCache
	events    ports.EventPublisher
	log       zerolog.Logger
}

func NewUserService(
	repo ports.UserRepository,
	customers ports.CustomerRepository,
	cache ports.UserCache,
	events ports.EventPublisher,
	log zerolog.Logger,
) *UserService {
	return &UserService{
		repo:      repo,
		customers: customers,
		cache:     cacheOrNop(cache),
		events:    publisherOrNop(events),
		log:       log,
	}
}

func (s *UserService) List(ctx context.Context, caller *domain.User) ([]*domain.User, error) {
	if err := policy.Authorize(caller, policy.KindUser, policy.OpList); err != nil {
		return nil, err
	}
	return s.repo.List(ctx)
}

func (s *UserService) Get(ctx context.Context, caller *domain.User, id string) (*domain.User, error) {
	if err := policy.Authorize(caller, policy.KindUser, policy.OpRead); err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, id)
}

func (s *UserService) Create(ctx context.Context, caller *domain.User, input ports.CreateUserInput) (*domain.User, error) {
	if err := policy.Authorize(caller, policy.KindUser, policy.OpCreate); err != nil {
		return nil, err
	}

	input.Username = strings.TrimSpace(input.Username)
	input.Email = normalizeEmail(input.Email)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	hash, err := hashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	active := true
	if input.IsActive != nil {
		active = *input.IsActive
	}

	now := time.Now().UTC()
	created, err := s.repo.Create(ctx, &domain.User{
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: hash,
		IsAdmin:      input.IsAdmin,
		IsActive:     active,
		DateJoined:   now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("user_id", created.ID).Str("by", caller.ID).Bool("is_admin", created.IsAdmin).Msg("user created")
	s.events.Publish(newAuditEvent(domain.ActionUserCreated, policy.KindUser, caller, created.ID, map[string]any{
		"is_admin": created.IsAdmin,
	}))
	return created, nil
}

// Update applies a full or partial account update. The password is hashed and
// replaced only when supplied.
func (s *UserService) Update(ctx context.Context, caller *domain.User, id string, input ports.UpdateUserInput, partial bool) (*domain.User, error) {
	if err := policy.Authorize(caller, policy.KindUser, policy.OpUpdate); err != nil {
		return nil, err
	}

	input.Username = trimPtr(input.Username)
	input.Email = normalizeEmailPtr(input.Email)
	if !partial && input.Username == nil {
		return nil, domain.FieldError("username", "this field is required")
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.Email != nil {
		if err := validateEmail(*input.Email); err != nil {
			return nil, err
		}
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *existing
	if input.Username != nil {
		updated.Username = *input.Username
	}
	if input.Email != nil {
		updated.Email = *input.Email
	}
	if input.IsAdmin != nil {
		updated.IsAdmin = *input.IsAdmin
	}
	if input.IsActive != nil {
		updated.IsActive = *input.IsActive
	}
	if input.Password != nil {
		if updated.PasswordHash, err = hashPassword(*input.Password); err != nil {
			return nil, err
		}
	}
	updated.UpdatedAt = time.Now().UTC()

	saved, err := s.repo.Update(ctx, &updated)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, saved.ID)

	s.log.Info().Str("user_id", saved.ID).Str("by", caller.ID).Bool("partial", partial).Msg("user updated")
	s.events.Publish(newAuditEvent(domain.ActionUserUpdated, policy.KindUser, caller, saved.ID, map[string]any{
		"partial":          partial,
		"password_changed": input.Password != nil,
	}))
	if existing.IsAdmin != saved.IsAdmin {
		s.events.Publish(newAuditEvent(domain.ActionUserAdminChanged, policy.KindUser, caller, saved.ID, map[string]any{
			"is_admin": saved.IsAdmin,
		}))
	}
	return saved, nil
}

// Delete removes the account and clears it from customer audit fields. The
// customers themselves are kept.
func (s *UserService) Delete(ctx context.Context, caller *domain.User, id string) error {
	if err := policy.Authorize(caller, policy.KindUser, policy.OpDelete); err != nil {
		return err
	}

	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return err
	}
	if err := s.customers.ClearUserReferences(ctx, id); err != nil {
		return fmt.Errorf("clear customer references: %w", err)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, id)

	s.log.Info().Str("user_id", id).Str("by", caller.ID).Msg("user deleted")
	s.events.Publish(newAuditEvent(domain.ActionUserDeleted, policy.KindUser, caller, id, nil))
	return nil
}

// SetAdminStatus sets the admin flag of the target user to exactly isAdmin.
func (s *UserService) SetAdminStatus(ctx context.Context, caller *domain.User, id string, isAdmin bool) (*domain.User, error) {
	if err := policy.Authorize(caller, policy.KindUser, policy.OpSetAdminStatus); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *existing
	updated.IsAdmin = isAdmin
	updated.UpdatedAt = time.Now().UTC()

	saved, err := s.repo.Update(ctx, &updated)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, saved.ID)

	s.log.Info().
		Str("user_id", saved.ID).
		Str("by", caller.ID).
		Bool("was_admin", existing.IsAdmin).
		Bool("is_admin", saved.IsAdmin).
		Msg("admin status changed")
	s.events.Publish(newAuditEvent(domain.ActionUserAdminChanged, policy.KindUser, caller, saved.ID, map[string]any{
		"is_admin": saved.IsAdmin,
	}))
	return saved, nil
}

var bcryptCost = bcrypt.DefaultCost

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
