package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/crmhub/crm-api/internal/core/domain"
	"github.com/crmhub/crm-api/internal/core/policy"
	"github.com/crmhub/crm-api/internal/core/ports"
)

const (
	// PhotoKeyPrefix is the key namespace for customer photos.
	PhotoKeyPrefix       = "customer_photos/"
	defaultMaxPhotoBytes = 5 << 20
)

var allowedPhotoTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}

type CustomerService struct {
	repo          ports.CustomerRepository
	blobs         ports.BlobStore
	events        ports.EventPublisher
	maxPhotoBytes int64
	log           zerolog.Logger
}

func NewCustomerService(
	repo ports.CustomerRepository,
	blobs ports.BlobStore,
	events ports.EventPublisher,
	maxPhotoBytes int64,
	log zerolog.Logger,
) *CustomerService {
	if maxPhotoBytes <= 0 {
		maxPhotoBytes = defaultMaxPhotoBytes
	}
	return &CustomerService{
		repo:          repo,
		blobs:         blobs,
		events:        publisherOrNop(events),
		maxPhotoBytes: maxPhotoBytes,
		log:           log,
	}
}

func (s *CustomerService) List(ctx context.Context, caller *domain.User) ([]*domain.Customer, error) {
	if err := policy.Authorize(caller, policy.KindCustomer, policy.OpList); err != nil {
		return nil, err
	}
	return s.repo.List(ctx)
}

func (s *CustomerService) Get(ctx context.Context, caller *domain.User, id string) (*domain.Customer, error) {
	if err := policy.Authorize(caller, policy.KindCustomer, policy.OpRead); err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, id)
}

// Create stores the photo (if any) before the record so a record never points
// at a missing blob. The blob is removed again when the record write fails.
func (s *CustomerService) Create(ctx context.Context, caller *domain.User, input ports.CreateCustomerInput) (*domain.Customer, error) {
	if err := policy.Authorize(caller, policy.KindCustomer, policy.OpCreate); err != nil {
		return nil, err
	}

	input.Name = strings.TrimSpace(input.Name)
	input.Surname = strings.TrimSpace(input.Surname)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	var key string
	if input.Photo != nil {
		var err error
		if key, err = s.storePhoto(ctx, input.Photo); err != nil {
			return nil, err
		}
	}

	customer := &domain.Customer{
		Name:       input.Name,
		Surname:    input.Surname,
		PhotoKey:   key,
		CreatedBy:  stringPtr(caller.ID),
		ModifiedBy: stringPtr(caller.ID),
	}

	created, err := s.repo.Create(ctx, customer)
	if err != nil {
		s.discardPhoto(ctx, key)
		s.log.Error().Err(err).Str("user_id", caller.ID).Msg("failed to create customer")
		return nil, err
	}

	s.log.Info().Str("customer_id", created.ID).Str("user_id", caller.ID).Msg("customer created")
	s.events.Publish(newAuditEvent(domain.ActionCustomerCreated, policy.KindCustomer, caller, created.ID, nil))
	return created, nil
}

// Update applies a full (partial=false) or partial update. created_by and
// created_at are never changed; modified_by is always the caller.
func (s *CustomerService) Update(ctx context.Context, caller *domain.User, id string, input ports.UpdateCustomerInput, partial bool) (*domain.Customer, error) {
	if err := policy.Authorize(caller, policy.KindCustomer, policy.OpUpdate); err != nil {
		return nil, err
	}

	input.Name = trimPtr(input.Name)
	input.Surname = trimPtr(input.Surname)
	if !partial {
		missing := domain.NewValidationError()
		if input.Name == nil {
			missing.Add("name", "this field is required")
		}
		if input.Surname == nil {
			missing.Add("surname", "this field is required")
		}
		if err := missing.OrNil(); err != nil {
			return nil, err
		}
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var newKey string
	if input.Photo != nil {
		if newKey, err = s.storePhoto(ctx, input.Photo); err != nil {
			return nil, err
		}
	}

	updated := *existing
	if input.Name != nil {
		updated.Name = *input.Name
	}
	if input.Surname != nil {
		updated.Surname = *input.Surname
	}
	switch {
	case newKey != "":
		updated.PhotoKey = newKey
	case input.ClearPhoto:
		updated.PhotoKey = ""
	}
	updated.ModifiedBy = stringPtr(caller.ID)

	saved, err := s.repo.Update(ctx, &updated)
	if err != nil {
		s.discardPhoto(ctx, newKey)
		return nil, err
	}

	if existing.PhotoKey != "" && existing.PhotoKey != saved.PhotoKey {
		s.discardPhoto(ctx, existing.PhotoKey)
	}

	s.log.Info().Str("customer_id", saved.ID).Str("user_id", caller.ID).Bool("partial", partial).Msg("customer updated")
	s.events.Publish(newAuditEvent(domain.ActionCustomerUpdated, policy.KindCustomer, caller, saved.ID, map[string]any{
		"partial":       partial,
		"photo_changed": existing.PhotoKey != saved.PhotoKey,
	}))
	return saved, nil
}

func (s *CustomerService) Delete(ctx context.Context, caller *domain.User, id string) error {
	if err := policy.Authorize(caller, policy.KindCustomer, policy.OpDelete); err != nil {
		return err
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.discardPhoto(ctx, existing.PhotoKey)

	s.log.Info().Str("customer_id", id).Str("user_id", caller.ID).Msg("customer deleted")
	s.events.Publish(newAuditEvent(domain.ActionCustomerDeleted, policy.KindCustomer, caller, id, nil))
	return nil
}

// storePhoto checks size and content type, then writes the blob under a fresh
// key. The content type is sniffed from the bytes, never taken from the client.
func (s *CustomerService) storePhoto(ctx context.Context, photo *ports.PhotoUpload) (string, error) {
	if photo.Content == nil {
		return "", domain.FieldError("photo", "no file was submitted")
	}
	if photo.Size > s.maxPhotoBytes {
		return "", domain.ErrPayloadTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(photo.Content, s.maxPhotoBytes+1))
	if err != nil {
		return "", fmt.Errorf("read photo: %w", err)
	}
	if int64(len(data)) > s.maxPhotoBytes {
		return "", domain.ErrPayloadTooLarge
	}
	if len(data) == 0 {
		return "", domain.FieldError("photo", "the submitted file is empty")
	}

	mt := mimetype.Detect(data)
	if !mimetype.EqualsAny(mt.String(), allowedPhotoTypes...) {
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedMedia, mt.String())
	}

	key := PhotoKeyPrefix + uuid.NewString() + mt.Extension()
	if err := s.blobs.Put(ctx, key, bytes.NewReader(data), mt.String()); err != nil {
		return "", fmt.Errorf("store photo: %w", err)
	}
	return key, nil
}

// discardPhoto removes a blob that is no longer referenced. Failures leave an
// orphan and are only logged.
func (s *CustomerService) discardPhoto(ctx context.Context, key string) {
	if key == "" {
		return
	}
	cctx, cancel := detached(ctx)
	defer cancel()
	if err := s.blobs.Delete(cctx, key); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to remove photo blob")
	}
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
