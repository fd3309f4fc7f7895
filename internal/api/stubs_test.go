package api

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/crmhub/crm-api/internal/core/domain"
)

// ── In-memory user repository ────────────────────────────────────────────────

type memUserRepo struct {
	mu    sync.Mutex
	seq   int
	users map[string]*domain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*domain.User)}
}

func (r *memUserRepo) conflicts(u *domain.User) bool {
	for id, other := range r.users {
		if id == u.ID {
			continue
		}
		if other.Username == u.Username || (u.Email != "" && other.Email == u.Email) {
			return true
		}
		if u.SocialID != "" && other.SocialProvider == u.SocialProvider && other.SocialID == u.SocialID {
			return true
		}
	}
	return false
}

func (r *memUserRepo) Create(_ context.Context, u *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conflicts(u) {
		return nil, domain.ErrUserExists
	}
	r.seq++
	cp := *u
	cp.ID = fmt.Sprintf("u%d", r.seq)
	if cp.DateJoined.IsZero() {
		cp.DateJoined = time.Now().UTC()
	}
	r.users[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r *memUserRepo) Update(_ context.Context, u *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.users[u.ID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	if r.conflicts(u) {
		return nil, domain.ErrUserExists
	}
	cp := *u
	cp.DateJoined = existing.DateJoined
	cp.UpdatedAt = time.Now().UTC()
	r.users[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r *memUserRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return domain.ErrUserNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *memUserRepo) find(match func(*domain.User) bool) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if match(u) {
			out := *u
			return &out, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *memUserRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return u.ID == id })
}

func (r *memUserRepo) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return u.Username == username })
}

func (r *memUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	if email == "" {
		return nil, domain.ErrUserNotFound
	}
	return r.find(func(u *domain.User) bool { return u.Email == email })
}

func (r *memUserRepo) FindBySocial(_ context.Context, provider, socialID string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return u.SocialProvider == provider && u.SocialID == socialID })
}

func (r *memUserRepo) List(_ context.Context) ([]*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.User, 0, len(r.users))
	for _, u := range r.users {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (r *memUserRepo) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.LastLogin = &at
	return nil
}

// ── In-memory customer repository ────────────────────────────────────────────

type memCustomerRepo struct {
	mu        sync.Mutex
	seq       int
	customers map[string]*domain.Customer
	order     []string
}

func newMemCustomerRepo() *memCustomerRepo {
	return &memCustomerRepo{customers: make(map[string]*domain.Customer)}
}

func (r *memCustomerRepo) Create(_ context.Context, c *domain.Customer) (*domain.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	cp := *c
	cp.ID = fmt.Sprintf("c%d", r.seq)
	cp.CreatedAt = time.Now().UTC()
	cp.UpdatedAt = cp.CreatedAt
	r.customers[cp.ID] = &cp
	r.order = append(r.order, cp.ID)
	out := cp
	return &out, nil
}

func (r *memCustomerRepo) Update(_ context.Context, c *domain.Customer) (*domain.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.customers[c.ID]
	if !ok {
		return nil, domain.ErrCustomerNotFound
	}
	cp := *c
	cp.CreatedBy = existing.CreatedBy
	cp.CreatedAt = existing.CreatedAt
	cp.UpdatedAt = time.Now().UTC()
	r.customers[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r *memCustomerRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.customers[id]; !ok {
		return domain.ErrCustomerNotFound
	}
	delete(r.customers, id)
	return nil
}

func (r *memCustomerRepo) FindByID(_ context.Context, id string) (*domain.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.customers[id]
	if !ok {
		return nil, domain.ErrCustomerNotFound
	}
	out := *c
	return &out, nil
}

func (r *memCustomerRepo) List(_ context.Context) ([]*domain.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Customer, 0, len(r.customers))
	for _, id := range r.order {
		if c, ok := r.customers[id]; ok {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memCustomerRepo) ClearUserReferences(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.customers {
		if c.CreatedBy != nil && *c.CreatedBy == userID {
			c.CreatedBy = nil
		}
		if c.ModifiedBy != nil && *c.ModifiedBy == userID {
			c.ModifiedBy = nil
		}
	}
	return nil
}

// ── In-memory token store ────────────────────────────────────────────────────

type memTokenStore struct {
	mu      sync.Mutex
	revoked map[string]bool
}

func (s *memTokenStore) Revoke(_ context.Context, id string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.revoked == nil {
		s.revoked = make(map[string]bool)
	}
	s.revoked[id] = true
	return nil
}

func (s *memTokenStore) IsRevoked(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revoked[id], nil
}
