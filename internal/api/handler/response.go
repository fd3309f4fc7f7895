package handler

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/crmhub/crm-api/internal/core/domain"
)

// customerResponse follows the field order of schema.Customer.
type customerResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Surname    string    `json:"surname"`
	Photo      *string   `json:"photo"`
	PhotoURL   *string   `json:"photo_url"`
	CreatedBy  *string   `json:"created_by"`
	ModifiedBy *string   `json:"modified_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// userResponse follows the field order of schema.User; password is never
// rendered.
type userResponse struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	IsAdmin     bool       `json:"is_admin"`
	IsActive    bool       `json:"is_active"`
	IsSuperuser bool       `json:"is_superuser"`
	DateJoined  time.Time  `json:"date_joined"`
	LastLogin   *time.Time `json:"last_login"`
}

type tokenResponse struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	User      *userResponse `json:"user"`
}

type detailResponse struct {
	Detail string `json:"detail"`
}

func toUserResponse(u *domain.User) *userResponse {
	return &userResponse{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		IsAdmin:     u.IsAdmin,
		IsActive:    u.IsActive,
		IsSuperuser: u.IsSuperuser,
		DateJoined:  u.DateJoined,
		LastLogin:   u.LastLogin,
	}
}

func toUserResponses(users []*domain.User) []*userResponse {
	out := make([]*userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	return out
}

// mediaURLs turns blob keys into absolute URLs. A base starting with "/" is
// resolved against the scheme and host of the current request.
type mediaURLs struct {
	base string
}

func newMediaURLs(base string) mediaURLs {
	if base == "" {
		base = "/media/"
	}
	return mediaURLs{base: strings.TrimSuffix(base, "/") + "/"}
}

func (m mediaURLs) resolve(c echo.Context, key string) string {
	u := m.base + strings.TrimPrefix(key, "/")
	if strings.HasPrefix(u, "/") {
		u = c.Scheme() + "://" + c.Request().Host + u
	}
	return u
}

func (m mediaURLs) customer(c echo.Context, cust *domain.Customer) *customerResponse {
	resp := &customerResponse{
		ID:         cust.ID,
		Name:       cust.Name,
		Surname:    cust.Surname,
		CreatedBy:  cust.CreatedBy,
		ModifiedBy: cust.ModifiedBy,
		CreatedAt:  cust.CreatedAt,
		UpdatedAt:  cust.UpdatedAt,
	}
	if cust.HasPhoto() {
		key := cust.PhotoKey
		url := m.resolve(c, key)
		resp.Photo = &key
		resp.PhotoURL = &url
	}
	return resp
}
