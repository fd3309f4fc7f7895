package domain

import "time"

// SocialProviderGoogle identifies accounts bound to a Google identity.
const SocialProviderGoogle = "google"

// User models an authenticated actor in the system. IsAdmin gates access to
// user management; every authenticated user may manage customers.
type User struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"-"`
	IsAdmin        bool       `json:"is_admin"`
	IsSuperuser    bool       `json:"is_superuser"`
	IsActive       bool       `json:"is_active"`
	SocialProvider string     `json:"-"`
	SocialID       string     `json:"-"`
	DateJoined     time.Time  `json:"date_joined"`
	LastLogin      *time.Time `json:"last_login"`
	UpdatedAt      time.Time  `json:"-"`
}

// HasUsablePassword reports whether the account can log in with a password.
// Accounts created through social login carry an empty hash.
func (u *User) HasUsablePassword() bool {
	return u.PasswordHash != ""
}
