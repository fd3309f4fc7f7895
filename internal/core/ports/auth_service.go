package ports

import (
	"context"
	"time"

	"github.com/crmhub/crm-api/internal/core/domain"
)

// RegisterInput carries self-service sign-up data. Admin status can never be
// requested through registration.
type RegisterInput struct {
	Username string `json:"username" validate:"required,max=150,username"`
	Email    string `json:"email" validate:"omitempty,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// GoogleLoginInput carries exactly one of an authorization code or a
// Google-issued access token.
type GoogleLoginInput struct {
	Code        string `json:"code" validate:"required_without=AccessToken"`
	AccessToken string `json:"access_token" validate:"required_without=Code"`
}

// ProfileInput carries a self-service profile edit. Only the username and the
// email are writable; nil pointers leave the stored value untouched.
type ProfileInput struct {
	Username *string `json:"username" validate:"omitnil,min=1,max=150,username"`
	Email    *string `json:"email" validate:"omitnil,max=254"`
}

// ChangePasswordInput carries a password change for the calling account.
// OldPassword is only checked when the account has a usable password.
type ChangePasswordInput struct {
	OldPassword  string `json:"old_password"`
	NewPassword1 string `json:"new_password1" validate:"required,min=8,max=128"`
	NewPassword2 string `json:"new_password2" validate:"required"`
}

// AuthResult is returned by every successful login flow.
type AuthResult struct {
	Token     string
	ExpiresAt time.Time
	User      *domain.User
	Created   bool
}

// Session identifies the access token a request was authenticated with.
type Session struct {
	TokenID   string
	ExpiresAt time.Time
}

type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (*AuthResult, error)
	Login(ctx context.Context, username, password string) (*AuthResult, error)
	Authenticate(ctx context.Context, token string) (*domain.User, *Session, error)
	Logout(ctx context.Context, session *Session) error
	GoogleLogin(ctx context.Context, input GoogleLoginInput) (*AuthResult, error)
	GoogleAuthURL(state string) (string, error)
	UpdateProfile(ctx context.Context, caller *domain.User, input ProfileInput, partial bool) (*domain.User, error)
	ChangePassword(ctx context.Context, caller *domain.User, input ChangePasswordInput) error
}
