package middleware

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/crmhub/crm-api/internal/core/domain"
	"github.com/crmhub/crm-api/internal/core/ports"
)

// Context keys set by Auth.
const (
	CallerKey  = "caller"
	SessionKey = "session"
)

// Authenticator resolves a bearer token to the current user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, *ports.Session, error)
}

// Auth resolves the bearer token and stores the caller and session in the
// request context. Requests without a valid token never reach next.
func Auth(authn Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return domain.ErrUnauthorized
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				return domain.ErrUnauthorized
			}

			user, session, err := authn.Authenticate(c.Request().Context(), strings.TrimSpace(parts[1]))
			if err != nil {
				return err
			}

			c.Set(CallerKey, user)
			c.Set(SessionKey, session)
			return next(c)
		}
	}
}

// Caller returns the authenticated user, or nil on public routes.
func Caller(c echo.Context) *domain.User {
	u, _ := c.Get(CallerKey).(*domain.User)
	return u
}

// Session returns the session of the authenticated request, or nil.
func Session(c echo.Context) *ports.Session {
	s, _ := c.Get(SessionKey).(*ports.Session)
	return s
}
