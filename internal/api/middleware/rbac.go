package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/crmhub/crm-api/internal/core/policy"
)

// Authorize evaluates the authorization policy for the route before the
// handler runs, so a caller without privilege is refused before its request
// body is read or validated. Must be chained after Auth.
func Authorize(kind policy.ResourceKind, op policy.Operation) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := policy.Authorize(Caller(c), kind, op); err != nil {
				return err
			}
			return next(c)
		}
	}
}
