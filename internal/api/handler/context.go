package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/crmhub/crm-api/internal/api/middleware"
	"github.com/crmhub/crm-api/internal/core/domain"
)

// ctxCaller returns the caller injected by the Auth middleware. Its absence
// means the route was mounted without Auth, which is treated as anonymous.
func ctxCaller(c echo.Context) (*domain.User, error) {
	caller := middleware.Caller(c)
	if caller == nil {
		return nil, domain.ErrUnauthorized
	}
	return caller, nil
}
