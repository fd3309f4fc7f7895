package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/crmhub/crm-api/internal/api/schema"
)

// Describe answers OPTIONS requests with the resource's field metadata: the
// fields it renders, the fields it accepts and their types.
func Describe(s schema.Schema) echo.HandlerFunc {
	meta := s.Metadata()
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, meta)
	}
}
