package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/crmhub/crm-api/internal/api/metrics"
	"github.com/crmhub/crm-api/internal/api/schema"
	"github.com/crmhub/crm-api/internal/core/domain"
	"github.com/crmhub/crm-api/internal/core/ports"
)

// UserHandler serves the admin-only /users resource.
type UserHandler struct {
	svc ports.UserService
}

func NewUserHandler(svc ports.UserService) *UserHandler {
	return &UserHandler{svc: svc}
}

// List handles GET /users.
func (h *UserHandler) List(c echo.Context) error {
	caller, err := ctxCaller(c)
	if err != nil {
		return err
	}

	users, err := h.svc.List(c.Request().Context(), caller)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserResponses(users))
}

// Get handles GET /users/:id.
func (h *UserHandler) Get(c echo.Context) error {
	caller, err := ctxCaller(c)
	if err != nil {
		return err
	}

	u, err := h.svc.Get(c.Request().Context(), caller, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserResponse(u))
}

// Create handles POST /users.
func (h *UserHandler) Create(c echo.Context) error {
	caller, err := ctxCaller(c)
	if err != nil {
		return err
	}

	body, err := readBody(c)
	if err != nil {
		return err
	}
	values, err := schema.User.Decode(body, false)
	if err != nil {
		return err
	}

	in := ports.CreateUserInput{
		Username: deref(values.Text("username")),
		Email:    deref(values.Text("email")),
		Password: deref(values.Text("password")),
		IsActive: values.Bool("is_active"),
	}
	if v := values.Bool("is_admin"); v != nil {
		in.IsAdmin = *v
	}

	u, err := h.svc.Create(c.Request().Context(), caller, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toUserResponse(u))
}

// Update handles PUT /users/:id.
func (h *UserHandler) Update(c echo.Context) error {
	return h.update(c, false)
}

// PartialUpdate handles PATCH /users/:id.
func (h *UserHandler) PartialUpdate(c echo.Context) error {
	return h.update(c, true)
}

func (h *UserHandler) update(c echo.Context, partial bool) error {
	caller, err := ctxCaller(c)
	if err != nil {
		return err
	}

	body, err := readBody(c)
	if err != nil {
		return err
	}
	values, err := schema.User.Decode(body, partial)
	if err != nil {
		return err
	}

	u, err := h.svc.Update(c.Request().Context(), caller, c.Param("id"), ports.UpdateUserInput{
		Username: values.Text("username"),
		Email:    values.Text("email"),
		Password: values.Text("password"),
		IsAdmin:  values.Bool("is_admin"),
		IsActive: values.Bool("is_active"),
	}, partial)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserResponse(u))
}

// Delete handles DELETE /users/:id.
func (h *UserHandler) Delete(c echo.Context) error {
	caller, err := ctxCaller(c)
	if err != nil {
		return err
	}

	if err := h.svc.Delete(c.Request().Context(), caller, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// SetAdminStatus handles PATCH /users/:id/set-admin-status. The body must
// carry a boolean is_admin; nothing else is read.
func (h *UserHandler) SetAdminStatus(c echo.Context) error {
	caller, err := ctxCaller(c)
	if err != nil {
		return err
	}

	body, err := readBody(c)
	if err != nil {
		return err
	}
	if _, ok := body["is_admin"]; !ok {
		return &domain.ValidationError{
			Detail: "is_admin field is required",
			Fields: map[string][]string{"is_admin": {"this field is required"}},
		}
	}
	values, err := schema.AdminStatus.Decode(body, false)
	if err != nil {
		return err
	}
	isAdmin := *values.Bool("is_admin")

	u, err := h.svc.SetAdminStatus(c.Request().Context(), caller, c.Param("id"), isAdmin)
	if err != nil {
		return err
	}

	metrics.AdminStatusChangesTotal.WithLabelValues(strconv.FormatBool(isAdmin)).Inc()
	return c.JSON(http.StatusOK, toUserResponse(u))
}
