package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/crmhub/crm-api/internal/api/metrics"
	"github.com/crmhub/crm-api/internal/api/middleware"
	"github.com/crmhub/crm-api/internal/api/schema"
	"github.com/crmhub/crm-api/internal/core/ports"
)

type AuthHandler struct {
	authService ports.AuthService
}

func NewAuthHandler(authService ports.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type loginRequest struct {
	Username string `json:"username" form:"username" validate:"required"`
	Password string `json:"password" form:"password" validate:"required"`
}

type registerRequest struct {
	Username string `json:"username" form:"username" validate:"required"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password" validate:"required"`
}

type googleLoginRequest struct {
	Code        string `json:"code" form:"code"`
	AccessToken string `json:"access_token" form:"access_token"`
}

type changePasswordRequest struct {
	OldPassword  string `json:"old_password" form:"old_password"`
	NewPassword1 string `json:"new_password1" form:"new_password1"`
	NewPassword2 string `json:"new_password2" form:"new_password2"`
}

type googleAuthURLResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	res, err := h.authService.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		metrics.AuthLoginsTotal.WithLabelValues("password", "failure").Inc()
		return err
	}

	metrics.AuthLoginsTotal.WithLabelValues("password", "success").Inc()
	return c.JSON(http.StatusOK, toTokenResponse(res))
}

// Register handles POST /auth/registration. Any is_admin in the body is
// ignored; registered accounts are never admins.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	res, err := h.authService.Register(c.Request().Context(), ports.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		metrics.AuthLoginsTotal.WithLabelValues("registration", "failure").Inc()
		return err
	}

	metrics.AuthLoginsTotal.WithLabelValues("registration", "success").Inc()
	return c.JSON(http.StatusCreated, toTokenResponse(res))
}

// GoogleLogin handles POST /auth/google with either an authorization code or
// a Google access token.
func (h *AuthHandler) GoogleLogin(c echo.Context) error {
	var req googleLoginRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	res, err := h.authService.GoogleLogin(c.Request().Context(), ports.GoogleLoginInput{
		Code:        req.Code,
		AccessToken: req.AccessToken,
	})
	if err != nil {
		metrics.AuthLoginsTotal.WithLabelValues("google", "failure").Inc()
		return err
	}

	metrics.AuthLoginsTotal.WithLabelValues("google", "success").Inc()
	return c.JSON(http.StatusOK, toTokenResponse(res))
}

// Logout handles POST /auth/logout and revokes the presented token.
func (h *AuthHandler) Logout(c echo.Context) error {
	if _, err := ctxCaller(c); err != nil {
		return err
	}
	if err := h.authService.Logout(c.Request().Context(), middleware.Session(c)); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, detailResponse{Detail: "successfully logged out"})
}

// Me handles GET /auth/user.
func (h *AuthHandler) Me(c echo.Context) error {
	caller, err := ctxCaller(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserResponse(caller))
}

// GoogleAuthURL handles GET /auth/google/url. The client keeps the returned
// state and compares it with the one Google sends back with the code.
func (h *AuthHandler) GoogleAuthURL(c echo.Context) error {
	state := uuid.NewString()
	url, err := h.authService.GoogleAuthURL(state)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, googleAuthURLResponse{AuthorizationURL: url, State: state})
}

// UpdateProfile handles PUT /auth/user.
func (h *AuthHandler) UpdateProfile(c echo.Context) error {
	return h.updateProfile(c, false)
}

// PartialUpdateProfile handles PATCH /auth/user.
func (h *AuthHandler) PartialUpdateProfile(c echo.Context) error {
	return h.updateProfile(c, true)
}

// updateProfile decodes against schema.Profile, so is_admin, is_superuser
// and is_active in the body are ignored.
func (h *AuthHandler) updateProfile(c echo.Context, partial bool) error {
	caller, err := ctxCaller(c)
	if err != nil {
		return err
	}

	body, err := readBody(c)
	if err != nil {
		return err
	}
	values, err := schema.Profile.Decode(body, partial)
	if err != nil {
		return err
	}

	u, err := h.authService.UpdateProfile(c.Request().Context(), caller, ports.ProfileInput{
		Username: values.Text("username"),
		Email:    values.Text("email"),
	}, partial)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserResponse(u))
}

// ChangePassword handles POST /auth/password/change.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	caller, err := ctxCaller(c)
	if err != nil {
		return err
	}

	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	if err := h.authService.ChangePassword(c.Request().Context(), caller, ports.ChangePasswordInput{
		OldPassword:  req.OldPassword,
		NewPassword1: req.NewPassword1,
		NewPassword2: req.NewPassword2,
	}); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, detailResponse{Detail: "New password has been saved."})
}

func toTokenResponse(res *ports.AuthResult) tokenResponse {
	return tokenResponse{Token: res.Token, ExpiresAt: res.ExpiresAt, User: toUserResponse(res.User)}
}
