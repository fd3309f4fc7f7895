package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/crmhub/crm-api/internal/core/domain"
)

// Machine-readable error kinds.
const (
	KindUnauthorized     = "unauthorized"
	KindForbidden        = "forbidden"
	KindValidation       = "validation_error"
	KindNotFound         = "not_found"
	KindConflict         = "conflict"
	KindUpstreamAuth     = "upstream_auth_error"
	KindUnsupportedMedia = "unsupported_media_type"
	KindPayloadTooLarge  = "payload_too_large"
	KindMethodNotAllowed = "method_not_allowed"
	KindBadRequest       = "bad_request"
	KindServerError      = "server_error"
)

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Error  string              `json:"error"`
	Kind   string              `json:"kind"`
	Fields map[string][]string `json:"fields,omitempty"`
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps known domain errors to their HTTP status codes and kinds.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders a consistent JSON envelope: {"error": "<detail>", "kind": "<kind>"}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, resp := resolveError(err, log, c)
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, resp)
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, errorResponse) {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		msg := ve.Detail
		if msg == "" {
			msg = "invalid input"
		}
		return http.StatusBadRequest, errorResponse{Error: msg, Kind: KindValidation, Fields: ve.Fields}
	}

	// Echo's own errors (bind failures, 404 from router, body limit, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, errorResponse{Error: fmt.Sprintf("%v", he.Message), Kind: kindForStatus(he.Code)}
	}

	// Known domain errors → deterministic HTTP codes.
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, errorResponse{Error: domain.ErrUnauthorized.Error(), Kind: KindUnauthorized}
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorResponse{Error: domain.ErrInvalidCredentials.Error(), Kind: KindUnauthorized}
	case errors.Is(err, domain.ErrInactiveUser):
		return http.StatusUnauthorized, errorResponse{Error: domain.ErrInactiveUser.Error(), Kind: KindUnauthorized}
	case errors.Is(err, domain.ErrUpstreamAuth):
		return http.StatusUnauthorized, errorResponse{Error: domain.ErrUpstreamAuth.Error(), Kind: KindUpstreamAuth}
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, errorResponse{Error: domain.ErrForbidden.Error(), Kind: KindForbidden}
	case errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound, errorResponse{Error: "user not found", Kind: KindNotFound}
	case errors.Is(err, domain.ErrCustomerNotFound):
		return http.StatusNotFound, errorResponse{Error: "customer not found", Kind: KindNotFound}
	case errors.Is(err, domain.ErrBlobNotFound):
		return http.StatusNotFound, errorResponse{Error: "not found", Kind: KindNotFound}
	case errors.Is(err, domain.ErrUserExists):
		return http.StatusConflict, errorResponse{Error: "a user with that username or email already exists", Kind: KindConflict}
	case errors.Is(err, domain.ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType, errorResponse{Error: err.Error(), Kind: KindUnsupportedMedia}
	case errors.Is(err, domain.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, errorResponse{Error: domain.ErrPayloadTooLarge.Error(), Kind: KindPayloadTooLarge}
	}

	// Unexpected error: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return http.StatusInternalServerError, errorResponse{Error: "internal server error", Kind: KindServerError}
}

func kindForStatus(code int) string {
	switch code {
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusMethodNotAllowed:
		return KindMethodNotAllowed
	case http.StatusConflict:
		return KindConflict
	case http.StatusUnsupportedMediaType:
		return KindUnsupportedMedia
	case http.StatusRequestEntityTooLarge:
		return KindPayloadTooLarge
	case http.StatusBadRequest:
		return KindBadRequest
	default:
		if code >= 500 {
			return KindServerError
		}
		return KindBadRequest
	}
}
