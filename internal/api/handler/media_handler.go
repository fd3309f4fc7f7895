package handler

import (
	"errors"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/crmhub/crm-api/internal/core/domain"
	"github.com/crmhub/crm-api/internal/core/ports"
)

// MediaHandler streams stored blobs under /media/*.
type MediaHandler struct {
	blobs ports.BlobStore
}

func NewMediaHandler(blobs ports.BlobStore) *MediaHandler {
	return &MediaHandler{blobs: blobs}
}

// Serve handles GET /media/*.
func (h *MediaHandler) Serve(c echo.Context) error {
	key := c.Param("*")
	if key == "" || strings.Contains(key, "..") || path.Clean("/"+key) != "/"+key {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}

	rc, info, err := h.blobs.Open(c.Request().Context(), key)
	if err != nil {
		if errors.Is(err, domain.ErrBlobNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "not found")
		}
		return err
	}
	defer rc.Close()

	ctype := info.ContentType
	if ctype == "" {
		ctype = mime.TypeByExtension(path.Ext(key))
	}
	if ctype == "" {
		ctype = echo.MIMEOctetStream
	}

	header := c.Response().Header()
	if info.Size > 0 {
		header.Set(echo.HeaderContentLength, strconv.FormatInt(info.Size, 10))
	}
	header.Set("X-Content-Type-Options", "nosniff")
	header.Set("Cache-Control", "private, max-age=3600")
	return c.Stream(http.StatusOK, ctype, rc)
}
