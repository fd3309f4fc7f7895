package handler

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"

	"github.com/labstack/echo/v4"

	"github.com/crmhub/crm-api/internal/api/schema"
	"github.com/crmhub/crm-api/internal/core/domain"
	"github.com/crmhub/crm-api/internal/core/ports"
)

const maxMultipartMemory = 8 << 20

// readBody decodes a JSON object, url-encoded form or multipart form into a
// loosely typed map for schema decoding. Form values are tagged as
// schema.FormValue; uploaded files are *multipart.FileHeader.
func readBody(c echo.Context) (map[string]any, error) {
	req := c.Request()
	ctype := req.Header.Get(echo.HeaderContentType)
	if ctype == "" && req.ContentLength == 0 {
		return map[string]any{}, nil
	}

	mediaType, _, err := mime.ParseMediaType(ctype)
	if err != nil && ctype != "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedMedia, ctype)
	}

	switch mediaType {
	case echo.MIMEApplicationJSON, "":
		body := map[string]any{}
		if err := decodeJSON(req.Body, &body); err != nil {
			if errors.Is(err, io.EOF) {
				return body, nil
			}
			var he *echo.HTTPError
			if errors.As(err, &he) {
				return nil, he
			}
			return nil, &domain.ValidationError{Detail: "JSON parse error: " + err.Error()}
		}
		return body, nil

	case echo.MIMEApplicationForm:
		if err := req.ParseForm(); err != nil {
			return nil, formError(err)
		}
		body := make(map[string]any, len(req.PostForm))
		for key, vals := range req.PostForm {
			if len(vals) > 0 {
				body[key] = schema.FormValue(vals[0])
			}
		}
		return body, nil

	case echo.MIMEMultipartForm:
		if err := req.ParseMultipartForm(maxMultipartMemory); err != nil {
			return nil, formError(err)
		}
		form := req.MultipartForm
		body := make(map[string]any, len(form.Value)+len(form.File))
		for key, vals := range form.Value {
			if len(vals) > 0 {
				body[key] = schema.FormValue(vals[0])
			}
		}
		for key, files := range form.File {
			if len(files) > 0 {
				body[key] = files[0]
			}
		}
		return body, nil

	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedMedia, mediaType)
	}
}

func formError(err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	return &domain.ValidationError{Detail: "form parse error: " + err.Error()}
}

// openPhoto opens an uploaded file for the service. The returned close
// function is always safe to call.
func openPhoto(fh *multipart.FileHeader) (*ports.PhotoUpload, func(), error) {
	if fh == nil {
		return nil, func() {}, nil
	}
	f, err := fh.Open()
	if err != nil {
		return nil, func() {}, fmt.Errorf("open upload: %w", err)
	}
	return &ports.PhotoUpload{Filename: fh.Filename, Size: fh.Size, Content: f}, func() { _ = f.Close() }, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
