package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/crmhub/crm-api/internal/api/metrics"
	"github.com/crmhub/crm-api/internal/api/schema"
	"github.com/crmhub/crm-api/internal/core/domain"
	"github.com/crmhub/crm-api/internal/core/ports"
)

// CustomerHandler serves the /customers resource. Bodies may be JSON,
// url-encoded or multipart (for the photo file part).
type CustomerHandler struct {
	svc   ports.CustomerService
	media mediaURLs
}

func NewCustomerHandler(svc ports.CustomerService, mediaURL string) *CustomerHandler {
	return &CustomerHandler{svc: svc, media: newMediaURLs(mediaURL)}
}

// List handles GET /customers.
func (h *CustomerHandler) List(c echo.Context) error {
	caller, err := ctxCaller(c)
	if err != nil {
		return err
	}

	customers, err := h.svc.List(c.Request().Context(), caller)
	if err != nil {
		return err
	}

	out := make([]*customerResponse, 0, len(customers))
	for _, cust := range customers {
		out = append(out, h.media.customer(c, cust))
	}
	return c.JSON(http.StatusOK, out)
}

// Get handles GET /customers/:id.
func (h *CustomerHandler) Get(c echo.Context) error {
	caller, err := ctxCaller(c)
	if err != nil {
		return err
	}

	cust, err := h.svc.Get(c.Request().Context(), caller, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.media.customer(c, cust))
}

// Create handles POST /customers. Client-supplied audit fields are ignored.
func (h *CustomerHandler) Create(c echo.Context) error {
	caller, err := ctxCaller(c)
	if err != nil {
		return err
	}

	body, err := readBody(c)
	if err != nil {
		return err
	}
	values, err := schema.Customer.Decode(body, false)
	if err != nil {
		return err
	}

	photo, closePhoto, err := openPhoto(values.File("photo"))
	if err != nil {
		return err
	}
	defer closePhoto()

	cust, err := h.svc.Create(c.Request().Context(), caller, ports.CreateCustomerInput{
		Name:    deref(values.Text("name")),
		Surname: deref(values.Text("surname")),
		Photo:   photo,
	})
	recordPhoto(photo, err)
	if err != nil {
		return err
	}

	metrics.CustomersCreatedTotal.Inc()
	return c.JSON(http.StatusCreated, h.media.customer(c, cust))
}

// Update handles PUT /customers/:id.
func (h *CustomerHandler) Update(c echo.Context) error {
	return h.update(c, false)
}

// PartialUpdate handles PATCH /customers/:id.
func (h *CustomerHandler) PartialUpdate(c echo.Context) error {
	return h.update(c, true)
}

func (h *CustomerHandler) update(c echo.Context, partial bool) error {
	caller, err := ctxCaller(c)
	if err != nil {
		return err
	}

	body, err := readBody(c)
	if err != nil {
		return err
	}
	values, err := schema.Customer.Decode(body, partial)
	if err != nil {
		return err
	}

	photo, closePhoto, err := openPhoto(values.File("photo"))
	if err != nil {
		return err
	}
	defer closePhoto()

	cust, err := h.svc.Update(c.Request().Context(), caller, c.Param("id"), ports.UpdateCustomerInput{
		Name:       values.Text("name"),
		Surname:    values.Text("surname"),
		Photo:      photo,
		ClearPhoto: values.Cleared("photo"),
	}, partial)
	recordPhoto(photo, err)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.media.customer(c, cust))
}

// Delete handles DELETE /customers/:id.
func (h *CustomerHandler) Delete(c echo.Context) error {
	caller, err := ctxCaller(c)
	if err != nil {
		return err
	}

	if err := h.svc.Delete(c.Request().Context(), caller, c.Param("id")); err != nil {
		return err
	}
	metrics.CustomersDeletedTotal.Inc()
	return c.NoContent(http.StatusNoContent)
}

func recordPhoto(photo *ports.PhotoUpload, err error) {
	if photo == nil {
		return
	}
	switch {
	case err == nil:
		metrics.PhotoUploadsTotal.WithLabelValues("stored").Inc()
	case errors.Is(err, domain.ErrUnsupportedMedia):
		metrics.PhotoUploadsTotal.WithLabelValues("rejected_type").Inc()
	case errors.Is(err, domain.ErrPayloadTooLarge):
		metrics.PhotoUploadsTotal.WithLabelValues("too_large").Inc()
	default:
		metrics.PhotoUploadsTotal.WithLabelValues("error").Inc()
	}
}
