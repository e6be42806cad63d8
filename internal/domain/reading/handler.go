package reading

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/vitals/internal/platform/apierr"
	"github.com/ehr/vitals/internal/platform/auth"
	"github.com/ehr/vitals/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/heartrates", h.List)
	api.POST("/heartrates", h.Create)
	api.GET("/heartrates/:id", h.Get)
	api.PUT("/heartrates/:id", h.Update)
	api.DELETE("/heartrates/:id", h.Delete)
}

func (h *Handler) Create(c echo.Context) error {
	var in Input
	if err := apierr.Bind(c, &in); err != nil {
		return err
	}
	ctx := c.Request().Context()
	r, err := h.svc.Create(ctx, auth.PrincipalFromContext(ctx), in)
	if err != nil {
		return apierr.From(c, err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apierr.BadRequest("invalid id")
	}
	ctx := c.Request().Context()
	r, _, err := h.svc.Get(ctx, auth.PrincipalFromContext(ctx), id)
	if err != nil {
		return apierr.From(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

// List supports ?patient=, ?device_id=, ?start= and ?end=. Start and end
// accept a date or an ISO 8601 timestamp; a date-only end covers that whole
// day.
func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	q := Query{
		PatientID: c.QueryParam("patient"),
		DeviceID:  c.QueryParam("device_id"),
		Start:     c.QueryParam("start"),
		End:       c.QueryParam("end"),
	}

	ctx := c.Request().Context()
	items, total, err := h.svc.List(ctx, auth.PrincipalFromContext(ctx), q, pg.Limit, pg.Offset)
	if err != nil {
		return apierr.From(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(c, items, total, pg))
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apierr.BadRequest("invalid id")
	}
	var in Input
	if err := apierr.Bind(c, &in); err != nil {
		return err
	}
	ctx := c.Request().Context()
	r, err := h.svc.Update(ctx, auth.PrincipalFromContext(ctx), id, in)
	if err != nil {
		return apierr.From(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apierr.BadRequest("invalid id")
	}
	ctx := c.Request().Context()
	if err := h.svc.Delete(ctx, auth.PrincipalFromContext(ctx), id); err != nil {
		return apierr.From(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
