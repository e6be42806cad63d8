package patient

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
	api.GET("/patients", h.List)
	api.POST("/patients", h.Create)
	api.GET("/patients/:id", h.Get)
	api.PUT("/patients/:id", h.Update)
	api.DELETE("/patients/:id", h.Delete)
}

func (h *Handler) Create(c echo.Context) error {
	var in Input
	if err := apierr.Bind(c, &in); err != nil {
		return err
	}
	ctx := c.Request().Context()
	pt, err := h.svc.Create(ctx, auth.PrincipalFromContext(ctx), in)
	if err != nil {
		return apierr.From(c, err)
	}
	return c.JSON(http.StatusCreated, pt)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apierr.BadRequest("invalid id")
	}
	ctx := c.Request().Context()
	pt, err := h.svc.Get(ctx, auth.PrincipalFromContext(ctx), id)
	if err != nil {
		return apierr.From(c, err)
	}
	return c.JSON(http.StatusOK, pt)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := Filters{ExternalID: c.QueryParam("external_id"), Place: c.QueryParam("place")}

	ctx := c.Request().Context()
	items, total, err := h.svc.List(ctx, auth.PrincipalFromContext(ctx), f, pg.Limit, pg.Offset)
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
	pt, err := h.svc.Update(ctx, auth.PrincipalFromContext(ctx), id, in)
	if err != nil {
		return apierr.From(c, err)
	}
	return c.JSON(http.StatusOK, pt)
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
