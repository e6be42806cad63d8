package account

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/vitals/internal/platform/apierr"
	"github.com/ehr/vitals/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/accounts/me", h.Me)
}

func (h *Handler) Me(c echo.Context) error {
	ctx := c.Request().Context()
	prof, err := h.svc.Me(ctx, auth.PrincipalFromContext(ctx))
	if err != nil {
		return apierr.From(c, err)
	}
	return c.JSON(http.StatusOK, prof)
}
