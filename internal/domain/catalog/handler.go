package catalog

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cdss/cdss/internal/platform/auth"
	"github.com/cdss/cdss/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole("admin", "clinician", "viewer"))
	read.GET("/concepts", h.List)
	read.GET("/concepts/:code", h.Get)
	read.GET("/concepts/resolve", h.Resolve)

	write := api.Group("", auth.RequireRole("admin"))
	write.POST("/concepts", h.Create)
}

func (h *Handler) Create(c echo.Context) error {
	var concept Concept
	if err := c.Bind(&concept); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Create(c.Request().Context(), &concept); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, concept)
}

func (h *Handler) Get(c echo.Context) error {
	concept, err := h.svc.GetByCode(c.Request().Context(), c.Param("code"))
	if errors.Is(err, ErrUnknownConcept) {
		return echo.NewHTTPError(http.StatusNotFound, "concept not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, concept)
}

// Resolve maps ?component=NAME to a single concept, or searches with
// ?q=FRAGMENT when no exact component is given.
func (h *Handler) Resolve(c echo.Context) error {
	if name := c.QueryParam("component"); name != "" {
		concept, err := h.svc.ResolveComponent(c.Request().Context(), name)
		switch {
		case errors.Is(err, ErrUnknownConcept):
			return echo.NewHTTPError(http.StatusNotFound, "no concept matches component")
		case errors.Is(err, ErrAmbiguousConcept):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		case err != nil:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, concept)
	}

	fragment := c.QueryParam("q")
	if fragment == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "component or q parameter required")
	}
	pg := pagination.FromContext(c)
	concepts, total, err := h.svc.SearchComponent(c.Request().Context(), fragment, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(concepts, total, pg))
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	concepts, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(concepts, total, pg))
}
