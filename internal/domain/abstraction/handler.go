package abstraction

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/cdss/cdss/internal/domain/patient"
	"github.com/cdss/cdss/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole("admin", "clinician", "viewer"))
	read.GET("/patients/:id/abstractions", h.List)

	write := api.Group("", auth.RequireRole("admin", "clinician"))
	write.POST("/patients/:id/abstractions", h.Recompute)
}

type recomputeRequest struct {
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Snapshot    time.Time `json:"snapshot"`
}

func (h *Handler) Recompute(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	var req recomputeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.WindowStart.IsZero() || req.WindowEnd.IsZero() || !req.WindowStart.Before(req.WindowEnd) {
		return echo.NewHTTPError(http.StatusBadRequest, "window_start must precede window_end")
	}

	intervals, err := h.svc.Recompute(c.Request().Context(), patientID, req.WindowStart, req.WindowEnd, req.Snapshot)
	if errors.Is(err, patient.ErrUnknownPatient) {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if intervals == nil {
		intervals = []Interval{}
	}
	return c.JSON(http.StatusOK, intervals)
}

func (h *Handler) List(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	intervals, err := h.svc.Cached(c.Request().Context(), patientID, c.QueryParam("concept"))
	if errors.Is(err, patient.ErrUnknownPatient) {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if intervals == nil {
		intervals = []Interval{}
	}
	return c.JSON(http.StatusOK, intervals)
}
