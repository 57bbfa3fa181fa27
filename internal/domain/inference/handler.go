package inference

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
	read.GET("/patients/:id/assessment", h.Assess)
}

func (h *Handler) Assess(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}

	var snapshot time.Time
	if v := c.QueryParam("snapshot"); v != "" {
		snapshot, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid snapshot timestamp")
		}
	}

	result, err := h.svc.Assess(c.Request().Context(), patientID, snapshot)
	if errors.Is(err, patient.ErrUnknownPatient) {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}
