package ledger

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/cdss/cdss/internal/domain/catalog"
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
	read.GET("/patients/:id/measurements", h.Query)
	read.GET("/patients/:id/measurements/history", h.History)

	write := api.Group("", auth.RequireRole("admin", "clinician"))
	write.POST("/patients/:id/measurements", h.Insert)
	write.POST("/patients/:id/measurements/correct", h.Correct)
	write.POST("/patients/:id/measurements/retract", h.Retract)
}

type insertRequest struct {
	ConceptCode string    `json:"concept_code"`
	Value       string    `json:"value"`
	Unit        string    `json:"unit"`
	ValidStart  time.Time `json:"valid_start_time"`
	InsertedAt  time.Time `json:"inserted_at"`
}

type correctRequest struct {
	ConceptCode string    `json:"concept_code"`
	NewValue    string    `json:"new_value"`
	ValidStart  time.Time `json:"valid_start_time"`
	CorrectedAt time.Time `json:"corrected_at"`
}

type retractRequest struct {
	ConceptCode string    `json:"concept_code"`
	ValidStart  time.Time `json:"valid_start_time"`
	RetractedAt time.Time `json:"retracted_at"`
}

func httpError(err error) error {
	switch {
	case errors.Is(err, patient.ErrUnknownPatient), errors.Is(err, catalog.ErrUnknownConcept):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicateOpenVersion),
		errors.Is(err, ErrNoOpenVersion),
		errors.Is(err, ErrFutureConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, catalog.ErrValueNotAllowed):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) Insert(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	var req insertRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ConceptCode == "" || req.ValidStart.IsZero() || req.Value == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "concept_code, valid_start_time and value are required")
	}
	if !req.InsertedAt.IsZero() && req.InsertedAt.Before(req.ValidStart) {
		return echo.NewHTTPError(http.StatusBadRequest, "inserted_at precedes valid_start_time")
	}
	m, err := h.svc.Insert(c.Request().Context(), patientID, req.ConceptCode, req.Value, req.Unit, req.ValidStart, req.InsertedAt)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) Correct(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	var req correctRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ConceptCode == "" || req.ValidStart.IsZero() || req.NewValue == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "concept_code, valid_start_time and new_value are required")
	}
	m, err := h.svc.Correct(c.Request().Context(), patientID, req.ConceptCode, req.ValidStart, req.NewValue, req.CorrectedAt)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) Retract(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	var req retractRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ConceptCode == "" || req.ValidStart.IsZero() {
		return echo.NewHTTPError(http.StatusBadRequest, "concept_code and valid_start_time are required")
	}
	if err := h.svc.Retract(c.Request().Context(), patientID, req.ConceptCode, req.ValidStart, req.RetractedAt); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Query serves snapshot reads. Optional params: snapshot (RFC 3339, default
// now), concept, component, from, to.
func (h *Handler) Query(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}

	var q AsOfQuery
	if v := c.QueryParam("snapshot"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid snapshot timestamp")
		}
		q.Snapshot = t
	}
	q.ConceptCode = c.QueryParam("concept")
	q.Component = c.QueryParam("component")
	if v := c.QueryParam("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from timestamp")
		}
		q.From = &t
	}
	if v := c.QueryParam("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to timestamp")
		}
		q.To = &t
	}

	items, err := h.svc.QueryAsOf(c.Request().Context(), patientID, q)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Measurement{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) History(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	conceptCode := c.QueryParam("concept")
	validStartStr := c.QueryParam("valid_start")
	if conceptCode == "" || validStartStr == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "concept and valid_start parameters are required")
	}
	validStart, err := time.Parse(time.RFC3339, validStartStr)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid valid_start timestamp")
	}

	versions, err := h.svc.History(c.Request().Context(), FactKey{
		PatientID:   patientID,
		ConceptCode: conceptCode,
		ValidStart:  validStart,
	})
	if err != nil {
		return httpError(err)
	}
	if versions == nil {
		versions = []*Measurement{}
	}
	return c.JSON(http.StatusOK, versions)
}
