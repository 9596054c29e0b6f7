package booking

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/citaflow/citaflow/internal/platform/auth"
	"github.com/citaflow/citaflow/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes wires the appointment surface. Role gating happens here,
// centrally, through the capability table; handlers below never inspect the
// role again except for List's visibility scoping inside the service.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/appointments", h.Create, auth.RequireOperation(auth.OpBookAppointment))
	g.GET("/appointments", h.List, auth.RequireOperation(auth.OpListAppointments))
	g.GET("/appointments/:id", h.Get, auth.RequireOperation(auth.OpGetAppointment))
	g.PUT("/appointments/:id", h.Modify, auth.RequireOperation(auth.OpModifyAppointment))
	g.PUT("/appointments/:id/cancel", h.Cancel, auth.RequireOperation(auth.OpCancelAppointment))
	g.DELETE("/appointments/:id", h.Delete, auth.RequireOperation(auth.OpDeleteAppointment))
}

// ListResponse is the wire shape of GET /appointments.
type ListResponse struct {
	Total        int            `json:"total"`
	Appointments []*Appointment `json:"appointments"`
}

func (h *Handler) Create(c echo.Context) error {
	p, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}

	var req BookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	appt, err := h.svc.Book(c.Request().Context(), p, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, appt)
}

func (h *Handler) List(c echo.Context) error {
	p, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}

	f, err := filterFromQuery(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), p, f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Appointment{}
	}
	return c.JSON(http.StatusOK, ListResponse{Total: total, Appointments: items})
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	appt, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) Modify(c echo.Context) error {
	p, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}

	id, err := parseID(c)
	if err != nil {
		return err
	}

	var req ModifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := h.svc.Modify(c.Request().Context(), p, id, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) Cancel(c echo.Context) error {
	p, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}

	id, err := parseID(c)
	if err != nil {
		return err
	}

	appt, err := h.svc.Cancel(c.Request().Context(), p, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) Delete(c echo.Context) error {
	p, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}

	id, err := parseID(c)
	if err != nil {
		return err
	}

	if err := h.svc.Delete(c.Request().Context(), p, id); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "appointment deleted"})
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid appointment id")
	}
	return id, nil
}

func filterFromQuery(c echo.Context) (Filter, error) {
	var f Filter

	parse := func(name string) (*int64, error) {
		raw := c.QueryParam(name)
		if raw == "" {
			return nil, nil
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, errors.New("invalid " + name)
		}
		return &v, nil
	}

	var err error
	if f.DoctorID, err = parse("doctor_id"); err != nil {
		return f, err
	}
	if f.PatientID, err = parse("patient_id"); err != nil {
		return f, err
	}
	if f.CenterID, err = parse("center_id"); err != nil {
		return f, err
	}

	if raw := c.QueryParam("status"); raw != "" {
		status := Status(raw)
		if !status.Valid() {
			return f, errors.New("invalid status")
		}
		f.Status = &status
	}

	if raw := c.QueryParam("date"); raw != "" {
		date, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return f, errors.New("invalid date, use YYYY-MM-DD")
		}
		f.Date = &date
	}

	return f, nil
}

// httpError maps workflow errors to wire status codes in one place.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrDoctorNotFound),
		errors.Is(err, ErrPatientNotFound),
		errors.Is(err, ErrCenterNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrPatientInactive),
		errors.Is(err, ErrAlreadyCancelled):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}
