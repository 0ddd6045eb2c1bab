package visitflow

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/opdflow/internal/platform/auth"
	"github.com/ehr/opdflow/internal/platform/db"
	"github.com/ehr/opdflow/pkg/flowmodel"
	"github.com/ehr/opdflow/pkg/pagination"
)

const (
	RoleRegistrar = "registrar"
	RoleNurse     = "nurse"
	RolePhysician = "physician"
	RoleCashier   = "cashier"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the visit-flow routes on api. Extra middleware
// (idempotency) wraps only the write routes.
func (h *Handler) RegisterRoutes(api *echo.Group, writeMW ...echo.MiddlewareFunc) {
	staff := auth.RequireRole(RoleRegistrar, RoleNurse, RolePhysician, RoleCashier)

	// Any authenticated caller may ask what it is allowed to do.
	api.GET("/visit-flows/capabilities", h.GetCapabilities)

	read := api.Group("", staff)
	read.GET("/visit-flows", h.ListVisits)
	read.GET("/visit-flows/:id", h.GetVisit)

	write := api.Group("", writeMW...)
	write.POST("/visit-flows", h.StartVisit, auth.RequireRole(RoleRegistrar))
	write.POST("/visit-flows/:id/pay-consultation", h.PayConsultation, auth.RequireRole(RoleRegistrar, RoleCashier))
	write.POST("/visit-flows/:id/record-vitals", h.RecordVitals, auth.RequireRole(RoleNurse))
	write.POST("/visit-flows/:id/assign-doctor", h.AssignDoctor, auth.RequireRole(RoleNurse))
	write.POST("/visit-flows/:id/doctor-review", h.DoctorReview, auth.RequireRole(RolePhysician))
	write.POST("/visit-flows/:id/disposition", h.Disposition, auth.RequireRole(RolePhysician))
}

func (h *Handler) ListVisits(c echo.Context) error {
	pg := pagination.FromContext(c)
	filter := ListFilter{
		Stage:         flowmodel.Stage(c.QueryParam("stage")),
		PatientID:     c.QueryParam("patientId"),
		ProviderID:    c.QueryParam("providerId"),
		AppointmentID: c.QueryParam("appointmentId"),
		Query:         c.QueryParam("q"),
		Limit:         pg.Limit,
		Offset:        pg.Offset,
	}
	items, total, err := h.svc.ListVisits(c.Request().Context(), filter)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) GetVisit(c echo.Context) error {
	snap, err := h.svc.GetVisit(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, snap)
}

func (h *Handler) GetCapabilities(c echo.Context) error {
	ctx := c.Request().Context()
	caps := CapabilitiesFor(auth.RolesFromContext(ctx), db.TenantFromContext(ctx), auth.FacilityFromContext(ctx))
	return c.JSON(http.StatusOK, caps)
}

func (h *Handler) StartVisit(c echo.Context) error {
	var p flowmodel.StartVisitPayload
	if err := c.Bind(&p); err != nil {
		return badRequest(err)
	}
	snap, err := h.svc.StartVisit(c.Request().Context(), actorFrom(c), p)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, snap)
}

func (h *Handler) PayConsultation(c echo.Context) error {
	var p flowmodel.PaymentPayload
	if err := c.Bind(&p); err != nil {
		return badRequest(err)
	}
	return h.respond(c)(h.svc.PayConsultation(c.Request().Context(), actorFrom(c), c.Param("id"), p))
}

func (h *Handler) RecordVitals(c echo.Context) error {
	var p flowmodel.VitalsPayload
	if err := c.Bind(&p); err != nil {
		return badRequest(err)
	}
	return h.respond(c)(h.svc.RecordVitals(c.Request().Context(), actorFrom(c), c.Param("id"), p))
}

func (h *Handler) AssignDoctor(c echo.Context) error {
	var p flowmodel.AssignDoctorPayload
	if err := c.Bind(&p); err != nil {
		return badRequest(err)
	}
	return h.respond(c)(h.svc.AssignDoctor(c.Request().Context(), actorFrom(c), c.Param("id"), p))
}

func (h *Handler) DoctorReview(c echo.Context) error {
	var p flowmodel.DoctorReviewPayload
	if err := c.Bind(&p); err != nil {
		return badRequest(err)
	}
	return h.respond(c)(h.svc.DoctorReview(c.Request().Context(), actorFrom(c), c.Param("id"), p))
}

func (h *Handler) Disposition(c echo.Context) error {
	var p flowmodel.DispositionPayload
	if err := c.Bind(&p); err != nil {
		return badRequest(err)
	}
	return h.respond(c)(h.svc.Disposition(c.Request().Context(), actorFrom(c), c.Param("id"), p))
}

func (h *Handler) respond(c echo.Context) func(*flowmodel.FlowSnapshot, error) error {
	return func(snap *flowmodel.FlowSnapshot, err error) error {
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, snap)
	}
}

func actorFrom(c echo.Context) Actor {
	ctx := c.Request().Context()
	return Actor{
		UserID:     auth.UserIDFromContext(ctx),
		TenantID:   db.TenantFromContext(ctx),
		FacilityID: auth.FacilityFromContext(ctx),
	}
}

func badRequest(err error) error {
	return echo.NewHTTPError(http.StatusBadRequest, &flowmodel.APIError{
		Code:    flowmodel.CodeValidation,
		Message: "malformed request body: " + err.Error(),
	})
}

// httpError maps service errors onto an HTTP error carrying the API error
// body. The server's error handler renders it.
func httpError(err error) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, &flowmodel.APIError{Code: flowmodel.CodeValidation, Message: verr.Error()})
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, &flowmodel.APIError{Code: flowmodel.CodeNotFound, Message: ErrNotFound.Error()})
	case errors.Is(err, ErrStageConflict):
		return echo.NewHTTPError(http.StatusConflict, &flowmodel.APIError{Code: flowmodel.CodeStageConflict, Message: err.Error()})
	case errors.Is(err, ErrVersionConflict):
		return echo.NewHTTPError(http.StatusConflict, &flowmodel.APIError{Code: flowmodel.CodeVersionConflict, Message: ErrVersionConflict.Error()})
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, &flowmodel.APIError{Code: flowmodel.CodeInternal, Message: "internal server error"}).SetInternal(err)
	}
}
