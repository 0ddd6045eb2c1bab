package visitflow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/opdflow/internal/platform/auth"
	"github.com/ehr/opdflow/internal/platform/db"
	"github.com/ehr/opdflow/pkg/flowmodel"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc, _ := newTestService()
	return NewHandler(svc), echo.New()
}

func staffRequest(method, target, body string, roles ...string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	ctx := auth.WithIdentity(req.Context(), "u-1", roles, "fac-1")
	ctx = db.WithTenant(ctx, "acme")
	return req.WithContext(ctx)
}

func apiErrorOf(t *testing.T, err error) (int, *flowmodel.APIError) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	apiErr, ok := httpErr.Message.(*flowmodel.APIError)
	if !ok {
		t.Fatalf("expected APIError message, got %T", httpErr.Message)
	}
	return httpErr.Code, apiErr
}

func TestHandler_StartVisit(t *testing.T) {
	h, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(staffRequest(http.MethodPost, "/", `{"arrivalMode":"WALK_IN","patientId":"p-1"}`, RoleRegistrar), rec)

	if err := h.StartVisit(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var snap flowmodel.FlowSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Stage != flowmodel.StageWaitingConsultationPayment || snap.FacilityID != "fac-1" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestHandler_StartVisit_Validation(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(staffRequest(http.MethodPost, "/", `{"arrivalMode":"WALK_IN"}`, RoleRegistrar), httptest.NewRecorder())

	code, apiErr := apiErrorOf(t, h.StartVisit(c))
	if code != http.StatusBadRequest || apiErr.Code != flowmodel.CodeValidation {
		t.Errorf("expected 400 VALIDATION_ERROR, got %d %s", code, apiErr.Code)
	}
}

func TestHandler_StartVisit_MalformedBody(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(staffRequest(http.MethodPost, "/", `{"arrivalMode":`, RoleRegistrar), httptest.NewRecorder())

	code, apiErr := apiErrorOf(t, h.StartVisit(c))
	if code != http.StatusBadRequest || apiErr.Code != flowmodel.CodeValidation {
		t.Errorf("expected 400 VALIDATION_ERROR, got %d %s", code, apiErr.Code)
	}
}

func TestHandler_GetVisit(t *testing.T) {
	h, e := newTestHandler()
	id := startAt(t, h.svc, flowmodel.StageWaitingVitals)

	rec := httptest.NewRecorder()
	c := e.NewContext(staffRequest(http.MethodGet, "/", "", RoleNurse), rec)
	c.SetParamNames("id")
	c.SetParamValues(id)
	if err := h.GetVisit(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_GetVisit_NotFound(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(staffRequest(http.MethodGet, "/", "", RoleNurse), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())

	code, apiErr := apiErrorOf(t, h.GetVisit(c))
	if code != http.StatusNotFound || apiErr.Code != flowmodel.CodeNotFound {
		t.Errorf("expected 404 NOT_FOUND, got %d %s", code, apiErr.Code)
	}
}

func TestHandler_RecordVitals_StageConflict(t *testing.T) {
	h, e := newTestHandler()
	id := startAt(t, h.svc, flowmodel.StageWaitingConsultationPayment)

	c := e.NewContext(staffRequest(http.MethodPost, "/", `{"vitals":[{"vitalType":"PULSE","value":"80"}]}`, RoleNurse), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(id)

	code, apiErr := apiErrorOf(t, h.RecordVitals(c))
	if code != http.StatusConflict || apiErr.Code != flowmodel.CodeStageConflict {
		t.Errorf("expected 409 STAGE_CONFLICT, got %d %s", code, apiErr.Code)
	}
}

func TestHandler_PayConsultation(t *testing.T) {
	h, e := newTestHandler()
	id := startAt(t, h.svc, flowmodel.StageWaitingConsultationPayment)

	rec := httptest.NewRecorder()
	c := e.NewContext(staffRequest(http.MethodPost, "/", `{"method":"CASH","amount":"15"}`, RoleCashier), rec)
	c.SetParamNames("id")
	c.SetParamValues(id)
	if err := h.PayConsultation(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var snap flowmodel.FlowSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Stage != flowmodel.StageWaitingVitals {
		t.Errorf("expected WAITING_VITALS, got %s", snap.Stage)
	}
}

func TestHandler_ListVisits(t *testing.T) {
	h, e := newTestHandler()
	startAt(t, h.svc, flowmodel.StageWaitingVitals)
	startAt(t, h.svc, flowmodel.StageWaitingConsultationPayment)

	rec := httptest.NewRecorder()
	c := e.NewContext(staffRequest(http.MethodGet, "/?stage=WAITING_VITALS&limit=10", "", RoleNurse), rec)
	if err := h.ListVisits(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Items      []flowmodel.FlowListEntry `json:"items"`
		Pagination flowmodel.Pagination      `json:"pagination"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Items) != 1 || body.Pagination.Total != 1 || body.Pagination.Limit != 10 || body.Pagination.HasMore {
		t.Errorf("unexpected list response %+v", body)
	}
}

func TestHandler_GetCapabilities(t *testing.T) {
	h, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(staffRequest(http.MethodGet, "/", "", RoleNurse), rec)
	if err := h.GetCapabilities(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var caps flowmodel.Capabilities
	if err := json.Unmarshal(rec.Body.Bytes(), &caps); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !caps.Ready || !caps.CanAccess || !caps.CanRecordVitals || caps.CanDoctorReview {
		t.Errorf("unexpected nurse capabilities %+v", caps)
	}
	if caps.TenantID != "acme" || caps.FacilityID != "fac-1" {
		t.Errorf("expected acme/fac-1 scope, got %q/%q", caps.TenantID, caps.FacilityID)
	}
}

func TestHandler_RoutesEnforceRoles(t *testing.T) {
	h, e := newTestHandler()
	id := startAt(t, h.svc, flowmodel.StageWaitingVitals)
	h.RegisterRoutes(e.Group("/api/v1"))

	// Identity is injected ahead of routing, where auth middleware would run.
	roles := []string{RoleCashier}
	e.Pre(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.WithIdentity(c.Request().Context(), "u-2", roles, "")
			c.SetRequest(c.Request().WithContext(db.WithTenant(ctx, "acme")))
			return next(c)
		}
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/visit-flows/"+id+"/record-vitals", strings.NewReader(`{"vitals":[{"vitalType":"PULSE","value":"80"}]}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for cashier recording vitals, got %d", rec.Code)
	}

	roles = []string{RoleNurse}
	req = httptest.NewRequest(http.MethodPost, "/api/v1/visit-flows/"+id+"/record-vitals", strings.NewReader(`{"vitals":[{"vitalType":"PULSE","value":"80"}]}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for nurse, got %d: %s", rec.Code, rec.Body.String())
	}

	roles = nil
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/visit-flows/capabilities", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected capabilities to be readable without a role, got %d", rec.Code)
	}
}

func TestHTTPError_Internal(t *testing.T) {
	code, apiErr := apiErrorOf(t, httpError(context.DeadlineExceeded))
	if code != http.StatusInternalServerError || apiErr.Code != flowmodel.CodeInternal {
		t.Errorf("expected 500 INTERNAL_ERROR, got %d %s", code, apiErr.Code)
	}
}
