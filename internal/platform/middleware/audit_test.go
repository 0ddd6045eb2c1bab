package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/opdflow/internal/platform/auth"
)

// mockRecorder collects audit entries for assertions.
type mockRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
	err     error // if set, RecordAccess returns this error
}

func (m *mockRecorder) RecordAccess(entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return m.err
}

func (m *mockRecorder) last() AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[len(m.entries)-1]
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func newTestContext(method, path string, opts ...func(*http.Request)) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func withAuth(userID string, roles []string) func(*http.Request) {
	return func(req *http.Request) {
		ctx := context.WithValue(req.Context(), auth.UserIDKey, userID)
		ctx = context.WithValue(ctx, auth.UserRolesKey, roles)
		*req = *req.WithContext(ctx)
	}
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestAudit_VisitRead(t *testing.T) {
	rec := &mockRecorder{}
	c, _ := newTestContext(http.MethodGet, "/api/v1/visit-flows/v-42",
		withAuth("nurse-1", []string{"nurse"}),
		func(r *http.Request) { r.Header.Set("User-Agent", "opdflow-test") },
	)
	c.Set("tenant_id", "acme")
	c.Set("request_id", "req-1")

	if err := Audit(zerolog.New(os.Stderr), rec)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.count() != 1 {
		t.Fatalf("expected 1 audit entry, got %d", rec.count())
	}
	got := rec.last()
	if got.VisitID != "v-42" || got.Action != "read" {
		t.Errorf("expected v-42/read, got %s/%s", got.VisitID, got.Action)
	}
	if got.UserID != "nurse-1" || got.TenantID != "acme" || got.RequestID != "req-1" {
		t.Errorf("unexpected identity fields: %+v", got)
	}
	if got.UserAgent != "opdflow-test" {
		t.Errorf("expected user agent, got %q", got.UserAgent)
	}
	if got.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", got.StatusCode)
	}
	if got.Timestamp.IsZero() {
		t.Error("expected timestamp")
	}
}

func TestAudit_TransitionWithError(t *testing.T) {
	rec := &mockRecorder{}
	c, _ := newTestContext(http.MethodPost, "/api/v1/visit-flows/v-1/record-vitals",
		withAuth("nurse-1", []string{"nurse"}),
	)

	failing := func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusConflict, "stage conflict")
	}
	if err := Audit(zerolog.New(os.Stderr), rec)(failing)(c); err == nil {
		t.Fatal("expected handler error to pass through")
	}
	got := rec.last()
	if got.Action != "RECORD_VITALS" {
		t.Errorf("expected RECORD_VITALS, got %s", got.Action)
	}
	if got.StatusCode != http.StatusConflict {
		t.Errorf("expected status 409, got %d", got.StatusCode)
	}
}

func TestAudit_SkipsOtherPaths(t *testing.T) {
	rec := &mockRecorder{}
	for _, path := range []string{"/health", "/metrics", "/api/v1/other"} {
		c, _ := newTestContext(http.MethodGet, path)
		if err := Audit(zerolog.New(os.Stderr), rec)(okHandler)(c); err != nil {
			t.Fatalf("%s: unexpected error: %v", path, err)
		}
	}
	if rec.count() != 0 {
		t.Errorf("expected no audit entries, got %d", rec.count())
	}
}

func TestAudit_RecorderError_DoesNotBreakRequest(t *testing.T) {
	rec := &mockRecorder{err: errors.New("database connection failed")}
	c, _ := newTestContext(http.MethodGet, "/api/v1/visit-flows", withAuth("user-6", []string{"physician"}))

	if err := Audit(zerolog.New(os.Stderr), rec)(okHandler)(c); err != nil {
		t.Fatalf("expected no error even when recorder fails, got: %v", err)
	}
}

func TestAudit_NoRecorder_LogOnly(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/api/v1/visit-flows")
	if err := Audit(zerolog.New(os.Stderr), nil)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClassifyVisitPath(t *testing.T) {
	tests := []struct {
		method, path    string
		visitID, action string
	}{
		{http.MethodGet, "/api/v1/visit-flows", "", "list"},
		{http.MethodPost, "/api/v1/visit-flows", "", "START_VISIT"},
		{http.MethodGet, "/api/v1/visit-flows/capabilities", "", "capabilities"},
		{http.MethodGet, "/api/v1/visit-flows/v-1", "v-1", "read"},
		{http.MethodPost, "/api/v1/visit-flows/v-1/pay-consultation", "v-1", "PAY_CONSULTATION"},
		{http.MethodPost, "/api/v1/visit-flows/v-1/assign-doctor", "v-1", "ASSIGN_DOCTOR"},
		{http.MethodPost, "/api/v1/visit-flows/v-1/doctor-review", "v-1", "DOCTOR_REVIEW"},
		{http.MethodPost, "/api/v1/visit-flows/v-1/disposition", "v-1", "DISPOSITION"},
		{http.MethodPost, "/api/v1/visit-flows/v-1/unknown", "v-1", "unknown"},
	}
	for _, tt := range tests {
		id, action := classifyVisitPath(tt.method, tt.path)
		if id != tt.visitID || action != tt.action {
			t.Errorf("classifyVisitPath(%s %s) = %q/%q, want %q/%q",
				tt.method, tt.path, id, action, tt.visitID, tt.action)
		}
	}
}

func TestAuditRecorderFunc(t *testing.T) {
	var got AuditEntry
	r := AuditRecorderFunc(func(e AuditEntry) error {
		got = e
		return nil
	})
	if err := r.RecordAccess(AuditEntry{VisitID: "v-9"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.VisitID != "v-9" {
		t.Errorf("expected v-9, got %q", got.VisitID)
	}
}
