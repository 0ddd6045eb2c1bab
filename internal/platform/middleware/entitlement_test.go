package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/ehr/opdflow/pkg/flowmodel"
)

func TestEntitlement(t *testing.T) {
	tests := []struct {
		name    string
		tenants []string
		tenant  string
		allowed bool
	}{
		{"empty list allows all", nil, "anyone", true},
		{"blank entries ignored", []string{" ", ""}, "anyone", true},
		{"listed tenant", []string{"acme", "globex"}, "acme", true},
		{"trimmed entry", []string{" acme "}, "acme", true},
		{"unlisted tenant", []string{"acme"}, "initech", false},
		{"missing tenant", []string{"acme"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
			if tt.tenant != "" {
				c.Set("tenant_id", tt.tenant)
			}
			err := Entitlement(tt.tenants)(okHandler)(c)
			if tt.allowed {
				if err != nil {
					t.Fatalf("expected pass, got %v", err)
				}
				return
			}
			he, ok := err.(*echo.HTTPError)
			if !ok || he.Code != http.StatusForbidden {
				t.Fatalf("expected 403, got %v", err)
			}
			apiErr, ok := he.Message.(*flowmodel.APIError)
			if !ok || apiErr.Code != flowmodel.CodeModuleNotEntitled {
				t.Errorf("expected MODULE_NOT_ENTITLED, got %v", he.Message)
			}
		})
	}
}
