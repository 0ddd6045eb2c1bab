package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/opdflow/pkg/flowmodel"
)

func TestErrorBody(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "http error with api error",
			err:        echo.NewHTTPError(http.StatusConflict, &flowmodel.APIError{Code: flowmodel.CodeVersionConflict, Message: "stale"}),
			wantStatus: http.StatusConflict,
			wantCode:   flowmodel.CodeVersionConflict,
		},
		{
			name:       "http error with string",
			err:        echo.NewHTTPError(http.StatusForbidden, "required role: nurse"),
			wantStatus: http.StatusForbidden,
			wantCode:   flowmodel.CodeForbidden,
		},
		{
			name:       "echo not found",
			err:        echo.ErrNotFound,
			wantStatus: http.StatusNotFound,
			wantCode:   flowmodel.CodeNotFound,
		},
		{
			name:       "bare api error with status",
			err:        &flowmodel.APIError{Status: http.StatusBadRequest, Code: flowmodel.CodeValidation},
			wantStatus: http.StatusBadRequest,
			wantCode:   flowmodel.CodeValidation,
		},
		{
			name:       "plain error",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   flowmodel.CodeInternal,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := ErrorBody(tt.err)
			if status != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, status)
			}
			if body.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, body.Code)
			}
		})
	}
}

func TestCodeForStatus(t *testing.T) {
	tests := map[int]string{
		http.StatusBadRequest:          flowmodel.CodeValidation,
		http.StatusUnauthorized:        flowmodel.CodeUnauthorized,
		http.StatusForbidden:           flowmodel.CodeForbidden,
		http.StatusNotFound:            flowmodel.CodeNotFound,
		http.StatusConflict:            flowmodel.CodeStageConflict,
		http.StatusTooManyRequests:     flowmodel.CodeRequestFailed,
		http.StatusInternalServerError: flowmodel.CodeInternal,
		http.StatusBadGateway:          flowmodel.CodeInternal,
		http.StatusTeapot:              flowmodel.CodeRequestFailed,
	}
	for status, want := range tests {
		if got := CodeForStatus(status); got != want {
			t.Errorf("CodeForStatus(%d) = %s, want %s", status, got, want)
		}
	}
}

func TestErrorHandler_WritesEnvelope(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/visit-flows/x", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	ErrorHandler(zerolog.New(os.Stderr))(echo.NewHTTPError(http.StatusNotFound, &flowmodel.APIError{
		Code: flowmodel.CodeNotFound, Message: "visit flow not found",
	}), c)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var body flowmodel.ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error == nil || body.Error.Code != flowmodel.CodeNotFound || body.Error.Message != "visit flow not found" {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestErrorHandler_Head(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodHead, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	ErrorHandler(zerolog.New(os.Stderr))(echo.ErrForbidden, c)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", rec.Body.String())
	}
}
