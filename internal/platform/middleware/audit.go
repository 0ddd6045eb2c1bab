package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/opdflow/internal/platform/auth"
	"github.com/ehr/opdflow/pkg/flowmodel"
)

// AuditEntry records who touched which visit, when, and with what outcome.
type AuditEntry struct {
	UserID     string
	UserRoles  []string
	TenantID   string
	VisitID    string
	Action     string // list, read, capabilities, or an action kind
	IPAddress  string
	UserAgent  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// AuditRecorder persists audit entries beyond the structured log.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

const visitFlowsPrefix = "/api/v1/visit-flows"

var actionSegments = map[string]flowmodel.ActionKind{
	"pay-consultation": flowmodel.ActionPayConsultation,
	"record-vitals":    flowmodel.ActionRecordVitals,
	"assign-doctor":    flowmodel.ActionAssignDoctor,
	"doctor-review":    flowmodel.ActionDoctorReview,
	"disposition":      flowmodel.ActionDisposition,
}

// Audit logs every request under /api/v1/visit-flows once the handler has
// run, and hands the entry to the recorders.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			if !strings.HasPrefix(path, visitFlowsPrefix) {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			visitID, action := classifyVisitPath(req.Method, path)
			ctx := req.Context()
			entry := AuditEntry{
				UserID:     auth.UserIDFromContext(ctx),
				UserRoles:  auth.RolesFromContext(ctx),
				VisitID:    visitID,
				Action:     action,
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				Path:       path,
				Method:     req.Method,
				Timestamp:  time.Now().UTC(),
				StatusCode: status,
			}
			entry.TenantID, _ = c.Get("tenant_id").(string)
			entry.RequestID, _ = c.Get("request_id").(string)

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "visit_flow_audit").
				Str("request_id", entry.RequestID).
				Str("tenant_id", entry.TenantID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("visit_id", entry.VisitID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("visit_flow_access")

			return err
		}
	}
}

// classifyVisitPath returns the visit id and the audit action for a
// visit-flow path.
func classifyVisitPath(method, path string) (visitID, action string) {
	rest := strings.Trim(strings.TrimPrefix(path, visitFlowsPrefix), "/")
	if rest == "" {
		if method == http.MethodPost {
			return "", string(flowmodel.ActionStartVisit)
		}
		return "", "list"
	}
	id, segment, _ := strings.Cut(rest, "/")
	if id == "capabilities" {
		return "", "capabilities"
	}
	if segment == "" {
		return id, "read"
	}
	if kind, ok := actionSegments[segment]; ok {
		return id, string(kind)
	}
	return id, segment
}
