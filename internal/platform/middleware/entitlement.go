package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ehr/opdflow/pkg/flowmodel"
)

// Entitlement rejects tenants that have not licensed the visit-flow module.
// An empty list entitles every tenant. It must run after tenant resolution.
func Entitlement(tenants []string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(tenants))
	for _, t := range tenants {
		if t = strings.TrimSpace(t); t != "" {
			allowed[t] = true
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if len(allowed) == 0 {
				return next(c)
			}
			tenant, _ := c.Get("tenant_id").(string)
			if !allowed[tenant] {
				return echo.NewHTTPError(http.StatusForbidden, &flowmodel.APIError{
					Code:    flowmodel.CodeModuleNotEntitled,
					Message: "The outpatient flow module is not enabled for this tenant.",
				})
			}
			return next(c)
		}
	}
}
