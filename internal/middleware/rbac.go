package middleware

import (
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"

	authpkg "github.com/octobees/supplier-outreach/internal/auth"
	"github.com/octobees/supplier-outreach/internal/logger"
)

// OperatorRoleFromContext returns the role of the authenticated operator.
func OperatorRoleFromContext(c echo.Context) string {
	role, _ := c.Get(ContextKeyOperatorRole).(string)
	return role
}

// RequireRole lets the request through when the operator holds one of
// allowed. Tokens minted with a role this build does not know are refused
// even if allowed names it.
func RequireRole(allowed ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := OperatorRoleFromContext(c)
			var reason string
			switch {
			case role == "":
				reason = "missing role"
			case !authpkg.ValidRole(role):
				reason = "unknown role"
			case !slices.Contains(allowed, role):
				reason = "insufficient permissions"
			default:
				return next(c)
			}
			logger.FromContext(c.Request().Context()).WithFields(logger.Fields{
				"operator_role": role,
				"path":          c.Path(),
			}).Warn("operator denied: " + reason)
			return c.JSON(http.StatusForbidden, errorBody(reason))
		}
	}
}
