package middleware

import "github.com/labstack/echo/v4"

// Context keys used to store authentication metadata.
const (
	ContextKeyOperatorID    = "operator_id"
	ContextKeyOperatorEmail = "operator_email"
	ContextKeyOperatorRole  = "operator_role"
	ContextKeyRequestID     = "request_id"
)

// OperatorIDFromContext returns the authenticated operator id, if any.
func OperatorIDFromContext(c echo.Context) string {
	id, _ := c.Get(ContextKeyOperatorID).(string)
	return id
}
