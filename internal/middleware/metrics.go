package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequestRecorder counts finished HTTP requests.
type RequestRecorder interface {
	RecordRequest(route string, status int)
}

// Metrics records the route pattern and final status of every request.
// It must run inside Logging so errors have not been rendered yet.
func Metrics(recorder RequestRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			recorder.RecordRequest(c.Path(), responseStatus(c, err))
			return err
		}
	}
}

func responseStatus(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}
