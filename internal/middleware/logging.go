package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/octobees/supplier-outreach/internal/logger"
)

// Logging writes one structured line for each HTTP request.
func Logging() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			latency := time.Since(start)

			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			entry := logger.FromContext(req.Context()).WithFields(logger.Fields{
				"method":               req.Method,
				"path":                 req.URL.Path,
				logger.FieldStatus:     c.Response().Status,
				logger.FieldDurationMs: latency.Milliseconds(),
			})
			if rid := RequestIDFromContext(c); rid != "" {
				entry = entry.WithField(logger.FieldRequestID, rid)
			}
			if err != nil {
				entry = entry.WithError(err)
			}
			switch status := c.Response().Status; {
			case status >= 500:
				entry.Error("request failed")
			case status >= 400:
				entry.Warn("request rejected")
			default:
				entry.Info("request completed")
			}

			return err
		}
	}
}
