package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/octobees/supplier-outreach/internal/logger"
)

const healthCheckTimeout = 3 * time.Second

// Pinger is a dependency that can report whether it is reachable.
type Pinger func(ctx context.Context) error

// HealthHandler reports process and dependency health.
type HealthHandler struct {
	checks map[string]Pinger
}

// NewHealthHandler builds a handler. A nil check is skipped.
func NewHealthHandler(checks map[string]Pinger) *HealthHandler {
	filtered := make(map[string]Pinger, len(checks))
	for name, check := range checks {
		if check != nil {
			filtered[name] = check
		}
	}
	return &HealthHandler{checks: filtered}
}

// Check handles GET /healthz.
func (h *HealthHandler) Check(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := map[string]string{"status": "ok"}
	healthy := true
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			healthy = false
			status[name] = "unavailable"
			logger.FromContext(ctx).WithError(err).WithField(logger.FieldComponent, name).Warn("health check failed")
			continue
		}
		status[name] = "ok"
	}

	if !healthy {
		status["status"] = "degraded"
		return ErrorWithCode(c, http.StatusServiceUnavailable, "dependency_unavailable", "service degraded", status)
	}
	return Success(c, http.StatusOK, "service healthy", status)
}
