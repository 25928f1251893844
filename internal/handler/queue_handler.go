package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/octobees/supplier-outreach/internal/dispatch"
	"github.com/octobees/supplier-outreach/internal/logger"
)

// QueueInspector reports dispatch queue health.
type QueueInspector interface {
	Health(ctx context.Context) (dispatch.Health, error)
}

// QueueHandler exposes the dispatch queue state.
type QueueHandler struct {
	queue QueueInspector
}

// NewQueueHandler constructs a QueueHandler.
func NewQueueHandler(queue QueueInspector) *QueueHandler {
	return &QueueHandler{queue: queue}
}

// Health handles GET /queue/health.
func (h *QueueHandler) Health(c echo.Context) error {
	health, err := h.queue.Health(c.Request().Context())
	if err != nil {
		logger.FromContext(c.Request().Context()).WithError(err).Error("queue health failed")
		return ErrorWithCode(c, http.StatusServiceUnavailable, "queue_unavailable", "queue health unavailable", health)
	}
	return Success(c, http.StatusOK, "queue healthy", health)
}
