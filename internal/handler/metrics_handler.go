package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/octobees/supplier-outreach/internal/dispatch"
	"github.com/octobees/supplier-outreach/internal/logger"
	"github.com/octobees/supplier-outreach/internal/metrics"
)

// MetricsSource provides a point-in-time copy of the process counters.
type MetricsSource interface {
	Snapshot() metrics.Snapshot
}

type metricsResponse struct {
	metrics.Snapshot
	Queue *dispatch.Health `json:"queue,omitempty"`
}

// MetricsHandler exposes request, search and email counters together with
// the dispatch queue state.
type MetricsHandler struct {
	source MetricsSource
	queue  QueueInspector
}

// NewMetricsHandler constructs a MetricsHandler. queue may be nil.
func NewMetricsHandler(source MetricsSource, queue QueueInspector) *MetricsHandler {
	return &MetricsHandler{source: source, queue: queue}
}

// Get handles GET /metrics. A queue that cannot report is logged and left
// out of the body rather than failing the request.
func (h *MetricsHandler) Get(c echo.Context) error {
	resp := metricsResponse{Snapshot: h.source.Snapshot()}
	if h.queue != nil {
		health, err := h.queue.Health(c.Request().Context())
		if err != nil {
			logger.FromContext(c.Request().Context()).WithError(err).Warn("queue health unavailable for metrics")
		} else {
			resp.Queue = &health
		}
	}
	return Success(c, http.StatusOK, "metrics", resp)
}
