package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/octobees/supplier-outreach/internal/dto"
	"github.com/octobees/supplier-outreach/internal/entity"
	"github.com/octobees/supplier-outreach/internal/logger"
	"github.com/octobees/supplier-outreach/internal/search"
)

// SearchRunner schedules search runs.
type SearchRunner interface {
	RunAsync(ctx context.Context, q entity.SearchQuery) (*entity.SearchRun, error)
}

// SearchReader reads runs, their suppliers and logs.
type SearchReader interface {
	GetRun(ctx context.Context, id string) (*entity.SearchRun, error)
	ListRuns(ctx context.Context, limit int) ([]entity.SearchRun, error)
	GetSupplier(ctx context.Context, id string) (*entity.Supplier, error)
	ListSuppliers(ctx context.Context, searchID string) ([]entity.Supplier, error)
	ListLogs(ctx context.Context, searchID string) ([]entity.SearchLog, error)
}

// SearchHandler exposes search runs and suppliers.
type SearchHandler struct {
	runner SearchRunner
	reader SearchReader
}

// NewSearchHandler constructs a SearchHandler.
func NewSearchHandler(runner SearchRunner, reader SearchReader) *SearchHandler {
	return &SearchHandler{runner: runner, reader: reader}
}

// Create handles POST /searches. The run continues in the background.
func (h *SearchHandler) Create(c echo.Context) error {
	var req dto.CreateSearchRequest
	if err := c.Bind(&req); err != nil {
		return Error(c, http.StatusBadRequest, "invalid payload")
	}

	ctx := c.Request().Context()
	run, err := h.runner.RunAsync(ctx, req.Query())
	if err != nil {
		var verr *search.ValidationError
		if errors.As(err, &verr) {
			return ErrorWithCode(c, http.StatusBadRequest, "invalid_query", "invalid search query", verr.Fields)
		}
		logger.FromContext(ctx).WithError(err).Error("start search failed")
		return Error(c, http.StatusInternalServerError, "unable to start search")
	}

	logger.FromContext(ctx).WithField(logger.FieldSearchID, run.ID).Info("search accepted")
	return Success(c, http.StatusAccepted, "search started", dto.SearchAccepted{
		SearchID:  run.ID,
		Status:    run.Status,
		StatusURL: "/searches/" + run.ID,
	})
}

// List handles GET /searches.
func (h *SearchHandler) List(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return Error(c, http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}

	runs, err := h.reader.ListRuns(c.Request().Context(), limit)
	if err != nil {
		logger.FromContext(c.Request().Context()).WithError(err).Error("list searches failed")
		return Error(c, http.StatusInternalServerError, "failed to list searches")
	}
	return Success(c, http.StatusOK, "searches retrieved", runs)
}

// Get handles GET /searches/:id and returns the run with its suppliers and log.
func (h *SearchHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	run, err := h.reader.GetRun(ctx, id)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return Error(c, http.StatusNotFound, "search not found")
		}
		logger.FromContext(ctx).WithError(err).WithField(logger.FieldSearchID, id).Error("get search failed")
		return Error(c, http.StatusInternalServerError, "failed to load search")
	}

	suppliers, err := h.reader.ListSuppliers(ctx, id)
	if err != nil {
		logger.FromContext(ctx).WithError(err).WithField(logger.FieldSearchID, id).Error("list suppliers failed")
		return Error(c, http.StatusInternalServerError, "failed to load suppliers")
	}
	logs, err := h.reader.ListLogs(ctx, id)
	if err != nil {
		logger.FromContext(ctx).WithError(err).WithField(logger.FieldSearchID, id).Error("list search logs failed")
		return Error(c, http.StatusInternalServerError, "failed to load search log")
	}

	if suppliers == nil {
		suppliers = []entity.Supplier{}
	}
	return Success(c, http.StatusOK, "search retrieved", dto.SearchDetail{SearchRun: *run, Suppliers: suppliers, Logs: logs})
}

// GetSupplier handles GET /suppliers/:id.
func (h *SearchHandler) GetSupplier(c echo.Context) error {
	ctx := c.Request().Context()
	sup, err := h.reader.GetSupplier(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return Error(c, http.StatusNotFound, "supplier not found")
		}
		logger.FromContext(ctx).WithError(err).Error("get supplier failed")
		return Error(c, http.StatusInternalServerError, "failed to load supplier")
	}
	return Success(c, http.StatusOK, "supplier retrieved", sup)
}
