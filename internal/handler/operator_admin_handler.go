package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/octobees/supplier-outreach/internal/dto"
	"github.com/octobees/supplier-outreach/internal/logger"
	"github.com/octobees/supplier-outreach/internal/repository"
	"github.com/octobees/supplier-outreach/internal/service"
)

// OperatorManager is the administrative operator API.
type OperatorManager interface {
	ListOperators(ctx context.Context) ([]dto.OperatorResponse, error)
	CreateOperator(ctx context.Context, req dto.CreateOperatorRequest) (*dto.OperatorResponse, error)
	UpdateOperator(ctx context.Context, id string, req dto.UpdateOperatorRequest) (*dto.OperatorResponse, error)
	DeleteOperator(ctx context.Context, id string) error
}

// OperatorAdminHandler exposes administrative operator management endpoints.
type OperatorAdminHandler struct {
	operators OperatorManager
}

// NewOperatorAdminHandler constructs a handler instance.
func NewOperatorAdminHandler(operators OperatorManager) *OperatorAdminHandler {
	return &OperatorAdminHandler{operators: operators}
}

// List returns all operators.
func (h *OperatorAdminHandler) List(c echo.Context) error {
	records, err := h.operators.ListOperators(c.Request().Context())
	if err != nil {
		logger.FromContext(c.Request().Context()).WithError(err).Error("list operators failed")
		return Error(c, http.StatusInternalServerError, "failed to list operators")
	}
	return Success(c, http.StatusOK, "operators retrieved", records)
}

// Create provisions a new operator.
func (h *OperatorAdminHandler) Create(c echo.Context) error {
	var req dto.CreateOperatorRequest
	if err := c.Bind(&req); err != nil {
		return Error(c, http.StatusBadRequest, "invalid payload")
	}

	op, err := h.operators.CreateOperator(c.Request().Context(), req)
	if err != nil {
		return h.writeError(c, err, "failed to create operator")
	}
	return Success(c, http.StatusCreated, "operator created", op)
}

// Update modifies an existing operator.
func (h *OperatorAdminHandler) Update(c echo.Context) error {
	var req dto.UpdateOperatorRequest
	if err := c.Bind(&req); err != nil {
		return Error(c, http.StatusBadRequest, "invalid payload")
	}

	op, err := h.operators.UpdateOperator(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return h.writeError(c, err, "failed to update operator")
	}
	return Success(c, http.StatusOK, "operator updated", op)
}

// Delete removes an operator.
func (h *OperatorAdminHandler) Delete(c echo.Context) error {
	if err := h.operators.DeleteOperator(c.Request().Context(), c.Param("id")); err != nil {
		return h.writeError(c, err, "failed to delete operator")
	}
	return Success(c, http.StatusOK, "operator deleted", nil)
}

func (h *OperatorAdminHandler) writeError(c echo.Context, err error, fallback string) error {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return Error(c, http.StatusBadRequest, verr.Message)
	case errors.Is(err, repository.ErrOperatorNotFound):
		return Error(c, http.StatusNotFound, "operator not found")
	case errors.Is(err, repository.ErrEmailDuplicate):
		return Error(c, http.StatusConflict, "email already exists")
	}
	logger.FromContext(c.Request().Context()).WithError(err).Error(fallback)
	return Error(c, http.StatusInternalServerError, fallback)
}
