package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/octobees/supplier-outreach/internal/auth"
	"github.com/octobees/supplier-outreach/internal/dto"
	"github.com/octobees/supplier-outreach/internal/entity"
	"github.com/octobees/supplier-outreach/internal/repository"
)

// ValidationError is a client input problem.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// OperatorService encapsulates administrative operations for operators.
type OperatorService struct {
	repo repository.OperatorsRepository
}

// NewOperatorService builds a new OperatorService.
func NewOperatorService(repo repository.OperatorsRepository) *OperatorService {
	return &OperatorService{repo: repo}
}

func toOperatorResponse(op entity.Operator) dto.OperatorResponse {
	return dto.OperatorResponse{ID: op.ID.String(), Email: op.Email, Role: op.Role}
}

// ListOperators returns all operators.
func (s *OperatorService) ListOperators(ctx context.Context) ([]dto.OperatorResponse, error) {
	ops, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]dto.OperatorResponse, 0, len(ops))
	for _, op := range ops {
		out = append(out, toOperatorResponse(op))
	}
	return out, nil
}

// CreateOperator creates an operator; the role defaults to operator.
func (s *OperatorService) CreateOperator(ctx context.Context, req dto.CreateOperatorRequest) (*dto.OperatorResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	role := strings.TrimSpace(req.Role)
	if email == "" || req.Password == "" {
		return nil, invalid("email and password are required")
	}
	if role == "" {
		role = auth.RoleOperator
	}
	if !auth.ValidRole(role) {
		return nil, invalid("role must be %s or %s", auth.RoleAdmin, auth.RoleOperator)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	op, err := s.repo.Create(ctx, email, string(hashed), role)
	if err != nil {
		if errors.Is(err, repository.ErrEmailDuplicate) {
			return nil, repository.ErrEmailDuplicate
		}
		return nil, err
	}
	resp := toOperatorResponse(*op)
	return &resp, nil
}

// UpdateOperator mutates selected operator fields.
func (s *OperatorService) UpdateOperator(ctx context.Context, id string, req dto.UpdateOperatorRequest) (*dto.OperatorResponse, error) {
	opID, err := uuid.Parse(id)
	if err != nil {
		return nil, invalid("invalid operator id")
	}

	var emailPtr, rolePtr, passwordPtr *string
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		if email == "" {
			return nil, invalid("email cannot be empty")
		}
		emailPtr = &email
	}
	if req.Role != nil {
		role := strings.TrimSpace(*req.Role)
		if !auth.ValidRole(role) {
			return nil, invalid("role must be %s or %s", auth.RoleAdmin, auth.RoleOperator)
		}
		rolePtr = &role
	}
	if req.Password != nil {
		if strings.TrimSpace(*req.Password) == "" {
			return nil, invalid("password cannot be empty")
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		pwd := string(hashed)
		passwordPtr = &pwd
	}

	op, err := s.repo.Update(ctx, opID, emailPtr, passwordPtr, rolePtr)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrOperatorNotFound):
			return nil, repository.ErrOperatorNotFound
		case errors.Is(err, repository.ErrEmailDuplicate):
			return nil, repository.ErrEmailDuplicate
		}
		return nil, err
	}
	resp := toOperatorResponse(*op)
	return &resp, nil
}

// DeleteOperator removes an operator by id.
func (s *OperatorService) DeleteOperator(ctx context.Context, id string) error {
	opID, err := uuid.Parse(id)
	if err != nil {
		return invalid("invalid operator id")
	}
	return s.repo.Delete(ctx, opID)
}

// EnsureAdmin creates the bootstrap admin when no operator with email exists.
func (s *OperatorService) EnsureAdmin(ctx context.Context, email, password string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return false, nil
	}
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return false, nil
	} else if !errors.Is(err, repository.ErrOperatorNotFound) {
		return false, err
	}
	if _, err := s.CreateOperator(ctx, dto.CreateOperatorRequest{Email: email, Password: password, Role: auth.RoleAdmin}); err != nil {
		return false, err
	}
	return true, nil
}
