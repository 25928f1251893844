package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/octobees/supplier-outreach/internal/auth"
	"github.com/octobees/supplier-outreach/internal/dto"
	"github.com/octobees/supplier-outreach/internal/entity"
	"github.com/octobees/supplier-outreach/internal/repository"
)

type failingOperators struct {
	repository.OperatorsRepository
	err error
}

func (f failingOperators) FindByEmail(context.Context, string) (*entity.Operator, error) {
	return nil, f.err
}

func TestAuthService_Login(t *testing.T) {
	store := repository.NewMemoryStore()
	ops := NewOperatorService(store)
	if _, err := ops.CreateOperator(context.Background(), dto.CreateOperatorRequest{Email: "Ops@Example.com", Password: "super-secret"}); err != nil {
		t.Fatalf("seed operator: %v", err)
	}
	manager := auth.NewJWTManager("secret", time.Hour)

	tests := map[string]struct {
		email    string
		password string
		repo     repository.OperatorsRepository
		want     error
	}{
		"empty credentials": {email: "", password: "", repo: store, want: ErrMissingCredentials},
		"unknown operator":  {email: "nobody@example.com", password: "super-secret", repo: store, want: ErrInvalidCredentials},
		"wrong password":    {email: "ops@example.com", password: "nope", repo: store, want: ErrInvalidCredentials},
		"repository error":  {email: "ops@example.com", password: "super-secret", repo: failingOperators{err: errors.New("db down")}},
		"success":           {email: " OPS@example.com ", password: "super-secret", repo: store},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			token, err := NewAuthService(tc.repo, manager).Login(context.Background(), tc.email, tc.password)
			switch {
			case name == "success":
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				claims, err := manager.ParseToken(token)
				if err != nil {
					t.Fatalf("parse token: %v", err)
				}
				if claims.Email != "ops@example.com" || claims.Role != auth.RoleOperator {
					t.Fatalf("unexpected claims: %+v", claims)
				}
				if _, err := uuid.Parse(claims.Subject); err != nil {
					t.Fatalf("subject is not an operator id: %q", claims.Subject)
				}
			case tc.want != nil:
				if !errors.Is(err, tc.want) {
					t.Fatalf("expected %v, got %v", tc.want, err)
				}
			default:
				if err == nil || errors.Is(err, ErrInvalidCredentials) {
					t.Fatalf("expected repository error, got %v", err)
				}
			}
		})
	}
}
