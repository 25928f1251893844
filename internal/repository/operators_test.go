package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func operatorRow(email, role string) *stubRow {
	return &stubRow{scan: func(dest ...any) error {
		created := time.Now()
		*dest[0].(*uuid.UUID) = uuid.MustParse("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
		*dest[1].(*string) = email
		*dest[2].(*string) = "hashed"
		*dest[3].(*string) = role
		*dest[4].(*time.Time) = created
		*dest[5].(*time.Time) = created.Add(time.Minute)
		return nil
	}}
}

func noRows() *stubRow {
	return &stubRow{scan: func(dest ...any) error { return pgx.ErrNoRows }}
}

func TestPGXOperatorsRepository_FindByEmail(t *testing.T) {
	repo := NewPGXOperatorsRepository(&stubPool{
		queryRowFunc: func(ctx context.Context, query string, args ...any) pgx.Row {
			return operatorRow("ops@example.com", "admin")
		},
	})

	op, err := repo.FindByEmail(context.Background(), "ops@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if op.Email != "ops@example.com" || op.Role != "admin" {
		t.Fatalf("unexpected operator: %+v", op)
	}

	repo.pool = &stubPool{
		queryRowFunc: func(ctx context.Context, query string, args ...any) pgx.Row { return noRows() },
	}
	if _, err := repo.FindByEmail(context.Background(), "missing@example.com"); !errors.Is(err, ErrOperatorNotFound) {
		t.Fatalf("expected ErrOperatorNotFound, got %v", err)
	}
}

func TestPGXOperatorsRepository_CreateDuplicate(t *testing.T) {
	repo := NewPGXOperatorsRepository(&stubPool{
		queryRowFunc: func(ctx context.Context, query string, args ...any) pgx.Row {
			return &stubRow{scan: func(dest ...any) error {
				return &pgconn.PgError{Code: "23505", ConstraintName: "operators_email_key", Message: "duplicate key value"}
			}}
		},
	})

	if _, err := repo.Create(context.Background(), "ops@example.com", "hashed", "operator"); !errors.Is(err, ErrEmailDuplicate) {
		t.Fatalf("expected ErrEmailDuplicate, got %v", err)
	}
}

func TestPGXOperatorsRepository_List(t *testing.T) {
	repo := NewPGXOperatorsRepository(&stubPool{
		queryFunc: func(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
			row := operatorRow("admin@example.com", "admin")
			return &stubRows{scans: []func(dest ...any) error{row.scan}}, nil
		},
	})

	rows, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].Email != "admin@example.com" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestPGXOperatorsRepository_Update(t *testing.T) {
	var captured string
	var capturedArgs []any
	repo := NewPGXOperatorsRepository(&stubPool{
		queryRowFunc: func(ctx context.Context, query string, args ...any) pgx.Row {
			captured = query
			capturedArgs = args
			return operatorRow("updated@example.com", "operator")
		},
	})

	email := "updated@example.com"
	role := "operator"
	op, err := repo.Update(context.Background(), uuid.New(), &email, nil, &role)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if op.Email != "updated@example.com" {
		t.Fatalf("unexpected operator: %+v", op)
	}
	if len(capturedArgs) != 3 {
		t.Fatalf("expected 3 args, got %d (%s)", len(capturedArgs), captured)
	}

	repo.pool = &stubPool{
		queryRowFunc: func(ctx context.Context, query string, args ...any) pgx.Row { return noRows() },
	}
	if _, err := repo.Update(context.Background(), uuid.New(), &email, nil, &role); !errors.Is(err, ErrOperatorNotFound) {
		t.Fatalf("expected ErrOperatorNotFound, got %v", err)
	}
}

func TestPGXOperatorsRepository_Delete(t *testing.T) {
	repo := NewPGXOperatorsRepository(&stubPool{
		execFunc: func(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("DELETE 1"), nil
		},
	})
	if err := repo.Delete(context.Background(), uuid.New()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	repo.pool = &stubPool{
		execFunc: func(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("DELETE 0"), nil
		},
	}
	if err := repo.Delete(context.Background(), uuid.New()); !errors.Is(err, ErrOperatorNotFound) {
		t.Fatalf("expected ErrOperatorNotFound, got %v", err)
	}
}
