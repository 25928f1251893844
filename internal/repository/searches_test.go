package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/octobees/supplier-outreach/internal/entity"
)

func TestPGXSearchRepository_FinalizeRun(t *testing.T) {
	repo := NewPGXSearchRepository(&stubPool{
		execFunc: func(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
			if !strings.Contains(query, "status = 'processing'") {
				t.Fatalf("finalize must only touch processing runs: %s", query)
			}
			return pgconn.NewCommandTag("UPDATE 1"), nil
		},
	})
	now := time.Now()
	run := &entity.SearchRun{ID: "SEARCH_1_abc", Status: entity.RunCompleted, CompletedAt: &now}
	if err := repo.FinalizeRun(context.Background(), run); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	repo.pool = &stubPool{
		execFunc: func(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		},
		queryRowFunc: func(ctx context.Context, query string, args ...any) pgx.Row {
			return &stubRow{scan: func(dest ...any) error {
				*dest[0].(*string) = "completed"
				return nil
			}}
		},
	}
	if err := repo.FinalizeRun(context.Background(), run); !errors.Is(err, entity.ErrRunFinalized) {
		t.Fatalf("expected ErrRunFinalized, got %v", err)
	}

	repo.pool = &stubPool{
		execFunc: func(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		},
		queryRowFunc: func(ctx context.Context, query string, args ...any) pgx.Row { return noRows() },
	}
	if err := repo.FinalizeRun(context.Background(), run); !errors.Is(err, entity.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGXSearchRepository_GetRun(t *testing.T) {
	started := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	repo := NewPGXSearchRepository(&stubPool{
		queryRowFunc: func(ctx context.Context, query string, args ...any) pgx.Row {
			return &stubRow{scan: func(dest ...any) error {
				*dest[0].(*string) = "SEARCH_1_abc"
				*dest[1].(*[]byte) = []byte(`{"product_description":"brass fittings","min_suppliers":3,"max_suppliers":5}`)
				*dest[2].(*string) = "failed"
				*dest[3].(*[]byte) = []byte(`{"candidates_received":6}`)
				*dest[4].(*string) = "no_valid_candidates: nothing passed"
				*dest[5].(*string) = "no_valid_candidates"
				*dest[6].(*[]byte) = []byte(`{"code":"no_valid_candidates"}`)
				*dest[7].(*time.Time) = started
				*dest[8].(**time.Time) = nil
				return nil
			}}
		},
	})

	run, err := repo.GetRun(context.Background(), "SEARCH_1_abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Status != entity.RunFailed || run.Query.ProductDescription != "brass fittings" || run.Metrics.CandidatesReceived != 6 {
		t.Fatalf("unexpected run: %+v", run)
	}
	if run.FailureCode != "no_valid_candidates" || len(run.Diagnostics) == 0 {
		t.Fatalf("failure details not decoded: %+v", run)
	}

	repo.pool = &stubPool{
		queryRowFunc: func(ctx context.Context, query string, args ...any) pgx.Row { return noRows() },
	}
	if _, err := repo.GetRun(context.Background(), "missing"); !errors.Is(err, entity.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGXSearchRepository_SaveSuppliersRequiresTx(t *testing.T) {
	repo := NewPGXSearchRepository(&stubPool{})
	if err := repo.SaveSuppliers(context.Background(), nil); err != nil {
		t.Fatalf("empty batch must be a no-op: %v", err)
	}
	err := repo.SaveSuppliers(context.Background(), []*entity.Supplier{{ID: "SUP_1"}})
	if err == nil || !strings.Contains(err.Error(), "start save suppliers tx") {
		t.Fatalf("expected tx error, got %v", err)
	}
}

func TestPGXSearchRepository_AppendLog(t *testing.T) {
	var captured []any
	repo := NewPGXSearchRepository(&stubPool{
		execFunc: func(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
			captured = args
			return pgconn.NewCommandTag("INSERT 0 1"), nil
		},
	})
	err := repo.AppendLog(context.Background(), entity.SearchLog{
		SearchID: "SEARCH_1_abc",
		Level:    "info",
		Message:  "Validated 3 suppliers",
		Data:     map[string]any{"received": 6},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured[3] != `{"received":6}` || captured[4] != nil {
		t.Fatalf("unexpected args: %#v", captured)
	}
}

func TestPGXSendLedger(t *testing.T) {
	ledger := NewPGXSendLedger(&stubPool{
		queryRowFunc: func(ctx context.Context, query string, args ...any) pgx.Row {
			return &stubRow{scan: func(dest ...any) error {
				switch d := dest[0].(type) {
				case *int:
					if args[0] != "sent" {
						t.Fatalf("unexpected status arg: %v", args[0])
					}
					*d = 4
				case **time.Time:
					*d = nil
				}
				return nil
			}}
		},
	})

	n, err := ledger.CountBetween(context.Background(), entity.SendSent, time.Now().Add(-time.Hour), time.Now())
	if err != nil || n != 4 {
		t.Fatalf("CountBetween = %d, %v", n, err)
	}
	last, err := ledger.LastSentAt(context.Background())
	if err != nil || !last.IsZero() {
		t.Fatalf("LastSentAt = %v, %v", last, err)
	}
}
