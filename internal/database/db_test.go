package database

import (
	"context"
	"testing"
)

func TestConnect_Validation(t *testing.T) {
	if _, err := Connect(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty dsn")
	}

	if _, err := Connect(context.Background(), "invalid-dsn"); err == nil {
		t.Fatalf("expected error for invalid dsn")
	}
}

func TestMigrateURL(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost:5432/outreach?sslmode=disable": "pgx5://u:p@localhost:5432/outreach?sslmode=disable",
		"postgresql://u@db/outreach":                             "pgx5://u@db/outreach",
		"pgx5://u@db/outreach":                                   "pgx5://u@db/outreach",
	}
	for in, want := range cases {
		got, err := migrateURL(in)
		if err != nil {
			t.Fatalf("migrateURL(%q): unexpected error: %v", in, err)
		}
		if got != want {
			t.Fatalf("migrateURL(%q) = %q, want %q", in, got, want)
		}
	}

	if _, err := migrateURL("mysql://db"); err == nil {
		t.Fatalf("expected error for non-postgres dsn")
	}
	if err := Migrate(""); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}
