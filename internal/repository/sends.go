package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/octobees/supplier-outreach/internal/entity"
)

// PGXSendLedger records send outcomes in email_sends. It backs the daily
// quota when PostgreSQL is configured.
type PGXSendLedger struct {
	pool pgxPool
}

// NewPGXSendLedger wires the ledger.
func NewPGXSendLedger(pool pgxPool) *PGXSendLedger {
	return &PGXSendLedger{pool: pool}
}

// CountBetween counts rows with status recorded in [from, to).
func (l *PGXSendLedger) CountBetween(ctx context.Context, status entity.SendStatus, from, to time.Time) (int, error) {
	var n int
	if err := l.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM email_sends WHERE status = $1 AND sent_at >= $2 AND sent_at < $3`, string(status), from, to,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s sends: %w", status, err)
	}
	return n, nil
}

// LastSentAt returns the time of the latest successful send, or the zero time.
func (l *PGXSendLedger) LastSentAt(ctx context.Context) (time.Time, error) {
	var last *time.Time
	if err := l.pool.QueryRow(ctx,
		`SELECT MAX(sent_at) FROM email_sends WHERE status = $1`, string(entity.SendSent),
	).Scan(&last); err != nil {
		return time.Time{}, fmt.Errorf("query last send: %w", err)
	}
	if last == nil {
		return time.Time{}, nil
	}
	return *last, nil
}

// Record appends one send outcome.
func (l *PGXSendLedger) Record(ctx context.Context, rec entity.SendRecord) error {
	if _, err := l.pool.Exec(ctx, `
        INSERT INTO email_sends (search_id, supplier_id, job_id, message_id, status, error, sent_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, rec.SearchID, rec.SupplierID, rec.JobID, rec.MessageID, string(rec.Status), rec.Error, rec.At); err != nil {
		return fmt.Errorf("insert send record: %w", err)
	}
	return nil
}
