// Package quota meters outbound sends against a daily cap and a minimum
// interval between consecutive sends.
package quota

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/octobees/supplier-outreach/internal/entity"
)

// ErrQuotaExceeded signals that no more sends are allowed today.
var ErrQuotaExceeded = errors.New("daily email limit reached")

// QuotaError carries the numbers behind an ErrQuotaExceeded.
type QuotaError struct {
	Limit int
	Sent  int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("Daily email limit reached (%d/%d)", e.Sent, e.Limit)
}

func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }

// Ledger persists send outcomes.
type Ledger interface {
	// CountBetween counts records with status and from <= At < to.
	CountBetween(ctx context.Context, status entity.SendStatus, from, to time.Time) (int, error)
	LastSentAt(ctx context.Context) (time.Time, error)
	Record(ctx context.Context, rec entity.SendRecord) error
}

// Config holds the daily cap, pacing and optional warm-up ramp.
type Config struct {
	DailyLimit         int
	Interval           time.Duration
	WarmupStart        time.Time
	WarmupInitialLimit int
	WarmupDays         int
}

// DailyStats summarizes today's sending.
type DailyStats struct {
	Date      string `json:"date"`
	Sent      int    `json:"sent"`
	Failed    int    `json:"failed"`
	Total     int    `json:"total"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
}

// Policy owns the daily counter and the last-send timestamp. Reads and
// updates of both happen under one mutex.
type Policy struct {
	mu       sync.Mutex
	ledger   Ledger
	cfg      Config
	lastSent time.Time

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// Option configures a Policy.
type Option func(*Policy)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Policy) {
		if now != nil {
			p.now = now
		}
	}
}

// WithSleep overrides how the interval wait suspends.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(p *Policy) {
		if sleep != nil {
			p.sleep = sleep
		}
	}
}

// New builds a policy over ledger.
func New(ledger Ledger, cfg Config, opts ...Option) *Policy {
	p := &Policy{ledger: ledger, cfg: cfg, now: time.Now, sleep: sleepContext}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Limit returns the daily cap in effect at t, accounting for warm-up.
func (p *Policy) Limit(t time.Time) int {
	limit := p.cfg.DailyLimit
	if p.cfg.WarmupStart.IsZero() || p.cfg.WarmupDays <= 0 || p.cfg.WarmupInitialLimit <= 0 {
		return limit
	}
	days := int(startOfDay(t).Sub(startOfDay(p.cfg.WarmupStart)).Hours() / 24)
	if days < 0 {
		days = 0
	}
	warm := limit
	if days < p.cfg.WarmupDays {
		warm = p.cfg.WarmupInitialLimit + (limit-p.cfg.WarmupInitialLimit)*days/p.cfg.WarmupDays
	}
	if warm > limit {
		return limit
	}
	return warm
}

// Authorize fails with a *QuotaError when today's successful sends reached the
// limit. It never changes any counter.
func (p *Policy) Authorize(ctx context.Context, runID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	sent, err := p.countDay(ctx, entity.SendSent, now)
	if err != nil {
		return fmt.Errorf("count sends for run %s: %w", runID, err)
	}
	if limit := p.Limit(now); sent >= limit {
		return &QuotaError{Limit: limit, Sent: sent}
	}
	return nil
}

// Remaining returns how many more successful sends today allows.
func (p *Policy) Remaining(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	sent, err := p.countDay(ctx, entity.SendSent, now)
	if err != nil {
		return 0, fmt.Errorf("count sends: %w", err)
	}
	return max(0, p.Limit(now)-sent), nil
}

// AwaitInterval blocks until the configured interval has elapsed since the
// most recent successful send.
func (p *Policy) AwaitInterval(ctx context.Context, runID string) error {
	if p.cfg.Interval <= 0 {
		return nil
	}
	for {
		wait, err := p.pending(ctx)
		if err != nil {
			return fmt.Errorf("read last send for run %s: %w", runID, err)
		}
		if wait <= 0 {
			return nil
		}
		if err := p.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (p *Policy) pending(ctx context.Context) (time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	last, err := p.ledger.LastSentAt(ctx)
	if err != nil {
		return 0, err
	}
	if last.After(p.lastSent) {
		p.lastSent = last
	}
	if p.lastSent.IsZero() {
		return 0, nil
	}
	return p.cfg.Interval - p.now().Sub(p.lastSent), nil
}

// RecordSent stores a successful send and advances the last-send timestamp.
func (p *Policy) RecordSent(ctx context.Context, rec entity.SendRecord) error {
	rec.Status = entity.SendSent
	return p.record(ctx, rec)
}

// RecordFailed stores a terminal send failure.
func (p *Policy) RecordFailed(ctx context.Context, rec entity.SendRecord) error {
	rec.Status = entity.SendFailed
	return p.record(ctx, rec)
}

func (p *Policy) record(ctx context.Context, rec entity.SendRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if rec.At.IsZero() {
		rec.At = p.now()
	}
	if err := p.ledger.Record(ctx, rec); err != nil {
		return fmt.Errorf("record %s send for supplier %s: %w", rec.Status, rec.SupplierID, err)
	}
	if rec.Status == entity.SendSent && rec.At.After(p.lastSent) {
		p.lastSent = rec.At
	}
	return nil
}

// DailyStats reports today's totals. Remaining mirrors Authorize: only
// successful sends consume the allowance.
func (p *Policy) DailyStats(ctx context.Context) (DailyStats, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	midnight := startOfDay(now)
	sent, err := p.countDay(ctx, entity.SendSent, now)
	if err != nil {
		return DailyStats{}, fmt.Errorf("count sent: %w", err)
	}
	failed, err := p.countDay(ctx, entity.SendFailed, now)
	if err != nil {
		return DailyStats{}, fmt.Errorf("count failed: %w", err)
	}
	limit := p.Limit(now)
	return DailyStats{
		Date:      midnight.Format(time.DateOnly),
		Sent:      sent,
		Failed:    failed,
		Total:     sent + failed,
		Limit:     limit,
		Remaining: max(0, limit-sent),
	}, nil
}

// countDay counts records with status on the calendar day of now.
func (p *Policy) countDay(ctx context.Context, status entity.SendStatus, now time.Time) (int, error) {
	midnight := startOfDay(now)
	return p.ledger.CountBetween(ctx, status, midnight, midnight.AddDate(0, 0, 1))
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
