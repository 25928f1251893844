package quota

import (
	"context"
	"sync"
	"time"

	"github.com/octobees/supplier-outreach/internal/entity"
)

// memoryRetention bounds how far back the memory ledger answers counts.
// The policy only asks about the current day.
const memoryRetention = 48 * time.Hour

// MemoryLedger keeps recent send records in process memory.
type MemoryLedger struct {
	mu      sync.Mutex
	records []entity.SendRecord
	last    time.Time
}

// NewMemoryLedger returns an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

func (l *MemoryLedger) CountBetween(_ context.Context, status entity.SendStatus, from, to time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, r := range l.records {
		if r.Status == status && !r.At.Before(from) && r.At.Before(to) {
			n++
		}
	}
	return n, nil
}

func (l *MemoryLedger) LastSentAt(_ context.Context) (time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last, nil
}

// Record appends rec and drops records older than the retention window,
// measured from the newest record seen.
func (l *MemoryLedger) Record(_ context.Context, rec entity.SendRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec.Status == entity.SendSent && rec.At.After(l.last) {
		l.last = rec.At
	}
	l.records = append(l.records, rec)
	l.prune(rec.At.Add(-memoryRetention))
	return nil
}

func (l *MemoryLedger) prune(cut time.Time) {
	kept := l.records[:0]
	for _, r := range l.records {
		if !r.At.Before(cut) {
			kept = append(kept, r)
		}
	}
	clear(l.records[len(kept):])
	l.records = kept
}

// Records returns a copy of everything recorded so far.
func (l *MemoryLedger) Records() []entity.SendRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]entity.SendRecord(nil), l.records...)
}
