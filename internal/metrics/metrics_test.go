package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/octobees/supplier-outreach/internal/dispatch"
	"github.com/octobees/supplier-outreach/internal/entity"
)

func TestCollectorCountsRequestsRunsAndEmails(t *testing.T) {
	start := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	now := start
	c := New(WithClock(func() time.Time { return now }))

	c.RecordRequest("/searches", 202)
	c.RecordRequest("/searches/:id", 200)
	c.RecordRequest("/searches/:id", 404)
	c.RecordRequest("", 404)

	c.RunStarted()
	c.RunStarted()
	c.RunFinished(entity.RunCompleted, entity.RunMetrics{EmailsQueued: 3})
	c.EmailQueued()

	c.OnCompleted(dispatch.Event{})
	c.OnCompleted(dispatch.Event{})
	c.OnFailed(dispatch.Event{})
	c.OnStalled(dispatch.Event{})

	now = start.Add(26*time.Hour + 3*time.Minute + 4*time.Second)
	snap := c.Snapshot()

	assert.Equal(t, Requests{
		Total:     4,
		Errors:    2,
		ErrorRate: "50.00%",
		ByRoute:   map[string]int{"/searches": 1, "/searches/:id": 2, "unmatched": 1},
		ByStatus:  map[string]int{"200": 1, "202": 1, "404": 2},
	}, snap.Requests)
	assert.Equal(t, Searches{Total: 2, InProgress: 1, Completed: 1}, snap.Searches)
	assert.Equal(t, Emails{Queued: 4, Sent: 2, Failed: 1, Stalled: 1}, snap.Emails)
	assert.Equal(t, Uptime{Seconds: 93784, Formatted: "1d 2h 3m 4s"}, snap.Uptime)

	snap.Requests.ByRoute["/searches"] = 99
	assert.Equal(t, 1, c.Snapshot().Requests.ByRoute["/searches"], "snapshots must not alias counters")
}

func TestCollectorIsSafeForConcurrentUse(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordRequest("/healthz", 200)
			c.OnCompleted(dispatch.Event{})
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	assert.Equal(t, 20, snap.Requests.Total)
	assert.Equal(t, 20, snap.Emails.Sent)
	assert.Equal(t, "0.00%", snap.Requests.ErrorRate)
}

func TestFormatUptime(t *testing.T) {
	tests := map[int64]string{
		0:     "0s",
		59:    "59s",
		60:    "1m",
		3661:  "1h 1m 1s",
		86400: "1d",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatUptime(in), "FormatUptime(%d)", in)
	}
}
