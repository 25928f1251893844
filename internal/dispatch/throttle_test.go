package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/octobees/supplier-outreach/internal/entity"
	"github.com/octobees/supplier-outreach/internal/quota"
)

// maxInSpan returns the largest number of stamps inside any half-open span
// of length size.
func maxInSpan(stamps []time.Time, size time.Duration) int {
	best := 0
	for i := range stamps {
		n := 0
		for _, s := range stamps[i:] {
			if s.Sub(stamps[i]) < size {
				n++
			}
		}
		best = max(best, n)
	}
	return best
}

func TestThrottleCapsRollingMinute(t *testing.T) {
	th := throttle{newRollingWindow(10, time.Minute)}
	start := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	var admitted []time.Time
	for at := start; at.Before(start.Add(3 * time.Minute)); at = at.Add(100 * time.Millisecond) {
		if th.admit(at) == 0 {
			admitted = append(admitted, at)
		}
	}

	assert.Equal(t, 30, len(admitted))
	assert.LessOrEqual(t, maxInSpan(admitted, time.Minute), 10)

	inFirst59 := 0
	for _, at := range admitted {
		if at.Before(start.Add(59 * time.Second)) {
			inFirst59++
		}
	}
	assert.Equal(t, 10, inFirst59, "the first ten go out at once, the rest wait for the window")
}

func TestThrottleReportsWaitUntilOldestLeaves(t *testing.T) {
	th := throttle{newRollingWindow(2, time.Minute), newRollingWindow(100, time.Hour)}
	start := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	require.Zero(t, th.admit(start))
	require.Zero(t, th.admit(start.Add(10*time.Second)))
	assert.Equal(t, 40*time.Second, th.admit(start.Add(20*time.Second)))
	assert.Len(t, th[1].stamps, 2, "a refused admission must not take an hourly slot")
	assert.Zero(t, th.admit(start.Add(time.Minute)))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

func TestQueueSendsAtMostPerMinuteInAnyWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	policy := quota.New(quota.NewMemoryLedger(), quota.Config{DailyLimit: 100})
	rec := newRecorder()
	q := New("outreach-window", &stubSender{}, policy, Config{PerMinute: 10, PerHour: 1000, Backoff: time.Millisecond},
		WithObserver(rec), WithClock(clock.Now), WithSleep(clock.Sleep))
	t.Cleanup(q.Stop)

	ctx := context.Background()
	for i := 0; i < 25; i++ {
		_, err := q.Enqueue(ctx, job(fmt.Sprintf("buyer%d@a.com", i), entity.PriorityNormal))
		require.NoError(t, err)
	}
	require.NoError(t, q.Start(ctx))

	events := rec.wait(t, 25)
	stamps := make([]time.Time, 0, len(events))
	for _, e := range events {
		assert.Equal(t, StateCompleted, e.Job.State)
		stamps = append(stamps, e.At)
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })

	assert.LessOrEqual(t, maxInSpan(stamps, time.Minute), 10)
	assert.Equal(t, 2*time.Minute, stamps[len(stamps)-1].Sub(stamps[0]))
}
