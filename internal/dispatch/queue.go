// Package dispatch runs the outbound message queue: priority ordered, rate
// limited, one worker per queue, retrying transient send failures.
package dispatch

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/octobees/supplier-outreach/internal/entity"
	"github.com/octobees/supplier-outreach/internal/logger"
	"github.com/octobees/supplier-outreach/internal/mailer"
	"github.com/octobees/supplier-outreach/internal/quota"
	"github.com/octobees/supplier-outreach/internal/retry"
)

const (
	DefaultPerMinute   = 10
	DefaultPerHour     = 100
	DefaultMaxAttempts = 3
	DefaultBackoff     = 2 * time.Second
)

var (
	ErrAlreadyStarted = errors.New("queue already started")
	ErrNoRecipient    = errors.New("job message has no recipient")
	ErrDuplicateJob   = errors.New("job id already queued")
)

// Quota is the send accounting the queue consults before and after sends.
type Quota interface {
	Authorize(ctx context.Context, runID string) error
	AwaitInterval(ctx context.Context, runID string) error
	RecordSent(ctx context.Context, rec entity.SendRecord) error
	RecordFailed(ctx context.Context, rec entity.SendRecord) error
	DailyStats(ctx context.Context) (quota.DailyStats, error)
}

// Config tunes a queue. Zero values take the defaults above.
type Config struct {
	PerMinute   int
	PerHour     int
	MaxAttempts int
	// Backoff is the first retry delay; later retries double it.
	Backoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.PerMinute <= 0 {
		c.PerMinute = DefaultPerMinute
	}
	if c.PerHour <= 0 {
		c.PerHour = DefaultPerHour
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Backoff <= 0 {
		c.Backoff = DefaultBackoff
	}
	return c
}

// Limits are the throughput caps reported by Health.
type Limits struct {
	PerMinute int `json:"per_minute"`
	PerHour   int `json:"per_hour"`
	PerDay    int `json:"per_day"`
}

// Health is a point-in-time view of the queue.
type Health struct {
	Name      string           `json:"name"`
	Waiting   int              `json:"waiting"`
	Active    int              `json:"active"`
	Completed int              `json:"completed"`
	Failed    int              `json:"failed"`
	Delayed   int              `json:"delayed"`
	Daily     quota.DailyStats `json:"daily_stats"`
	Limits    Limits           `json:"limits"`
}

// Queue is a named outbound work queue.
type Queue struct {
	name      string
	sender    mailer.Sender
	quota     Quota
	cfg      Config
	throttle throttle
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error

	mu        sync.Mutex
	waiting   jobHeap
	delayed   []*Job
	jobs      map[string]*Job
	seq       uint64
	observers []Observer
	wake      chan struct{}

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Queue.
type Option func(*Queue)

// WithObserver subscribes o to job events.
func WithObserver(o Observer) Option {
	return func(q *Queue) {
		if o != nil {
			q.observers = append(q.observers, o)
		}
	}
}

// WithClock overrides the time source used for job timestamps and send windows.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// WithSleep overrides how the worker waits for the send windows to open.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(q *Queue) {
		if sleep != nil {
			q.sleep = sleep
		}
	}
}

// New builds a stopped queue.
func New(name string, sender mailer.Sender, accounting Quota, cfg Config, opts ...Option) *Queue {
	cfg = cfg.withDefaults()
	q := &Queue{
		name:   name,
		sender: sender,
		quota:  accounting,
		cfg:    cfg,
		throttle: throttle{
			newRollingWindow(cfg.PerMinute, time.Minute),
			newRollingWindow(cfg.PerHour, time.Hour),
		},
		now:   time.Now,
		sleep: sleepContext,
		jobs:  make(map[string]*Job),
		wake:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// Subscribe adds an observer after construction.
func (q *Queue) Subscribe(o Observer) {
	if o == nil {
		return
	}
	q.mu.Lock()
	q.observers = append(q.observers, o)
	q.mu.Unlock()
}

// Enqueue admits job. It fails with an error wrapping quota.ErrQuotaExceeded
// when today's remaining allowance is already taken by sends and outstanding
// jobs. Once admitted, the job runs on the queue's own context.
func (q *Queue) Enqueue(ctx context.Context, job Job) (string, error) {
	if job.Message.To.Email == "" {
		return "", ErrNoRecipient
	}
	stats, err := q.quota.DailyStats(ctx)
	if err != nil {
		return "", fmt.Errorf("queue %s: read daily stats: %w", q.name, err)
	}

	q.mu.Lock()
	if stats.Remaining-q.outstandingLocked() <= 0 {
		q.mu.Unlock()
		return "", fmt.Errorf("queue %s: %w", q.name, &quota.QuotaError{Limit: stats.Limit, Sent: stats.Sent})
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if _, dup := q.jobs[job.ID]; dup {
		q.mu.Unlock()
		return "", fmt.Errorf("queue %s: %w: %s", q.name, ErrDuplicateJob, job.ID)
	}
	if job.Priority == "" {
		job.Priority = entity.PriorityNormal
	}
	now := q.now()
	q.seq++
	j := job
	j.seq = q.seq
	j.State = StateWaiting
	j.Attempts = 0
	j.Stalls = 0
	j.CreatedAt = now
	j.UpdatedAt = now
	q.jobs[j.ID] = &j
	if j.NotBefore.After(now) {
		j.State = StateDelayed
		q.delayed = append(q.delayed, &j)
	} else {
		heap.Push(&q.waiting, &j)
	}
	q.mu.Unlock()

	q.signal()
	return j.ID, nil
}

// Job returns a snapshot of the job with id.
func (q *Queue) Job(id string) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// Outstanding counts jobs that are not terminal.
func (q *Queue) Outstanding() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.outstandingLocked()
}

func (q *Queue) outstandingLocked() int {
	n := 0
	for _, j := range q.jobs {
		if !j.State.Terminal() {
			n++
		}
	}
	return n
}

// Health reports job counts per state, today's send totals and limits.
func (q *Queue) Health(ctx context.Context) (Health, error) {
	h := Health{Name: q.name}
	q.mu.Lock()
	for _, j := range q.jobs {
		switch j.State {
		case StateWaiting:
			h.Waiting++
		case StateActive:
			h.Active++
		case StateDelayed:
			h.Delayed++
		case StateCompleted:
			h.Completed++
		case StateFailed:
			h.Failed++
		}
	}
	q.mu.Unlock()

	stats, err := q.quota.DailyStats(ctx)
	if err != nil {
		return h, fmt.Errorf("queue %s: read daily stats: %w", q.name, err)
	}
	h.Daily = stats
	h.Limits = Limits{PerMinute: q.cfg.PerMinute, PerHour: q.cfg.PerHour, PerDay: stats.Limit}
	return h, nil
}

// Start launches the worker. It stops when ctx is done or Stop is called.
func (q *Queue) Start(ctx context.Context) error {
	q.runMu.Lock()
	defer q.runMu.Unlock()
	if q.done != nil {
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.done = make(chan struct{})
	go q.run(runCtx, q.done)
	return nil
}

// Stop cancels the worker and waits for it to exit. A job interrupted
// mid-send goes back to waiting.
func (q *Queue) Stop() {
	q.runMu.Lock()
	defer q.runMu.Unlock()
	if q.done == nil {
		return
	}
	q.cancel()
	<-q.done
	q.cancel = nil
	q.done = nil
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	log := logger.FromContext(ctx).WithFields(logger.Fields{logger.FieldComponent: "dispatch", "queue": q.name})
	log.Info("dispatch worker started")
	defer log.Info("dispatch worker stopped")

	for {
		q.promoteDue()
		if !q.hasWaiting() {
			if err := q.idle(ctx); err != nil {
				return
			}
			continue
		}
		if err := q.awaitSlot(ctx); err != nil {
			return
		}
		job := q.pop()
		if job == nil {
			continue
		}
		q.process(ctx, job, log)
	}
}

// awaitSlot blocks until both the per-minute and per-hour windows have room
// and takes a slot in each.
func (q *Queue) awaitSlot(ctx context.Context) error {
	for {
		wait := q.throttle.admit(q.now())
		if wait <= 0 {
			return nil
		}
		if err := q.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// idle blocks until a job is enqueued, the earliest delayed job is due, or
// ctx is done.
func (q *Queue) idle(ctx context.Context) error {
	var due <-chan time.Time
	if next, ok := q.nextDue(); ok {
		timer := time.NewTimer(max(next.Sub(q.now()), 0))
		defer timer.Stop()
		due = timer.C
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.wake:
	case <-due:
	}
	return nil
}

func (q *Queue) nextDue() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var next time.Time
	for _, j := range q.delayed {
		if next.IsZero() || j.NotBefore.Before(next) {
			next = j.NotBefore
		}
	}
	return next, !next.IsZero()
}

// promoteDue moves delayed jobs whose time has come to the waiting heap.
func (q *Queue) promoteDue() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.delayed) == 0 {
		return
	}
	now := q.now()
	kept := q.delayed[:0]
	for _, j := range q.delayed {
		if j.NotBefore.After(now) {
			kept = append(kept, j)
			continue
		}
		j.State = StateWaiting
		j.UpdatedAt = now
		heap.Push(&q.waiting, j)
	}
	clear(q.delayed[len(kept):])
	q.delayed = kept
}

func (q *Queue) hasWaiting() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.waiting.Len() > 0
}

func (q *Queue) pop() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.waiting.Len() == 0 {
		return nil
	}
	job := heap.Pop(&q.waiting).(*Job)
	job.State = StateActive
	job.UpdatedAt = q.now()
	return job
}

func (q *Queue) process(ctx context.Context, job *Job, base *logger.Logger) {
	log := base.WithFields(logger.Fields{
		logger.FieldJobID:      job.ID,
		logger.FieldSupplierID: job.SupplierID,
		logger.FieldSearchID:   job.SearchID,
	})
	defer func() {
		if r := recover(); r != nil {
			q.stall(ctx, job, fmt.Errorf("send worker panicked: %v", r), log)
		}
	}()

	if err := q.quota.Authorize(ctx, job.SearchID); err != nil {
		q.abort(ctx, job, err, false, log)
		return
	}
	if err := q.quota.AwaitInterval(ctx, job.SearchID); err != nil {
		q.abort(ctx, job, err, false, log)
		return
	}

	q.mu.Lock()
	left := q.cfg.MaxAttempts - job.Attempts
	q.mu.Unlock()
	if left <= 0 {
		q.fail(ctx, job, errors.New("attempt ceiling reached"), true, log)
		return
	}

	policy := retry.Policy{
		MaxAttempts: left,
		BaseDelay:   q.cfg.Backoff,
		MaxDelay:    q.cfg.Backoff * 4,
		OnAttempt: func(a retry.Attempt) {
			q.mu.Lock()
			job.LastError = a.Err.Error()
			if a.WillRetry {
				job.State = StateDelayed
			}
			job.UpdatedAt = q.now()
			q.mu.Unlock()
			log.WithError(a.Err).WithFields(logger.Fields{
				logger.FieldAttempt: job.Attempts,
				"retry_in_ms":       a.Delay.Milliseconds(),
				"will_retry":        a.WillRetry,
			}).Warn("send attempt failed")
		},
	}
	res, err := retry.Execute(ctx, policy, func(ctx context.Context) (mailer.SendResult, error) {
		q.mu.Lock()
		job.State = StateActive
		job.Attempts++
		job.UpdatedAt = q.now()
		msg := job.Message
		q.mu.Unlock()
		return q.sender.Send(ctx, msg)
	})
	if err != nil {
		q.abort(ctx, job, err, true, log)
		return
	}
	q.complete(ctx, job, res, log)
}

// abort requeues the job when the worker is shutting down and fails it
// otherwise.
func (q *Queue) abort(ctx context.Context, job *Job, err error, record bool, log *logger.Logger) {
	if ctx.Err() != nil {
		q.mu.Lock()
		job.State = StateWaiting
		job.UpdatedAt = q.now()
		heap.Push(&q.waiting, job)
		q.mu.Unlock()
		return
	}
	q.fail(ctx, job, err, record, log)
}

func (q *Queue) complete(ctx context.Context, job *Job, res mailer.SendResult, log *logger.Logger) {
	now := q.now()
	rec := entity.SendRecord{
		SearchID:   job.SearchID,
		SupplierID: job.SupplierID,
		JobID:      job.ID,
		MessageID:  res.ProviderMessageID,
		At:         now,
	}
	if err := q.quota.RecordSent(context.WithoutCancel(ctx), rec); err != nil {
		log.WithError(err).Error("record sent message")
	}

	q.mu.Lock()
	job.State = StateCompleted
	job.ProviderMessageID = res.ProviderMessageID
	job.LastError = ""
	job.UpdatedAt = now
	job.FinishedAt = &now
	snap := *job
	q.mu.Unlock()

	log.WithFields(logger.Fields{"provider_message_id": res.ProviderMessageID, logger.FieldAttempt: snap.Attempts}).Info("message sent")
	q.emit(Event{Queue: q.name, Job: snap, At: now}, Observer.OnCompleted, log)
}

func (q *Queue) fail(ctx context.Context, job *Job, err error, record bool, log *logger.Logger) {
	now := q.now()
	if record {
		rec := entity.SendRecord{
			SearchID:   job.SearchID,
			SupplierID: job.SupplierID,
			JobID:      job.ID,
			Error:      err.Error(),
			At:         now,
		}
		if rerr := q.quota.RecordFailed(context.WithoutCancel(ctx), rec); rerr != nil {
			log.WithError(rerr).Error("record failed message")
		}
	}

	q.mu.Lock()
	job.State = StateFailed
	job.LastError = err.Error()
	job.UpdatedAt = now
	job.FinishedAt = &now
	snap := *job
	q.mu.Unlock()

	log.WithError(err).WithField(logger.FieldAttempt, snap.Attempts).Error("message failed")
	q.emit(Event{Queue: q.name, Job: snap, Err: err, At: now}, Observer.OnFailed, log)
}

// stall handles a send that panicked: the job is requeued unless it already
// used every attempt.
func (q *Queue) stall(ctx context.Context, job *Job, err error, log *logger.Logger) {
	now := q.now()
	q.mu.Lock()
	job.Stalls++
	job.LastError = err.Error()
	job.UpdatedAt = now
	exhausted := job.Attempts >= q.cfg.MaxAttempts
	if !exhausted {
		job.State = StateWaiting
		heap.Push(&q.waiting, job)
	}
	snap := *job
	q.mu.Unlock()

	log.WithError(err).WithField("stalls", snap.Stalls).Warn("job stalled")
	q.emit(Event{Queue: q.name, Job: snap, Err: err, At: now}, Observer.OnStalled, log)
	if exhausted {
		q.fail(ctx, job, err, true, log)
		return
	}
	q.signal()
}

func (q *Queue) emit(ev Event, fn func(Observer, Event), log *logger.Logger) {
	q.mu.Lock()
	observers := append([]Observer(nil), q.observers...)
	q.mu.Unlock()
	for _, o := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.WithField("panic", fmt.Sprint(r)).Error("observer panicked")
				}
			}()
			fn(o, ev)
		}()
	}
}
