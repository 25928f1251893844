// Package search drives one supplier search run: candidate generation,
// filtering, message composition and hand-off to the dispatch queue.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/octobees/supplier-outreach/internal/compose"
	"github.com/octobees/supplier-outreach/internal/dispatch"
	"github.com/octobees/supplier-outreach/internal/entity"
	"github.com/octobees/supplier-outreach/internal/generation"
	"github.com/octobees/supplier-outreach/internal/logger"
	"github.com/octobees/supplier-outreach/internal/pipeline"
	"github.com/octobees/supplier-outreach/internal/quota"
	"github.com/octobees/supplier-outreach/internal/retry"
)

// Failure codes recorded on failed runs besides the pipeline's own codes.
const (
	CodeQuotaExceeded   = "quota_exceeded"
	CodeInvalidResponse = "invalid_response"
	CodeGeneration      = "generation_failed"
	CodeCancelled       = "cancelled"
	CodeInternal        = "internal"
)

const observerTimeout = 10 * time.Second

// ErrGeneration wraps every failed candidate generation.
var ErrGeneration = errors.New("candidate generation failed")

// Store persists runs, suppliers and run logs.
type Store interface {
	CreateRun(ctx context.Context, run *entity.SearchRun) error
	FinalizeRun(ctx context.Context, run *entity.SearchRun) error
	SaveSuppliers(ctx context.Context, suppliers []*entity.Supplier) error
	PatchSupplier(ctx context.Context, id string, patch entity.SupplierPatch) error
	AppendLog(ctx context.Context, entry entity.SearchLog) error
}

// Filter turns raw generation output into trusted suppliers.
type Filter interface {
	Filter(ctx context.Context, raw json.RawMessage, cfg pipeline.Config) (pipeline.Outcome, error)
}

// Writer drafts the personalized part of an email.
type Writer interface {
	Write(ctx context.Context, s entity.Supplier, q entity.SearchQuery, language string) (generation.Draft, error)
}

// Quota gates sends against the daily cap and the minimum interval.
type Quota interface {
	Authorize(ctx context.Context, runID string) error
	AwaitInterval(ctx context.Context, runID string) error
}

// Enqueuer admits prepared messages to the dispatch queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, job dispatch.Job) (string, error)
}

// RunRecorder counts runs as they start and finish.
type RunRecorder interface {
	RunStarted()
	RunFinished(status entity.RunStatus, m entity.RunMetrics)
}

// Deps are the collaborators of an Orchestrator. Metrics is optional.
type Deps struct {
	Store     Store
	Generator generation.Generator
	Filter    Filter
	Writer    Writer
	Composer  *compose.Composer
	Quota     Quota
	Queue     Enqueuer
	Prompts   generation.PromptSet
	Metrics   RunRecorder
}

// Config tunes runs.
type Config struct {
	DefaultMinSuppliers int
	DefaultMaxSuppliers int
	Temperature         float64
	LocalizeEmails      bool
	// Pipeline carries concurrency, timeouts and the fallback threshold.
	// Supplier bounds are taken from each query.
	Pipeline pipeline.Config
	// Provider names the send backend in conversation history.
	Provider string
	Retry    retry.Policy
}

// SupplierOutcome is the per-supplier result of a run.
type SupplierOutcome struct {
	SupplierID  string                `json:"supplier_id"`
	CompanyName string                `json:"company_name"`
	Email       string                `json:"email"`
	Priority    entity.Priority       `json:"priority"`
	Status      entity.SupplierStatus `json:"status"`
	JobID       string                `json:"job_id,omitempty"`
	Error       string                `json:"error,omitempty"`
}

// RunResult summarizes a finished run.
type RunResult struct {
	RunID    string            `json:"run_id"`
	Status   entity.RunStatus  `json:"status"`
	Outcomes []SupplierOutcome `json:"outcomes"`
	Metrics  entity.RunMetrics `json:"metrics"`
}

// Orchestrator runs searches.
type Orchestrator struct {
	deps Deps
	cfg  Config
	now  func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New builds an Orchestrator. Close stops background runs.
func New(deps Deps, cfg Config, opts ...Option) *Orchestrator {
	if cfg.DefaultMinSuppliers <= 0 {
		cfg.DefaultMinSuppliers = 15
	}
	if cfg.DefaultMaxSuppliers <= 0 {
		cfg.DefaultMaxSuppliers = 20
	}
	deps.Prompts = deps.Prompts.WithDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{deps: deps, cfg: cfg, now: time.Now, ctx: ctx, cancel: cancel}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Close cancels background runs and waits for them to finalize.
func (o *Orchestrator) Close() {
	o.cancel()
	o.wg.Wait()
}

// Prepare validates q and records a new processing run.
func (o *Orchestrator) Prepare(ctx context.Context, q entity.SearchQuery) (*entity.SearchRun, error) {
	q, err := NormalizeQuery(q, o.cfg.DefaultMinSuppliers, o.cfg.DefaultMaxSuppliers)
	if err != nil {
		return nil, err
	}
	now := o.now()
	run := &entity.SearchRun{
		ID:        NewRunID(now),
		Query:     q,
		Status:    entity.RunProcessing,
		Metrics:   entity.RunMetrics{SuppliersRequested: q.MaxSuppliers},
		StartedAt: now,
	}
	if err := o.deps.Store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create search run: %w", err)
	}
	if o.deps.Metrics != nil {
		o.deps.Metrics.RunStarted()
	}
	o.appendLog(ctx, run.ID, "info", "Search initialized", map[string]any{
		"product_description": q.ProductDescription,
		"region":              q.Region,
		"min_suppliers":       q.MinSuppliers,
		"max_suppliers":       q.MaxSuppliers,
	})
	return run, nil
}

// RunSearch prepares and executes a run synchronously.
func (o *Orchestrator) RunSearch(ctx context.Context, q entity.SearchQuery) (RunResult, error) {
	run, err := o.Prepare(ctx, q)
	if err != nil {
		return RunResult{}, err
	}
	return o.Execute(ctx, run)
}

// RunAsync prepares a run and executes it in the background on the
// orchestrator's own context. The caller's logger fields are kept.
func (o *Orchestrator) RunAsync(ctx context.Context, q entity.SearchQuery) (*entity.SearchRun, error) {
	run, err := o.Prepare(ctx, q)
	if err != nil {
		return nil, err
	}
	bg := logger.FromContext(ctx).WithContext(o.ctx)
	snapshot := *run

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("search run panicked: %v", r)
				logger.FromContext(bg).WithField(logger.FieldSearchID, run.ID).WithError(err).Error("search run crashed")
				o.fail(context.WithoutCancel(bg), run, RunResult{RunID: run.ID}, err)
			}
		}()
		_, _ = o.Execute(bg, run)
	}()
	return &snapshot, nil
}

// Execute runs generation, filtering and enqueueing for a prepared run and
// finalizes it exactly once.
func (o *Orchestrator) Execute(ctx context.Context, run *entity.SearchRun) (RunResult, error) {
	ctx, log := logger.With(ctx, logger.Fields{logger.FieldSearchID: run.ID, logger.FieldComponent: "search"})
	res := RunResult{RunID: run.ID, Status: entity.RunProcessing}

	if err := o.deps.Quota.Authorize(ctx, run.ID); err != nil {
		run.Metrics.QuotaExhausted = errors.Is(err, quota.ErrQuotaExceeded)
		return o.fail(ctx, run, res, err)
	}

	raw, err := o.generate(ctx, run)
	if err != nil {
		return o.fail(ctx, run, res, err)
	}

	pcfg := o.cfg.Pipeline
	pcfg.MinSuppliers = run.Query.MinSuppliers
	pcfg.MaxSuppliers = run.Query.MaxSuppliers
	outcome, err := o.deps.Filter.Filter(ctx, raw, pcfg)
	if err != nil {
		return o.fail(ctx, run, res, err)
	}
	run.Metrics.CandidatesReceived = outcome.Received
	run.Metrics.SchemaValid = outcome.SchemaValid
	run.Metrics.Reachable = outcome.Reachable
	run.Metrics.SuppliersValidated = len(outcome.Suppliers)
	run.Metrics.BelowMinimum = outcome.BelowMinimum
	o.appendLog(ctx, run.ID, "info", fmt.Sprintf("Validated %d suppliers", len(outcome.Suppliers)), map[string]any{
		"received":              outcome.Received,
		"schema_valid":          outcome.SchemaValid,
		"reachable":             outcome.Reachable,
		"verified":              outcome.Verified,
		"reachability_fallback": outcome.ReachabilityFallback,
		"below_minimum":         outcome.BelowMinimum,
		"rejects":               outcome.Rejects,
	})

	suppliers := outcome.Suppliers
	for i, s := range suppliers {
		s.SearchID = run.ID
		s.ThreadID = ThreadID(run.ID, i+1)
	}
	if err := o.deps.Store.SaveSuppliers(ctx, suppliers); err != nil {
		return o.fail(ctx, run, res, fmt.Errorf("persist suppliers: %w", err))
	}

	res.Outcomes = make([]SupplierOutcome, 0, len(suppliers))
	stopped := false
	for _, s := range suppliers {
		out := SupplierOutcome{
			SupplierID:  s.ID,
			CompanyName: s.CompanyName,
			Email:       s.Email,
			Priority:    s.Priority,
			Status:      s.Status,
		}
		if !stopped && ctx.Err() == nil {
			out, stopped = o.dispatchOne(ctx, run, s, out)
		}
		res.Outcomes = append(res.Outcomes, out)
	}
	if err := ctx.Err(); err != nil {
		return o.fail(ctx, run, res, err)
	}

	run.Status = entity.RunCompleted
	if err := o.finalize(ctx, run); err != nil {
		return res, err
	}
	res.Status = run.Status
	res.Metrics = run.Metrics
	log.WithFields(logger.Fields{
		"emails_queued":       run.Metrics.EmailsQueued,
		"suppliers_validated": run.Metrics.SuppliersValidated,
		"quota_exhausted":     run.Metrics.QuotaExhausted,
	}).Info("search completed")
	o.appendLog(ctx, run.ID, "info", "Search completed", map[string]any{"metrics": run.Metrics})
	return res, nil
}

func (o *Orchestrator) generate(ctx context.Context, run *entity.SearchRun) (json.RawMessage, error) {
	prompt := o.deps.Prompts.SearchPrompt(run.Query, o.cfg.Temperature)
	o.appendLog(ctx, run.ID, "info", "Requesting supplier candidates", map[string]any{"generator": o.deps.Generator.Name()})
	raw, err := retry.Execute(ctx, o.retryPolicy(ctx, "generate candidates"), func(ctx context.Context) (json.RawMessage, error) {
		return o.deps.Generator.Generate(ctx, prompt)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	return raw, nil
}

// dispatchOne prepares and enqueues one supplier. stop reports that no
// further suppliers should be attempted.
func (o *Orchestrator) dispatchOne(ctx context.Context, run *entity.SearchRun, s *entity.Supplier, out SupplierOutcome) (SupplierOutcome, bool) {
	log := logger.FromContext(ctx).WithField(logger.FieldSupplierID, s.ID)

	if err := o.deps.Quota.Authorize(ctx, run.ID); err != nil {
		if errors.Is(err, quota.ErrQuotaExceeded) {
			o.quotaStop(ctx, run, err)
			return out, true
		}
		return o.supplierFailed(ctx, run, s, out, "authorize", err), false
	}
	if err := o.deps.Quota.AwaitInterval(ctx, run.ID); err != nil {
		if ctx.Err() != nil {
			return out, true
		}
		return o.supplierFailed(ctx, run, s, out, "await send interval", err), false
	}

	language := "en"
	if o.cfg.LocalizeEmails {
		language = generation.LanguageForCountry(s.Country)
	}
	draft, err := retry.Execute(ctx, o.retryPolicy(ctx, "write email"), func(ctx context.Context) (generation.Draft, error) {
		return o.deps.Writer.Write(ctx, *s, run.Query, language)
	})
	if err != nil {
		if ctx.Err() != nil {
			return out, true
		}
		return o.supplierFailed(ctx, run, s, out, "write email", err), false
	}

	email := o.deps.Composer.ComposeEmail(draft.Subject, draft.Body, *s, run.Query)
	job := dispatch.Job{
		ID:         uuid.NewString(),
		SearchID:   run.ID,
		SupplierID: s.ID,
		Priority:   s.Priority,
		Message:    o.deps.Composer.Message(email, *s),
	}

	// Mark queued before admission so a fast worker's Email Sent is never overwritten.
	queued := entity.SupplierPatch{
		Status: entity.StatusEmailQueued,
		Event: &entity.ConversationEvent{
			Direction: entity.DirectionSystem,
			Subject:   email.Subject,
			Body:      "Email queued for sending",
			JobID:     job.ID,
		},
		At: o.now(),
	}
	if err := o.deps.Store.PatchSupplier(ctx, s.ID, queued); err != nil {
		return o.supplierFailed(ctx, run, s, out, "mark queued", err), false
	}

	if _, err := o.deps.Queue.Enqueue(ctx, job); err != nil {
		if errors.Is(err, quota.ErrQuotaExceeded) {
			o.patch(ctx, s.ID, entity.SupplierPatch{
				Status: entity.StatusPendingOutreach,
				Event: &entity.ConversationEvent{
					Direction: entity.DirectionSystem,
					Subject:   "Email not queued",
					Error:     err.Error(),
					JobID:     job.ID,
				},
				At: o.now(),
			})
			o.quotaStop(ctx, run, err)
			return out, true
		}
		return o.supplierFailed(ctx, run, s, out, "enqueue", err), false
	}

	run.Metrics.EmailsQueued++
	out.Status = entity.StatusEmailQueued
	out.JobID = job.ID
	log.WithField(logger.FieldJobID, job.ID).Info("email queued")
	o.appendLog(ctx, run.ID, "info", "Email queued for "+s.CompanyName, map[string]any{
		"supplier_id": s.ID,
		"job_id":      job.ID,
		"priority":    s.Priority,
	})
	return out, false
}

func (o *Orchestrator) quotaStop(ctx context.Context, run *entity.SearchRun, err error) {
	run.Metrics.QuotaExhausted = true
	logger.FromContext(ctx).WithError(err).Warn("daily send quota exhausted, stopping outreach")
	var qe *quota.QuotaError
	data := map[string]any{}
	if errors.As(err, &qe) {
		data["daily_limit"] = qe.Limit
		data["sent_today"] = qe.Sent
	}
	o.appendLog(ctx, run.ID, "warn", err.Error(), data)
}

func (o *Orchestrator) supplierFailed(ctx context.Context, run *entity.SearchRun, s *entity.Supplier, out SupplierOutcome, step string, err error) SupplierOutcome {
	run.Metrics.EmailsFailed++
	msg := fmt.Sprintf("%s: %v", step, err)
	logger.FromContext(ctx).WithField(logger.FieldSupplierID, s.ID).WithError(err).Warn("supplier outreach failed")
	o.patch(ctx, s.ID, entity.SupplierPatch{
		Status: entity.StatusEmailFailed,
		Notes:  &msg,
		Event: &entity.ConversationEvent{
			Direction: entity.DirectionSystem,
			Subject:   "Email preparation failed",
			Error:     msg,
		},
		At: o.now(),
	})
	o.appendLog(ctx, run.ID, "error", "Failed to email "+s.CompanyName, map[string]any{"supplier_id": s.ID, "error": msg})
	out.Status = entity.StatusEmailFailed
	out.Error = msg
	return out
}

// fail finalizes run as failed and returns err unchanged.
func (o *Orchestrator) fail(ctx context.Context, run *entity.SearchRun, res RunResult, err error) (RunResult, error) {
	run.Status = entity.RunFailed
	run.FailureReason = err.Error()
	run.FailureCode, run.Diagnostics = classify(err)
	if ctx.Err() != nil {
		run.FailureCode = CodeCancelled
	}
	ctx = context.WithoutCancel(ctx)

	logger.FromContext(ctx).WithField(logger.FieldSearchID, run.ID).WithError(err).
		WithField("code", run.FailureCode).Error("search failed")
	o.appendLog(ctx, run.ID, "error", "Search failed", map[string]any{"code": run.FailureCode, "error": err.Error()})

	if ferr := o.finalize(ctx, run); ferr != nil {
		err = errors.Join(err, ferr)
	}
	res.Status = run.Status
	res.Metrics = run.Metrics
	return res, err
}

func (o *Orchestrator) finalize(ctx context.Context, run *entity.SearchRun) error {
	at := o.now()
	run.CompletedAt = &at
	if err := o.deps.Store.FinalizeRun(ctx, run); err != nil {
		return fmt.Errorf("finalize run %s: %w", run.ID, err)
	}
	if o.deps.Metrics != nil {
		o.deps.Metrics.RunFinished(run.Status, run.Metrics)
	}
	return nil
}

func classify(err error) (string, json.RawMessage) {
	var fatal *pipeline.FatalError
	var invalid *generation.InvalidResponseError
	switch {
	case errors.As(err, &fatal):
		diag, _ := json.Marshal(fatal)
		return fatal.Code, diag
	case errors.Is(err, quota.ErrQuotaExceeded):
		return CodeQuotaExceeded, nil
	case errors.As(err, &invalid):
		diag, _ := json.Marshal(map[string]string{"raw": invalid.Raw})
		return CodeInvalidResponse, diag
	case errors.Is(err, context.Canceled):
		return CodeCancelled, nil
	case errors.Is(err, ErrGeneration):
		return CodeGeneration, nil
	}
	return CodeInternal, nil
}

func (o *Orchestrator) retryPolicy(ctx context.Context, op string) retry.Policy {
	p := o.cfg.Retry
	log := logger.FromContext(ctx)
	p.OnAttempt = func(a retry.Attempt) {
		log.WithFields(logger.Fields{
			logger.FieldAttempt: a.Number,
			"will_retry":        a.WillRetry,
			"delay_ms":          a.Delay.Milliseconds(),
		}).WithError(a.Err).Warn(op + " attempt failed")
	}
	return p
}

func (o *Orchestrator) patch(ctx context.Context, id string, p entity.SupplierPatch) {
	if err := o.deps.Store.PatchSupplier(ctx, id, p); err != nil {
		logger.FromContext(ctx).WithField(logger.FieldSupplierID, id).WithError(err).Error("update supplier failed")
	}
}

func (o *Orchestrator) appendLog(ctx context.Context, runID, level, message string, data map[string]any) {
	entry := entity.SearchLog{SearchID: runID, Level: level, Message: message, Data: data, CreatedAt: o.now()}
	if err := o.deps.Store.AppendLog(context.WithoutCancel(ctx), entry); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("append run log failed")
	}
}
