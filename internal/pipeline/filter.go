// Package pipeline reduces generated supplier candidates to a bounded set of
// verified suppliers.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/octobees/supplier-outreach/internal/contact"
	"github.com/octobees/supplier-outreach/internal/entity"
	"github.com/octobees/supplier-outreach/internal/logger"
)

const (
	highPriorityCount       = 5
	maxLoggedVerifyRejects  = 10
	websiteSourceSearch     = "search"
	websiteSourceGeneration = "generation"
)

// Config carries the per-run filter bounds.
type Config struct {
	MinSuppliers            int
	MaxSuppliers            int
	VerificationConcurrency int
	VerificationTimeout     time.Duration
	// FallbackThreshold is the reachable count below which the reachability
	// stage is bypassed. Zero means MinSuppliers.
	FallbackThreshold int
}

// Reachability partitions suppliers by website accessibility.
type Reachability interface {
	FilterByReachability(ctx context.Context, suppliers []*entity.Supplier, requireAccessible bool) (valid, invalid []*entity.Supplier)
}

// Verifier corroborates supplier contact emails.
type Verifier interface {
	VerifyAll(ctx context.Context, suppliers []*entity.Supplier, opts contact.Options) (verified, rejected []*entity.Supplier)
}

// WebsiteFinder resolves a website for a candidate that has none.
type WebsiteFinder interface {
	FindWebsite(ctx context.Context, companyName, country string) (string, error)
}

// Outcome is the result of one Filter call.
type Outcome struct {
	Suppliers            []*entity.Supplier `json:"-"`
	Received             int                `json:"received"`
	SchemaValid          int                `json:"schema_valid"`
	Reachable            int                `json:"reachable"`
	Verified             int                `json:"verified"`
	ReachabilityFallback bool               `json:"reachability_fallback"`
	BelowMinimum         bool               `json:"below_minimum"`
	Rejects              []Reject           `json:"rejects,omitempty"`
}

// Pipeline wires the filter stages together.
type Pipeline struct {
	reach    Reachability
	verifier Verifier
	finder   WebsiteFinder
	now      func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithWebsiteFinder enables website discovery for candidates without one.
func WithWebsiteFinder(f WebsiteFinder) Option {
	return func(p *Pipeline) { p.finder = f }
}

// WithClock overrides the time source used for supplier ids.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// New builds a pipeline.
func New(reach Reachability, verifier Verifier, opts ...Option) *Pipeline {
	p := &Pipeline{reach: reach, verifier: verifier, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Filter runs shape extraction, schema validation, reachability, contact
// verification and truncation, strictly in that order. Only the first two
// stages can fail the call with a *FatalError; the later stages degrade.
// Cancellation of ctx is returned as ctx.Err().
func (p *Pipeline) Filter(ctx context.Context, raw json.RawMessage, cfg Config) (Outcome, error) {
	log := logger.FromContext(ctx).WithField(logger.FieldComponent, "pipeline")
	var out Outcome

	records, err := ExtractShape(raw)
	if err != nil {
		return out, err
	}
	out.Received = len(records)

	valid, rejects := ValidateAll(records)
	out.Rejects = append(out.Rejects, rejects...)
	out.SchemaValid = len(valid)
	if len(valid) == 0 {
		reported := rejects
		if len(reported) > maxReportedRejects {
			reported = reported[:maxReportedRejects]
		}
		return out, &FatalError{
			Code:    CodeNoValidCandidates,
			Message: fmt.Sprintf("none of %d candidates passed validation", len(records)),
			Raw:     raw,
			Rejects: reported,
		}
	}
	log.WithFields(logger.Fields{"received": out.Received, "schema_valid": out.SchemaValid}).Info("schema validation finished")

	drafts := make([]*entity.Supplier, 0, len(valid))
	for _, rec := range valid {
		drafts = append(drafts, draftSupplier(rec))
	}
	p.discoverWebsites(ctx, drafts, log)
	if err := ctx.Err(); err != nil {
		return out, err
	}

	reachable, unreachable := p.reach.FilterByReachability(ctx, drafts, true)
	if err := ctx.Err(); err != nil {
		return out, err
	}
	out.Reachable = len(reachable)
	for _, s := range unreachable {
		out.Rejects = append(out.Rejects, Reject{
			Stage:       StageReachability,
			Index:       indexOf(drafts, s),
			CompanyName: s.CompanyName,
			Website:     s.Website,
			Reasons:     []string{reachabilityReason(s)},
		})
	}

	threshold := cfg.FallbackThreshold
	if threshold <= 0 {
		threshold = cfg.MinSuppliers
	}
	candidates := reachable
	if len(reachable) < threshold {
		out.ReachabilityFallback = true
		candidates = drafts
		log.WithFields(logger.Fields{"reachable": len(reachable), "threshold": threshold, "schema_valid": len(drafts)}).
			Warn("reachable suppliers below threshold, falling back to all schema-valid candidates")
	}

	verified, rejected := p.verifier.VerifyAll(ctx, candidates, contact.Options{
		Concurrency:    cfg.VerificationConcurrency,
		TimeoutPerPage: cfg.VerificationTimeout,
	})
	if err := ctx.Err(); err != nil {
		return out, err
	}
	out.Verified = len(verified)
	for i, s := range rejected {
		reason := verificationReason(s)
		out.Rejects = append(out.Rejects, Reject{
			Stage:       StageVerification,
			Index:       indexOf(drafts, s),
			CompanyName: s.CompanyName,
			Website:     s.Website,
			Reasons:     []string{reason},
		})
		if i < maxLoggedVerifyRejects {
			log.WithFields(logger.Fields{"company": s.CompanyName, "website": s.Website, "reason": reason}).
				Info("contact verification rejected supplier")
		}
	}

	out.Suppliers = p.finalize(verified, cfg.MaxSuppliers)
	if len(out.Suppliers) < cfg.MinSuppliers {
		out.BelowMinimum = true
		log.WithFields(logger.Fields{"validated": len(out.Suppliers), "min_suppliers": cfg.MinSuppliers}).
			Warn("fewer suppliers than requested survived filtering")
	}
	return out, nil
}

// finalize truncates to limit and assigns identity, priority and status.
func (p *Pipeline) finalize(verified []*entity.Supplier, limit int) []*entity.Supplier {
	if limit > 0 && len(verified) > limit {
		verified = verified[:limit]
	}
	now := p.now()
	for i, s := range verified {
		s.ID = SupplierID(now, i)
		s.Priority = entity.PriorityNormal
		if i < highPriorityCount {
			s.Priority = entity.PriorityHigh
		}
		s.Status = entity.StatusPendingOutreach
		s.History = []entity.ConversationEvent{}
		s.CreatedAt = now
		s.UpdatedAt = now
	}
	return verified
}

func (p *Pipeline) discoverWebsites(ctx context.Context, drafts []*entity.Supplier, log *logger.Logger) {
	if p.finder == nil {
		return
	}
	for _, s := range drafts {
		if s.Website != "" {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		site, err := p.finder.FindWebsite(ctx, s.CompanyName, s.Country)
		if err != nil {
			log.WithError(err).WithField("company", s.CompanyName).Warn("website discovery failed")
			continue
		}
		if site != "" {
			s.Website = site
			s.Metadata.WebsiteSource = websiteSourceSearch
		}
	}
}

// SupplierID formats the identifier of the n-th (zero based) supplier of a run.
func SupplierID(at time.Time, n int) string {
	return fmt.Sprintf("SUP_%d_%03d", at.UnixMilli(), n+1)
}

func draftSupplier(rec entity.CandidateRecord) *entity.Supplier {
	s := &entity.Supplier{
		CompanyName:          strings.TrimSpace(rec.CompanyName),
		Email:                contact.NormalizeEmail(rec.Email),
		Phone:                rec.Phone,
		Country:              strings.TrimSpace(rec.Country),
		City:                 rec.City,
		Website:              strings.TrimSpace(rec.Website),
		Capabilities:         rec.Capabilities,
		ProductionCapacity:   rec.ProductionCapacity,
		Certifications:       rec.Certifications,
		YearsInBusiness:      rec.YearsInBusiness,
		PriceRange:           rec.PriceRange,
		MinimumOrderQuantity: rec.MinimumOrderQuantity,
		Metadata:             entity.SupplierMetadata{Raw: rec.Raw},
	}
	if s.Website != "" {
		s.Metadata.WebsiteSource = websiteSourceGeneration
	}
	return s
}

func reachabilityReason(s *entity.Supplier) string {
	if r := s.Metadata.Reachability; r != nil && r.Error != "" {
		return r.Error
	}
	return "website not reachable"
}

func verificationReason(s *entity.Supplier) string {
	if v := s.Metadata.Verification; v != nil && v.Reason != "" {
		return v.Reason
	}
	return "contact verification failed"
}

func indexOf(list []*entity.Supplier, target *entity.Supplier) int {
	for i, s := range list {
		if s == target {
			return i
		}
	}
	return -1
}
