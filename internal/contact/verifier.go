// Package contact corroborates supplier contact details against their own
// websites.
package contact

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/octobees/supplier-outreach/internal/entity"
)

const (
	DefaultConcurrency    = 3
	DefaultTimeoutPerPage = 12 * time.Second
	maxPageBytes          = 2 << 20
	userAgent             = "Mozilla/5.0 (compatible; SupplierSearchBot/1.0)"
)

// Rejection reasons.
const (
	ReasonMissingWebsite = "Missing website URL"
	ReasonInvalidWebsite = "Invalid website URL"
	ReasonDomainMismatch = "Email evidence domain mismatch"
	ReasonNothingFound   = "No contact email found on website"
)

// DefaultPaths are the pages most likely to carry a contact address.
var DefaultPaths = []string{
	"/",
	"/contact",
	"/contact-us",
	"/contactus",
	"/contacts",
	"/en/contact",
	"/en/contact-us",
	"/about",
	"/about-us",
	"/company/contact",
	"/support",
	"/sales",
	"/en/about-us",
}

// HTTPClient abstracts HTTP requests so page fetches can be stubbed.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options tunes a verification batch.
type Options struct {
	Concurrency    int
	TimeoutPerPage time.Duration
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.TimeoutPerPage <= 0 {
		o.TimeoutPerPage = DefaultTimeoutPerPage
	}
	return o
}

// Verifier crawls candidate pages of a supplier website.
type Verifier struct {
	client HTTPClient
	paths  []string
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client HTTPClient) VerifierOption {
	return func(v *Verifier) {
		if client != nil {
			v.client = client
		}
	}
}

// WithPaths replaces the list of crawled paths.
func WithPaths(paths ...string) VerifierOption {
	return func(v *Verifier) {
		if len(paths) > 0 {
			v.paths = paths
		}
	}
}

// NewVerifier builds a verifier with the default path list.
func NewVerifier(opts ...VerifierOption) *Verifier {
	v := &Verifier{client: &http.Client{}, paths: DefaultPaths}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify crawls the supplier's site and judges its claimed email. On a
// domain-matched or extracted outcome the supplier email is replaced by the
// discovered address. The result is also attached to the supplier metadata.
func (v *Verifier) Verify(ctx context.Context, s *entity.Supplier, opts Options) entity.VerificationResult {
	opts = opts.withDefaults()
	res := v.verify(ctx, s, opts)
	if res.Status.Verified() && res.Evidence.ResolvedEmail != "" && res.Evidence.ResolvedEmail != s.Email {
		if s.Email != "" {
			s.Metadata.OriginalEmail = s.Email
		}
		s.Email = res.Evidence.ResolvedEmail
	}
	s.Metadata.Verification = &res
	return res
}

// VerifyAll verifies suppliers under the concurrency limit and partitions
// them. It never fails; input order is kept in both slices.
func (v *Verifier) VerifyAll(ctx context.Context, suppliers []*entity.Supplier, opts Options) (verified, rejected []*entity.Supplier) {
	opts = opts.withDefaults()
	results := make([]entity.VerificationResult, len(suppliers))

	var g errgroup.Group
	g.SetLimit(opts.Concurrency)
	for i, s := range suppliers {
		g.Go(func() error {
			results[i] = v.Verify(ctx, s, opts)
			return nil
		})
	}
	_ = g.Wait()

	for i, s := range suppliers {
		if results[i].Status.Verified() {
			verified = append(verified, s)
			continue
		}
		rejected = append(rejected, s)
	}
	return verified, rejected
}

func (v *Verifier) verify(ctx context.Context, s *entity.Supplier, opts Options) entity.VerificationResult {
	candidate := NormalizeEmail(s.Email)
	evidence := entity.Evidence{CandidateEmail: candidate, Emails: []entity.SourcedValue{}, Phones: []entity.SourcedValue{}, Pages: []entity.PageAttempt{}}

	website := strings.TrimSpace(s.Website)
	if website == "" {
		return failed(ReasonMissingWebsite, evidence)
	}
	urls, host := candidateURLs(website, v.paths)
	if len(urls) == 0 {
		return failed(ReasonInvalidWebsite, evidence)
	}
	evidence.SiteDomain = RegistrableDomain(host)
	region := RegionForCountry(s.Country)

	emailSource := map[string]string{}
	phoneSeen := map[string]struct{}{}
	for _, target := range urls {
		if ctx.Err() != nil {
			break
		}
		page, body := v.fetch(ctx, target, opts.TimeoutPerPage)
		evidence.Pages = append(evidence.Pages, page)
		if body == nil {
			continue
		}
		source := page.FinalURL
		if source == "" {
			source = target
		}
		found := Extract(strings.NewReader(string(body)), region)
		for _, email := range found.Emails {
			if _, ok := emailSource[email]; ok {
				continue
			}
			emailSource[email] = source
			evidence.Emails = append(evidence.Emails, entity.SourcedValue{Value: email, Source: source})
		}
		for _, phone := range found.Phones {
			if _, ok := phoneSeen[phone]; ok {
				continue
			}
			phoneSeen[phone] = struct{}{}
			evidence.Phones = append(evidence.Phones, entity.SourcedValue{Value: phone, Source: source})
		}
		if _, ok := emailSource[candidate]; ok && candidate != "" {
			break
		}
	}

	if src, ok := emailSource[candidate]; ok && candidate != "" {
		evidence.ResolvedEmail = candidate
		evidence.MatchedSource = src
		return entity.VerificationResult{Status: entity.VerificationMatched, Evidence: evidence}
	}
	for _, e := range evidence.Emails {
		if evidence.SiteDomain != "" && RegistrableDomain(EmailDomain(e.Value)) == evidence.SiteDomain {
			evidence.ResolvedEmail = e.Value
			evidence.MatchedSource = e.Source
			status := entity.VerificationDomainMatched
			if candidate == "" {
				status = entity.VerificationExtracted
			}
			return entity.VerificationResult{Status: status, Evidence: evidence}
		}
	}
	if candidate == "" && len(evidence.Emails) > 0 {
		first := evidence.Emails[0]
		evidence.ResolvedEmail = first.Value
		evidence.MatchedSource = first.Source
		return entity.VerificationResult{Status: entity.VerificationExtracted, Evidence: evidence}
	}
	if len(evidence.Emails) > 0 {
		return failed(ReasonDomainMismatch, evidence)
	}
	return failed(ReasonNothingFound, evidence)
}

func (v *Verifier) fetch(ctx context.Context, target string, timeout time.Duration) (entity.PageAttempt, []byte) {
	page := entity.PageAttempt{URL: target}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		page.Error = err.Error()
		return page, nil
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")

	resp, err := v.client.Do(req)
	if err != nil {
		page.Error = fetchError(err)
		return page, nil
	}
	defer resp.Body.Close()

	page.Status = resp.StatusCode
	if resp.Request != nil && resp.Request.URL != nil {
		page.FinalURL = resp.Request.URL.String()
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "text") {
		return page, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		page.Error = fetchError(err)
		return page, nil
	}
	return page, body
}

// candidateURLs combines the site origin and its www/bare twin with every path.
func candidateURLs(website string, paths []string) ([]string, string) {
	raw := website
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, ""
	}
	host := strings.ToLower(u.Host)
	origins := []string{u.Scheme + "://" + host}
	if strings.HasPrefix(host, "www.") {
		origins = append(origins, u.Scheme+"://"+strings.TrimPrefix(host, "www."))
	} else {
		origins = append(origins, u.Scheme+"://www."+host)
	}

	seen := map[string]struct{}{}
	urls := make([]string, 0, len(origins)*len(paths))
	for _, origin := range origins {
		for _, p := range paths {
			if !strings.HasPrefix(p, "/") {
				p = "/" + p
			}
			full := origin + p
			if _, dup := seen[full]; dup {
				continue
			}
			seen[full] = struct{}{}
			urls = append(urls, full)
		}
	}
	return urls, u.Hostname()
}

func failed(reason string, evidence entity.Evidence) entity.VerificationResult {
	return entity.VerificationResult{Status: entity.VerificationFailed, Reason: reason, Evidence: evidence}
}

func fetchError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "Timeout"
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return "Timeout"
	}
	return err.Error()
}
