package contact

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/octobees/supplier-outreach/internal/entity"
)

type page struct {
	status      int
	contentType string
	body        string
}

type stubSite struct {
	mu       sync.Mutex
	pages    map[string]page
	requests []string
	delay    time.Duration
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (s *stubSite) Do(req *http.Request) (*http.Response, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		seen := s.maxSeen.Load()
		if n <= seen || s.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	url := req.URL.String()
	s.mu.Lock()
	s.requests = append(s.requests, url)
	p, ok := s.pages[url]
	s.mu.Unlock()
	if !ok {
		p = page{status: http.StatusNotFound, contentType: "text/html", body: "<p>not found</p>"}
	}
	if p.contentType == "" {
		p.contentType = "text/html; charset=utf-8"
	}
	return &http.Response{
		StatusCode: p.status,
		Header:     http.Header{"Content-Type": []string{p.contentType}},
		Body:       io.NopCloser(strings.NewReader(p.body)),
		Request:    req,
	}, nil
}

func htmlPage(body string) page {
	return page{status: http.StatusOK, body: "<html><body>" + body + "</body></html>"}
}

func newSupplier(email, website string) *entity.Supplier {
	return &entity.Supplier{CompanyName: "Acme Industrial Co", Email: email, Website: website, Country: "USA"}
}

func TestVerifyMatchedStopsEarly(t *testing.T) {
	site := &stubSite{pages: map[string]page{
		"https://acme-industrial.com/":        htmlPage("<p>Welcome</p>"),
		"https://acme-industrial.com/contact": htmlPage(`<a href="mailto:sales@acme-industrial.com">Email us</a> +1 650 253 0000`),
	}}
	v := NewVerifier(WithHTTPClient(site))
	s := newSupplier("Sales@Acme-Industrial.com", "acme-industrial.com")

	res := v.Verify(context.Background(), s, Options{})

	assert.Equal(t, entity.VerificationMatched, res.Status)
	assert.Equal(t, "https://acme-industrial.com/contact", res.Evidence.MatchedSource)
	assert.Equal(t, "acme-industrial.com", res.Evidence.SiteDomain)
	assert.Len(t, res.Evidence.Pages, 2)
	assert.Equal(t, []string{"https://acme-industrial.com/", "https://acme-industrial.com/contact"}, site.requests)
	assert.Equal(t, "+16502530000", res.Evidence.Phones[0].Value)
	assert.Equal(t, "sales@acme-industrial.com", s.Email)
	require.NotNil(t, s.Metadata.Verification)
	assert.Equal(t, entity.VerificationMatched, s.Metadata.Verification.Status)
}

func TestVerifyDomainMatchedCorrectsEmail(t *testing.T) {
	site := &stubSite{pages: map[string]page{
		"https://www.acme-industrial.com/about": htmlPage("<p>Export desk: export@acme-industrial.com</p>"),
	}}
	v := NewVerifier(WithHTTPClient(site))
	s := newSupplier("info@acme-old.com", "https://www.acme-industrial.com")

	res := v.Verify(context.Background(), s, Options{})

	assert.Equal(t, entity.VerificationDomainMatched, res.Status)
	assert.Equal(t, "export@acme-industrial.com", s.Email)
	assert.Equal(t, "info@acme-old.com", s.Metadata.OriginalEmail)
	assert.Equal(t, "https://www.acme-industrial.com/about", res.Evidence.MatchedSource)
	// both the www origin and the bare origin are crawled without an early exit
	assert.Len(t, res.Evidence.Pages, 2*len(DefaultPaths))
}

func TestVerifyExtractedWithoutCandidate(t *testing.T) {
	site := &stubSite{pages: map[string]page{
		"https://acme-industrial.com/contact": htmlPage("<p>agent@tradepartner.cn</p>"),
	}}
	v := NewVerifier(WithHTTPClient(site), WithPaths("/", "/contact"))
	s := newSupplier("", "acme-industrial.com")

	res := v.Verify(context.Background(), s, Options{})

	assert.Equal(t, entity.VerificationExtracted, res.Status)
	assert.Equal(t, "agent@tradepartner.cn", s.Email)
	assert.Empty(t, s.Metadata.OriginalEmail)
}

func TestVerifyExtractedPrefersSiteDomain(t *testing.T) {
	site := &stubSite{pages: map[string]page{
		"https://acme-industrial.com/": htmlPage("<p>agent@tradepartner.cn and hello@acme-industrial.com</p>"),
	}}
	v := NewVerifier(WithHTTPClient(site), WithPaths("/"))
	s := newSupplier("", "acme-industrial.com")

	res := v.Verify(context.Background(), s, Options{})

	assert.Equal(t, entity.VerificationExtracted, res.Status)
	assert.Equal(t, "hello@acme-industrial.com", s.Email)
}

func TestVerifyFailures(t *testing.T) {
	t.Run("domain mismatch", func(t *testing.T) {
		site := &stubSite{pages: map[string]page{
			"https://acme-industrial.com/": htmlPage("<p>agent@tradepartner.cn</p>"),
		}}
		s := newSupplier("sales@acme-industrial.com", "acme-industrial.com")
		res := NewVerifier(WithHTTPClient(site), WithPaths("/")).Verify(context.Background(), s, Options{})
		assert.Equal(t, entity.VerificationFailed, res.Status)
		assert.Equal(t, ReasonDomainMismatch, res.Reason)
		assert.Equal(t, "sales@acme-industrial.com", s.Email)
	})

	t.Run("nothing found", func(t *testing.T) {
		site := &stubSite{pages: map[string]page{}}
		s := newSupplier("sales@acme-industrial.com", "acme-industrial.com")
		res := NewVerifier(WithHTTPClient(site), WithPaths("/")).Verify(context.Background(), s, Options{})
		assert.Equal(t, ReasonNothingFound, res.Reason)
		assert.Len(t, res.Evidence.Pages, 2)
		assert.Equal(t, http.StatusNotFound, res.Evidence.Pages[0].Status)
	})

	t.Run("missing website", func(t *testing.T) {
		site := &stubSite{}
		res := NewVerifier(WithHTTPClient(site)).Verify(context.Background(), newSupplier("a@acme.com", "  "), Options{})
		assert.Equal(t, ReasonMissingWebsite, res.Reason)
		assert.Empty(t, site.requests)
	})

	t.Run("invalid website", func(t *testing.T) {
		res := NewVerifier(WithHTTPClient(&stubSite{})).Verify(context.Background(), newSupplier("a@acme.com", "ftp://acme.com"), Options{})
		assert.Equal(t, ReasonInvalidWebsite, res.Reason)
	})

	t.Run("non text content is not parsed", func(t *testing.T) {
		site := &stubSite{pages: map[string]page{
			"https://acme-industrial.com/": {status: http.StatusOK, contentType: "application/pdf", body: "sales@acme-industrial.com"},
		}}
		s := newSupplier("sales@acme-industrial.com", "acme-industrial.com")
		res := NewVerifier(WithHTTPClient(site), WithPaths("/")).Verify(context.Background(), s, Options{})
		assert.Equal(t, ReasonNothingFound, res.Reason)
	})
}

func TestVerifyAllBoundsConcurrencyAndKeepsOrder(t *testing.T) {
	site := &stubSite{delay: 10 * time.Millisecond, pages: map[string]page{
		"https://a.com/": htmlPage("sales@a.com"),
		"https://c.com/": htmlPage("sales@c.com"),
		"https://e.com/": htmlPage("sales@e.com"),
	}}
	v := NewVerifier(WithHTTPClient(site), WithPaths("/"))
	suppliers := []*entity.Supplier{
		newSupplier("sales@a.com", "a.com"),
		newSupplier("sales@b.com", "b.com"),
		newSupplier("sales@c.com", "c.com"),
		newSupplier("sales@d.com", "d.com"),
		newSupplier("sales@e.com", "e.com"),
	}

	verified, rejected := v.VerifyAll(context.Background(), suppliers, Options{Concurrency: 2})

	require.Len(t, verified, 3)
	require.Len(t, rejected, 2)
	assert.Equal(t, "a.com", verified[0].Website)
	assert.Equal(t, "c.com", verified[1].Website)
	assert.Equal(t, "e.com", verified[2].Website)
	assert.Equal(t, "b.com", rejected[0].Website)
	assert.LessOrEqual(t, site.maxSeen.Load(), int32(2))
	for _, s := range suppliers {
		assert.NotNil(t, s.Metadata.Verification)
	}
}
