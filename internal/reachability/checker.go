// Package reachability probes claimed supplier websites.
package reachability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/octobees/supplier-outreach/internal/entity"
	"github.com/octobees/supplier-outreach/internal/retry"
)

const (
	DefaultTimeout     = 10 * time.Second
	DefaultConcurrency = 5
	UserAgent          = "Mozilla/5.0 (compatible; SupplierSearchBot/1.0)"
)

// Result is the structured outcome of one probe.
type Result = entity.ReachabilityResult

// HTTPClient abstracts HTTP requests so probes can be stubbed.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Checker confirms that a website answers over HTTP(S).
type Checker struct {
	client      HTTPClient
	timeout     time.Duration
	concurrency int
	retry       *retry.Policy
}

// Option configures a Checker.
type Option func(*Checker)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client HTTPClient) Option {
	return func(c *Checker) {
		if client != nil {
			c.client = client
		}
	}
}

// WithTimeout sets the default per-probe timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithConcurrency bounds the number of probes in flight during a batch.
func WithConcurrency(n int) Option {
	return func(c *Checker) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithRetry retries a probe that failed with a retryable error or status.
func WithRetry(p retry.Policy) Option {
	return func(c *Checker) {
		c.retry = &p
	}
}

// New builds a checker with sensible defaults.
func New(opts ...Option) *Checker {
	c := &Checker{
		// Redirects are followed; the final hop decides accessibility.
		client:      &http.Client{},
		timeout:     DefaultTimeout,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check probes rawURL and never fails: every outcome is a Result.
// A zero timeout uses the checker default.
func (c *Checker) Check(ctx context.Context, rawURL string, timeout time.Duration) Result {
	if timeout <= 0 {
		timeout = c.timeout
	}
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return Result{Error: "Empty URL provided"}
	}
	target, err := normalize(raw)
	if err != nil {
		return Result{URL: raw, Error: "Invalid URL"}
	}

	res, netErr := c.probe(ctx, target, timeout)
	if netErr == nil {
		return res
	}
	if ctx.Err() != nil {
		return Result{URL: target.String(), Error: ctx.Err().Error()}
	}
	if target.Scheme == "https" {
		fallback := *target
		fallback.Scheme = "http"
		res, fbErr := c.probe(ctx, &fallback, timeout)
		if fbErr == nil {
			return res
		}
		netErr = fbErr
		target = &fallback
	}
	return Result{URL: target.String(), Error: describe(netErr)}
}

// FilterByReachability probes every supplier website under the concurrency
// window, attaches the raw result, and partitions by accessibility. With
// requireAccessible unset every supplier is returned as valid. Order is kept.
func (c *Checker) FilterByReachability(ctx context.Context, suppliers []*entity.Supplier, requireAccessible bool) (valid, invalid []*entity.Supplier) {
	results := make([]Result, len(suppliers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, s := range suppliers {
		g.Go(func() error {
			results[i] = c.Check(gctx, s.Website, c.timeout)
			return nil
		})
	}
	_ = g.Wait()

	for i, s := range suppliers {
		res := results[i]
		s.Metadata.Reachability = &res
		if res.Accessible || !requireAccessible {
			valid = append(valid, s)
			continue
		}
		invalid = append(invalid, s)
	}
	return valid, invalid
}

func (c *Checker) probe(ctx context.Context, target *url.URL, timeout time.Duration) (Result, error) {
	var status int
	op := func(ctx context.Context) (struct{}, error) {
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, target.String(), nil)
		if err != nil {
			return struct{}{}, err
		}
		req.Header.Set("User-Agent", UserAgent)

		resp, err := c.client.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()

		status = resp.StatusCode
		if c.retry != nil && retry.RetryableStatus(status) {
			return struct{}{}, retry.Transient(fmt.Errorf("HTTP %d", status))
		}
		return struct{}{}, nil
	}

	var err error
	if c.retry != nil {
		_, err = retry.Execute(ctx, *c.retry, op)
	} else {
		_, err = op(ctx)
	}
	if err != nil && status == 0 {
		return Result{}, err
	}
	return statusResult(target.String(), status), nil
}

func statusResult(target string, status int) Result {
	code := status
	res := Result{URL: target, StatusCode: &code}
	if Accessible(status) {
		res.Accessible = true
		return res
	}
	res.Error = fmt.Sprintf("HTTP %d", status)
	return res
}

// Accessible reports whether a probe status means the site is live. Some
// sites reject HEAD requests with 401 or 403 while serving browsers normally.
func Accessible(status int) bool {
	return (status > 0 && status < 400) || status == http.StatusUnauthorized || status == http.StatusForbidden
}

func normalize(raw string) (*url.URL, error) {
	if !strings.Contains(raw, "://") {
		raw = "https://" + strings.TrimPrefix(raw, "//")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, errors.New("invalid url")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.New("unsupported scheme")
	}
	return u, nil
}

func describe(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Timeout"
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return "Timeout"
	}
	return err.Error()
}
