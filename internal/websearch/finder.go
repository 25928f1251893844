// Package websearch resolves a supplier's official website through the
// Google Custom Search JSON API.
package websearch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/sync/semaphore"
	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/octobees/supplier-outreach/internal/retry"
)

const (
	defaultConcurrency = 3
	resultsPerQuery    = 5
)

// Hosts that list suppliers without being the supplier.
var directoryHosts = []string{
	"alibaba.com", "aliexpress.com", "made-in-china.com", "globalsources.com",
	"indiamart.com", "tradeindia.com", "dhgate.com", "amazon.com", "ebay.com",
	"linkedin.com", "facebook.com", "instagram.com", "youtube.com", "twitter.com", "x.com",
	"wikipedia.org", "crunchbase.com", "bloomberg.com", "zoominfo.com", "kompass.com",
	"europages.com", "thomasnet.com", "yellowpages.com",
}

// Config configures the Custom Search client.
type Config struct {
	APIKey         string
	SearchEngineID string
	Concurrency    int
	// Endpoint overrides the API base URL. Used in tests.
	Endpoint string
}

// Finder looks up company websites.
type Finder struct {
	svc *customsearch.Service
	cx  string
	sem *semaphore.Weighted
}

// New builds a Finder.
func New(ctx context.Context, cfg Config) (*Finder, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("GOOGLE_API_KEY is required")
	}
	if strings.TrimSpace(cfg.SearchEngineID) == "" {
		return nil, errors.New("GOOGLE_SEARCH_ENGINE_ID is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}

	opts := []option.ClientOption{option.WithAPIKey(strings.TrimSpace(cfg.APIKey))}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create custom search service: %w", err)
	}
	return &Finder{
		svc: svc,
		cx:  strings.TrimSpace(cfg.SearchEngineID),
		sem: semaphore.NewWeighted(int64(cfg.Concurrency)),
	}, nil
}

// FindWebsite returns the origin of the first result that is not a
// marketplace or directory. An empty string means nothing suitable was found.
func (f *Finder) FindWebsite(ctx context.Context, companyName, country string) (string, error) {
	companyName = strings.TrimSpace(companyName)
	if companyName == "" {
		return "", nil
	}
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer f.sem.Release(1)

	query := fmt.Sprintf("%q %s official website", companyName, strings.TrimSpace(country))
	res, err := f.svc.Cse.List().Cx(f.cx).Q(strings.TrimSpace(query)).Num(resultsPerQuery).Context(ctx).Do()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", classifyErr(err)
	}
	for _, item := range res.Items {
		if item == nil {
			continue
		}
		if origin, ok := candidateOrigin(item.Link); ok {
			return origin, nil
		}
	}
	return "", nil
}

func candidateOrigin(link string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range directoryHosts {
		if host == d || strings.HasSuffix(host, "."+d) {
			return "", false
		}
	}
	return u.Scheme + "://" + u.Host, true
}

func classifyErr(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		wrapped := fmt.Errorf("custom search: %w", err)
		if retry.RetryableStatus(gerr.Code) {
			return retry.Transient(wrapped)
		}
		return wrapped
	}
	return fmt.Errorf("custom search: %w", err)
}
