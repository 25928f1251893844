package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/octobees/supplier-outreach/internal/retry"
)

func newFinder(t *testing.T, handler http.HandlerFunc) *Finder {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	f, err := New(context.Background(), Config{APIKey: "key", SearchEngineID: "cx-1", Endpoint: srv.URL + "/"})
	require.NoError(t, err)
	return f
}

func TestFindWebsiteSkipsDirectories(t *testing.T) {
	var query, cx string
	f := newFinder(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query().Get("q")
		cx = r.URL.Query().Get("cx")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[
			{"link":"https://acme.en.alibaba.com/company_profile.html"},
			{"link":"https://www.linkedin.com/company/acme"},
			{"link":"https://www.acme-valves.com/about-us"}
		]}`))
	})

	site, err := f.FindWebsite(context.Background(), "Acme Valves Co., Ltd", "China")
	require.NoError(t, err)
	assert.Equal(t, "https://www.acme-valves.com", site)
	assert.Equal(t, `"Acme Valves Co., Ltd" China official website`, query)
	assert.Equal(t, "cx-1", cx)
}

func TestFindWebsiteNoResults(t *testing.T) {
	f := newFinder(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	})
	site, err := f.FindWebsite(context.Background(), "Nobody Ltd", "")
	require.NoError(t, err)
	assert.Empty(t, site)

	site, err = f.FindWebsite(context.Background(), "  ", "China")
	require.NoError(t, err)
	assert.Empty(t, site)
}

func TestFindWebsiteClassifiesQuotaErrors(t *testing.T) {
	f := newFinder(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota"}}`))
	})
	_, err := f.FindWebsite(context.Background(), "Acme Ltd", "China")
	require.Error(t, err)
	assert.True(t, retry.IsRetryable(err))
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(context.Background(), Config{SearchEngineID: "cx"})
	assert.Error(t, err)
	_, err = New(context.Background(), Config{APIKey: "key"})
	assert.Error(t, err)
}
