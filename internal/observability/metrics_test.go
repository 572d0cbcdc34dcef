package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/newsdesk/apiserver/internal/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_CountersAndCacheExport(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.AuthFailed("access_expired")
	m.AuthFailed("access_expired")
	m.TokenIssued("refresh")
	assert.Equal(t, float64(2), testutil.ToFloat64(m.AuthFailuresTotal.WithLabelValues("access_expired")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TokensIssuedTotal.WithLabelValues("refresh")))

	c := cache.New(cache.Config{})
	m.ObserveCache(c)
	c.Set("GET:/a", cache.Response{Status: http.StatusOK})
	c.Get("GET:/a")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "newsdesk_cache_hits_total 1")
	assert.Contains(t, rec.Body.String(), "newsdesk_cache_entries 1")
}

func TestMetrics_NilReceiverIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.AuthFailed("x")
		m.TokenIssued("access")
		m.Refreshed("ok")
	})
}
