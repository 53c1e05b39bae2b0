package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/engine"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/matcher"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/server/handler"
	srvmw "github.com/Adithya-Monish-Kumar-K/docsearch/internal/server/middleware"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/session"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/shard"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const functions = `var searchData=[['filestream_0',['FileStream',['a.html',1,'trio']]],['filter_1',['filter',['b.html',1,'extd']]]];`

type staticSource struct{}

func (staticSource) Name() string { return "static" }

func (staticSource) Fetch(context.Context) ([]shard.Payload, error) {
	return []shard.Payload{{Key: "functions_0", Data: []byte(functions)}}, nil
}

type testServer struct {
	http.Handler
	agg     *analytics.Aggregator
	metrics *metrics.Metrics
}

func newServer(t *testing.T, limiter *srvmw.Limiter) *testServer {
	t.Helper()
	m := metrics.NewNop()
	eng := engine.New(staticSource{}, config.ShardsConfig{FetchAttempts: 1}, m)
	_, err := eng.Reload(context.Background())
	require.NoError(t, err)

	mt := matcher.New(matcher.NewLRU(8))
	reg := session.NewRegistry(eng, mt, config.SessionConfig{MaxSessions: 1}, m, session.WithLimit(10))
	agg := analytics.NewAggregator()
	h := handler.New(eng, reg, mt, nil, agg, agg, config.SearchConfig{DefaultLimit: 10, MaxResults: 50})

	checker := health.NewChecker()
	checker.Register("index", func(context.Context) health.ComponentHealth { return health.Up("version 1") })

	return &testServer{
		Handler: New(h, checker, Options{
			CORS:           config.CORSConfig{AllowOrigins: []string{"*"}},
			Limiter:        limiter,
			RequestTimeout: time.Second,
			Metrics:        m,
		}),
		agg:     agg,
		metrics: m,
	}
}

func (s *testServer) do(method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestSessionLifecycle(t *testing.T) {
	srv := newServer(t, nil)

	rec := srv.do(http.MethodPost, "/api/v1/sessions")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	var created map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created["session_id"]
	require.NotEmpty(t, id)

	// a second session exceeds the limit of one
	assert.Equal(t, http.StatusTooManyRequests, srv.do(http.MethodPost, "/api/v1/sessions").Code)

	var u session.Update
	for _, q := range []string{"f", "fi", "fil", "filt"} {
		rec = srv.do(http.MethodGet, "/api/v1/sessions/"+id+"/query?q="+q)
		require.Equal(t, http.StatusOK, rec.Code, q)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &u))
	}
	assert.Equal(t, "filt", u.Query)
	require.Len(t, u.Results, 1)
	assert.Equal(t, "filter", u.Results[0].Label)
	assert.Equal(t, "b.html", u.Results[0].URL)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Equal(t, "narrow", raw["mode"])

	stats := srv.agg.Stats()
	assert.Equal(t, int64(4), stats.TotalSearches)
	assert.Equal(t, int64(1), stats.ByMode["idle"])
	assert.Equal(t, int64(1), stats.ByMode["full"])
	assert.Equal(t, int64(2), stats.ByMode["narrow"])

	assert.Equal(t, http.StatusNoContent, srv.do(http.MethodDelete, "/api/v1/sessions/"+id).Code)
	assert.Equal(t, http.StatusNotFound, srv.do(http.MethodGet, "/api/v1/sessions/"+id+"/query?q=file").Code)
	assert.Equal(t, http.StatusNotFound, srv.do(http.MethodDelete, "/api/v1/sessions/"+id).Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(srv.metrics.HTTPRequestsTotal.WithLabelValues(
		http.MethodPost, "/api/v1/sessions", "201")))
}

func TestEmptyQueryReturnsEmptyList(t *testing.T) {
	srv := newServer(t, nil)
	rec := srv.do(http.MethodPost, "/api/v1/sessions")
	var created map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = srv.do(http.MethodGet, "/api/v1/sessions/"+created["session_id"]+"/query?q=")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"query":"","mode":"idle","total":0,"index_version":0,"results":[]}`, rec.Body.String())
}

func TestAnalyticsAndHealthRoutes(t *testing.T) {
	srv := newServer(t, nil)
	require.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/api/v1/search?q=stream").Code)

	rec := srv.do(http.MethodGet, "/api/v1/analytics")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats analytics.AggregatedStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.ByMode[analytics.ModeSearch])

	assert.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/health/live").Code)
	rec = srv.do(http.MethodGet, "/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"index"`)

	assert.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/api/v1/index").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, srv.do(http.MethodGet, "/api/v1/index/reload").Code)
}

func TestRateLimitApplied(t *testing.T) {
	srv := newServer(t, srvmw.NewLimiter(config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}))

	assert.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/api/v1/search?q=filter").Code)
	rec := srv.do(http.MethodGet, "/api/v1/search?q=filter")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/health/live").Code)
}

func TestCORSPreflight(t *testing.T) {
	srv := newServer(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sessions", nil)
	req.Header.Set("Origin", "https://docs.example.org")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://docs.example.org", rec.Header().Get("Access-Control-Allow-Origin"))
}
