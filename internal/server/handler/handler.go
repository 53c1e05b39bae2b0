// Package handler implements the search API: incremental sessions driven
// one keystroke at a time, stateless one-shot search, index status and
// reload, and cache administration.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/engine"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/matcher"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/session"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
)

// Engine is the part of *engine.Engine the API needs.
type Engine interface {
	Current() *index.Index
	LastReport() *engine.Report
	Reload(ctx context.Context) (*engine.Report, error)
}

// Sessions is satisfied by *session.Registry.
type Sessions interface {
	Create() (*session.Session, error)
	Get(id string) (*session.Session, error)
	Delete(id string) error
}

type Handler struct {
	engine       Engine
	sessions     Sessions
	matcher      *matcher.Matcher
	cache        *cache.QueryCache
	tracker      analytics.Tracker
	stats        StatsSource
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

// StatsSource supplies the aggregated search analytics.
type StatsSource interface {
	Stats() analytics.AggregatedStats
}

// New builds the API handler. queryCache may be nil when Redis is not
// configured; tracker and stats may be nil to run without analytics.
func New(eng Engine, sessions Sessions, m *matcher.Matcher, queryCache *cache.QueryCache,
	tracker analytics.Tracker, stats StatsSource, cfg config.SearchConfig) *Handler {
	if tracker == nil {
		tracker = analytics.Discard
	}
	return &Handler{
		engine:       eng,
		sessions:     sessions,
		matcher:      m,
		cache:        queryCache,
		tracker:      tracker,
		stats:        stats,
		defaultLimit: cfg.DefaultLimit,
		maxResults:   cfg.MaxResults,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

// ---------- Sessions ----------

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Create()
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	logger.FromContext(r.Context()).Debug("session created", "session_id", s.ID())
	h.writeJSON(w, http.StatusCreated, map[string]string{"session_id": s.ID()})
}

// SessionQuery feeds the current contents of the search box to a session.
// A query superseded by a later keystroke answers 204 with no body.
func (h *Handler) SessionQuery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := r.PathValue("id")
	ctx := logger.WithSessionID(r.Context(), id)
	log := logger.FromContext(ctx)

	s, err := h.sessions.Get(id)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	raw := r.URL.Query().Get("q")
	u, err := s.Update(ctx, raw)
	if errors.Is(err, apperrors.ErrStaleQuery) {
		log.Debug("stale query dropped", "query", raw)
		h.tracker.Track(analytics.SearchEvent{
			Query:     matcher.Parse(raw).Normalized,
			Mode:      analytics.ModeStale,
			SessionID: id,
			RequestID: logger.RequestID(ctx),
			Timestamp: time.Now().UTC(),
		})
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		log.Warn("session query failed", "query", raw, "error", err)
		h.writeAppError(w, r, err)
		return
	}

	h.tracker.Track(analytics.SearchEvent{
		Query:        u.Query,
		Mode:         u.Mode.String(),
		Results:      u.Total,
		LatencyUs:    time.Since(start).Microseconds(),
		CacheHit:     u.Mode == session.ModeCached,
		SessionID:    id,
		RequestID:    logger.RequestID(ctx),
		IndexVersion: u.IndexVersion,
		Timestamp:    time.Now().UTC(),
	})
	if u.Results == nil {
		u.Results = []session.Result{}
	}
	h.writeJSON(w, http.StatusOK, u)
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(r.PathValue("id")); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------- Stateless search ----------

// SearchResponse answers GET /api/v1/search.
type SearchResponse struct {
	cache.Page
	CacheHit  bool  `json:"cache_hit"`
	LatencyUs int64 `json:"latency_us"`
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	limit := h.defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, h.maxResults)
	}

	raw := r.URL.Query().Get("q")
	plan := matcher.Parse(raw)
	idx := h.engine.Current()
	if idx == nil {
		h.writeAppError(w, r, apperrors.ErrIndexUnavailable)
		return
	}
	if !plan.Searchable() {
		h.writeJSON(w, http.StatusOK, SearchResponse{Page: cache.Page{
			Query:   plan.Normalized,
			Version: idx.Version(),
			Results: []session.Result{},
		}})
		return
	}

	compute := func(ctx context.Context) (*cache.Page, error) {
		m, err := h.matcher.Match(ctx, idx, raw)
		if err != nil {
			return nil, err
		}
		hits := m.Hits
		if len(hits) > limit {
			hits = hits[:limit]
		}
		return &cache.Page{
			Query:   plan.Normalized,
			Version: idx.Version(),
			Total:   len(m.Hits),
			Results: session.ToResults(idx, hits),
		}, nil
	}

	var page *cache.Page
	var err error
	cacheHit := false
	if h.cache != nil {
		page, cacheHit, err = h.cache.GetOrCompute(ctx, idx.Digest(), plan.Normalized, limit, compute)
	} else {
		page, err = compute(ctx)
	}
	if err != nil {
		if ctx.Err() != nil {
			err = apperrors.New(apperrors.ErrTimeout, http.StatusServiceUnavailable, "search cancelled")
		}
		log.Error("search failed", "query", raw, "error", err)
		h.writeAppError(w, r, err)
		return
	}

	latency := time.Since(start)
	log.Debug("search completed",
		"query", plan.Normalized,
		"total", page.Total,
		"returned", len(page.Results),
		"cache_hit", cacheHit,
		"latency_us", latency.Microseconds(),
	)
	h.tracker.Track(analytics.SearchEvent{
		Query:        plan.Normalized,
		Mode:         analytics.ModeSearch,
		Results:      page.Total,
		LatencyUs:    latency.Microseconds(),
		CacheHit:     cacheHit,
		RequestID:    logger.RequestID(ctx),
		IndexVersion: idx.Version(),
		Timestamp:    time.Now().UTC(),
	})
	resp := SearchResponse{Page: *page, CacheHit: cacheHit, LatencyUs: latency.Microseconds()}
	resp.Version = idx.Version()
	h.writeJSON(w, http.StatusOK, resp)
}

// ---------- Index ----------

func (h *Handler) IndexStatus(w http.ResponseWriter, r *http.Request) {
	report := h.engine.LastReport()
	if report == nil {
		h.writeAppError(w, r, apperrors.ErrIndexUnavailable)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) ReloadIndex(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.Reload(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("manual reload failed", "error", err)
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// ---------- Analytics ----------

func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.stats.Stats())
}

// ---------- Cache ----------

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	stats := h.cache.Stats()
	total := stats.Hits + stats.Misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":          stats.Hits,
		"misses":        stats.Misses,
		"errors":        stats.Errors,
		"bypassed":      stats.Bypassed,
		"total":         total,
		"hit_rate":      strconv.FormatFloat(hitRate, 'f', 1, 64) + "%",
		"circuit_state": stats.CircuitState,
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeAppError answers with the status err maps to. Internal errors get a
// generic message; the detail is only logged.
func (h *Handler) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	message := err.Error()
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		message = appErr.Message
	case errors.Is(err, apperrors.ErrIndexUnavailable):
		message = apperrors.ErrIndexUnavailable.Error()
	case status == http.StatusInternalServerError:
		logger.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		message = "internal error"
	}
	h.writeError(w, status, message)
}
