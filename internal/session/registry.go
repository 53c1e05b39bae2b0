package session

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/matcher"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/google/uuid"
)

// Registry holds the sessions of the HTTP interface, keyed by uuid, and
// expires the ones left idle.
type Registry struct {
	indexes Indexes
	matcher *matcher.Matcher
	cfg     config.SessionConfig
	opts    []Option
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry(indexes Indexes, m *matcher.Matcher, cfg config.SessionConfig, mt *metrics.Metrics, opts ...Option) *Registry {
	return &Registry{
		indexes:  indexes,
		matcher:  m,
		cfg:      cfg,
		opts:     append(slices.Clone(opts), WithMetrics(mt)),
		metrics:  mt,
		logger:   slog.Default().With("component", "session-registry"),
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create opens a new idle session.
func (r *Registry) Create() (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cfg.MaxSessions > 0 && len(r.sessions) >= r.cfg.MaxSessions {
		return nil, apperrors.ErrSessionLimit
	}
	opts := append(slices.Clone(r.opts), withClock(r.now))
	s := New(uuid.NewString(), r.indexes, r.matcher, opts...)
	r.sessions[s.id] = s
	r.gauge()
	return s, nil
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}
	return s, nil
}

// Delete resets and drops a session. Queries still in flight on it come
// back stale.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.gauge()
	r.mu.Unlock()
	if !ok {
		return apperrors.ErrSessionNotFound
	}
	s.Reset()
	return nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep drops sessions idle for longer than the configured timeout and
// returns how many were removed.
func (r *Registry) Sweep() int {
	if r.cfg.IdleTimeout <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.cfg.IdleTimeout)
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, s := range r.sessions {
		if s.LastUsed().Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		r.gauge()
		r.logger.Debug("expired idle sessions", "removed", removed, "remaining", len(r.sessions))
	}
	return removed
}

// Run sweeps on every SweepInterval tick until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	interval := r.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

func (r *Registry) gauge() {
	if r.metrics != nil {
		r.metrics.ActiveSessions.Set(float64(len(r.sessions)))
	}
}
