// Package cache shares one-shot search pages between replicas through
// Redis. Keys embed the content digest of the index, so replicas share pages
// only when they serve the same shards and a reload never reads pages built
// from other content. Redis trouble trips a circuit breaker and callers fall
// back to computing locally.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/session"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "docsearch:page:"

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
}

// Page is one cached search response. Version is the local index version
// of whichever replica computed it; readers overwrite it with their own.
type Page struct {
	Query   string           `json:"query"`
	Version uint64           `json:"version"`
	Total   int              `json:"total"`
	Results []session.Result `json:"results"`
}

// Stats counts lookups since start.
type Stats struct {
	Hits         int64  `json:"hits"`
	Misses       int64  `json:"misses"`
	Errors       int64  `json:"errors"`
	Bypassed     int64  `json:"bypassed"`
	CircuitState string `json:"circuit_state"`
}

type QueryCache struct {
	store   Store
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
	errors  atomic.Int64
}

func New(store Store, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	if m == nil {
		m = metrics.NewNop()
	}
	return &QueryCache{
		store: store,
		ttl:   ttl,
		breaker: resilience.NewCircuitBreaker("redis", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
			OnStateChange: func(name string, to resilience.State) {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			},
		}),
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

func generationPrefix(digest uint64) string {
	return fmt.Sprintf("%s%016x:", keyPrefix, digest)
}

// Key is the Redis key for a normalized query against the index content
// identified by digest.
func Key(digest uint64, normalized string, limit int) string {
	h := xxhash.Sum64String(normalized + "\x00" + strconv.Itoa(limit))
	return fmt.Sprintf("%s%016x", generationPrefix(digest), h)
}

// Get returns the cached page, if any. Redis errors count as misses.
func (c *QueryCache) Get(ctx context.Context, digest uint64, normalized string, limit int) (*Page, bool) {
	key := Key(digest, normalized, limit)
	var data []byte
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.store.Get(ctx, key)
		if errors.Is(err, pkgredis.ErrMiss) {
			return nil
		}
		return err
	})
	if err != nil {
		c.errors.Add(1)
		if errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Debug("cache bypassed", "key", key)
		} else {
			c.logger.Warn("cache get failed", "key", key, "error", err)
		}
	}
	if err != nil || data == nil {
		c.miss()
		return nil, false
	}
	var page Page
	if err := json.Unmarshal(data, &page); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	c.metrics.CacheHitsTotal.Inc()
	return &page, true
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	c.metrics.CacheMissesTotal.Inc()
}

// Set stores page; failures are logged, never returned.
func (c *QueryCache) Set(ctx context.Context, digest uint64, normalized string, limit int, page *Page) {
	key := Key(digest, normalized, limit)
	data, err := json.Marshal(page)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.breaker.Execute(func() error { return c.store.Set(ctx, key, data, c.ttl) }); err != nil {
		c.errors.Add(1)
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached page or computes, stores and returns it.
// Concurrent misses on one key compute once and share the result, so
// compute gets a context that ignores the cancellation of ctx. The bool
// reports a cache hit.
func (c *QueryCache) GetOrCompute(ctx context.Context, digest uint64, normalized string, limit int,
	compute func(ctx context.Context) (*Page, error)) (*Page, bool, error) {
	if page, ok := c.Get(ctx, digest, normalized, limit); ok {
		return page, true, nil
	}
	shared := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(Key(digest, normalized, limit), func() (any, error) {
		page, err := compute(shared)
		if err != nil {
			return nil, err
		}
		c.Set(shared, digest, normalized, limit, page)
		return page, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*Page), false, nil
}

// Invalidate deletes every cached page of every generation.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.deletePrefix(ctx, keyPrefix)
	if err != nil {
		return fmt.Errorf("invalidating query cache: %w", err)
	}
	c.logger.Info("query cache invalidated", "keys_deleted", deleted)
	return nil
}

// Evict deletes the pages computed against the content identified by
// digest. Replicas still serving that content recompute on their next miss.
func (c *QueryCache) Evict(ctx context.Context, digest uint64) error {
	deleted, err := c.deletePrefix(ctx, generationPrefix(digest))
	if err != nil {
		return fmt.Errorf("evicting cache generation %016x: %w", digest, err)
	}
	c.logger.Info("cache generation evicted", "digest", fmt.Sprintf("%016x", digest), "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) deletePrefix(ctx context.Context, prefix string) (int64, error) {
	var deleted int64
	err := c.breaker.Execute(func() error {
		var err error
		deleted, err = c.store.DeletePrefix(ctx, prefix)
		return err
	})
	return deleted, err
}

func (c *QueryCache) Stats() Stats {
	return Stats{
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		Errors:       c.errors.Load(),
		Bypassed:     c.breaker.Counts().Rejected,
		CircuitState: c.breaker.GetState().String(),
	}
}
