// Package engine owns the shard store and the index built from it. Reload
// fetches payloads, parses them and builds a new index off to the side,
// then publishes store and index together with one atomic pointer swap.
// Queries that started earlier finish against the index they began with.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/shard"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/source"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/tracing"
	"golang.org/x/sync/singleflight"
)

// ShardReport describes one loaded shard.
type ShardReport struct {
	Key      string         `json:"key"`
	Category shard.Category `json:"category"`
	Entries  int            `json:"entries"`
}

// FailedShard describes one skipped shard.
type FailedShard struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// Report summarizes one completed reload.
type Report struct {
	Version     uint64        `json:"version"`
	Source      string        `json:"source"`
	Shards      []ShardReport `json:"shards"`
	Failed      []FailedShard `json:"failed"`
	Entries     int           `json:"entries"`
	Terms       int           `json:"terms"`
	Fingerprint string        `json:"fingerprint"`
	Digest      string        `json:"digest"`
	Duration    time.Duration `json:"duration_ns"`
	LoadedAt    time.Time     `json:"loaded_at"`
}

type Engine struct {
	src     source.Source
	cfg     config.ShardsConfig
	store   *shard.Store
	metrics *metrics.Metrics
	logger  *slog.Logger

	current atomic.Pointer[index.Index]
	report  atomic.Pointer[Report]
	group   singleflight.Group

	ready     chan struct{}
	readyOnce sync.Once

	hooksMu sync.RWMutex
	hooks   []func(ctx context.Context, r *Report)
}

// New returns an engine with no index. Call Reload before serving; Ready
// closes once the first reload succeeds.
func New(src source.Source, cfg config.ShardsConfig, m *metrics.Metrics) *Engine {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Engine{
		src:     src,
		cfg:     cfg,
		store:   shard.NewStore(),
		metrics: m,
		logger:  slog.Default().With("component", "engine", "source", src.Name()),
		ready:   make(chan struct{}),
	}
}

// Current returns the live index, or nil before the first reload.
func (e *Engine) Current() *index.Index {
	return e.current.Load()
}

// Ready is closed after the first successful reload.
func (e *Engine) Ready() <-chan struct{} {
	return e.ready
}

// LastReport returns the report of the last successful reload, or nil.
func (e *Engine) LastReport() *Report {
	return e.report.Load()
}

// OnReload registers fn to run after every successful reload, e.g. to drop
// cached results computed against the old index.
func (e *Engine) OnReload(fn func(ctx context.Context, r *Report)) {
	e.hooksMu.Lock()
	e.hooks = append(e.hooks, fn)
	e.hooksMu.Unlock()
}

// Reload fetches, parses and indexes every shard and swaps the result in.
// Concurrent calls share one reload. A fetch failure leaves the current
// index untouched and is returned; shards that fail to parse are skipped,
// listed in the report and logged once.
func (e *Engine) Reload(ctx context.Context) (*Report, error) {
	v, err, shared := e.group.Do("reload", func() (any, error) {
		return e.reload(context.WithoutCancel(ctx))
	})
	if shared {
		e.logger.Debug("joined in-flight reload")
	}
	if err != nil {
		return nil, err
	}
	return v.(*Report), nil
}

func (e *Engine) reload(ctx context.Context) (report *Report, err error) {
	start := time.Now()
	ctx, root := tracing.Start(ctx, "reload")
	defer func() {
		root.End(err)
		root.Log(ctx, e.logger)
		status := "ok"
		switch {
		case err != nil:
			status = "error"
		case len(report.Failed) > 0:
			status = "partial"
		}
		e.metrics.ReloadsTotal.WithLabelValues(status).Inc()
		e.metrics.ReloadDuration.Observe(time.Since(start).Seconds())
	}()

	payloads, err := e.fetch(ctx)
	if err != nil {
		e.logger.Error("shard fetch failed, keeping current index", "error", err)
		return nil, fmt.Errorf("%w: fetching shards from %s: %w", apperrors.ErrIndexUnavailable, e.src.Name(), err)
	}

	_, parseSpan := tracing.Start(ctx, "parse")
	set, loadErr := e.store.Load(payloads)
	parseSpan.SetAttr("payloads", len(payloads))
	parseSpan.End(loadErr)

	_, buildSpan := tracing.Start(ctx, "index")
	idx := index.Build(set)
	buildSpan.SetAttr("terms", idx.Terms())
	buildSpan.End(nil)

	e.current.Store(idx)
	report = e.buildReport(set, idx, loadErr, start)
	e.report.Store(report)
	e.readyOnce.Do(func() { close(e.ready) })

	e.metrics.ShardsLoaded.Set(float64(len(report.Shards)))
	e.metrics.ShardsFailed.Set(float64(len(report.Failed)))
	e.metrics.IndexEntries.Set(float64(report.Entries))
	e.metrics.IndexTerms.Set(float64(report.Terms))

	if loadErr != nil {
		e.logger.Warn("some shards were skipped", "version", report.Version, "error", loadErr)
	}
	e.logger.Info("index swapped",
		"version", report.Version,
		"shards", len(report.Shards),
		"entries", report.Entries,
		"terms", report.Terms,
		"fingerprint", report.Fingerprint,
		"duration_ms", report.Duration.Milliseconds(),
	)

	e.hooksMu.RLock()
	hooks := slices.Clone(e.hooks)
	e.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(ctx, report)
	}
	return report, nil
}

func (e *Engine) fetch(ctx context.Context) ([]shard.Payload, error) {
	ctx, span := tracing.Start(ctx, "fetch")
	cfg := resilience.RetryConfig{MaxAttempts: e.cfg.FetchAttempts, AttemptTimeout: e.cfg.FetchTimeout}
	payloads, err := resilience.Do(ctx, "fetch-shards", cfg, func(ctx context.Context) ([]shard.Payload, error) {
		p, err := e.src.Fetch(ctx)
		if errors.Is(err, fs.ErrNotExist) {
			// a missing shard directory will not appear between attempts
			return nil, resilience.Permanent(err)
		}
		return p, err
	})
	span.SetAttr("payloads", len(payloads))
	span.End(err)
	return payloads, err
}

func (e *Engine) buildReport(set *shard.Set, idx *index.Index, loadErr error, start time.Time) *Report {
	r := &Report{
		Version:     set.Version(),
		Source:      e.src.Name(),
		Shards:      make([]ShardReport, 0, len(set.Shards())),
		Failed:      []FailedShard{},
		Entries:     set.Len(),
		Terms:       idx.Terms(),
		Fingerprint: fmt.Sprintf("%016x", idx.Fingerprint()),
		Digest:      fmt.Sprintf("%016x", idx.Digest()),
		Duration:    time.Since(start),
		LoadedAt:    time.Now().UTC(),
	}
	for _, sh := range set.Shards() {
		r.Shards = append(r.Shards, ShardReport{Key: sh.Key, Category: sh.Category, Entries: len(sh.Entries)})
	}
	var le *shard.LoadError
	if errors.As(loadErr, &le) {
		for _, f := range le.Failures {
			r.Failed = append(r.Failed, FailedShard{Key: f.Shard, Reason: f.Error()})
		}
	}
	return r
}
