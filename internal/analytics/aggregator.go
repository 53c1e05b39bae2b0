// Package analytics records what users search for: a non-blocking Collector
// that publishes SearchEvents to Kafka and an Aggregator that folds events
// into query, latency and mode statistics.
package analytics

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

const (
	latencyWindow   = 10000
	maxTrackedQuery = 10000
	topQueries      = 10
)

type AggregatedStats struct {
	TotalSearches     int64            `json:"total_searches"`
	ByMode            map[string]int64 `json:"by_mode"`
	CacheHits         int64            `json:"cache_hits"`
	StaleQueries      int64            `json:"stale_queries"`
	ZeroResultCount   int64            `json:"zero_result_count"`
	AvgLatencyUs      float64          `json:"avg_latency_us"`
	P50LatencyUs      int64            `json:"p50_latency_us"`
	P95LatencyUs      int64            `json:"p95_latency_us"`
	P99LatencyUs      int64            `json:"p99_latency_us"`
	TopQueries        []QueryCount     `json:"top_queries"`
	ZeroResultQueries []QueryCount     `json:"zero_result_queries"`
	QueriesPerMinute  float64          `json:"queries_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator keeps running totals over every event it sees. Latencies are
// kept for the most recent latencyWindow events only, and at most
// maxTrackedQuery distinct queries are counted individually.
type Aggregator struct {
	totalSearches atomic.Int64
	cacheHits     atomic.Int64
	staleQueries  atomic.Int64
	zeroResults   atomic.Int64

	mu                sync.RWMutex
	byMode            map[string]int64
	latencies         []int64
	next              int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	startTime         time.Time
	now               func() time.Time

	logger *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		byMode:            make(map[string]int64),
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		startTime:         time.Now(),
		now:               time.Now,
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// Track records event. It lets the aggregator stand in for a Collector
// when there is no broker.
func (a *Aggregator) Track(event SearchEvent) {
	a.Record(event)
}

func (a *Aggregator) Record(event SearchEvent) {
	if event.Mode == ModeStale {
		a.staleQueries.Add(1)
		a.mu.Lock()
		a.byMode[event.Mode]++
		a.mu.Unlock()
		return
	}
	a.totalSearches.Add(1)
	if event.CacheHit {
		a.cacheHits.Add(1)
	}
	zero := event.Results == 0 && event.Query != ""
	if zero {
		a.zeroResults.Add(1)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.byMode[event.Mode]++
	if len(a.latencies) < latencyWindow {
		a.latencies = append(a.latencies, event.LatencyUs)
	} else {
		a.latencies[a.next] = event.LatencyUs
		a.next = (a.next + 1) % latencyWindow
	}
	if event.Query == "" {
		return
	}
	countQuery(a.queryCounts, event.Query)
	if zero {
		countQuery(a.zeroResultQueries, event.Query)
	}
}

func countQuery(counts map[string]int64, query string) {
	if _, ok := counts[query]; !ok && len(counts) >= maxTrackedQuery {
		return
	}
	counts[query]++
}

// HandleEvent adapts the aggregator to a search-events consumer.
// Undecodable messages are logged and skipped so they are still committed.
func (a *Aggregator) HandleEvent() kafka.MessageHandler {
	return func(_ context.Context, _ []byte, value []byte) error {
		event, err := kafka.DecodeJSON[SearchEvent](value)
		if err != nil {
			a.logger.Error("failed to decode search event", "error", err)
			return nil
		}
		a.Record(event)
		return nil
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:   a.totalSearches.Load(),
		ByMode:          make(map[string]int64, len(a.byMode)),
		CacheHits:       a.cacheHits.Load(),
		StaleQueries:    a.staleQueries.Load(),
		ZeroResultCount: a.zeroResults.Load(),
	}
	for mode, n := range a.byMode {
		stats.ByMode[mode] = n
	}
	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)
		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyUs = float64(sum) / float64(len(sorted))
		stats.P50LatencyUs = percentile(sorted, 50)
		stats.P95LatencyUs = percentile(sorted, 95)
		stats.P99LatencyUs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, topQueries)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, topQueries)
	if elapsed := a.now().Sub(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count, then query, so ties are stable.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	slices.SortFunc(result, func(x, y QueryCount) int {
		return cmp.Or(cmp.Compare(y.Count, x.Count), cmp.Compare(x.Query, y.Query))
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
