package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	err     error
}

func (p *fakePublisher) Publish(_ context.Context, events ...kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, append([]kafka.Event(nil), events...))
	return p.err
}

func (p *fakePublisher) published() []kafka.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var all []kafka.Event
	for _, b := range p.batches {
		all = append(all, b...)
	}
	return all
}

func TestAggregator_Stats(t *testing.T) {
	agg := NewAggregator()
	agg.Record(SearchEvent{Query: "file", Mode: "full", Results: 1, LatencyUs: 100})
	agg.Record(SearchEvent{Query: "file", Mode: "cached", Results: 1, LatencyUs: 10, CacheHit: true})
	agg.Record(SearchEvent{Query: "fil", Mode: "narrow", Results: 3, LatencyUs: 40})
	agg.Record(SearchEvent{Query: "zzz", Mode: "full", Results: 0, LatencyUs: 70})
	agg.Record(SearchEvent{Query: "zz", Mode: ModeStale})

	stats := agg.Stats()
	assert.Equal(t, int64(4), stats.TotalSearches)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(1), stats.StaleQueries)
	assert.Equal(t, int64(1), stats.ZeroResultCount)
	assert.Equal(t, map[string]int64{"full": 2, "cached": 1, "narrow": 1, "stale": 1}, stats.ByMode)
	assert.InDelta(t, 55.0, stats.AvgLatencyUs, 0.001)
	assert.Equal(t, int64(70), stats.P50LatencyUs)
	assert.Equal(t, int64(100), stats.P99LatencyUs)
	require.NotEmpty(t, stats.TopQueries)
	assert.Equal(t, QueryCount{Query: "file", Count: 2}, stats.TopQueries[0])
	assert.Equal(t, []QueryCount{{Query: "fil", Count: 1}, {Query: "zzz", Count: 1}}, stats.TopQueries[1:])
	assert.Equal(t, []QueryCount{{Query: "zzz", Count: 1}}, stats.ZeroResultQueries)
}

func TestAggregator_EmptyQueryNotCounted(t *testing.T) {
	agg := NewAggregator()
	agg.Record(SearchEvent{Query: "", Mode: "idle"})
	stats := agg.Stats()
	assert.Equal(t, int64(1), stats.TotalSearches)
	assert.Zero(t, stats.ZeroResultCount)
	assert.Empty(t, stats.TopQueries)
}

func TestAggregator_LatencyWindowIsBounded(t *testing.T) {
	agg := NewAggregator()
	for i := range latencyWindow + 10 {
		agg.Record(SearchEvent{Mode: "full", LatencyUs: int64(i)})
	}
	agg.mu.RLock()
	n := len(agg.latencies)
	agg.mu.RUnlock()
	assert.Equal(t, latencyWindow, n)
	// the ten oldest samples were overwritten
	assert.Equal(t, int64(latencyWindow/2+10), agg.Stats().P50LatencyUs)
}

func TestAggregator_HandleEvent(t *testing.T) {
	agg := NewAggregator()
	handle := agg.HandleEvent()
	value, err := json.Marshal(SearchEvent{Query: "stream", Mode: "full", Results: 2})
	require.NoError(t, err)

	require.NoError(t, handle(context.Background(), nil, value))
	require.NoError(t, handle(context.Background(), nil, []byte("{not json")))
	assert.Equal(t, int64(1), agg.Stats().TotalSearches)
}

func TestAggregator_QueriesPerMinute(t *testing.T) {
	agg := NewAggregator()
	agg.now = func() time.Time { return agg.startTime.Add(2 * time.Minute) }
	for range 6 {
		agg.Record(SearchEvent{Query: "x", Mode: "full", Results: 1})
	}
	assert.InDelta(t, 3.0, agg.Stats().QueriesPerMinute, 0.001)
}

func TestCollector_FlushesOnBatchSizeAndShutdown(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 100, 2, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	c.Track(SearchEvent{Query: "a"})
	c.Track(SearchEvent{Query: "b"})
	require.Eventually(t, func() bool { return len(pub.published()) == 2 }, time.Second, 5*time.Millisecond)

	c.Track(SearchEvent{Query: "c"})
	cancel()
	<-done

	events := pub.published()
	require.Len(t, events, 3)
	assert.Equal(t, "c", events[2].Key)
	assert.Equal(t, SearchEvent{Query: "c"}, events[2].Value)
}

func TestCollector_FlushesOnInterval(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 100, 50, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	c.Track(SearchEvent{Query: "a"})
	require.Eventually(t, func() bool { return len(pub.published()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestCollector_DropsWhenFull(t *testing.T) {
	c := NewCollector(&fakePublisher{}, 1, 1, time.Hour)
	c.Track(SearchEvent{Query: "a"})
	c.Track(SearchEvent{Query: "b"})
	assert.Equal(t, int64(1), c.Dropped())
}

func TestCollector_PublishErrorDoesNotStop(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	c := NewCollector(pub, 10, 1, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	c.Track(SearchEvent{Query: "a"})
	c.Track(SearchEvent{Query: "b"})
	require.Eventually(t, func() bool { return len(pub.published()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestDiscard(t *testing.T) {
	Discard.Track(SearchEvent{Query: "x"})
}
