package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/session"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.data[key]
	if !ok {
		return nil, pkgredis.ErrMiss
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	return nil
}

func (m *memStore) DeletePrefix(_ context.Context, prefix string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func page(version uint64) *Page {
	return &Page{Query: "file", Version: version, Total: 1, Results: []session.Result{{ID: "functions_0/e0", Label: "FileStream", URL: "a.html"}}}
}

func TestGetOrCompute(t *testing.T) {
	c := New(newMemStore(), time.Minute, nil)
	var computed atomic.Int32
	compute := func(context.Context) (*Page, error) {
		computed.Add(1)
		return page(1), nil
	}

	got, hit, err := c.GetOrCompute(context.Background(), 1, "file", 20, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "FileStream", got.Results[0].Label)

	got, hit, err = c.GetOrCompute(context.Background(), 1, "file", 20, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, page(1), got)
	assert.Equal(t, int32(1), computed.Load())

	_, hit, err = c.GetOrCompute(context.Background(), 2, "file", 20, compute)
	require.NoError(t, err)
	assert.False(t, hit)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.Equal(t, "closed", stats.CircuitState)
}

func TestGetOrCompute_PropagatesComputeError(t *testing.T) {
	c := New(newMemStore(), time.Minute, nil)
	_, _, err := c.GetOrCompute(context.Background(), 1, "file", 20, func(context.Context) (*Page, error) {
		return nil, errors.New("no index")
	})
	assert.ErrorContains(t, err, "no index")
}

func TestRedisFailureDegradesAndTripsBreaker(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("connection refused")
	c := New(store, time.Minute, nil)
	for range 10 {
		got, hit, err := c.GetOrCompute(context.Background(), 1, "file", 20, func(context.Context) (*Page, error) { return page(1), nil })
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Equal(t, "FileStream", got.Results[0].Label)
	}
	assert.Equal(t, "open", c.Stats().CircuitState)
	assert.Positive(t, c.Stats().Errors)
	assert.Positive(t, c.Stats().Bypassed)
}

func TestInvalidate(t *testing.T) {
	store := newMemStore()
	c := New(store, time.Minute, nil)
	c.Set(context.Background(), 1, "file", 20, page(1))
	store.data["unrelated"] = []byte("x")

	require.NoError(t, c.Invalidate(context.Background()))
	_, ok := c.Get(context.Background(), 1, "file", 20)
	assert.False(t, ok)
	assert.Contains(t, store.data, "unrelated")
}

func TestKey(t *testing.T) {
	assert.NotEqual(t, Key(1, "file", 20), Key(2, "file", 20))
	assert.NotEqual(t, Key(1, "file", 20), Key(1, "file", 10))
	assert.True(t, strings.HasPrefix(Key(1, "file", 20), keyPrefix+"0000000000000001:"))
}

func TestGetOrCompute_ReplicasOnDifferentContentDoNotShare(t *testing.T) {
	store := newMemStore()
	replicaA := New(store, time.Minute, nil)
	replicaB := New(store, time.Minute, nil)
	const digestA, digestB = 0xa1, 0xb2

	_, _, err := replicaA.GetOrCompute(context.Background(), digestA, "reader", 20, func(context.Context) (*Page, error) {
		return &Page{Query: "reader", Version: 1, Total: 1, Results: []session.Result{{Label: "OldReader", URL: "old.html"}}}, nil
	})
	require.NoError(t, err)

	got, hit, err := replicaB.GetOrCompute(context.Background(), digestB, "reader", 20, func(context.Context) (*Page, error) {
		return &Page{Query: "reader", Version: 1, Total: 1, Results: []session.Result{{Label: "NewReader", URL: "new.html"}}}, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "NewReader", got.Results[0].Label)

	got, hit, err = replicaB.GetOrCompute(context.Background(), digestA, "reader", 20, func(context.Context) (*Page, error) {
		return nil, errors.New("should be cached")
	})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "OldReader", got.Results[0].Label)
}

func TestEvict_RemovesOneGeneration(t *testing.T) {
	store := newMemStore()
	c := New(store, time.Minute, nil)
	c.Set(context.Background(), 1, "file", 20, page(1))
	c.Set(context.Background(), 2, "file", 20, page(2))

	require.NoError(t, c.Evict(context.Background(), 1))
	_, ok := c.Get(context.Background(), 1, "file", 20)
	assert.False(t, ok)
	_, ok = c.Get(context.Background(), 2, "file", 20)
	assert.True(t, ok)
}

func TestGetOrCompute_SharedComputeIgnoresCallerCancellation(t *testing.T) {
	c := New(newMemStore(), time.Minute, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got, _, err := c.GetOrCompute(ctx, 1, "file", 20, func(ctx context.Context) (*Page, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return page(1), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "FileStream", got.Results[0].Label)
}
