package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/engine"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	functionsShard = `var searchData=
[
  ['filestream_0',['FileStream',['a.html#l1',1,'trio::FileStream'],['b.html#l2',1,'dna::FileStream']]],
  ['filter_1',['filter',['c.html',1,'extd']]]
];
`
	classesShard = `var searchData=[['filteredinputarchive_0',['FilteredInputArchive',['d.html',1,'dna']]]];`
	brokenShard  = `var searchData=[['x_0',['X']]];`
)

func shardDir(t *testing.T, files map[string]string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	cfg := config.Default()
	cfg.Shards.Dir = dir
	cfg.Shards.FetchAttempts = 1
	return cfg
}

func goodShards(t *testing.T) *config.Config {
	return shardDir(t, map[string]string{
		"functions_0.js": functionsShard,
		"classes_0.js":   classesShard,
		"search.js":      "function searchBox() {}",
	})
}

func TestValidateFormat(t *testing.T) {
	assert.NoError(t, validateFormat("text"))
	assert.NoError(t, validateFormat("json"))
	assert.Error(t, validateFormat("yaml"))
}

func TestRunQuery_Text(t *testing.T) {
	cfg := goodShards(t)
	var out bytes.Buffer
	require.NoError(t, runQuery(context.Background(), &out, cfg, "file", queryOptions{format: formatText}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "LABEL")
	assert.Contains(t, lines[1], "FileStream")
	assert.Contains(t, lines[1], "trio::FileStream, dna::FileStream")
	assert.Contains(t, lines[1], "a.html#l1")
}

func TestRunQuery_JSONLimit(t *testing.T) {
	cfg := goodShards(t)
	var out bytes.Buffer
	require.NoError(t, runQuery(context.Background(), &out, cfg, "fil", queryOptions{limit: 2, format: formatJSON}))

	var got queryOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "fil", got.Query)
	assert.Equal(t, 3, got.Total)
	require.Len(t, got.Results, 2)
	assert.Equal(t, "filter", got.Results[0].Label)
	assert.Equal(t, "FileStream", got.Results[1].Label)
}

func TestRunQuery_Grouped(t *testing.T) {
	cfg := goodShards(t)
	var out bytes.Buffer
	require.NoError(t, runQuery(context.Background(), &out, cfg, "fil", queryOptions{group: true, format: formatText}))

	text := out.String()
	assert.Contains(t, text, "function (2)")
	assert.Contains(t, text, "type (1)")
	assert.Less(t, strings.Index(text, "function (2)"), strings.Index(text, "type (1)"))
}

func TestRunQuery_NoMatches(t *testing.T) {
	cfg := goodShards(t)
	var out bytes.Buffer
	require.NoError(t, runQuery(context.Background(), &out, cfg, "zzz", queryOptions{format: formatText}))
	assert.Equal(t, "no matches for \"zzz\"\n", out.String())
}

func TestRunType(t *testing.T) {
	cfg := goodShards(t)
	var out bytes.Buffer
	require.NoError(t, runType(context.Background(), &out, cfg, "fil", 2, formatJSON))

	dec := json.NewDecoder(&out)
	var modes []string
	for dec.More() {
		var step map[string]any
		require.NoError(t, dec.Decode(&step))
		modes = append(modes, step["mode"].(string))
	}
	assert.Equal(t, []string{"idle", "full", "narrow"}, modes)
}

func TestRunType_Text(t *testing.T) {
	cfg := goodShards(t)
	var out bytes.Buffer
	require.NoError(t, runType(context.Background(), &out, cfg, "filt", 3, formatText))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[4], `"filt"`)
	assert.Contains(t, lines[4], "narrow")
	assert.True(t, strings.HasSuffix(lines[4], "filter, FilteredInputArchive"), lines[4])
}

func TestRunCheck(t *testing.T) {
	cfg := goodShards(t)
	var out bytes.Buffer
	require.NoError(t, runCheck(context.Background(), &out, cfg, formatText))
	assert.Contains(t, out.String(), "functions_0")
	assert.Contains(t, out.String(), "classes_0")
	assert.NotContains(t, out.String(), "FAILED")
}

func TestRunCheck_ReportsFailures(t *testing.T) {
	cfg := shardDir(t, map[string]string{
		"functions_0.js": functionsShard,
		"variables_0.js": brokenShard,
	})
	var out bytes.Buffer
	err := runCheck(context.Background(), &out, cfg, formatJSON)
	assert.ErrorIs(t, err, errCheckFailed)

	var report engine.Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "variables_0", report.Failed[0].Key)
	assert.Equal(t, 2, report.Entries)
}

func TestRunCheck_MissingDir(t *testing.T) {
	cfg := config.Default()
	cfg.Shards.Dir = filepath.Join(t.TempDir(), "missing")
	cfg.Shards.FetchAttempts = 1
	err := runCheck(context.Background(), &bytes.Buffer{}, cfg, formatText)
	assert.Error(t, err)
}

func TestReplicaGroup(t *testing.T) {
	assert.True(t, strings.HasPrefix(replicaGroup("docsearch", "reload"), "docsearch-reload"))
}

type pageStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (p *pageStore) Get(_ context.Context, key string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data[key], nil
}

func (p *pageStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data[key] = value
	return nil
}

func (p *pageStore) DeletePrefix(_ context.Context, prefix string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var n int64
	for k := range p.data {
		if strings.HasPrefix(k, prefix) {
			delete(p.data, k)
			n++
		}
	}
	return n, nil
}

func TestEvictReplacedGeneration(t *testing.T) {
	store := &pageStore{data: map[string][]byte{}}
	qc := cache.New(store, time.Minute, nil)
	ctx := context.Background()
	qc.Set(ctx, 0xa, "file", 20, &cache.Page{Query: "file"})
	qc.Set(ctx, 0xb, "file", 20, &cache.Page{Query: "file"})

	hook := evictReplacedGeneration(qc)
	hook(ctx, &engine.Report{Version: 1, Digest: "000000000000000a"})
	hook(ctx, &engine.Report{Version: 2, Digest: "000000000000000a"})
	assert.Len(t, store.data, 2)

	hook(ctx, &engine.Report{Version: 3, Digest: "000000000000000b"})
	assert.Contains(t, store.data, cache.Key(0xb, "file", 20))
	assert.NotContains(t, store.data, cache.Key(0xa, "file", 20))
}
