package shard

import (
	"errors"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// Set is an immutable, versioned snapshot of every shard that parsed in one
// Load. Entries are addressed by a dense ordinal that follows load order.
type Set struct {
	version uint64
	digest  uint64
	shards  []*Shard
	entries []*Entry
	failed  []string
}

func newSet(version uint64, shards []*Shard, failed []string) *Set {
	n := 0
	for _, sh := range shards {
		n += len(sh.Entries)
	}
	entries := make([]*Entry, 0, n)
	for _, sh := range shards {
		entries = append(entries, sh.Entries...)
	}
	return &Set{version: version, digest: digest(shards), shards: shards, entries: entries, failed: failed}
}

// digest hashes everything a search result can show: shard keys, entry ids,
// labels, categories and anchors, in load order.
func digest(shards []*Shard) uint64 {
	h := xxhash.New()
	field := func(s string) {
		h.WriteString(s)
		h.Write([]byte{0})
	}
	for _, sh := range shards {
		field(sh.Key)
		field(string(sh.Category))
		for _, e := range sh.Entries {
			field(e.ID)
			field(e.Label)
			field(string(e.Category))
			for _, a := range e.Anchors {
				field(a.Scope)
				field(a.URL)
			}
			h.Write([]byte{1})
		}
		h.Write([]byte{2})
	}
	return h.Sum64()
}

// NewSet builds a Set directly from parsed shards.
func NewSet(version uint64, shards ...*Shard) *Set {
	return newSet(version, shards, nil)
}

// Version counts loads in this process. It is not comparable across
// processes; use Digest for that.
func (s *Set) Version() uint64 { return s.version }

// Digest identifies the set's content. Two processes that loaded the same
// shards agree on it regardless of their Version.
func (s *Set) Digest() uint64 { return s.digest }

// Len is the number of entries across all shards.
func (s *Set) Len() int { return len(s.entries) }

// Entry returns the entry with ordinal i.
func (s *Set) Entry(i int) *Entry { return s.entries[i] }

// Shards returns the loaded shards in load order. Callers must not modify it.
func (s *Set) Shards() []*Shard { return s.shards }

// Failed returns the keys of shards skipped during the load that produced s.
func (s *Set) Failed() []string { return s.failed }

// AllEntries yields every entry with its ordinal, shard by shard in load
// order.
func (s *Set) AllEntries() iter.Seq2[int, *Entry] {
	return func(yield func(int, *Entry) bool) {
		for i, e := range s.entries {
			if !yield(i, e) {
				return
			}
		}
	}
}

// Store owns the current Set. Load replaces it atomically; readers holding
// an older Set keep a complete, consistent view.
type Store struct {
	mu      sync.Mutex
	current atomic.Pointer[Set]
	version uint64
	logger  *slog.Logger
}

func NewStore() *Store {
	return &Store{logger: slog.Default().With("component", "shard-store")}
}

// Current returns the latest Set, or nil before the first Load.
func (s *Store) Current() *Set {
	return s.current.Load()
}

// Load parses payloads in order and swaps in a new Set made of every shard
// that parsed. Shards that fail are skipped; the returned *LoadError lists
// them. The new Set is installed even when some shards failed.
func (s *Store) Load(payloads []Payload) (*Set, error) {
	shards := make([]*Shard, 0, len(payloads))
	var failures []*MalformedShardError
	var failed []string
	seen := make(map[string]bool, len(payloads))
	for _, p := range payloads {
		if seen[p.Key] {
			failures = append(failures, &MalformedShardError{Shard: p.Key, Entry: -1, Reason: "duplicate shard key"})
			failed = append(failed, p.Key)
			continue
		}
		seen[p.Key] = true
		sh, err := Parse(p)
		if err != nil {
			var me *MalformedShardError
			if !errors.As(err, &me) {
				me = &MalformedShardError{Shard: p.Key, Entry: -1, Reason: "parse failed", Cause: err}
			}
			failures = append(failures, me)
			failed = append(failed, p.Key)
			continue
		}
		shards = append(shards, sh)
	}

	s.mu.Lock()
	s.version++
	set := newSet(s.version, shards, failed)
	s.current.Store(set)
	s.mu.Unlock()

	s.logger.Info("shards loaded",
		"version", set.version,
		"shards", len(shards),
		"entries", set.Len(),
		"failed", len(failures),
	)
	if len(failures) > 0 {
		return set, &LoadError{Failures: failures}
	}
	return set, nil
}
