// Package matcher turns a raw query into ranked hits against an index.
// Every term must match some token of a label by prefix; results for a
// given index version and normalized query are cached.
package matcher

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ranker"
)

// Outcome says how a Match was produced.
type Outcome int

const (
	// OutcomeEmpty: the query was too short or had no terms; nothing was
	// looked up.
	OutcomeEmpty Outcome = iota
	OutcomeMatched
	OutcomeCached
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEmpty:
		return "empty"
	case OutcomeMatched:
		return "matched"
	case OutcomeCached:
		return "cached"
	default:
		return "unknown"
	}
}

// Match is the ranked result of one query. Hits may be shared with the
// cache and must not be modified.
type Match struct {
	Plan    Plan
	Hits    []ranker.Hit
	Outcome Outcome
	Version uint64
}

type Matcher struct {
	cache  Cache
	logger *slog.Logger
}

// New returns a Matcher. A nil cache disables caching.
func New(cache Cache) *Matcher {
	return &Matcher{
		cache:  cache,
		logger: slog.Default().With("component", "matcher"),
	}
}

func cacheKey(version uint64, normalized string) string {
	return strconv.FormatUint(version, 10) + "\x00" + normalized
}

// Match runs raw against the whole index. Short queries return an empty
// Match with OutcomeEmpty and no error. The context is checked between term
// lookups.
func (m *Matcher) Match(ctx context.Context, idx *index.Index, raw string) (Match, error) {
	plan := Parse(raw)
	res := Match{Plan: plan, Version: idx.Version()}
	if !plan.Searchable() {
		return res, nil
	}
	key := cacheKey(res.Version, plan.Normalized)
	if m.cache != nil {
		if hits, ok := m.cache.Get(key); ok {
			res.Hits, res.Outcome = hits, OutcomeCached
			return res, nil
		}
	}

	lists := make([]index.PostingList, 0, len(plan.Terms))
	for _, term := range plan.Terms {
		if err := ctx.Err(); err != nil {
			return Match{}, err
		}
		postings := idx.Lookup(term)
		if len(postings) == 0 {
			lists = nil
			break
		}
		lists = append(lists, postings)
	}
	var candidates index.PostingList
	if len(lists) > 0 {
		candidates = index.Intersect(lists...)
	}
	res.Hits = ranker.Rank(idx, candidates, plan.Terms)
	res.Outcome = OutcomeMatched
	m.logger.Debug("query matched",
		"query", plan.Normalized,
		"terms", len(plan.Terms),
		"candidates", len(candidates),
		"hits", len(res.Hits),
		"version", res.Version,
	)
	if m.cache != nil {
		m.cache.Put(key, res.Hits)
	}
	return res, nil
}

// Narrow re-scores only prior, the hits of an earlier query against the
// same index that raw extends. Each prior hit is kept if every new term
// covers one of its tokens, which is the same test Lookup applies, so the
// result equals Match(idx, raw).
func (m *Matcher) Narrow(idx *index.Index, prior []ranker.Hit, raw string) Match {
	plan := Parse(raw)
	res := Match{Plan: plan, Version: idx.Version()}
	if !plan.Searchable() {
		return res
	}
	candidates := make([]index.Ref, 0, len(prior))
	for _, h := range prior {
		if coversAll(idx, h.Ref, plan.Terms) {
			candidates = append(candidates, h.Ref)
		}
	}
	res.Hits = ranker.Rank(idx, candidates, plan.Terms)
	res.Outcome = OutcomeMatched
	if m.cache != nil {
		m.cache.Put(cacheKey(res.Version, plan.Normalized), res.Hits)
	}
	return res
}

func coversAll(idx *index.Index, ref index.Ref, terms []string) bool {
	for _, term := range terms {
		if !idx.Covers(ref, term) {
			return false
		}
	}
	return true
}
