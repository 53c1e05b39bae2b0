// Package ranker orders matched entries into tiers (exact label, label
// prefix, word prefix, substring) and, within a tier, by label length and
// then lexically, so the output never depends on index iteration order.
package ranker

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/shard"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/tokenizer"
)

// Tier is a match quality class; lower is better.
type Tier int

const (
	TierExact Tier = iota + 1
	TierPrefix
	TierWord
	TierSubstring
	TierNone
)

var tierNames = map[Tier]string{
	TierExact:     "exact",
	TierPrefix:    "prefix",
	TierWord:      "word",
	TierSubstring: "substring",
	TierNone:      "none",
}

func (t Tier) String() string {
	if s, ok := tierNames[t]; ok {
		return s
	}
	return "unknown"
}

func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(b []byte) error {
	for tier, name := range tierNames {
		if name == string(b) {
			*t = tier
			return nil
		}
	}
	if string(b) == "unknown" {
		*t = 0
		return nil
	}
	return fmt.Errorf("unknown tier %q", b)
}

// Hit is a ranked reference into an index.
type Hit struct {
	Ref  index.Ref
	Tier Tier
}

// Score classifies label against the query terms. Every term must match.
// A multi-term query whose terms run together form the label, or its
// start, ranks exact or prefix; otherwise the result is the worst tier over
// all terms.
func Score(label string, terms []string) Tier {
	return scoreTokens(tokenizer.Compact(label), tokenizer.Tokens(label), terms)
}

func scoreTokens(compact string, tokens []string, terms []string) Tier {
	if len(terms) == 0 {
		return TierNone
	}
	worst := TierExact
	for _, term := range terms {
		t := termTier(compact, tokens, term)
		if t == TierNone {
			return TierNone
		}
		worst = max(worst, t)
	}
	if len(terms) > 1 && worst > TierPrefix {
		switch joined := strings.Join(terms, ""); {
		case compact == joined:
			return TierExact
		case strings.HasPrefix(compact, joined):
			return TierPrefix
		}
	}
	return worst
}

func termTier(compact string, tokens []string, term string) Tier {
	switch {
	case term == "":
		return TierNone
	case compact == term:
		return TierExact
	case strings.HasPrefix(compact, term):
		return TierPrefix
	}
	for _, tok := range tokens {
		if strings.HasPrefix(tok, term) {
			return TierWord
		}
	}
	if strings.Contains(compact, term) {
		return TierSubstring
	}
	return TierNone
}

type rankKey struct {
	hit    Hit
	runes  int
	label  string
	qualID string
}

// Rank scores refs against terms, drops non-matches and sorts by tier, label
// length in runes, raw label and finally qualified id.
func Rank(idx *index.Index, refs []index.Ref, terms []string) []Hit {
	keys := make([]rankKey, 0, len(refs))
	for _, ref := range refs {
		tokens := idx.Tokens(ref)
		compact := ""
		if len(tokens) > 0 {
			compact = tokens[0]
		}
		tier := scoreTokens(compact, tokens, terms)
		if tier == TierNone {
			continue
		}
		e := idx.Entry(ref)
		keys = append(keys, rankKey{
			hit:    Hit{Ref: ref, Tier: tier},
			runes:  utf8.RuneCountInString(e.Label),
			label:  e.Label,
			qualID: e.QualifiedID(),
		})
	}
	slices.SortFunc(keys, func(a, b rankKey) int {
		return cmp.Or(
			cmp.Compare(a.hit.Tier, b.hit.Tier),
			cmp.Compare(a.runes, b.runes),
			strings.Compare(a.label, b.label),
			strings.Compare(a.qualID, b.qualID),
		)
	})
	hits := make([]Hit, len(keys))
	for i, k := range keys {
		hits[i] = k.hit
	}
	return hits
}

// Group is one category bucket of an already ranked sequence.
type Group[T any] struct {
	Category shard.Category `json:"category"`
	Items    []T            `json:"items"`
}

// GroupByCategory partitions ranked items by category for display. Groups
// appear in order of their first item and keep the ranked order inside.
func GroupByCategory[T any](items []T, category func(T) shard.Category) []Group[T] {
	var groups []Group[T]
	pos := make(map[shard.Category]int)
	for _, it := range items {
		c := category(it)
		i, ok := pos[c]
		if !ok {
			i = len(groups)
			pos[c] = i
			groups = append(groups, Group[T]{Category: c})
		}
		groups[i].Items = append(groups[i].Items, it)
	}
	return groups
}
