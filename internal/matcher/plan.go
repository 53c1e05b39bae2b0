package matcher

import (
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/tokenizer"
)

// Plan is a parsed query. Terms are compacted whitespace-separated fields of
// Normalized; every one of them must match (AND).
type Plan struct {
	Raw        string
	Normalized string
	Terms      []string
}

// Parse normalizes raw and splits it into terms.
func Parse(raw string) Plan {
	normalized := tokenizer.NormalizeQuery(raw)
	return Plan{
		Raw:        raw,
		Normalized: normalized,
		Terms:      tokenizer.QueryTerms(normalized),
	}
}

// Searchable reports whether the plan is worth a lookup. Queries with
// fewer than two searchable characters are not, whatever punctuation
// surrounds them ("a:", "_x").
func (p Plan) Searchable() bool {
	n := 0
	for _, term := range p.Terms {
		n += utf8.RuneCountInString(term)
	}
	return n > 1
}

// Extends reports whether p strictly extends prev, i.e. the user kept typing.
func (p Plan) Extends(prev Plan) bool {
	return len(p.Normalized) > len(prev.Normalized) && strings.HasPrefix(p.Normalized, prev.Normalized)
}
