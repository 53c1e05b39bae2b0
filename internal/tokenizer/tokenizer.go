// Package tokenizer normalizes symbol labels and typed queries into the
// lower-cased, punctuation-free tokens the index is keyed on.
//
// A label is split into words on non-alphanumeric runs and on case
// boundaries ("FilteredInputArchive" -> filtered, input, archive;
// "IOStream" -> io, stream). Letter/digit transitions do not split, so
// "Vec3d" stays one word. The index tokens of a label are its word suffixes
// concatenated: filteredinputarchive, inputarchive, archive. The first of
// these is always Compact(label).
package tokenizer

import (
	"strings"
	"unicode"
)

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Compact lower-cases s and drops every rune that is not a letter or digit.
func Compact(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isAlnum(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// Words splits label into lower-cased words.
func Words(label string) []string {
	runes := []rune(label)
	var words []string
	start := -1
	emit := func(end int) {
		if start >= 0 && end > start {
			words = append(words, strings.ToLower(string(runes[start:end])))
		}
		start = -1
	}
	for i, r := range runes {
		if !isAlnum(r) {
			emit(i)
			continue
		}
		if start < 0 {
			start = i
			continue
		}
		if unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || (unicode.IsUpper(prev) && nextLower) {
				emit(i)
				start = i
			}
		}
	}
	emit(len(runes))
	return words
}

// Tokens returns the word-suffix tokens of label, longest first, without
// duplicates. A label with no letters or digits has no tokens.
func Tokens(label string) []string {
	words := Words(label)
	if len(words) == 0 {
		return nil
	}
	tokens := make([]string, 0, len(words))
	suffix := ""
	for i := len(words) - 1; i >= 0; i-- {
		suffix = words[i] + suffix
		tokens = append(tokens, suffix)
	}
	// built shortest first; reverse and drop repeats ("aa_aa" -> "aaaa", "aa")
	out := tokens[:0:0]
	seen := make(map[string]struct{}, len(tokens))
	for i := len(tokens) - 1; i >= 0; i-- {
		if _, ok := seen[tokens[i]]; ok {
			continue
		}
		seen[tokens[i]] = struct{}{}
		out = append(out, tokens[i])
	}
	return out
}

// NormalizeQuery trims raw, lower-cases it and collapses whitespace runs to
// a single space.
func NormalizeQuery(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), " ")
}

// QueryTerms splits a normalized query on spaces and compacts each field,
// dropping fields that compact to nothing ("::", "<>").
func QueryTerms(normalized string) []string {
	fields := strings.Fields(normalized)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if t := Compact(f); t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}
