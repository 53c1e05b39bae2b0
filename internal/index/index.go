// Package index builds the token index over a shard.Set: a sorted term
// table whose posting lists name every entry that derives the term from its
// label. An Index is immutable once built and safe for concurrent readers.
package index

import (
	"encoding/binary"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/shard"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/tokenizer"
	"github.com/cespare/xxhash/v2"
)

type Index struct {
	set      *shard.Set
	terms    []string
	postings []PostingList
	tokens   [][]string
}

// Build derives the index from set. The result depends only on the entries
// and their order, so building twice from the same set yields identical
// terms and postings.
func Build(set *shard.Set) *Index {
	idx := &Index{set: set, tokens: make([][]string, set.Len())}
	byTerm := make(map[string]PostingList)
	for i, e := range set.AllEntries() {
		toks := tokenizer.Tokens(e.Label)
		idx.tokens[i] = toks
		for _, tok := range toks {
			// entries are visited in ref order and tokens are unique per
			// entry, so every list stays sorted and duplicate-free
			byTerm[tok] = append(byTerm[tok], Ref(i))
		}
	}
	idx.terms = make([]string, 0, len(byTerm))
	for term := range byTerm {
		idx.terms = append(idx.terms, term)
	}
	sort.Strings(idx.terms)
	idx.postings = make([]PostingList, len(idx.terms))
	for i, term := range idx.terms {
		idx.postings[i] = byTerm[term]
	}
	return idx
}

// Lookup returns every ref with a token equal to or starting with token.
// The result is nil when nothing matches and must not be modified.
func (idx *Index) Lookup(token string) PostingList {
	if token == "" {
		return nil
	}
	start := sort.SearchStrings(idx.terms, token)
	var lists []PostingList
	for i := start; i < len(idx.terms) && strings.HasPrefix(idx.terms[i], token); i++ {
		lists = append(lists, idx.postings[i])
	}
	return union(lists)
}

// Covers reports whether ref would be returned by Lookup(term).
func (idx *Index) Covers(ref Ref, term string) bool {
	for _, tok := range idx.tokens[ref] {
		if strings.HasPrefix(tok, term) {
			return true
		}
	}
	return false
}

// Tokens returns the derived tokens of ref's label, longest first.
func (idx *Index) Tokens(ref Ref) []string {
	return idx.tokens[ref]
}

// Entry resolves ref against the indexed set.
func (idx *Index) Entry(ref Ref) *shard.Entry {
	return idx.set.Entry(int(ref))
}

func (idx *Index) Set() *shard.Set { return idx.set }

// Version is the version of the indexed shard set.
func (idx *Index) Version() uint64 { return idx.set.Version() }

// Digest is the content digest of the indexed shard set.
func (idx *Index) Digest() uint64 { return idx.set.Digest() }

// Terms returns the number of distinct terms.
func (idx *Index) Terms() int { return len(idx.terms) }

// Snapshot copies the posting mapping in term order.
func (idx *Index) Snapshot() []TermEntry {
	out := make([]TermEntry, len(idx.terms))
	for i, term := range idx.terms {
		out[i] = TermEntry{Term: term, Postings: append(PostingList(nil), idx.postings[i]...)}
	}
	return out
}

// Fingerprint hashes the posting mapping. Two indexes with equal
// fingerprints have, barring collisions, identical terms and postings.
func (idx *Index) Fingerprint() uint64 {
	h := xxhash.New()
	var buf [4]byte
	for i, term := range idx.terms {
		h.WriteString(term)
		h.Write([]byte{0})
		for _, ref := range idx.postings[i] {
			binary.LittleEndian.PutUint32(buf[:], uint32(ref))
			h.Write(buf[:])
		}
		h.Write([]byte{0xff})
	}
	return h.Sum64()
}
