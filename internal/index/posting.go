package index

import "slices"

// Ref addresses an entry by its ordinal in the indexed shard.Set.
type Ref uint32

// PostingList is a sorted list of refs without duplicates.
type PostingList []Ref

// TermEntry is one row of the posting mapping.
type TermEntry struct {
	Term     string
	Postings PostingList
}

// union merges sorted lists into a new sorted, duplicate-free list.
func union(lists []PostingList) PostingList {
	switch len(lists) {
	case 0:
		return nil
	case 1:
		return lists[0]
	}
	n := 0
	for _, l := range lists {
		n += len(l)
	}
	out := make(PostingList, 0, n)
	for _, l := range lists {
		out = append(out, l...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Intersect returns the refs present in every list, starting from the
// shortest. Any empty list yields nil.
func Intersect(lists ...PostingList) PostingList {
	if len(lists) == 0 {
		return nil
	}
	ordered := slices.Clone(lists)
	slices.SortFunc(ordered, func(a, b PostingList) int { return len(a) - len(b) })
	if len(ordered[0]) == 0 {
		return nil
	}
	result := slices.Clone(ordered[0])
	for _, l := range ordered[1:] {
		result = intersectTwo(result, l)
		if len(result) == 0 {
			return nil
		}
	}
	return result
}

// intersectTwo writes the intersection of a and b into a's storage.
func intersectTwo(a, b PostingList) PostingList {
	out := a[:0]
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}
