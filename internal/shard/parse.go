package shard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/tokenizer"
)

// Parse decodes one payload into a Shard. Every entry must have a non-empty
// label, a unique id and at least one anchor with a URL; the first violation
// rejects the whole shard with a *MalformedShardError.
func Parse(p Payload) (*Shard, error) {
	if p.ReadErr != nil {
		return nil, &MalformedShardError{Shard: p.Key, Entry: -1, Reason: "unreadable", Cause: p.ReadErr}
	}
	category := p.Category
	if category == "" {
		category = CategoryFromName(p.Key)
	}
	sh := &Shard{Key: p.Key, Category: category}

	var err error
	switch p.Format {
	case FormatDoxygen, "":
		sh.Entries, err = parseDoxygen(p.Key, category, p.Data)
	case FormatJSON:
		sh.Entries, err = parseJSON(p.Key, category, p.Data)
	default:
		return nil, malformed(p.Key, -1, "unknown format %q", p.Format)
	}
	if err != nil {
		return nil, err
	}
	if err := validate(sh); err != nil {
		return nil, err
	}
	return sh, nil
}

func validate(sh *Shard) error {
	seen := make(map[string]int, len(sh.Entries))
	for i, e := range sh.Entries {
		if e.ID == "" {
			return malformed(sh.Key, i, "empty id")
		}
		if prev, dup := seen[e.ID]; dup {
			return malformed(sh.Key, i, "duplicate id %q (first at entry %d)", e.ID, prev)
		}
		seen[e.ID] = i
		if e.Label == "" {
			return malformed(sh.Key, i, "empty label")
		}
		if tokenizer.Compact(e.Label) == "" {
			return malformed(sh.Key, i, "label %q has no letters or digits", e.Label)
		}
		if len(e.Anchors) == 0 {
			return malformed(sh.Key, i, "no anchors for %q", e.Label)
		}
		for j, a := range e.Anchors {
			if a.URL == "" {
				return malformed(sh.Key, i, "anchor %d of %q has no url", j, e.Label)
			}
		}
	}
	return nil
}

// parseDoxygen reads
//
//	var searchData=[ ['id',['Label',['url',1,'scope'],...]], ... ];
func parseDoxygen(key string, category Category, data []byte) ([]*Entry, error) {
	rows, err := parseSearchData(string(data))
	if err != nil {
		return nil, &MalformedShardError{Shard: key, Entry: -1, Reason: "invalid search data", Cause: err}
	}
	entries := make([]*Entry, 0, len(rows))
	for i, row := range rows {
		pair, ok := row.([]any)
		if !ok || len(pair) != 2 {
			return nil, malformed(key, i, "expected [id, [label, anchors...]]")
		}
		id, ok := pair[0].(string)
		if !ok {
			return nil, malformed(key, i, "id is not a string")
		}
		body, ok := pair[1].([]any)
		if !ok || len(body) < 1 {
			return nil, malformed(key, i, "expected [label, anchors...]")
		}
		label, ok := body[0].(string)
		if !ok {
			return nil, malformed(key, i, "label is not a string")
		}
		e := &Entry{ID: id, Label: html.UnescapeString(label), Category: category, Shard: key}
		for j, raw := range body[1:] {
			a, ok := raw.([]any)
			if !ok || len(a) < 1 {
				return nil, malformed(key, i, "anchor %d is not an array", j)
			}
			url, ok := a[0].(string)
			if !ok {
				return nil, malformed(key, i, "anchor %d url is not a string", j)
			}
			anchor := Anchor{URL: url}
			if len(a) >= 3 {
				if scope, ok := a[2].(string); ok {
					anchor.Scope = html.UnescapeString(scope)
				}
			}
			e.Anchors = append(e.Anchors, anchor)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

type jsonAnchor struct {
	Scope string `json:"scope"`
	URL   string `json:"url"`
}

type jsonEntry struct {
	ID       string       `json:"id"`
	Label    string       `json:"label"`
	Category string       `json:"category"`
	Anchors  []jsonAnchor `json:"anchors"`
}

// parseJSON reads an array whose elements are either objects
// {"id","label","category","anchors":[{"scope","url"}]} or tuples
// ["Label", [["scope","url"], ...]]. Tuples and objects without an id get
// their position as id.
func parseJSON(key string, category Category, data []byte) ([]*Entry, error) {
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, &MalformedShardError{Shard: key, Entry: -1, Reason: "invalid json", Cause: err}
	}
	entries := make([]*Entry, 0, len(rows))
	for i, raw := range rows {
		raw = bytes.TrimSpace(raw)
		var e *Entry
		var err error
		switch {
		case len(raw) > 0 && raw[0] == '{':
			e, err = decodeObject(raw, category)
		case len(raw) > 0 && raw[0] == '[':
			e, err = decodeTuple(raw, category)
		default:
			err = fmt.Errorf("expected object or array")
		}
		if err != nil {
			return nil, &MalformedShardError{Shard: key, Entry: i, Reason: "bad entry", Cause: err}
		}
		if e.ID == "" {
			e.ID = strconv.Itoa(i)
		}
		e.Shard = key
		entries = append(entries, e)
	}
	return entries, nil
}

func decodeObject(raw []byte, category Category) (*Entry, error) {
	var je jsonEntry
	if err := json.Unmarshal(raw, &je); err != nil {
		return nil, err
	}
	e := &Entry{ID: je.ID, Label: je.Label, Category: ParseCategory(je.Category, category)}
	for _, a := range je.Anchors {
		e.Anchors = append(e.Anchors, Anchor{Scope: a.Scope, URL: a.URL})
	}
	return e, nil
}

func decodeTuple(raw []byte, category Category) (*Entry, error) {
	var tuple []json.RawMessage
	if err := json.Unmarshal(raw, &tuple); err != nil {
		return nil, err
	}
	if len(tuple) != 2 {
		return nil, fmt.Errorf("tuple has %d elements, want 2", len(tuple))
	}
	e := &Entry{Category: category}
	if err := json.Unmarshal(tuple[0], &e.Label); err != nil {
		return nil, fmt.Errorf("label: %w", err)
	}
	var anchors [][]string
	if err := json.Unmarshal(tuple[1], &anchors); err != nil {
		return nil, fmt.Errorf("anchors: %w", err)
	}
	for j, a := range anchors {
		if len(a) != 2 {
			return nil, fmt.Errorf("anchor %d has %d elements, want [scope, url]", j, len(a))
		}
		e.Anchors = append(e.Anchors, Anchor{Scope: a[0], URL: a[1]})
	}
	return e, nil
}
