// Package shard parses search-data shards and holds them in an immutable,
// versioned Set that is swapped atomically on reload. Shard boundaries are a
// loading detail; consumers see one ordered sequence of entries.
package shard

import (
	"path"
	"strings"
)

// Category is the symbol kind a shard or entry holds.
type Category string

const (
	CategoryFunction  Category = "function"
	CategoryType      Category = "type"
	CategoryNamespace Category = "namespace"
	CategoryVariable  Category = "variable"
	CategoryEnumValue Category = "enumvalue"
	CategoryMacro     Category = "macro"
	CategoryFile      Category = "file"
	CategoryPage      Category = "page"
	CategoryGroup     Category = "group"
	CategorySymbol    Category = "symbol"
)

// doxygen names its shard files <prefix>_<bucket>.js.
var categoryByPrefix = map[string]Category{
	"all":        CategorySymbol,
	"classes":    CategoryType,
	"concepts":   CategoryType,
	"typedefs":   CategoryType,
	"enums":      CategoryType,
	"functions":  CategoryFunction,
	"namespaces": CategoryNamespace,
	"variables":  CategoryVariable,
	"related":    CategoryVariable,
	"enumvalues": CategoryEnumValue,
	"defines":    CategoryMacro,
	"files":      CategoryFile,
	"pages":      CategoryPage,
	"groups":     CategoryGroup,
}

// CategoryFromName derives a category from a shard file name or key such as
// "search/functions_5.js". Unknown prefixes map to CategorySymbol.
func CategoryFromName(name string) Category {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	if i := strings.LastIndexByte(base, '_'); i > 0 {
		base = base[:i]
	}
	if c, ok := categoryByPrefix[strings.ToLower(base)]; ok {
		return c
	}
	return CategorySymbol
}

// ParseCategory accepts a category name as stored in JSON payloads or the
// database; empty or unknown names yield fallback.
func ParseCategory(s string, fallback Category) Category {
	switch c := Category(strings.ToLower(strings.TrimSpace(s))); c {
	case CategoryFunction, CategoryType, CategoryNamespace, CategoryVariable, CategoryEnumValue,
		CategoryMacro, CategoryFile, CategoryPage, CategoryGroup, CategorySymbol:
		return c
	}
	return fallback
}

// Anchor is one definition site of a symbol: the scope it is declared in and
// a deep link into the generated documentation.
type Anchor struct {
	Scope string `json:"scope"`
	URL   string `json:"url"`
}

// Entry is a searchable symbol. Entries are immutable once loaded and carry
// at least one anchor.
type Entry struct {
	ID       string
	Label    string
	Category Category
	Anchors  []Anchor
	Shard    string
}

// QualifiedID identifies the entry across all shards.
func (e *Entry) QualifiedID() string {
	return e.Shard + "/" + e.ID
}

// URL is the link of the first anchor.
func (e *Entry) URL() string {
	return e.Anchors[0].URL
}

// Shard is one parsed payload.
type Shard struct {
	Key      string
	Category Category
	Entries  []*Entry
}

// Format selects the payload parser.
type Format string

const (
	FormatDoxygen Format = "doxygen"
	FormatJSON    Format = "json"
)

// FormatFromName picks a format from a file name: ".json" (optionally
// gzipped) is JSON, everything else is doxygen JS.
func FormatFromName(name string) Format {
	name = strings.TrimSuffix(strings.ToLower(name), ".gz")
	if strings.HasSuffix(name, ".json") {
		return FormatJSON
	}
	return FormatDoxygen
}

// Payload is the raw content of one shard as fetched from a source. ReadErr
// records a fetch failure for this shard alone; Load reports it like a parse
// failure and keeps the other shards.
type Payload struct {
	Key      string
	Category Category
	Format   Format
	Data     []byte
	ReadErr  error
}
