// Package query parses search input into structured filters and free-text
// terms.
package query

import (
	"strings"

	"github.com/hp77-creator/clipkeep/pkg/types"
)

// Filter restricts which entries are considered before text matching
type Filter struct {
	IncludeTags []string
	ExcludeTags []string
	Type        *types.EntryType
	HasOCR      bool
	Pinned      *bool
}

// Query is a parsed search string
type Query struct {
	Filter Filter
	Terms  []string
}

// Text returns the free-text terms joined by single spaces
func (q Query) Text() string {
	return strings.Join(q.Terms, " ")
}

// Parse splits raw on whitespace and classifies each token. Tokens that look
// like filters but are malformed are kept as free text.
func Parse(raw string) Query {
	var q Query
	for _, tok := range strings.Fields(raw) {
		if !q.Filter.apply(tok) {
			q.Terms = append(q.Terms, tok)
		}
	}
	return q
}

// apply records tok in f and reports whether it was a recognized filter
func (f *Filter) apply(tok string) bool {
	key, value, ok := strings.Cut(tok, ":")
	if !ok || value == "" {
		return false
	}
	lower := strings.ToLower(value)

	switch strings.ToLower(key) {
	case "tag":
		f.IncludeTags = appendUnique(f.IncludeTags, lower)
	case "-tag":
		f.ExcludeTags = appendUnique(f.ExcludeTags, lower)
	case "type":
		t := types.EntryType(lower)
		if !t.Valid() {
			return false
		}
		f.Type = &t
	case "has":
		if lower != "ocr" {
			return false
		}
		f.HasOCR = true
	case "pinned":
		switch lower {
		case "yes":
			f.Pinned = types.Bool(true)
		case "no":
			f.Pinned = types.Bool(false)
		default:
			return false
		}
	default:
		return false
	}
	return true
}

// Empty reports whether f accepts every entry
func (f Filter) Empty() bool {
	return len(f.IncludeTags) == 0 && len(f.ExcludeTags) == 0 &&
		f.Type == nil && !f.HasOCR && f.Pinned == nil
}

// Match reports whether e passes every constraint in f
func (f Filter) Match(e types.Entry) bool {
	if f.Type != nil && e.Type != *f.Type {
		return false
	}
	if f.Pinned != nil && e.Pinned != *f.Pinned {
		return false
	}
	if f.HasOCR && strings.TrimSpace(e.OCRText) == "" {
		return false
	}
	for _, tag := range f.IncludeTags {
		if !e.HasTag(tag) {
			return false
		}
	}
	for _, tag := range f.ExcludeTags {
		if e.HasTag(tag) {
			return false
		}
	}
	return true
}

// Apply returns the entries that pass f, in their original order
func (f Filter) Apply(entries []types.Entry) []types.Entry {
	out := make([]types.Entry, 0, len(entries))
	for _, e := range entries {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
