// Package search ranks history entries against a user query.
package search

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/hp77-creator/clipkeep/internal/config"
	"github.com/hp77-creator/clipkeep/internal/history"
	"github.com/hp77-creator/clipkeep/internal/query"
	"github.com/hp77-creator/clipkeep/pkg/types"
)

// ExactScore is the confidence every exact-mode match receives
const ExactScore = 1.0

// DefaultDisplayWidth is the display cell budget when Options leaves it unset
const DefaultDisplayWidth = 120

const ellipsis = "…"

// Options controls matching
type Options struct {
	// Mode is config.ModeExact or config.ModeFuzzy; anything else is fuzzy
	Mode      string
	Threshold float64

	// DisplayWidth is the cell width Display is truncated to
	DisplayWidth int

	// Ranker defaults to NativeRanker
	Ranker Ranker

	// Limit caps the number of results; zero means no limit
	Limit int
}

// RankedEntry is one search hit
type RankedEntry struct {
	Entry types.Entry `json:"entry"`
	Score float64     `json:"score"`

	// Display is the normalised, truncated primary text
	Display string `json:"display"`

	// Highlights are rune offsets into Display to emphasise
	Highlights []int `json:"highlights"`
}

// SearchText returns the text an entry is matched against
func SearchText(e types.Entry) string {
	if e.Type == types.TypeText {
		return e.Text
	}
	if strings.TrimSpace(e.OCRText) != "" {
		return e.OCRText
	}
	text := fmt.Sprintf("image %dx%d", e.Width, e.Height)
	if e.Source != nil {
		text = strings.TrimSpace(text + " " + e.Source.App + " " + e.Source.Title)
	}
	return text
}

// Search parses raw, filters entries and ranks what remains. entries are
// expected in store order. It has no side effects.
func Search(entries []types.Entry, raw string, opts Options) []RankedEntry {
	if opts.Ranker == nil {
		opts.Ranker = NativeRanker{}
	}
	if opts.DisplayWidth <= 0 {
		opts.DisplayWidth = DefaultDisplayWidth
	}
	opts.Threshold = config.ClampThreshold(opts.Threshold)

	q := query.Parse(raw)
	candidates := q.Filter.Apply(entries)
	terms := make([]string, len(q.Terms))
	for i, t := range q.Terms {
		terms[i] = strings.ToLower(t)
	}

	var results []RankedEntry
	switch {
	case len(terms) == 0:
		results = make([]RankedEntry, 0, len(candidates))
		for _, e := range candidates {
			results = append(results, RankedEntry{Entry: e, Score: ExactScore})
		}
	case opts.Mode == config.ModeExact:
		results = exactMatch(candidates, terms)
	default:
		results = fuzzyMatch(candidates, terms, opts.Threshold, opts.Ranker)
	}

	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	for i := range results {
		results[i].Display = Display(SearchText(results[i].Entry), opts.DisplayWidth)
		results[i].Highlights = highlights(results[i].Display, terms, opts)
	}
	return results
}

func exactMatch(entries []types.Entry, terms []string) []RankedEntry {
	var out []RankedEntry
	for _, e := range entries {
		hay := SearchText(e)
		if e.Source != nil {
			hay += " " + e.Source.Title + " " + e.Source.App
		}
		hay = string(lowerRunes(hay))

		matched := true
		for _, t := range terms {
			if !strings.Contains(hay, t) {
				matched = false
				break
			}
		}
		if matched {
			out = append(out, RankedEntry{Entry: e, Score: ExactScore})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return history.Less(out[i].Entry, out[j].Entry)
	})
	return out
}

// fuzzyMatch keeps entries where every term independently reaches threshold
// and scores them by the mean of their term scores.
func fuzzyMatch(entries []types.Entry, terms []string, threshold float64, r Ranker) []RankedEntry {
	var out []RankedEntry
	for _, e := range entries {
		hay := SearchText(e)
		total := 0.0
		ok := true
		for _, t := range terms {
			s, _ := r.Score(t, hay)
			if s <= 0 || s < threshold {
				ok = false
				break
			}
			total += s
		}
		if ok {
			out = append(out, RankedEntry{Entry: e, Score: total / float64(len(terms))})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return history.Less(out[i].Entry, out[j].Entry)
	})
	return out
}

// Display collapses whitespace in text and truncates it to width cells
func Display(text string, width int) string {
	s := strings.Join(strings.Fields(text), " ")
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, ellipsis)
}

// highlights locates every term in the displayed string so offsets match
// what is rendered rather than the stored value.
func highlights(display string, terms []string, opts Options) []int {
	if len(terms) == 0 || display == "" {
		return []int{}
	}
	set := make(map[int]struct{})
	lower := lowerRunes(display)
	for _, t := range terms {
		tr := []rune(t)
		if opts.Mode == config.ModeExact {
			for i := 0; i+len(tr) <= len(lower); i++ {
				if indexRunes(lower[i:i+len(tr)], tr) == 0 {
					for j := range tr {
						set[i+j] = struct{}{}
					}
				}
			}
			continue
		}
		_, positions := opts.Ranker.Score(t, display)
		for _, p := range positions {
			set[p] = struct{}{}
		}
	}
	out := make([]int, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}
