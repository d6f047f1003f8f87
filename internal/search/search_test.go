package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hp77-creator/clipkeep/internal/config"
	"github.com/hp77-creator/clipkeep/pkg/types"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// texts builds text entries in store order, newest first
func texts(values ...string) []types.Entry {
	out := make([]types.Entry, len(values))
	for i, v := range values {
		out[i] = types.Entry{
			ID:   v,
			Type: types.TypeText,
			Text: v,
			TS:   base.Add(-time.Duration(i) * time.Minute),
		}
	}
	return out
}

func resultIDs(results []RankedEntry) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Entry.ID
	}
	return out
}

func TestExact_TokenAND(t *testing.T) {
	entries := texts("foo bar baz", "bar foo", "foo")
	results := Search(entries, "foo bar", Options{Mode: config.ModeExact})

	assert.Equal(t, []string{"foo bar baz", "bar foo"}, resultIDs(results))
	for _, r := range results {
		assert.Equal(t, ExactScore, r.Score)
	}
}

func TestExact_MatchesSourceContext(t *testing.T) {
	entries := texts("select * from users")
	entries[0].Source = &types.Source{App: "TablePlus", Title: "prod-db"}

	assert.Len(t, Search(entries, "PROD tableplus", Options{Mode: config.ModeExact}), 1)
	assert.Empty(t, Search(entries, "staging", Options{Mode: config.ModeExact}))
}

func TestExact_StoreOrder(t *testing.T) {
	entries := texts("note one", "note two", "note three")
	entries[2].Pinned = true

	results := Search(entries, "note", Options{Mode: config.ModeExact})
	assert.Equal(t, []string{"note three", "note one", "note two"}, resultIDs(results))
}

func TestFuzzy_LiteralEarlierStartRanksHigher(t *testing.T) {
	for _, r := range []Ranker{NativeRanker{}, LibraryRanker{}} {
		early, _ := r.Score("hello", "hello world")
		late, _ := r.Score("hello", "say hello world now")
		assert.Greater(t, early, late)
		assert.InDelta(t, 0.65+0.25+0.10*5.0/12.0, early, 1e-9)
	}

	// store order puts the later haystack first; score must override it
	entries := texts("say hello world now", "hello world")
	results := Search(entries, "hello", Options{Mode: config.ModeFuzzy})
	assert.Equal(t, []string{"hello world", "say hello world now"}, resultIDs(results))
}

func TestFuzzy_NoSubsequenceScoresZero(t *testing.T) {
	for _, r := range []Ranker{NativeRanker{}, LibraryRanker{}} {
		score, positions := r.Score("xyz", "abc")
		assert.Zero(t, score)
		assert.Nil(t, positions)
	}

	results := Search(texts("abc"), "xyz", Options{Mode: config.ModeFuzzy, Threshold: config.MinThreshold})
	assert.Empty(t, results)
}

func TestFuzzy_SubsequenceFormula(t *testing.T) {
	score, positions := NativeRanker{}.Score("hlo", "hello")
	// span 5, density 0.6, start bonus 1, gap penalty 0.4
	assert.InDelta(t, 0.6*0.6+0.3*1+0.1*0.6, score, 1e-9)
	assert.Equal(t, []int{0, 2, 4}, positions)
}

func TestLibraryRanker_SubsequenceUsesRuneOffsets(t *testing.T) {
	score, positions := LibraryRanker{}.Score("cfe", "café crème")
	require.NotNil(t, positions)
	assert.Greater(t, score, 0.0)
	for _, p := range positions {
		assert.Less(t, p, len([]rune("café crème")))
	}
}

func TestFuzzy_ThresholdExcludesWeakMatches(t *testing.T) {
	entries := texts("a-----------------------------------------z")
	assert.Len(t, Search(entries, "az", Options{Mode: config.ModeFuzzy, Threshold: 0.1}), 1)
	assert.Empty(t, Search(entries, "az", Options{Mode: config.ModeFuzzy, Threshold: 0.9}))
}

func TestFuzzy_MultiTermEveryTermMustMatch(t *testing.T) {
	entries := texts("deploy staging cluster", "deploy production", "staging notes")
	results := Search(entries, "deploy staging", Options{Mode: config.ModeFuzzy, Threshold: 0.6})
	assert.Equal(t, []string{"deploy staging cluster"}, resultIDs(results))
}

func TestFuzzy_TiesBreakByPinnedThenTS(t *testing.T) {
	entries := []types.Entry{
		{ID: "new", Type: types.TypeText, Text: "token", TS: base},
		{ID: "old", Type: types.TypeText, Text: "token", TS: base.Add(-time.Hour)},
		{ID: "pinned", Type: types.TypeText, Text: "token", TS: base.Add(-2 * time.Hour), Pinned: true},
	}
	results := Search(entries, "token", Options{})
	assert.Equal(t, []string{"pinned", "new", "old"}, resultIDs(results))
}

func TestSearch_EmptyQueryReturnsFilteredStoreOrder(t *testing.T) {
	entries := texts("one", "two", "three")
	entries[1].Tags = []string{"work"}

	assert.Equal(t, []string{"one", "two", "three"}, resultIDs(Search(entries, "", Options{})))
	assert.Equal(t, []string{"two"}, resultIDs(Search(entries, "tag:work", Options{})))
	assert.Equal(t, []string{"one", "three"}, resultIDs(Search(entries, "-tag:work", Options{})))
}

func TestSearch_Limit(t *testing.T) {
	results := Search(texts("aa", "ab", "ac"), "a", Options{Limit: 2})
	assert.Len(t, results, 2)
}

func TestSearchText_Image(t *testing.T) {
	img := types.Entry{Type: types.TypeImage, Width: 800, Height: 600}
	assert.Equal(t, "image 800x600", SearchText(img))

	img.Source = &types.Source{App: "Figma", Title: "Logo"}
	assert.Equal(t, "image 800x600 Figma Logo", SearchText(img))

	img.OCRText = "Quarterly report"
	assert.Equal(t, "Quarterly report", SearchText(img))
}

func TestSearch_ImageMatchesOCR(t *testing.T) {
	entries := []types.Entry{
		{ID: "img", Type: types.TypeImage, OCRText: "Total due: 42 EUR", TS: base},
		{ID: "txt", Type: types.TypeText, Text: "nothing here", TS: base.Add(-time.Minute)},
	}
	results := Search(entries, "due has:ocr", Options{Mode: config.ModeExact})
	assert.Equal(t, []string{"img"}, resultIDs(results))
}

func TestHighlights_AlignWithDisplay(t *testing.T) {
	entries := texts("first line\n\n\tsecond   Hello line")

	results := Search(entries, "hello", Options{Mode: config.ModeExact})
	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, "first line second Hello line", r.Display)

	runes := []rune(r.Display)
	var got []rune
	for _, p := range r.Highlights {
		got = append(got, runes[p])
	}
	assert.Equal(t, "Hello", string(got))
}

func TestHighlights_FuzzyPositions(t *testing.T) {
	results := Search(texts("hello"), "hlo", Options{Mode: config.ModeFuzzy, Threshold: 0.1})
	require.Len(t, results, 1)
	assert.Equal(t, []int{0, 2, 4}, results[0].Highlights)
}

func TestDisplay_Truncates(t *testing.T) {
	d := Display("abcdefghijklmnopqrstuvwxyz", 10)
	assert.Equal(t, 10, len([]rune(d)))
	assert.True(t, len(d) > 0 && []rune(d)[9] == '…')

	assert.Equal(t, "short", Display("  short  ", 10))
}

func TestRankerFor(t *testing.T) {
	assert.IsType(t, LibraryRanker{}, RankerFor(RankerLibrary))
	assert.IsType(t, NativeRanker{}, RankerFor(RankerNative))
	assert.IsType(t, NativeRanker{}, RankerFor("unknown"))
}
