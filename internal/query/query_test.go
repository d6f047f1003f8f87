package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hp77-creator/clipkeep/pkg/types"
)

func TestParse_Tokens(t *testing.T) {
	q := Parse("  tag:Work deploy -tag:old type:image has:ocr pinned:yes   notes ")

	assert.Equal(t, []string{"work"}, q.Filter.IncludeTags)
	assert.Equal(t, []string{"old"}, q.Filter.ExcludeTags)
	require.NotNil(t, q.Filter.Type)
	assert.Equal(t, types.TypeImage, *q.Filter.Type)
	assert.True(t, q.Filter.HasOCR)
	require.NotNil(t, q.Filter.Pinned)
	assert.True(t, *q.Filter.Pinned)
	assert.Equal(t, []string{"deploy", "notes"}, q.Terms)
	assert.Equal(t, "deploy notes", q.Text())
}

func TestParse_MalformedFiltersBecomeTerms(t *testing.T) {
	q := Parse("tag: type:video has:links pinned:maybe http://example.com")

	assert.True(t, q.Filter.Empty())
	assert.Equal(t, []string{"tag:", "type:video", "has:links", "pinned:maybe", "http://example.com"}, q.Terms)
}

func TestParse_Empty(t *testing.T) {
	q := Parse("   ")
	assert.Empty(t, q.Terms)
	assert.True(t, q.Filter.Empty())
	assert.Equal(t, "", q.Text())
}

func TestParse_PinnedNo(t *testing.T) {
	q := Parse("pinned:no type:text")
	require.NotNil(t, q.Filter.Pinned)
	assert.False(t, *q.Filter.Pinned)
	assert.Equal(t, types.TypeText, *q.Filter.Type)
}

func fixtures() []types.Entry {
	return []types.Entry{
		{ID: "1", Type: types.TypeText, Text: "a", Tags: []string{"work"}, Pinned: true},
		{ID: "2", Type: types.TypeText, Text: "b", Tags: []string{"home"}},
		{ID: "3", Type: types.TypeImage, OCRText: "scan", Tags: []string{"work", "receipt"}},
		{ID: "4", Type: types.TypeImage},
	}
}

func ids(entries []types.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestFilter_TagRoundTrip(t *testing.T) {
	entries := fixtures()

	with := Parse("tag:work").Filter.Apply(entries)
	without := Parse("-tag:work").Filter.Apply(entries)

	assert.Equal(t, []string{"1", "3"}, ids(with))
	assert.Equal(t, []string{"2", "4"}, ids(without))
}

func TestFilter_Combined(t *testing.T) {
	entries := fixtures()

	assert.Equal(t, []string{"3"}, ids(Parse("has:ocr").Filter.Apply(entries)))
	assert.Equal(t, []string{"3", "4"}, ids(Parse("type:image").Filter.Apply(entries)))
	assert.Equal(t, []string{"1"}, ids(Parse("pinned:yes").Filter.Apply(entries)))
	assert.Equal(t, []string{"2", "3", "4"}, ids(Parse("pinned:no").Filter.Apply(entries)))
	assert.Equal(t, []string{"3"}, ids(Parse("tag:work tag:receipt").Filter.Apply(entries)))
	assert.Empty(t, Parse("tag:work -tag:work").Filter.Apply(entries))
	assert.Len(t, Parse("anything").Filter.Apply(entries), 4)
}
