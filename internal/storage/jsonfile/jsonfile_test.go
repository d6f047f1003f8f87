package jsonfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hp77-creator/clipkeep/internal/history"
	"github.com/hp77-creator/clipkeep/internal/storage"
	"github.com/hp77-creator/clipkeep/pkg/types"
)

func newStore(t *testing.T) (*JSONStorage, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "history.json")
	s, err := New(storage.Config{DBPath: path, FSPath: filepath.Join(dir, "images")})
	require.NoError(t, err)
	return s, path
}

func TestLoad_MissingFile(t *testing.T) {
	s, _ := newStore(t)
	entries, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSaveLoad(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	in := []types.Entry{
		{ID: "2", Type: types.TypeImage, FilePath: "/x/2.png", Width: 10, Height: 20,
			Source: &types.Source{App: "Safari", Title: "Docs"}, Tags: []string{"web"}, TS: ts},
		{ID: "1", Type: types.TypeText, Text: "hello", Pinned: true, TS: ts.Add(-time.Second)},
	}
	require.NoError(t, s.Save(ctx, in))

	out, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "2", out[0].ID)
	assert.Equal(t, "Safari", out[0].Source.App)
	assert.Equal(t, []string{"web"}, out[0].Tags)
	assert.True(t, out[0].TS.Equal(ts))
	assert.Equal(t, "hello", out[1].Text)
	assert.NotNil(t, out[1].Tags)
}

func TestSave_UntaggedEntriesKeepEmptyTagArray(t *testing.T) {
	s, path := newStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	h := history.New(history.Options{MaxItems: 10, Persister: s})
	require.NoError(t, h.Insert(ctx, types.Entry{ID: "a", Type: types.TypeText, Text: "a", TS: ts}))
	require.NoError(t, h.Insert(ctx, types.Entry{ID: "b", Type: types.TypeText, Text: "b", TS: ts.Add(time.Second)}))
	require.NoError(t, h.Remove(ctx, "b"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"tags": []`)
	assert.NotContains(t, string(raw), "null")

	require.NoError(t, s.Save(ctx, []types.Entry{{ID: "c", Type: types.TypeText, Text: "c", TS: ts}}))
	raw, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"tags": []`)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "images"), s.FSPath())
}

func TestLoad_ToleratesUnknownFields(t *testing.T) {
	s, path := newStore(t)
	doc := `[{"id":"9","type":"text","text":"hi","tags":["x"],"pinned":false,
	"ts":"2026-01-01T00:00:00Z","collection":"misc","score":3}]`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	out, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "hi", out[0].Text)
}

func TestLoad_Corrupt(t *testing.T) {
	s, path := newStore(t)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := s.Load(context.Background())
	assert.Error(t, err)
}

func TestSave_FailsWhenDirectoryUnwritable(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}
	s, path := newStore(t)
	dir := filepath.Dir(path)
	require.NoError(t, os.Chmod(dir, 0500))
	defer os.Chmod(dir, 0755)

	err := s.Save(context.Background(), []types.Entry{{ID: "1", Type: types.TypeText, Text: "x"}})
	assert.Error(t, err)
}
