package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hp77-creator/clipkeep/internal/storage"
	"github.com/hp77-creator/clipkeep/pkg/types"
)

func setupTestDB(t *testing.T) (*SQLiteStorage, func()) {
	// Create temp directories for test
	tempDir, err := os.MkdirTemp("", "clipkeep-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tempDir, "test.db")
	fsPath := filepath.Join(tempDir, "images")

	// Initialize storage
	store, err := New(storage.Config{
		DBPath: dbPath,
		FSPath: fsPath,
	})
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("failed to create storage: %v", err)
	}

	// Return cleanup function
	cleanup := func() {
		store.Close()
		os.RemoveAll(tempDir)
	}

	return store, cleanup
}

func sampleEntries() []types.Entry {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []types.Entry{
		{
			ID:     "01B",
			Type:   types.TypeText,
			Text:   "pinned note",
			Tags:   []string{"work"},
			Pinned: true,
			TS:     ts,
		},
		{
			ID:        "01C",
			Type:      types.TypeImage,
			FilePath:  "/tmp/01C.png",
			Thumbnail: "data:image/png;base64,AAAA",
			Width:     640,
			Height:    480,
			OCRText:   "invoice total",
			Source:    &types.Source{App: "Preview", Title: "scan.png"},
			Tags:      []string{},
			TS:        ts.Add(time.Minute),
		},
		{
			ID:   "01A",
			Type: types.TypeText,
			Text: "older",
			Tags: []string{"a", "b"},
			TS:   ts.Add(-time.Hour),
		},
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	want := sampleEntries()

	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("failed to save entries: %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("failed to load entries: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}

	for i := range want {
		if got[i].ID != want[i].ID {
			t.Errorf("position %d: got id %s, want %s", i, got[i].ID, want[i].ID)
		}
		if got[i].Type != want[i].Type || got[i].Pinned != want[i].Pinned {
			t.Errorf("position %d: type/pinned mismatch: %+v", i, got[i])
		}
		if !got[i].TS.Equal(want[i].TS) {
			t.Errorf("position %d: ts mismatch: got %v, want %v", i, got[i].TS, want[i].TS)
		}
		if len(got[i].Tags) != len(want[i].Tags) {
			t.Errorf("position %d: tags mismatch: got %v, want %v", i, got[i].Tags, want[i].Tags)
		}
	}

	img := got[1]
	if img.Source == nil || img.Source.App != "Preview" || img.Source.Title != "scan.png" {
		t.Errorf("source not preserved: %+v", img.Source)
	}
	if img.Width != 640 || img.Height != 480 || img.OCRText != "invoice total" {
		t.Errorf("image payload not preserved: %+v", img)
	}
	if got[0].Source != nil {
		t.Errorf("expected nil source for text entry, got %+v", got[0].Source)
	}
}

func TestStore_SaveReplacesPreviousList(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	if err := store.Save(ctx, sampleEntries()); err != nil {
		t.Fatalf("failed to save entries: %v", err)
	}

	remaining := sampleEntries()[2:]
	if err := store.Save(ctx, remaining); err != nil {
		t.Fatalf("failed to save entries: %v", err)
	}

	n, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 row after rewrite, got %d", n)
	}
}

func TestStore_SaveEmpty(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	if err := store.Save(ctx, sampleEntries()); err != nil {
		t.Fatalf("failed to save entries: %v", err)
	}
	if err := store.Save(ctx, nil); err != nil {
		t.Fatalf("failed to save empty list: %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("failed to load entries: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty history, got %d entries", len(got))
	}
}

func TestNew_CreatesImageDirectory(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	info, err := os.Stat(store.FSPath())
	if err != nil {
		t.Fatalf("image directory missing: %v", err)
	}
	if !info.IsDir() {
		t.Error("image path should be a directory")
	}
}
