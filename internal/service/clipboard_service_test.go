package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hp77-creator/clipkeep/internal/config"
	"github.com/hp77-creator/clipkeep/internal/foreground"
	"github.com/hp77-creator/clipkeep/internal/history"
	"github.com/hp77-creator/clipkeep/pkg/types"
)

type textReader struct {
	mu   sync.Mutex
	text string
}

func (r *textReader) ReadImage(context.Context) ([]byte, error) { return nil, nil }

func (r *textReader) ReadText(context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.text, nil
}

func (r *textReader) set(text string) {
	r.mu.Lock()
	r.text = text
	r.mu.Unlock()
}

type brokenPersister struct{}

func (brokenPersister) Load(context.Context) ([]types.Entry, error) { return nil, nil }
func (brokenPersister) Save(context.Context, []types.Entry) error {
	return errors.New("disk full")
}
func (brokenPersister) Close() error { return nil }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Storage = config.StorageJSON
	cfg.OCR.Enabled = false
	cfg.PollInterval = config.Duration{Duration: 5 * time.Millisecond}
	return cfg
}

func newTestService(t *testing.T, cfg *config.Config, deps Deps) *ClipboardService {
	t.Helper()
	if deps.Reader == nil {
		deps.Reader = &textReader{}
	}
	if deps.Resolver == nil {
		deps.Resolver = foreground.NopResolver{}
	}
	svc, err := New(cfg, "", deps)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func seed(t *testing.T, svc *ClipboardService, texts ...string) {
	t.Helper()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, text := range texts {
		require.NoError(t, svc.Store().Insert(context.Background(), types.Entry{
			ID:   text,
			Type: types.TypeText,
			Text: text,
			TS:   base.Add(time.Duration(i) * time.Second),
		}))
	}
}

func TestRun_CapturesAndPersists(t *testing.T) {
	cfg := testConfig(t)
	reader := &textReader{}
	svc := newTestService(t, cfg, Deps{Reader: reader})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	reader.set("captured by the daemon")
	require.Eventually(t, func() bool { return len(svc.GetClips(0)) == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	_, err := os.Stat(filepath.Join(cfg.DataDir, JSONFileName))
	assert.NoError(t, err)
}

func TestRun_RestoresHistory(t *testing.T) {
	cfg := testConfig(t)
	first := newTestService(t, cfg, Deps{})
	seed(t, first, "kept across restarts")
	require.NoError(t, first.Close())

	second := newTestService(t, cfg, Deps{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, second.Run(ctx))

	clips := second.GetClips(0)
	require.Len(t, clips, 1)
	assert.Equal(t, "kept across restarts", clips[0].Text)
}

func TestEntryOperations(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, testConfig(t), Deps{})
	seed(t, svc, "alpha", "beta", "gamma")

	require.NoError(t, svc.SetPinned(ctx, "alpha", true))
	assert.Equal(t, "alpha", svc.GetClips(0)[0].ID)

	require.NoError(t, svc.SetTags(ctx, "beta", []string{"Work", " work ", "urgent"}))
	beta, err := svc.GetClip("beta")
	require.NoError(t, err)
	assert.Equal(t, []string{"urgent", "work"}, beta.Tags)

	require.NoError(t, svc.DeleteClip(ctx, "gamma"))
	_, err = svc.GetClip("gamma")
	var ce *ClipboardError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "gamma", ce.ID)

	// unknown ids are no-ops
	assert.NoError(t, svc.SetPinned(ctx, "missing", true))
	assert.NoError(t, svc.DeleteClip(ctx, "missing"))

	assert.Len(t, svc.GetClips(1), 1)
	require.NoError(t, svc.ClearClips(ctx))
	assert.Empty(t, svc.GetClips(0))
}

func TestSearch_UsesConfiguredDefaults(t *testing.T) {
	cfg := testConfig(t)
	cfg.SearchMode = config.ModeExact
	svc := newTestService(t, cfg, Deps{})
	seed(t, svc, "foo bar baz", "bar foo", "foo")

	results := svc.Search(SearchParams{Query: "foo bar"})
	assert.Len(t, results, 2)

	fuzzy := svc.Search(SearchParams{Query: "fbz", Mode: config.ModeFuzzy, Threshold: 0.1})
	require.NotEmpty(t, fuzzy)
	assert.Equal(t, "foo bar baz", fuzzy[0].Entry.ID)
}

func TestApplyConfig(t *testing.T) {
	svc := newTestService(t, testConfig(t), Deps{})
	seed(t, svc, "one", "two", "three")

	next := config.DefaultConfig()
	next.MaxItems = 2
	next.SearchMode = config.ModeExact
	next.FuzzyThreshold = 0.7
	next.ContextCapture = false
	svc.ApplyConfig(next)

	status := svc.Status()
	assert.Equal(t, 2, status.Entries)
	assert.Equal(t, 2, status.MaxItems)
	assert.Equal(t, config.ModeExact, status.SearchMode)
	assert.Equal(t, 0.7, status.FuzzyThreshold)
	assert.False(t, status.ContextCapture)
	assert.NotEqual(t, next.DataDir, svc.Config().DataDir)
}

func TestPersistFailureSurfaces(t *testing.T) {
	svc := newTestService(t, testConfig(t), Deps{Persister: brokenPersister{}})

	err := svc.Store().Insert(context.Background(), types.Entry{ID: "x", Type: types.TypeText, Text: "x", TS: time.Now()})
	assert.ErrorIs(t, err, history.ErrPersist)

	err = svc.ClearClips(context.Background())
	var ce *ClipboardError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "ClearClips", ce.Op)
	assert.ErrorIs(t, err, history.ErrPersist)

	err = svc.SetTags(context.Background(), "x", []string{"a"})
	assert.NoError(t, err)
	assert.Empty(t, svc.GetClips(0))
}

func TestRegisterHandler(t *testing.T) {
	svc := newTestService(t, testConfig(t), Deps{})

	var got [][]types.Entry
	svc.RegisterHandler(HandlerFunc(func(entries []types.Entry) { got = append(got, entries) }))
	seed(t, svc, "notify me")

	require.Len(t, got, 1)
	assert.Equal(t, "notify me", got[0][0].Text)
}

func TestJournalWiring(t *testing.T) {
	cfg := testConfig(t)
	cfg.Journal.Enabled = true
	cfg.Journal.VaultPath = t.TempDir()
	svc := newTestService(t, cfg, Deps{})
	assert.True(t, svc.Status().JournalEnabled)

	cfg = testConfig(t)
	cfg.Journal.Enabled = true
	cfg.Journal.VaultPath = filepath.Join(t.TempDir(), "missing")
	svc = newTestService(t, cfg, Deps{})
	assert.False(t, svc.Status().JournalEnabled)
}

func TestClipboardError(t *testing.T) {
	inner := errors.New("boom")
	err := &ClipboardError{Op: "DeleteClip", ID: "abc", Message: "failed to delete entry", Err: inner}
	assert.Equal(t, "DeleteClip failed for entry abc: failed to delete entry: boom", err.Error())
	assert.ErrorIs(t, err, inner)

	plain := &ClipboardError{Op: "ClearClips", Message: "failed"}
	assert.Equal(t, "ClearClips failed: failed", plain.Error())
}
