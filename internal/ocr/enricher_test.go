package ocr

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/hp77-creator/clipkeep/internal/history"
	"github.com/hp77-creator/clipkeep/pkg/types"
)

type fakeEngine struct {
	initErr   error
	initCalls atomic.Int32
	recCalls  atomic.Int32

	mu      sync.Mutex
	results map[string]string
	errs    map[string]error

	// started receives the path of each job; release gates completion
	started chan string
	release chan struct{}
}

func (f *fakeEngine) Init(context.Context) error {
	f.initCalls.Add(1)
	return f.initErr
}

func (f *fakeEngine) Recognize(ctx context.Context, path string) (string, error) {
	f.recCalls.Add(1)
	if f.started != nil {
		f.started <- path
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[path]; err != nil {
		return "", err
	}
	return f.results[path], nil
}

func imageEntry(id string, ts time.Time) types.Entry {
	return types.Entry{
		ID:       id,
		Type:     types.TypeImage,
		FilePath: "/nonexistent/" + id + ".png",
		Width:    10,
		Height:   10,
		TS:       ts,
	}
}

func startEnricher(t *testing.T, engine Engine, store Target, timeout time.Duration) *Enricher {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	e := NewEnricher(Options{Engine: engine, Store: store, Timeout: timeout, Rate: rate.Inf})
	go e.Run(ctx)
	return e
}

func TestEnricher_AppliesRecognizedText(t *testing.T) {
	ctx := context.Background()
	store := history.New(history.Options{})
	require.NoError(t, store.Insert(ctx, imageEntry("a", time.Now())))

	engine := &fakeEngine{results: map[string]string{"/nonexistent/a.png": "  invoice #42\n"}}
	e := startEnricher(t, engine, store, time.Second)

	e.Schedule("a", "/nonexistent/a.png")
	e.Wait()

	got, ok := store.Get("a")
	require.True(t, ok)
	assert.Equal(t, "invoice #42", got.OCRText)
}

func TestEnricher_TruncatesLongText(t *testing.T) {
	ctx := context.Background()
	store := history.New(history.Options{})
	require.NoError(t, store.Insert(ctx, imageEntry("a", time.Now())))

	long := strings.Repeat("é", history.MaxOCRChars+50)
	engine := &fakeEngine{results: map[string]string{"/nonexistent/a.png": long}}
	e := startEnricher(t, engine, store, time.Second)

	e.Schedule("a", "/nonexistent/a.png")
	e.Wait()

	got, _ := store.Get("a")
	assert.Equal(t, history.MaxOCRChars, len([]rune(got.OCRText)))
}

func TestEnricher_DeletedBeforeCompletion(t *testing.T) {
	ctx := context.Background()
	store := history.New(history.Options{})
	require.NoError(t, store.Insert(ctx, imageEntry("keep", time.Now().Add(-time.Minute))))
	require.NoError(t, store.Insert(ctx, imageEntry("gone", time.Now())))

	engine := &fakeEngine{
		results: map[string]string{"/nonexistent/gone.png": "late text"},
		started: make(chan string, 1),
		release: make(chan struct{}),
	}
	e := startEnricher(t, engine, store, 5*time.Second)

	e.Schedule("gone", "/nonexistent/gone.png")
	<-engine.started
	require.NoError(t, store.Remove(ctx, "gone"))
	afterDelete := store.List()

	var notified atomic.Int32
	unsubscribe := store.Subscribe(func([]types.Entry) { notified.Add(1) })
	defer unsubscribe()

	close(engine.release)
	e.Wait()

	assert.Equal(t, afterDelete, store.List())
	assert.Zero(t, notified.Load())
	_, ok := store.Get("gone")
	assert.False(t, ok)
}

func TestEnricher_InitFailureDisablesOnce(t *testing.T) {
	ctx := context.Background()
	store := history.New(history.Options{})
	require.NoError(t, store.Insert(ctx, imageEntry("a", time.Now())))
	require.NoError(t, store.Insert(ctx, imageEntry("b", time.Now().Add(time.Second))))

	engine := &fakeEngine{initErr: ErrEngineUnavailable}
	e := startEnricher(t, engine, store, time.Second)

	e.Schedule("a", "/nonexistent/a.png")
	e.Wait()
	assert.True(t, e.Disabled())

	e.Schedule("b", "/nonexistent/b.png")
	e.Wait()

	assert.Equal(t, int32(1), engine.initCalls.Load())
	assert.Zero(t, engine.recCalls.Load())
	for _, entry := range store.List() {
		assert.Empty(t, entry.OCRText)
	}
}

func TestEnricher_PerItemFailureSkipsOnlyThatEntry(t *testing.T) {
	ctx := context.Background()
	store := history.New(history.Options{})
	require.NoError(t, store.Insert(ctx, imageEntry("bad", time.Now())))
	require.NoError(t, store.Insert(ctx, imageEntry("good", time.Now().Add(time.Second))))

	engine := &fakeEngine{
		results: map[string]string{"/nonexistent/good.png": "hello"},
		errs:    map[string]error{"/nonexistent/bad.png": errors.New("corrupt image")},
	}
	e := startEnricher(t, engine, store, time.Second)

	e.Schedule("bad", "/nonexistent/bad.png")
	e.Schedule("good", "/nonexistent/good.png")
	e.Wait()

	bad, _ := store.Get("bad")
	good, _ := store.Get("good")
	assert.Empty(t, bad.OCRText)
	assert.Equal(t, "hello", good.OCRText)
	assert.False(t, e.Disabled())
}

func TestEnricher_Timeout(t *testing.T) {
	ctx := context.Background()
	store := history.New(history.Options{})
	require.NoError(t, store.Insert(ctx, imageEntry("slow", time.Now())))

	engine := &fakeEngine{
		results: map[string]string{"/nonexistent/slow.png": "never"},
		release: make(chan struct{}),
	}
	e := startEnricher(t, engine, store, 20*time.Millisecond)

	e.Schedule("slow", "/nonexistent/slow.png")
	e.Wait()

	got, _ := store.Get("slow")
	assert.Empty(t, got.OCRText)
}

func TestEnricher_TextEntriesIgnored(t *testing.T) {
	ctx := context.Background()
	store := history.New(history.Options{})
	require.NoError(t, store.Insert(ctx, types.Entry{ID: "t", Type: types.TypeText, Text: "plain", TS: time.Now()}))

	engine := &fakeEngine{results: map[string]string{"x.png": "ocr"}}
	e := startEnricher(t, engine, store, time.Second)
	e.Schedule("t", "x.png")
	e.Wait()

	got, _ := store.Get("t")
	assert.Empty(t, got.OCRText)
}

func TestSchedule_DropsWhenQueueFull(t *testing.T) {
	engine := &fakeEngine{}
	e := NewEnricher(Options{Engine: engine, Store: history.New(history.Options{}), QueueSize: 1})

	// no worker is running, so the second job cannot be queued
	e.Schedule("a", "a.png")
	e.Schedule("b", "b.png")
	assert.Len(t, e.jobs, 1)
}

func TestHasLanguage(t *testing.T) {
	listing := "List of available languages in \"/usr/share/tessdata/\" (3):\neng\ndeu\nosd\n"
	assert.True(t, hasLanguage(listing, "eng"))
	assert.True(t, hasLanguage(listing, "deu"))
	assert.False(t, hasLanguage(listing, "fra"))
}

func TestTesseractEngine_MissingBinary(t *testing.T) {
	engine := NewTesseractEngine("clipkeep-no-such-ocr-binary", "eng")
	err := engine.Init(context.Background())
	assert.ErrorIs(t, err, ErrEngineUnavailable)
}
