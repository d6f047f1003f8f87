package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/hp77-creator/clipkeep/internal/logging"
	"github.com/hp77-creator/clipkeep/internal/storage"
	"github.com/hp77-creator/clipkeep/pkg/types"
)

// MaxOCRChars caps recognized text attached to an image entry
const MaxOCRChars = 12000

// DefaultMaxItems is used when Options.MaxItems is not positive
const DefaultMaxItems = 200

var (
	// ErrPersist wraps any persistence failure. The mutation that caused it
	// was not applied.
	ErrPersist = errors.New("history: persist failed")

	// ErrDuplicateID is returned when inserting an id already in the store
	ErrDuplicateID = errors.New("history: duplicate entry id")

	// ErrInvalidEntry is returned for entries without an id or a known type
	ErrInvalidEntry = errors.New("history: invalid entry")
)

// Listener receives the full ordered list after every committed mutation.
// Listeners run synchronously in mutation order and must not mutate the store
// from the calling goroutine.
type Listener func(entries []types.Entry)

// FileRemover deletes image backing files
type FileRemover interface {
	Remove(path string) error
}

// OSFileRemover removes files from the local filesystem
type OSFileRemover struct{}

func (OSFileRemover) Remove(path string) error { return os.Remove(path) }

// Options configures a Store
type Options struct {
	MaxItems  int
	Persister storage.Persister
	Files     FileRemover
	Logger    *slog.Logger
}

// Store is the authoritative ordered history. Every mutation runs as one
// unit under mu: read current state, apply, sort, evict, persist, commit,
// notify.
type Store struct {
	mu       sync.Mutex
	entries  []types.Entry
	maxItems int

	// notifyMu is taken before mu is released so notifications are
	// delivered in the order mutations committed.
	notifyMu     sync.Mutex
	listenersMu  sync.Mutex
	listeners    map[int]Listener
	nextListener int

	persister storage.Persister
	files     FileRemover
	log       *slog.Logger
	cleanup   sync.WaitGroup
}

// New creates an empty store. Call Load to restore persisted state.
func New(opts Options) *Store {
	if opts.MaxItems <= 0 {
		opts.MaxItems = DefaultMaxItems
	}
	if opts.Files == nil {
		opts.Files = OSFileRemover{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.ForComponent(logging.CompStore)
	}
	return &Store{
		entries:   []types.Entry{},
		maxItems:  opts.MaxItems,
		listeners: make(map[int]Listener),
		persister: opts.Persister,
		files:     opts.Files,
		log:       opts.Logger,
	}
}

// Load replaces in-memory state with the persisted list, re-sorted and capped.
// Entries beyond the cap are evicted (and the trimmed list saved).
func (s *Store) Load(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	loaded, err := s.persister.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	return s.mutate(ctx, func(_ []types.Entry) ([]types.Entry, []types.Entry, bool, error) {
		seen := make(map[string]struct{}, len(loaded))
		next := make([]types.Entry, 0, len(loaded))
		for _, e := range loaded {
			if _, dup := seen[e.ID]; dup || e.ID == "" {
				continue
			}
			seen[e.ID] = struct{}{}
			e.Tags = types.NormalizeTags(e.Tags)
			next = append(next, e)
		}
		sortEntries(next)
		kept, evicted := s.capLocked(next)
		return kept, evicted, true, nil
	}, len(loaded) > s.maxItems)
}

// Insert adds e, re-sorts, evicts past the cap and persists.
func (s *Store) Insert(ctx context.Context, e types.Entry) error {
	if e.ID == "" || !e.Type.Valid() {
		return fmt.Errorf("%w: id=%q type=%q", ErrInvalidEntry, e.ID, e.Type)
	}
	e = e.Clone()
	e.Tags = types.NormalizeTags(e.Tags)

	return s.mutate(ctx, func(cur []types.Entry) ([]types.Entry, []types.Entry, bool, error) {
		if indexOf(cur, e.ID) >= 0 {
			return nil, nil, false, fmt.Errorf("%w: %s", ErrDuplicateID, e.ID)
		}
		next := make([]types.Entry, 0, len(cur)+1)
		next = append(next, e)
		next = append(next, cur...)
		sortEntries(next)
		kept, evicted := s.capLocked(next)
		return kept, evicted, true, nil
	}, true)
}

// Update shallow-merges patch into the entry with id. Unknown ids are a no-op.
func (s *Store) Update(ctx context.Context, id string, patch types.Patch) error {
	return s.mutate(ctx, func(cur []types.Entry) ([]types.Entry, []types.Entry, bool, error) {
		i := indexOf(cur, id)
		if i < 0 {
			return nil, nil, false, nil
		}
		next := cloneAll(cur)
		next[i] = patch.Apply(next[i])
		sortEntries(next)
		return next, nil, true, nil
	}, true)
}

// Enrich attaches recognized text to an image entry. The entry is looked up in
// the current state; if it was deleted meanwhile the text is dropped silently.
func (s *Store) Enrich(ctx context.Context, id, text string) error {
	text = TruncateRunes(text, MaxOCRChars)
	return s.mutate(ctx, func(cur []types.Entry) ([]types.Entry, []types.Entry, bool, error) {
		i := indexOf(cur, id)
		if i < 0 || cur[i].Type != types.TypeImage {
			return nil, nil, false, nil
		}
		next := cloneAll(cur)
		next[i].OCRText = text
		return next, nil, true, nil
	}, true)
}

// Remove deletes the entry with id, if present, and schedules deletion of its
// backing file.
func (s *Store) Remove(ctx context.Context, id string) error {
	return s.mutate(ctx, func(cur []types.Entry) ([]types.Entry, []types.Entry, bool, error) {
		i := indexOf(cur, id)
		if i < 0 {
			return nil, nil, false, nil
		}
		removed := []types.Entry{cur[i]}
		next := make([]types.Entry, 0, len(cur)-1)
		next = append(next, cur[:i]...)
		next = append(next, cur[i+1:]...)
		return cloneAll(next), removed, true, nil
	}, true)
}

// Clear removes every entry and its backing files.
func (s *Store) Clear(ctx context.Context) error {
	return s.mutate(ctx, func(cur []types.Entry) ([]types.Entry, []types.Entry, bool, error) {
		return []types.Entry{}, cur, true, nil
	}, true)
}

// SetMaxItems changes the cap and evicts immediately if needed. The new cap
// takes effect in the same commit as the eviction; if the eviction cannot be
// persisted the previous cap stays in effect.
func (s *Store) SetMaxItems(ctx context.Context, n int) error {
	if n <= 0 {
		return fmt.Errorf("max items must be positive, got %d", n)
	}
	return s.mutateCommit(ctx, func(cur []types.Entry) ([]types.Entry, []types.Entry, bool, error) {
		if len(cur) <= n {
			s.maxItems = n
			return nil, nil, false, nil
		}
		kept, evicted := s.splitAt(cloneAll(cur), n)
		return kept, evicted, true, nil
	}, true, func() { s.maxItems = n })
}

// MaxItems returns the current cap
func (s *Store) MaxItems() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxItems
}

// List returns a copy of the ordered history
func (s *Store) List() []types.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.entries)
}

// Get returns the entry with id
func (s *Store) Get(id string) (types.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := indexOf(s.entries, id); i >= 0 {
		return s.entries[i].Clone(), true
	}
	return types.Entry{}, false
}

// Newest returns the entry with the latest capture timestamp, pinned or not
func (s *Store) Newest() (types.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	best := -1
	for i := range s.entries {
		if best < 0 || s.entries[i].TS.After(s.entries[best].TS) {
			best = i
		}
	}
	if best < 0 {
		return types.Entry{}, false
	}
	return s.entries[best].Clone(), true
}

// Len returns the number of entries
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Subscribe registers l for change notifications and returns a function
// that removes it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.listenersMu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = l
	s.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenersMu.Lock()
			delete(s.listeners, id)
			s.listenersMu.Unlock()
		})
	}
}

// WaitCleanup blocks until scheduled file deletions have finished
func (s *Store) WaitCleanup() {
	s.cleanup.Wait()
}

// mutateFunc computes the next list from the current one. It returns the
// entries whose backing files must go, whether anything changed, and an error
// that aborts the mutation.
type mutateFunc func(cur []types.Entry) (next, removed []types.Entry, changed bool, err error)

func (s *Store) mutate(ctx context.Context, fn mutateFunc, persist bool) error {
	return s.mutateCommit(ctx, fn, persist, nil)
}

// mutateCommit is mutate with a hook that runs under mu once the new list has
// been persisted, before any other mutation can observe the store.
func (s *Store) mutateCommit(ctx context.Context, fn mutateFunc, persist bool, onCommit func()) error {
	s.mu.Lock()

	next, removed, changed, err := fn(s.entries)
	if err != nil || !changed {
		s.mu.Unlock()
		return err
	}

	if persist && s.persister != nil {
		if err := s.persister.Save(ctx, next); err != nil {
			s.mu.Unlock()
			s.log.Error("persist failed; mutation rolled back", "error", err)
			return fmt.Errorf("%w: %w", ErrPersist, err)
		}
	}

	s.entries = next
	if onCommit != nil {
		onCommit()
	}
	s.removeFiles(removed)

	snapshot := cloneAll(next)
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	s.listenersMu.Lock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.listenersMu.Unlock()

	for _, l := range listeners {
		l(snapshot)
	}
	return nil
}

// capLocked splits sorted entries at the current cap. Caller holds mu.
func (s *Store) capLocked(sorted []types.Entry) (kept, evicted []types.Entry) {
	return s.splitAt(sorted, s.maxItems)
}

func (s *Store) splitAt(sorted []types.Entry, max int) (kept, evicted []types.Entry) {
	if len(sorted) <= max {
		return sorted, nil
	}
	evicted = append([]types.Entry(nil), sorted[max:]...)
	kept = sorted[:max:max]
	for _, e := range evicted {
		s.log.Debug("evicted entry", "id", e.ID, "type", e.Type, "pinned", e.Pinned)
	}
	return kept, evicted
}

// removeFiles deletes backing files of removed image entries in the
// background. Failures are logged so an external sweep can collect leaks.
func (s *Store) removeFiles(removed []types.Entry) {
	var paths []string
	for _, e := range removed {
		if e.Type == types.TypeImage && e.FilePath != "" {
			paths = append(paths, e.FilePath)
		}
	}
	if len(paths) == 0 {
		return
	}

	s.cleanup.Add(1)
	go func() {
		defer s.cleanup.Done()
		for _, p := range paths {
			if err := s.files.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				s.log.Warn("failed to delete image file", "path", p, "error", err)
			}
		}
	}()
}

// sortEntries orders pinned entries first, then newest first. Ties keep their
// previous relative order.
func sortEntries(entries []types.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return Less(entries[i], entries[j])
	})
}

// Less reports whether a sorts before b in store order
func Less(a, b types.Entry) bool {
	if a.Pinned != b.Pinned {
		return a.Pinned
	}
	return a.TS.After(b.TS)
}

func indexOf(entries []types.Entry, id string) int {
	for i := range entries {
		if entries[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneAll(entries []types.Entry) []types.Entry {
	out := make([]types.Entry, len(entries))
	for i := range entries {
		out[i] = entries[i].Clone()
	}
	return out
}

// TruncateRunes shortens s to at most n runes
func TruncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
