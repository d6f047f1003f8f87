package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hp77-creator/clipkeep/internal/clipboard"
	"github.com/hp77-creator/clipkeep/internal/config"
	"github.com/hp77-creator/clipkeep/internal/foreground"
	"github.com/hp77-creator/clipkeep/internal/history"
	"github.com/hp77-creator/clipkeep/internal/logging"
	"github.com/hp77-creator/clipkeep/internal/obsidian"
	"github.com/hp77-creator/clipkeep/internal/ocr"
	"github.com/hp77-creator/clipkeep/internal/search"
	"github.com/hp77-creator/clipkeep/internal/storage"
	"github.com/hp77-creator/clipkeep/internal/storage/jsonfile"
	"github.com/hp77-creator/clipkeep/internal/storage/sqlite"
	"github.com/hp77-creator/clipkeep/pkg/types"
)

// File names inside the data directory
const (
	DBFileName      = "clipkeep.db"
	JSONFileName    = "history.json"
	JournalFileName = "journal-state.json"
)

// ClipboardError describes a failed service operation
type ClipboardError struct {
	Op      string // Operation that failed
	ID      string // Entry involved (if applicable)
	Message string // Error message
	Err     error  // Underlying error
}

func (e *ClipboardError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.ID != "" {
		return fmt.Sprintf("%s failed for entry %s: %s", e.Op, e.ID, msg)
	}
	return fmt.Sprintf("%s failed: %s", e.Op, msg)
}

func (e *ClipboardError) Unwrap() error {
	return e.Err
}

// Deps replaces platform integrations. Nil fields get the real implementation.
type Deps struct {
	Reader    clipboard.Reader
	Resolver  foreground.Resolver
	Engine    ocr.Engine
	Persister storage.Persister
	Clock     history.Clock
	IDs       history.IDGenerator
}

// SearchParams are per-request search settings. Zero values fall back to the
// configured defaults.
type SearchParams struct {
	Query     string
	Mode      string
	Threshold float64
	Limit     int
}

// Status summarises the running service
type Status struct {
	Entries        int     `json:"entries"`
	MaxItems       int     `json:"maxItems"`
	SearchMode     string  `json:"searchMode"`
	FuzzyThreshold float64 `json:"fuzzyThreshold"`
	ContextCapture bool    `json:"contextCapture"`
	OCREnabled     bool    `json:"ocrEnabled"`
	JournalEnabled bool    `json:"journalEnabled"`
}

// ClipboardService owns the history and every component that feeds it
type ClipboardService struct {
	cfgMu      sync.RWMutex
	cfg        *config.Config
	configPath string

	store     *history.Store
	persister storage.Persister
	poller    *clipboard.Poller
	sampler   *foreground.Sampler
	enricher  *ocr.Enricher
	journal   *obsidian.SyncService
	log       *slog.Logger

	mu           sync.Mutex
	unsubscribes []func()
}

// New wires a service from cfg. configPath, when set, is watched for changes
// while Run is active.
func New(cfg *config.Config, configPath string, deps Deps) (*ClipboardService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &ClipboardError{Op: "New", Message: "invalid configuration", Err: err}
	}
	log := logging.ForComponent(logging.CompService)

	persister := deps.Persister
	if persister == nil {
		p, err := OpenPersister(cfg)
		if err != nil {
			return nil, &ClipboardError{Op: "New", Message: "failed to open storage", Err: err}
		}
		persister = p
	}

	images, err := clipboard.NewImageFiles(filepath.Join(cfg.DataDir, storage.ImageDirName))
	if err != nil {
		return nil, &ClipboardError{Op: "New", Message: "failed to prepare image directory", Err: err}
	}

	store := history.New(history.Options{
		MaxItems:  cfg.MaxItems,
		Persister: persister,
		Files:     images,
	})

	resolver := deps.Resolver
	if resolver == nil {
		resolver = foreground.NewResolver()
	}
	sampler := foreground.NewSampler(foreground.SamplerOptions{
		Resolver:  resolver,
		Clock:     deps.Clock,
		Freshness: cfg.ContextFreshness.Duration,
		Interval:  cfg.ContextInterval.Duration,
	})

	s := &ClipboardService{
		cfg:        cfg,
		configPath: configPath,
		store:      store,
		persister:  persister,
		sampler:    sampler,
		log:        log,
	}

	var scheduler clipboard.OCRScheduler
	if cfg.OCR.Enabled {
		engine := deps.Engine
		if engine == nil {
			engine = ocr.NewTesseractEngine(cfg.OCR.Binary, cfg.OCR.Language)
		}
		s.enricher = ocr.NewEnricher(ocr.Options{
			Engine:  engine,
			Store:   store,
			Timeout: cfg.OCR.Timeout.Duration,
		})
		scheduler = s.enricher
	}

	reader := deps.Reader
	if reader == nil {
		r, err := clipboard.NewReader()
		if err != nil {
			persister.Close()
			return nil, &ClipboardError{Op: "New", Message: "failed to open system clipboard", Err: err}
		}
		reader = r
	}
	s.poller = clipboard.NewPoller(clipboard.Options{
		Reader:         reader,
		Store:          store,
		Images:         images,
		Context:        sampler,
		OCR:            scheduler,
		Clock:          deps.Clock,
		IDs:            deps.IDs,
		Interval:       cfg.PollInterval.Duration,
		ContextCapture: cfg.ContextCapture,
	})

	if cfg.Journal.Enabled {
		var ocrWait time.Duration
		if cfg.OCR.Enabled {
			ocrWait = 2 * cfg.OCR.Timeout.Duration
		}
		journal, err := obsidian.New(store, obsidian.Config{
			VaultPath:    cfg.Journal.VaultPath,
			SyncInterval: cfg.Journal.Interval.Duration,
			StatePath:    filepath.Join(cfg.DataDir, JournalFileName),
			OCRWait:      ocrWait,
		}, nil)
		if err != nil {
			log.Warn("journal export disabled", "error", err)
		} else {
			s.journal = journal
		}
	}

	return s, nil
}

// OpenPersister opens the storage driver named by cfg.Storage
func OpenPersister(cfg *config.Config) (storage.Persister, error) {
	fsPath := filepath.Join(cfg.DataDir, storage.ImageDirName)
	switch cfg.Storage {
	case config.StorageJSON:
		return jsonfile.New(storage.Config{DBPath: filepath.Join(cfg.DataDir, JSONFileName), FSPath: fsPath})
	default:
		return sqlite.New(storage.Config{DBPath: filepath.Join(cfg.DataDir, DBFileName), FSPath: fsPath})
	}
}

// RegisterHandler subscribes handler to history changes until Close
func (s *ClipboardService) RegisterHandler(handler HistoryChangeHandler) {
	unsubscribe := s.store.Subscribe(handler.HandleHistoryChange)
	s.mu.Lock()
	s.unsubscribes = append(s.unsubscribes, unsubscribe)
	s.mu.Unlock()
}

// Run restores history and runs capture until ctx is done or a component fails
func (s *ClipboardService) Run(ctx context.Context) error {
	if err := s.store.Load(ctx); err != nil {
		return &ClipboardError{Op: "Run", Message: "failed to restore history", Err: err}
	}
	s.log.Info("history restored", "entries", s.store.Len(), "max_items", s.store.MaxItems())

	if s.journal != nil {
		s.RegisterHandler(s.journal)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.poller.Run(gctx) })
	g.Go(func() error { return s.sampler.Run(gctx) })
	if s.enricher != nil {
		g.Go(func() error { return s.enricher.Run(gctx) })
	}
	if s.journal != nil {
		g.Go(func() error { return s.journal.Run(gctx) })
	}
	if s.configPath != "" {
		g.Go(func() error {
			return config.Watch(gctx, s.configPath, logging.ForComponent(logging.CompConfig), s.ApplyConfig)
		})
	}

	if err := g.Wait(); err != nil {
		return &ClipboardError{Op: "Run", Message: "component stopped", Err: err}
	}
	return nil
}

// Close detaches handlers, waits for file cleanup and closes storage
func (s *ClipboardService) Close() error {
	s.mu.Lock()
	unsubscribes := s.unsubscribes
	s.unsubscribes = nil
	s.mu.Unlock()
	for _, unsubscribe := range unsubscribes {
		unsubscribe()
	}

	s.store.WaitCleanup()
	if err := s.persister.Close(); err != nil {
		return &ClipboardError{Op: "Close", Message: "failed to close storage", Err: err}
	}
	return nil
}

// ApplyConfig applies the settings that can change at runtime. Storage, data
// directory, OCR and server settings need a restart.
func (s *ClipboardService) ApplyConfig(next *config.Config) {
	s.cfgMu.Lock()
	cur := *s.cfg
	cur.MaxItems = next.MaxItems
	cur.SearchMode = next.SearchMode
	cur.FuzzyThreshold = next.FuzzyThreshold
	cur.Ranker = next.Ranker
	cur.ContextCapture = next.ContextCapture
	cur.Journal.Interval = next.Journal.Interval
	cur.Journal.VaultPath = next.Journal.VaultPath
	s.cfg = &cur
	s.cfgMu.Unlock()

	if err := s.store.SetMaxItems(context.Background(), cur.MaxItems); err != nil {
		s.log.Error("failed to apply max items", "max_items", cur.MaxItems, "error", err)
	}
	s.poller.SetContextCapture(cur.ContextCapture)
	if s.journal != nil {
		s.journal.UpdateSyncInterval(cur.Journal.Interval.Duration)
		if cur.Journal.VaultPath != "" {
			if err := s.journal.UpdateVaultPath(cur.Journal.VaultPath); err != nil {
				s.log.Warn("failed to update vault path", "error", err)
			}
		}
	}
	s.log.Info("configuration applied",
		"max_items", cur.MaxItems, "search_mode", cur.SearchMode,
		"fuzzy_threshold", cur.FuzzyThreshold, "context_capture", cur.ContextCapture)
}

// Config returns a copy of the active configuration
func (s *ClipboardService) Config() config.Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return *s.cfg
}

// Status reports counts and active settings
func (s *ClipboardService) Status() Status {
	cfg := s.Config()
	return Status{
		Entries:        s.store.Len(),
		MaxItems:       s.store.MaxItems(),
		SearchMode:     cfg.SearchMode,
		FuzzyThreshold: cfg.FuzzyThreshold,
		ContextCapture: cfg.ContextCapture,
		OCREnabled:     s.enricher != nil && !s.enricher.Disabled(),
		JournalEnabled: s.journal != nil,
	}
}

// Store exposes the history store
func (s *ClipboardService) Store() *history.Store {
	return s.store
}

// GetClips returns the ordered history, optionally limited
func (s *ClipboardService) GetClips(limit int) []types.Entry {
	entries := s.store.List()
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// GetClip returns the entry with id
func (s *ClipboardService) GetClip(id string) (types.Entry, error) {
	e, ok := s.store.Get(id)
	if !ok {
		return types.Entry{}, &ClipboardError{Op: "GetClip", ID: id, Message: "entry not found"}
	}
	return e, nil
}

// Search ranks the history against p.Query
func (s *ClipboardService) Search(p SearchParams) []search.RankedEntry {
	cfg := s.Config()
	mode := p.Mode
	if mode != config.ModeExact && mode != config.ModeFuzzy {
		mode = cfg.SearchMode
	}
	threshold := p.Threshold
	if threshold == 0 {
		threshold = cfg.FuzzyThreshold
	}
	return search.Search(s.store.List(), p.Query, search.Options{
		Mode:      mode,
		Threshold: threshold,
		Ranker:    search.RankerFor(cfg.Ranker),
		Limit:     p.Limit,
	})
}

// SetPinned pins or unpins an entry. Unknown ids are ignored.
func (s *ClipboardService) SetPinned(ctx context.Context, id string, pinned bool) error {
	if err := s.store.Update(ctx, id, types.Patch{Pinned: types.Bool(pinned)}); err != nil {
		return &ClipboardError{Op: "SetPinned", ID: id, Message: "failed to update entry", Err: err}
	}
	return nil
}

// SetTags replaces an entry's tags. Unknown ids are ignored.
func (s *ClipboardService) SetTags(ctx context.Context, id string, tags []string) error {
	if tags == nil {
		tags = []string{}
	}
	if err := s.store.Update(ctx, id, types.Patch{Tags: &tags}); err != nil {
		return &ClipboardError{Op: "SetTags", ID: id, Message: "failed to update entry", Err: err}
	}
	return nil
}

// DeleteClip deletes an entry by its ID
func (s *ClipboardService) DeleteClip(ctx context.Context, id string) error {
	if err := s.store.Remove(ctx, id); err != nil {
		return &ClipboardError{Op: "DeleteClip", ID: id, Message: "failed to delete entry", Err: err}
	}
	return nil
}

// ClearClips deletes all stored entries
func (s *ClipboardService) ClearClips(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return &ClipboardError{Op: "ClearClips", Message: "failed to clear history", Err: err}
	}
	return nil
}
