package obsidian

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hp77-creator/clipkeep/internal/logging"
	"github.com/hp77-creator/clipkeep/pkg/types"
)

// DefaultSyncInterval is how often the journal catches up without a trigger
const DefaultSyncInterval = 5 * time.Minute

// journalDir is the vault folder holding one note per day
const journalDir = "Clipboard"

// Source provides the current history
type Source interface {
	List() []types.Entry
}

// Config holds configuration for the journal export
type Config struct {
	VaultPath    string
	SyncInterval time.Duration

	// StatePath records exported ids across restarts. Empty keeps them in
	// memory only.
	StatePath string

	// OCRWait holds back image entries without recognized text until they
	// are this old, so the note carries the OCR result. Zero exports them
	// immediately.
	OCRWait time.Duration
}

// SyncService appends new history entries to daily markdown notes in an
// Obsidian vault. Entries are written once; later edits and deletions in the
// history do not touch notes already written.
type SyncService struct {
	source    Source
	statePath string
	ocrWait   time.Duration
	now       func() time.Time
	log       *slog.Logger

	mu        sync.RWMutex // protects vaultPath and interval
	vaultPath string
	interval  time.Duration

	syncMu   sync.Mutex // serialises sync runs and guards exported
	exported map[string]struct{}

	trigger chan struct{}
	reset   chan time.Duration
}

// New creates a journal exporter. The vault directory must exist.
func New(source Source, config Config, log *slog.Logger) (*SyncService, error) {
	if config.VaultPath == "" {
		return nil, fmt.Errorf("vault path is required")
	}
	if info, err := os.Stat(config.VaultPath); err != nil {
		return nil, fmt.Errorf("vault path does not exist: %s", config.VaultPath)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("vault path is not a directory: %s", config.VaultPath)
	}
	if config.SyncInterval <= 0 {
		config.SyncInterval = DefaultSyncInterval
	}
	if log == nil {
		log = logging.ForComponent(logging.CompJournal)
	}

	s := &SyncService{
		source:    source,
		statePath: config.StatePath,
		ocrWait:   config.OCRWait,
		now:       time.Now,
		log:       log,
		vaultPath: config.VaultPath,
		interval:  config.SyncInterval,
		exported:  make(map[string]struct{}),
		trigger:   make(chan struct{}, 1),
		reset:     make(chan time.Duration, 1),
	}
	if err := s.loadState(); err != nil {
		log.Warn("failed to read journal state, starting fresh", "path", s.statePath, "error", err)
	}
	return s, nil
}

// UpdateVaultPath switches the vault while the service is running
func (s *SyncService) UpdateVaultPath(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("new vault path does not exist: %s", path)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.Info("updating vault path", "from", s.vaultPath, "to", path)
	s.vaultPath = path
	return nil
}

// UpdateSyncInterval changes the catch-up period
func (s *SyncService) UpdateSyncInterval(interval time.Duration) {
	if interval <= 0 {
		s.log.Warn("ignoring non-positive sync interval", "interval", interval)
		return
	}
	s.mu.Lock()
	s.interval = interval
	s.mu.Unlock()
	select {
	case s.reset <- interval:
	default:
	}
}

// HandleHistoryChange requests a sync soon. It never blocks, so it is safe
// to register as a store listener.
func (s *SyncService) HandleHistoryChange([]types.Entry) {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run syncs once, then on every trigger or tick until ctx is done
func (s *SyncService) Run(ctx context.Context) error {
	if err := s.Sync(ctx); err != nil {
		s.log.Error("initial journal sync failed", "error", err)
	}

	s.mu.RLock()
	ticker := time.NewTicker(s.interval)
	s.mu.RUnlock()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-s.reset:
			ticker.Reset(d)
		case <-ticker.C:
		case <-s.trigger:
		}
		if err := s.Sync(ctx); err != nil {
			s.log.Error("journal sync failed", "error", err)
		}
	}
}

// Sync appends every entry not yet exported, oldest first
func (s *SyncService) Sync(ctx context.Context) error {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	s.mu.RLock()
	vaultPath := s.vaultPath
	s.mu.RUnlock()

	if _, err := os.Stat(vaultPath); err != nil {
		return fmt.Errorf("vault path error: %w", err)
	}

	entries := s.source.List()
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].TS.Before(entries[j].TS) })

	clipboardDir := filepath.Join(vaultPath, journalDir)
	written := 0
	var syncErr error
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		if _, done := s.exported[e.ID]; done {
			continue
		}
		if s.awaitingOCR(e) {
			// later entries wait too so notes stay in capture order
			s.log.Debug("holding image until text recognition finishes", "id", e.ID)
			break
		}
		if err := os.MkdirAll(clipboardDir, 0755); err != nil {
			syncErr = fmt.Errorf("failed to create directory: %w", err)
			break
		}
		if err := s.appendEntry(clipboardDir, e); err != nil {
			syncErr = err
			break
		}
		s.exported[e.ID] = struct{}{}
		written++
	}

	s.prune(entries)
	if written == 0 {
		return syncErr
	}
	s.log.Info("journal updated", "entries", written)
	if err := s.saveState(); err != nil {
		return errors.Join(syncErr, err)
	}
	return syncErr
}

// awaitingOCR reports whether an image is young enough that its recognized
// text may still arrive
func (s *SyncService) awaitingOCR(e types.Entry) bool {
	if s.ocrWait <= 0 || e.Type != types.TypeImage || e.OCRText != "" {
		return false
	}
	return s.now().Sub(e.TS) < s.ocrWait
}

// Exported reports whether id has been written to the journal
func (s *SyncService) Exported(id string) bool {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	_, ok := s.exported[id]
	return ok
}

func (s *SyncService) appendEntry(clipboardDir string, e types.Entry) error {
	day := e.TS.Local().Format("2006-01-02")
	path := filepath.Join(clipboardDir, day+".md")

	body := e.Text
	if e.Type == types.TypeImage {
		link, err := s.copyImage(clipboardDir, e)
		if err != nil {
			s.log.Warn("failed to copy image into vault", "id", e.ID, "error", err)
			body = fmt.Sprintf("_image %dx%d (file unavailable)_", e.Width, e.Height)
		} else {
			body = fmt.Sprintf("![[%s]]", link)
		}
		if e.OCRText != "" {
			body += "\n\n> " + strings.ReplaceAll(e.OCRText, "\n", "\n> ")
		}
	}

	note := fmt.Sprintf(`
## %s
---
source: %s
tags: [clipboard%s]
type: %s
---

%s

`,
		e.TS.Local().Format("15:04:05"),
		formatSource(e.Source),
		formatTags(e.Tags),
		e.Type,
		body)

	_, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open note: %w", err)
	}
	defer f.Close()

	if os.IsNotExist(statErr) {
		note = "# " + day + "\n" + note
	}
	if _, err := f.WriteString(note); err != nil {
		return fmt.Errorf("failed to write note: %w", err)
	}
	return nil
}

// copyImage copies the backing file into the vault assets folder and
// returns the link relative to the note
func (s *SyncService) copyImage(clipboardDir string, e types.Entry) (string, error) {
	assetsDir := filepath.Join(clipboardDir, "assets")
	if err := os.MkdirAll(assetsDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create assets directory: %w", err)
	}

	name := fmt.Sprintf("%s-%s%s", e.TS.Local().Format("20060102-150405"), e.ID, imageExtension(e.FilePath))
	src, err := os.Open(e.FilePath)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.Create(filepath.Join(assetsDir, name))
	if err != nil {
		return "", fmt.Errorf("failed to create image file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", fmt.Errorf("failed to copy image: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", err
	}
	return filepath.ToSlash(filepath.Join("assets", name)), nil
}

// prune forgets ids that left the history; ids are never reused
func (s *SyncService) prune(current []types.Entry) {
	live := make(map[string]struct{}, len(current))
	for _, e := range current {
		live[e.ID] = struct{}{}
	}
	for id := range s.exported {
		if _, ok := live[id]; !ok {
			delete(s.exported, id)
		}
	}
}

func (s *SyncService) loadState() error {
	if s.statePath == "" {
		return nil
	}
	data, err := os.ReadFile(s.statePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return fmt.Errorf("failed to parse journal state: %w", err)
	}
	for _, id := range ids {
		s.exported[id] = struct{}{}
	}
	return nil
}

func (s *SyncService) saveState() error {
	if s.statePath == "" {
		return nil
	}
	ids := make([]string, 0, len(s.exported))
	for id := range s.exported {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	tmp := s.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write journal state: %w", err)
	}
	if err := os.Rename(tmp, s.statePath); err != nil {
		return fmt.Errorf("failed to write journal state: %w", err)
	}
	return nil
}

func imageExtension(path string) string {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return ext
	default:
		return ".png"
	}
}

func formatSource(src *types.Source) string {
	if src == nil {
		return "unknown"
	}
	if src.Title == "" || src.Title == src.App {
		return src.App
	}
	return src.App + " / " + src.Title
}

// formatTags formats tags for frontmatter
func formatTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	formatted := make([]string, 0, len(tags))
	for _, tag := range tags {
		formatted = append(formatted, strings.ReplaceAll(tag, " ", "-"))
	}
	return ", " + strings.Join(formatted, ", ")
}
