package clipboard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hp77-creator/clipkeep/internal/history"
	"github.com/hp77-creator/clipkeep/internal/logging"
	"github.com/hp77-creator/clipkeep/internal/storage"
	"github.com/hp77-creator/clipkeep/pkg/types"
)

// DefaultInterval is the clipboard sampling period
const DefaultInterval = 200 * time.Millisecond

// imageQueueSize bounds image captures waiting to be written
const imageQueueSize = 16

// Inserter is the part of the history store the poller writes to
type Inserter interface {
	Insert(ctx context.Context, e types.Entry) error
	Newest() (types.Entry, bool)
}

// ContextProvider supplies the foreground window at capture time
type ContextProvider interface {
	Current(ctx context.Context) *types.Source
}

// OCRScheduler queues text recognition for a new image entry
type OCRScheduler interface {
	Schedule(id, path string)
}

// Options configures a Poller
type Options struct {
	Reader   Reader
	Store    Inserter
	Images   *ImageFiles
	Context  ContextProvider
	OCR      OCRScheduler
	Clock    history.Clock
	IDs      history.IDGenerator
	Interval time.Duration
	Logger   *slog.Logger

	// ContextCapture enables attaching source context to new entries
	ContextCapture bool
}

type imageJob struct {
	data []byte
	sig  string
	ts   time.Time
}

// Poller samples the clipboard and turns changes into history entries.
// Dedup only compares against the latest observation, so a value copied again
// after something else is stored again.
type Poller struct {
	reader   Reader
	store    Inserter
	images   *ImageFiles
	context  ContextProvider
	ocr      OCRScheduler
	clock    history.Clock
	ids      history.IDGenerator
	interval time.Duration
	log      *slog.Logger

	captureContext atomic.Bool

	mu           sync.Mutex
	lastImageSig string
	lastText     string
	lastErr      string

	jobs    chan imageJob
	pending sync.WaitGroup
}

// NewPoller creates a poller. Reader, Store and Images are required.
func NewPoller(opts Options) *Poller {
	if opts.Clock == nil {
		opts.Clock = history.SystemClock{}
	}
	if opts.IDs == nil {
		opts.IDs = history.NewULIDGenerator()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = logging.ForComponent(logging.CompCapture)
	}
	p := &Poller{
		reader:   opts.Reader,
		store:    opts.Store,
		images:   opts.Images,
		context:  opts.Context,
		ocr:      opts.OCR,
		clock:    opts.Clock,
		ids:      opts.IDs,
		interval: opts.Interval,
		log:      opts.Logger,
		jobs:     make(chan imageJob, imageQueueSize),
	}
	p.captureContext.Store(opts.ContextCapture)
	return p
}

// SetContextCapture toggles source context capture at runtime
func (p *Poller) SetContextCapture(enabled bool) {
	p.captureContext.Store(enabled)
}

// Run samples the clipboard until ctx is done. Image writes happen on a
// separate worker so a slow disk never delays the next tick.
func (p *Poller) Run(ctx context.Context) error {
	workerDone := p.startWorker(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			<-workerDone
			return nil
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

func (p *Poller) startWorker(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case job := <-p.jobs:
				p.processImage(ctx, job)
				p.pending.Done()
			}
		}
	}()
	return done
}

// Wait blocks until queued image captures have been processed
func (p *Poller) Wait() {
	p.pending.Wait()
}

// Tick performs one sampling pass
func (p *Poller) Tick(ctx context.Context) {
	handled, err := p.checkImage(ctx)
	if err != nil {
		p.reportError(err)
		return
	}
	if handled {
		p.clearError()
		return
	}
	if err := p.checkText(ctx); err != nil {
		p.reportError(err)
		return
	}
	p.clearError()
}

// checkImage returns true when an image occupied the clipboard this tick,
// whether or not it produced a new entry.
func (p *Poller) checkImage(ctx context.Context) (bool, error) {
	data, err := p.reader.ReadImage(ctx)
	if err != nil {
		return false, &ReadError{Op: "image", Err: err}
	}
	if len(data) == 0 {
		return false, nil
	}

	sig, err := Signature(data)
	if err != nil {
		return false, &ReadError{Op: "hash", Err: err}
	}

	p.mu.Lock()
	if sig == p.lastImageSig {
		p.mu.Unlock()
		return true, nil
	}
	p.lastImageSig = sig
	p.mu.Unlock()

	if len(data) > storage.MaxImageSize {
		p.log.Warn("clipboard image too large, skipping", "bytes", len(data), "error", storage.ErrFileTooLarge)
		return true, nil
	}

	job := imageJob{data: append([]byte(nil), data...), sig: sig, ts: p.clock.Now()}
	p.pending.Add(1)
	select {
	case p.jobs <- job:
	default:
		p.pending.Done()
		p.resetImageSig(sig)
		p.log.Warn("image queue full, dropping capture", "sig", sig)
	}
	return true, nil
}

func (p *Poller) processImage(ctx context.Context, job imageJob) {
	img, err := DecodeImage(job.data)
	if err != nil {
		p.resetImageSig(job.sig)
		p.log.Warn("failed to decode clipboard image", "error", err)
		return
	}

	id := p.ids.NewID(job.ts)
	path, err := p.images.Write(id, img)
	if err != nil {
		p.resetImageSig(job.sig)
		p.log.Error("failed to persist clipboard image", "id", id, "error", err)
		return
	}

	thumb, err := Thumbnail(img, ThumbnailMaxSide)
	if err != nil {
		p.log.Warn("failed to build thumbnail", "id", id, "error", err)
	}

	b := img.Bounds()
	entry := types.Entry{
		ID:        id,
		Type:      types.TypeImage,
		FilePath:  path,
		Thumbnail: thumb,
		Width:     b.Dx(),
		Height:    b.Dy(),
		Source:    p.source(ctx),
		TS:        job.ts,
	}

	if err := p.store.Insert(ctx, entry); err != nil {
		// keep the signature so a persistent store failure doesn't rewrite the file every tick
		if rmErr := p.images.Remove(path); rmErr != nil {
			p.log.Warn("failed to remove orphaned image", "path", path, "error", rmErr)
		}
		p.log.Error("failed to store image entry", "id", id, "error", err)
		return
	}

	p.log.Info("captured image", "id", id, "width", entry.Width, "height", entry.Height)
	if p.ocr != nil {
		p.ocr.Schedule(id, path)
	}
}

func (p *Poller) checkText(ctx context.Context) error {
	text, err := p.reader.ReadText(ctx)
	if err != nil {
		return &ReadError{Op: "text", Err: err}
	}
	if text == "" {
		return nil
	}

	p.mu.Lock()
	same := text == p.lastText
	p.mu.Unlock()
	if same {
		return nil
	}
	if newest, ok := p.store.Newest(); ok && newest.Type == types.TypeText && newest.Text == text {
		return nil
	}

	now := p.clock.Now()
	entry := types.Entry{
		ID:     p.ids.NewID(now),
		Type:   types.TypeText,
		Text:   text,
		Source: p.source(ctx),
		TS:     now,
	}
	if err := p.store.Insert(ctx, entry); err != nil {
		return fmt.Errorf("failed to store text entry: %w", err)
	}

	p.mu.Lock()
	p.lastText = text
	p.mu.Unlock()

	p.log.Debug("captured text", "id", entry.ID, "chars", len(text))
	return nil
}

func (p *Poller) source(ctx context.Context) *types.Source {
	if p.context == nil || !p.captureContext.Load() {
		return nil
	}
	return p.context.Current(ctx)
}

// resetImageSig forgets sig so the same image is retried when seen again
func (p *Poller) resetImageSig(sig string) {
	p.mu.Lock()
	if p.lastImageSig == sig {
		p.lastImageSig = ""
	}
	p.mu.Unlock()
}

// reportError logs err once per distinct failure so a broken clipboard
// backend does not flood the log every tick.
func (p *Poller) reportError(err error) {
	p.mu.Lock()
	msg := err.Error()
	repeated := msg == p.lastErr
	p.lastErr = msg
	p.mu.Unlock()
	if !repeated {
		p.log.Warn("clipboard sampling failed", "error", err)
	}
}

func (p *Poller) clearError() {
	p.mu.Lock()
	p.lastErr = ""
	p.mu.Unlock()
}
