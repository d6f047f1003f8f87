package ocr

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/hp77-creator/clipkeep/internal/logging"
)

const (
	// DefaultTimeout bounds a single recognition
	DefaultTimeout = 30 * time.Second

	// DefaultQueueSize bounds jobs waiting for the worker
	DefaultQueueSize = 32

	// DefaultRate caps how many recognitions start per second
	DefaultRate = rate.Limit(2)
)

// Target receives recognized text
type Target interface {
	Enrich(ctx context.Context, id, text string) error
}

// Options configures an Enricher
type Options struct {
	Engine    Engine
	Store     Target
	Timeout   time.Duration
	QueueSize int
	Rate      rate.Limit
	Logger    *slog.Logger
}

type job struct {
	id   string
	path string
}

// Enricher runs OCR on new image entries in the background, one at a time.
// Jobs are never cancelled when their entry is deleted; the store drops the
// result instead.
type Enricher struct {
	engine  Engine
	store   Target
	timeout time.Duration
	limiter *rate.Limiter
	log     *slog.Logger

	jobs    chan job
	pending sync.WaitGroup

	initOnce sync.Once
	initErr  error
	disabled atomic.Bool
}

// NewEnricher creates an enricher. Call Run to start the worker.
func NewEnricher(opts Options) *Enricher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Rate <= 0 {
		opts.Rate = DefaultRate
	}
	if opts.Logger == nil {
		opts.Logger = logging.ForComponent(logging.CompOCR)
	}
	return &Enricher{
		engine:  opts.Engine,
		store:   opts.Store,
		timeout: opts.Timeout,
		limiter: rate.NewLimiter(opts.Rate, 1),
		log:     opts.Logger,
		jobs:    make(chan job, opts.QueueSize),
	}
}

// Schedule queues recognition for an image entry. It never blocks; when the
// queue is full or the engine is disabled the job is dropped.
func (e *Enricher) Schedule(id, path string) {
	if e.disabled.Load() {
		return
	}
	e.pending.Add(1)
	select {
	case e.jobs <- job{id: id, path: path}:
	default:
		e.pending.Done()
		e.log.Warn("ocr queue full, skipping image", "id", id)
	}
}

// Disabled reports whether engine initialization failed
func (e *Enricher) Disabled() bool {
	return e.disabled.Load()
}

// Run processes jobs until ctx is done
func (e *Enricher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case j := <-e.jobs:
			e.process(ctx, j)
			e.pending.Done()
		}
	}
}

// Wait blocks until every scheduled job has been handled
func (e *Enricher) Wait() {
	e.pending.Wait()
}

func (e *Enricher) process(ctx context.Context, j job) {
	if !e.ready(ctx) {
		return
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	text, err := e.engine.Recognize(jobCtx, j.path)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			e.log.Warn("ocr timed out", "id", j.id, "timeout", e.timeout)
		} else {
			e.log.Warn("ocr failed", "id", j.id, "error", err)
		}
		return
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if err := e.store.Enrich(ctx, j.id, text); err != nil {
		e.log.Error("failed to store ocr text", "id", j.id, "error", err)
		return
	}
	e.log.Debug("ocr complete", "id", j.id, "chars", len(text), "took", time.Since(start))
}

// ready initializes the engine on first use
func (e *Enricher) ready(ctx context.Context) bool {
	e.initOnce.Do(func() {
		e.initErr = e.engine.Init(ctx)
		if e.initErr != nil {
			e.disabled.Store(true)
			e.log.Error("ocr disabled for this session", "error", e.initErr)
		}
	})
	return e.initErr == nil
}
