// Package foreground tracks which application window is in front so captured
// entries can be tagged with their source.
package foreground

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hp77-creator/clipkeep/internal/history"
	"github.com/hp77-creator/clipkeep/internal/logging"
	"github.com/hp77-creator/clipkeep/pkg/types"
)

// Defaults for the sampler
const (
	DefaultFreshness = 7 * time.Second
	DefaultInterval  = time.Second
)

// Resolver reports the current foreground window. A nil Source with a nil
// error means nothing could be determined.
type Resolver interface {
	Foreground(ctx context.Context) (*types.Source, error)
}

// NopResolver never knows the foreground window
type NopResolver struct{}

func (NopResolver) Foreground(context.Context) (*types.Source, error) { return nil, nil }

// noiseNames are transient system utilities and our own window, matched
// against the whole app name or title.
var noiseNames = map[string]struct{}{
	"clipkeep":                {},
	"screenshot":              {},
	"screencaptureui":         {},
	"snipping tool":           {},
	"snip & sketch":           {},
	"gnome-screenshot":        {},
	"flameshot":               {},
	"spectacle":               {},
	"shellexperiencehost":     {},
	"startmenuexperiencehost": {},
	"searchhost":              {},
	"program manager":         {},
	"dock":                    {},
	"systemuiserver":          {},
	"control center":          {},
	"notification center":     {},
	"window server":           {},
	"plasmashell":             {},
	"gnome-shell":             {},
}

// noiseFragments reject any title containing them
var noiseFragments = []string{"screenshot", "clipkeep"}

// Plausible reports whether src looks like a real user window
func Plausible(src *types.Source) bool {
	if src == nil || strings.TrimSpace(src.Title) == "" {
		return false
	}
	app := strings.ToLower(strings.TrimSpace(src.App))
	title := strings.ToLower(strings.TrimSpace(src.Title))
	if _, ok := noiseNames[app]; ok {
		return false
	}
	if _, ok := noiseNames[title]; ok {
		return false
	}
	for _, f := range noiseFragments {
		if strings.Contains(title, f) {
			return false
		}
	}
	return true
}

// Sampler caches the last plausible foreground window. Capture happens after
// the user copied, often from a window that has lost focus, so a recent cached
// value is preferred over a fresh lookup.
type Sampler struct {
	resolver  Resolver
	clock     history.Clock
	freshness time.Duration
	interval  time.Duration
	log       *slog.Logger

	mu     sync.Mutex
	last   *types.Source
	lastAt time.Time
}

// SamplerOptions configures a Sampler
type SamplerOptions struct {
	Resolver  Resolver
	Clock     history.Clock
	Freshness time.Duration
	Interval  time.Duration
	Logger    *slog.Logger
}

// NewSampler creates a sampler
func NewSampler(opts SamplerOptions) *Sampler {
	if opts.Resolver == nil {
		opts.Resolver = NopResolver{}
	}
	if opts.Clock == nil {
		opts.Clock = history.SystemClock{}
	}
	if opts.Freshness <= 0 {
		opts.Freshness = DefaultFreshness
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = logging.ForComponent(logging.CompContext)
	}
	return &Sampler{
		resolver:  opts.Resolver,
		clock:     opts.Clock,
		freshness: opts.Freshness,
		interval:  opts.Interval,
		log:       opts.Logger,
	}
}

// Run samples until ctx is done
func (s *Sampler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Sample(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sample(ctx)
		}
	}
}

// Sample queries the resolver once and caches a plausible result
func (s *Sampler) Sample(ctx context.Context) {
	src, err := s.resolver.Foreground(ctx)
	if err != nil {
		s.log.Debug("foreground lookup failed", "error", err)
		return
	}
	if !Plausible(src) {
		return
	}
	cp := *src
	s.mu.Lock()
	s.last = &cp
	s.lastAt = s.clock.Now()
	s.mu.Unlock()
}

// Current returns the cached window when it is fresh, otherwise it performs a
// synchronous lookup. Implausible or failed lookups yield nil.
func (s *Sampler) Current(ctx context.Context) *types.Source {
	s.mu.Lock()
	if s.last != nil && s.clock.Now().Sub(s.lastAt) <= s.freshness {
		cp := *s.last
		s.mu.Unlock()
		return &cp
	}
	s.mu.Unlock()

	src, err := s.resolver.Foreground(ctx)
	if err != nil {
		s.log.Debug("foreground lookup failed", "error", err)
		return nil
	}
	if !Plausible(src) {
		return nil
	}
	cp := *src
	return &cp
}
