package storage

import (
	"context"

	"github.com/hp77-creator/clipkeep/pkg/types"
)

// Persister stores the full ordered history. The history store owns ordering
// and eviction; a persister only has to round-trip the list it is given.
type Persister interface {
	// Load returns the persisted entries in their saved order
	Load(ctx context.Context) ([]types.Entry, error)

	// Save replaces the persisted list with entries
	Save(ctx context.Context, entries []types.Entry) error

	// Close releases the underlying resources
	Close() error
}

// Config holds storage configuration
type Config struct {
	DBPath string // Path to SQLite database or JSON history file
	FSPath string // Path to filesystem storage for image backing files
}
