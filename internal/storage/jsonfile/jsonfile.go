// Package jsonfile persists the history as a single JSON document.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hp77-creator/clipkeep/internal/storage"
	"github.com/hp77-creator/clipkeep/pkg/types"
)

// JSONStorage keeps the whole history in one file, rewritten on every save
type JSONStorage struct {
	filePath  string
	imagePath string
}

// New creates a JSON storage instance, creating parent and image directories
func New(config storage.Config) (*JSONStorage, error) {
	if config.DBPath == "" {
		return nil, errors.New("history file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(config.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	if config.FSPath != "" {
		if err := os.MkdirAll(config.FSPath, 0755); err != nil {
			return nil, fmt.Errorf("failed to create image directory: %w", err)
		}
	}
	return &JSONStorage{
		filePath:  config.DBPath,
		imagePath: config.FSPath,
	}, nil
}

// Load implements storage.Persister. A missing file is an empty history;
// unknown fields are ignored.
func (s *JSONStorage) Load(ctx context.Context) ([]types.Entry, error) {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []types.Entry{}, nil
		}
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}
	if len(data) == 0 {
		return []types.Entry{}, nil
	}

	var entries []types.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode history file: %w", err)
	}
	for i := range entries {
		if entries[i].Tags == nil {
			entries[i].Tags = []string{}
		}
	}
	return entries, nil
}

// Save implements storage.Persister. The file is replaced atomically.
func (s *JSONStorage) Save(ctx context.Context, entries []types.Entry) error {
	if entries == nil {
		entries = []types.Entry{}
	}
	for i := range entries {
		if entries[i].Tags == nil {
			entries = withTags(entries)
			break
		}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.filePath), ".history-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close history: %w", err)
	}
	if err := os.Rename(tmpName, s.filePath); err != nil {
		return fmt.Errorf("failed to replace history file: %w", err)
	}
	return nil
}

// withTags copies entries with nil tags written as empty arrays
func withTags(entries []types.Entry) []types.Entry {
	out := make([]types.Entry, len(entries))
	copy(out, entries)
	for i := range out {
		if out[i].Tags == nil {
			out[i].Tags = []string{}
		}
	}
	return out
}

// FSPath returns the image directory
func (s *JSONStorage) FSPath() string {
	return s.imagePath
}

// Close implements storage.Persister
func (s *JSONStorage) Close() error {
	return nil
}
