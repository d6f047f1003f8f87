package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hp77-creator/clipkeep/internal/storage"
	"github.com/hp77-creator/clipkeep/pkg/types"
)

// saveBatchSize bounds the rows per INSERT statement
const saveBatchSize = 100

type SQLiteStorage struct {
	db     *gorm.DB
	fsPath string // Base path for image backing files
}

// New creates a new SQLite storage instance
func New(config storage.Config) (*SQLiteStorage, error) {
	if err := os.MkdirAll(filepath.Dir(config.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(config.DBPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Auto-migrate the schema
	if err := db.AutoMigrate(&storage.EntryModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	// Create storage directory if it doesn't exist
	if config.FSPath != "" {
		if err := os.MkdirAll(config.FSPath, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	return &SQLiteStorage{
		db:     db,
		fsPath: config.FSPath,
	}, nil
}

// Load implements storage.Persister
func (s *SQLiteStorage) Load(ctx context.Context) ([]types.Entry, error) {
	var models []storage.EntryModel
	if err := s.db.WithContext(ctx).Order("position ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to load entries: %w", err)
	}

	entries := make([]types.Entry, len(models))
	for i := range models {
		entries[i] = models[i].ToEntry()
	}
	return entries, nil
}

// Save implements storage.Persister. The table is rewritten inside a single
// transaction so a failed save leaves the previous list intact.
func (s *SQLiteStorage) Save(ctx context.Context, entries []types.Entry) error {
	models := make([]*storage.EntryModel, len(entries))
	for i, e := range entries {
		models[i] = storage.FromEntry(e, i)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&storage.EntryModel{}).Error; err != nil {
			return fmt.Errorf("failed to clear entries: %w", err)
		}
		if len(models) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(models, saveBatchSize).Error; err != nil {
			return fmt.Errorf("failed to insert entries: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save entries: %w", err)
	}
	return nil
}

// Count returns the number of persisted entries
func (s *SQLiteStorage) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&storage.EntryModel{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return n, nil
}

// FSPath returns the image directory this storage was configured with
func (s *SQLiteStorage) FSPath() string {
	return s.fsPath
}

// Close closes the underlying database handle
func (s *SQLiteStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}
	return sqlDB.Close()
}
