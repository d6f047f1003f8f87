package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Search modes
const (
	ModeExact = "exact"
	ModeFuzzy = "fuzzy"
)

// Storage drivers
const (
	StorageSQLite = "sqlite"
	StorageJSON   = "json"
)

// Threshold bounds for fuzzy matching
const (
	MinThreshold     = 0.1
	MaxThreshold     = 0.9
	DefaultThreshold = 0.4
)

// Duration wraps time.Duration so it can be written as "200ms" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config holds application configuration, loaded from config.toml
type Config struct {
	// DataDir holds the database, images and logs (default ~/.clipkeep)
	DataDir string `toml:"data_dir"`

	// Storage selects the persistence driver: "sqlite" or "json"
	Storage string `toml:"storage"`

	// MaxItems caps the history length
	MaxItems int `toml:"max_items"`

	SearchMode     string  `toml:"search_mode"`
	FuzzyThreshold float64 `toml:"fuzzy_threshold"`

	// Ranker is "native" or "library"
	Ranker string `toml:"ranker"`

	ContextCapture   bool     `toml:"context_capture"`
	ContextFreshness Duration `toml:"context_freshness"`
	ContextInterval  Duration `toml:"context_interval"`
	PollInterval     Duration `toml:"poll_interval"`

	OCR     OCRConfig     `toml:"ocr"`
	Journal JournalConfig `toml:"journal"`
	Server  ServerConfig  `toml:"server"`
	Log     LogConfig     `toml:"log"`
}

// OCRConfig configures text recognition for image entries
type OCRConfig struct {
	Enabled  bool     `toml:"enabled"`
	Binary   string   `toml:"binary"`
	Language string   `toml:"language"`
	Timeout  Duration `toml:"timeout"`
}

// JournalConfig configures the markdown journal export
type JournalConfig struct {
	Enabled   bool     `toml:"enabled"`
	VaultPath string   `toml:"vault_path"`
	Interval  Duration `toml:"interval"`
}

// ServerConfig configures the local HTTP API
type ServerConfig struct {
	Port int `toml:"port"`
}

// LogConfig configures logging
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Stderr bool   `toml:"stderr"`
}

// DefaultDataDir returns ~/.clipkeep, falling back to ./.clipkeep
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".clipkeep"
	}
	return filepath.Join(home, ".clipkeep")
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir:          DefaultDataDir(),
		Storage:          StorageSQLite,
		MaxItems:         200,
		SearchMode:       ModeFuzzy,
		FuzzyThreshold:   DefaultThreshold,
		Ranker:           "native",
		ContextCapture:   true,
		ContextFreshness: Duration{7 * time.Second},
		ContextInterval:  Duration{time.Second},
		PollInterval:     Duration{200 * time.Millisecond},
		OCR: OCRConfig{
			Enabled:  true,
			Binary:   "tesseract",
			Language: "eng",
			Timeout:  Duration{30 * time.Second},
		},
		Journal: JournalConfig{
			Interval: Duration{5 * time.Minute},
		},
		Server: ServerConfig{Port: 54321},
		Log:    LogConfig{Level: "info", Format: "json"},
	}
}

// Path returns the config file location inside dataDir
func Path(dataDir string) string {
	return filepath.Join(dataDir, "config.toml")
}

// Load reads the TOML file at path on top of the defaults.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate normalizes values in place. Out-of-range thresholds are clamped and
// unknown modes fall back to defaults; only values that can't be repaired error.
func (c *Config) Validate() error {
	if c.MaxItems < 1 {
		return fmt.Errorf("max_items must be at least 1, got %d", c.MaxItems)
	}
	c.SearchMode = strings.ToLower(c.SearchMode)
	if c.SearchMode != ModeExact && c.SearchMode != ModeFuzzy {
		c.SearchMode = ModeFuzzy
	}
	// an explicit zero in the file is a value, not "unset"
	c.FuzzyThreshold = BoundThreshold(c.FuzzyThreshold)
	if c.Ranker != "native" && c.Ranker != "library" {
		c.Ranker = "native"
	}
	if c.Storage != StorageSQLite && c.Storage != StorageJSON {
		return fmt.Errorf("unknown storage driver %q", c.Storage)
	}
	if c.PollInterval.Duration <= 0 {
		c.PollInterval.Duration = 200 * time.Millisecond
	}
	if c.ContextFreshness.Duration <= 0 {
		c.ContextFreshness.Duration = 7 * time.Second
	}
	if c.ContextInterval.Duration <= 0 {
		c.ContextInterval.Duration = time.Second
	}
	if c.OCR.Timeout.Duration <= 0 {
		c.OCR.Timeout.Duration = 30 * time.Second
	}
	if c.Journal.Interval.Duration < time.Minute {
		c.Journal.Interval.Duration = time.Minute
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir()
	}
	return nil
}

// ClampThreshold bounds a fuzzy threshold to [MinThreshold, MaxThreshold].
// Zero means unset and maps to the default.
func ClampThreshold(v float64) float64 {
	if v == 0 {
		return DefaultThreshold
	}
	return BoundThreshold(v)
}

// BoundThreshold clamps v to [MinThreshold, MaxThreshold]
func BoundThreshold(v float64) float64 {
	if v < MinThreshold {
		return MinThreshold
	}
	if v > MaxThreshold {
		return MaxThreshold
	}
	return v
}

// Save writes cfg as TOML to path.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}
