package storage

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hp77-creator/clipkeep/pkg/types"
)

// StringArray is stored as a JSON array in a text column
type StringArray []string

// Value implements driver.Valuer
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(a))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (a *StringArray) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*a = StringArray{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported tags column type %T", src)
	}
	if len(raw) == 0 {
		*a = StringArray{}
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("failed to decode tags: %w", err)
	}
	*a = out
	return nil
}

// EntryModel is the row shape of a history entry
type EntryModel struct {
	ID        string `gorm:"primaryKey"`
	Position  int    `gorm:"index;not null"`
	Type      string `gorm:"type:string;not null"`
	Text      string
	FilePath  string
	Thumbnail string
	Width     int
	Height    int
	OCRText   string      `gorm:"column:ocr_text"`
	SourceApp string
	Title     string
	HasSource bool
	Tags      StringArray `gorm:"type:text"`
	Pinned    bool        `gorm:"index"`
	TS        time.Time   `gorm:"column:ts;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ToEntry converts a row back into an Entry
func (m *EntryModel) ToEntry() types.Entry {
	e := types.Entry{
		ID:        m.ID,
		Type:      types.EntryType(m.Type),
		Text:      m.Text,
		FilePath:  m.FilePath,
		Thumbnail: m.Thumbnail,
		Width:     m.Width,
		Height:    m.Height,
		OCRText:   m.OCRText,
		Tags:      append([]string{}, m.Tags...),
		Pinned:    m.Pinned,
		TS:        m.TS,
	}
	if m.HasSource {
		e.Source = &types.Source{App: m.SourceApp, Title: m.Title}
	}
	return e
}

// FromEntry builds the row for e at list position pos
func FromEntry(e types.Entry, pos int) *EntryModel {
	m := &EntryModel{
		ID:        e.ID,
		Position:  pos,
		Type:      string(e.Type),
		Text:      e.Text,
		FilePath:  e.FilePath,
		Thumbnail: e.Thumbnail,
		Width:     e.Width,
		Height:    e.Height,
		OCRText:   e.OCRText,
		Tags:      StringArray(e.Tags),
		Pinned:    e.Pinned,
		TS:        e.TS,
	}
	if e.Source != nil {
		m.HasSource = true
		m.SourceApp = e.Source.App
		m.Title = e.Source.Title
	}
	return m
}
