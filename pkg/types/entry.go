package types

import (
	"sort"
	"strings"
	"time"
)

// EntryType identifies the payload kind of an Entry
type EntryType string

const (
	TypeText  EntryType = "text"
	TypeImage EntryType = "image"
)

// Valid reports whether t is a known entry type
func (t EntryType) Valid() bool {
	return t == TypeText || t == TypeImage
}

// Source describes the foreground window at capture time
type Source struct {
	App   string `json:"app"`
	Title string `json:"title"`
}

// Entry is one captured clipboard item
type Entry struct {
	ID   string    `json:"id"`
	Type EntryType `json:"type"`

	// text payload
	Text string `json:"text,omitempty"`

	// image payload
	FilePath  string `json:"filePath,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`

	OCRText string    `json:"ocrText,omitempty"`
	Source  *Source   `json:"source,omitempty"`
	Tags    []string  `json:"tags"`
	Pinned  bool      `json:"pinned"`
	TS      time.Time `json:"ts"`
}

// Clone returns a deep copy so callers can't alias store state
func (e Entry) Clone() Entry {
	out := e
	if e.Source != nil {
		src := *e.Source
		out.Source = &src
	}
	out.Tags = append(make([]string, 0, len(e.Tags)), e.Tags...)
	return out
}

// HasTag reports whether the entry carries tag (case-insensitive)
func (e Entry) HasTag(tag string) bool {
	tag = strings.ToLower(tag)
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Patch is a shallow update. Nil fields are left untouched.
type Patch struct {
	Pinned  *bool     `json:"pinned,omitempty"`
	Tags    *[]string `json:"tags,omitempty"`
	OCRText *string   `json:"ocrText,omitempty"`
	Source  *Source   `json:"source,omitempty"`
}

// Apply merges the patch into e and returns the result
func (p Patch) Apply(e Entry) Entry {
	if p.Pinned != nil {
		e.Pinned = *p.Pinned
	}
	if p.Tags != nil {
		e.Tags = NormalizeTags(*p.Tags)
	}
	if p.OCRText != nil {
		e.OCRText = *p.OCRText
	}
	if p.Source != nil {
		src := *p.Source
		e.Source = &src
	}
	return e
}

// NormalizeTags lowercases, trims and deduplicates tags. The result is sorted
// since tag order carries no meaning.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Bool returns a pointer to b, handy for building patches
func Bool(b bool) *bool { return &b }
