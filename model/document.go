package model

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MetadataCreatedAt = "created_at"
	MetadataUpdatedAt = "updated_at"
	MetadataSource    = "source"
	MetadataTags      = "tags"

	// DefaultSummaryLength is the rune budget of Document.Summary.
	DefaultSummaryLength = 150
	// DefaultSearchLimit caps SearchDocuments when no limit is given.
	DefaultSearchLimit = 10

	noDescription = "No description available."
)

var summaryFields = []string{"summary", "biography", "description", "about", "bio", "overview"}

// Document holds the structured and unstructured content of an entity.
// Version starts at 1 and increases on every update.
type Document struct {
	ID         string    `json:"doc_id"`
	EntityID   string    `json:"entity_id"`
	EntityType string    `json:"entity_type"`
	EntityName string    `json:"entity_name"`
	Structured Metadata  `json:"structured"`
	Content    Metadata  `json:"content"`
	Text       string    `json:"text,omitempty"`
	Metadata   Metadata  `json:"metadata"`
	Version    int       `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Prepare sets the creation defaults: version 1, timestamps, source and tags.
func (d *Document) Prepare(now time.Time) {
	if d.Structured == nil {
		d.Structured = Metadata{}
	}
	if d.Content == nil {
		d.Content = Metadata{}
	}
	d.Metadata = d.Metadata.Clone()
	stamp := now.UTC().Format(time.RFC3339Nano)
	d.Metadata[MetadataCreatedAt] = stamp
	d.Metadata[MetadataUpdatedAt] = stamp
	if d.Metadata.String(MetadataSource) == "" {
		d.Metadata[MetadataSource] = DefaultSource
	}
	if _, ok := d.Metadata[MetadataTags]; !ok {
		d.Metadata[MetadataTags] = []any{}
	}
	d.Version = 1
	d.CreatedAt = now
	d.UpdatedAt = now
}

// Tags returns the document tags.
func (d *Document) Tags() []string {
	return d.Metadata.Strings(MetadataTags)
}

// Summary returns a short description of the document.
// The first populated field of summary, biography, description, about, bio
// or overview wins, otherwise long string fields are concatenated.
// The result is cut at a word boundary to maxLength runes.
func (d *Document) Summary(maxLength int) string {
	if maxLength <= 0 {
		maxLength = DefaultSummaryLength
	}

	for _, source := range []Metadata{d.Content, d.Structured} {
		for _, field := range summaryFields {
			if s, ok := source[field].(string); ok && strings.TrimSpace(s) != "" {
				return truncateWords(strings.TrimSpace(s), maxLength)
			}
		}
	}

	var parts []string
	for _, source := range []Metadata{d.Content, d.Structured} {
		keys := make([]string, 0, len(source))
		for k := range source {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s, ok := source[k].(string); ok && len(s) > 20 {
				parts = append(parts, strings.TrimSpace(s))
			}
		}
	}
	if len(parts) > 0 {
		return truncateWords(strings.Join(parts, " "), maxLength)
	}

	if strings.TrimSpace(d.Text) != "" {
		return truncateWords(strings.TrimSpace(d.Text), maxLength)
	}

	return noDescription
}

func truncateWords(s string, maxLength int) string {
	if utf8.RuneCountInString(s) <= maxLength {
		return s
	}
	cut := string([]rune(s)[:maxLength])
	if i := strings.LastIndexAny(cut, " \t\n"); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:") + "..."
}

// DocumentUpdate describes a partial document update. Nil fields stay untouched.
// With Merge the maps are shallow-merged with new keys winning, otherwise they replace.
type DocumentUpdate struct {
	Content    Metadata
	Structured Metadata
	Text       *string
	Metadata   Metadata
	Merge      bool
}

// Apply applies the update in memory, bumping version and metadata.updated_at.
func (u *DocumentUpdate) Apply(doc *Document, now time.Time) {
	doc.Content = u.apply(doc.Content, u.Content)
	doc.Structured = u.apply(doc.Structured, u.Structured)
	doc.Metadata = u.apply(doc.Metadata, u.Metadata)
	if u.Text != nil {
		doc.Text = *u.Text
	}
	doc.Version++
	doc.Metadata[MetadataUpdatedAt] = now.UTC().Format(time.RFC3339Nano)
	doc.UpdatedAt = now
}

func (u *DocumentUpdate) apply(current, update Metadata) Metadata {
	if update == nil {
		if current == nil {
			return Metadata{}
		}
		return current
	}
	if u.Merge {
		return current.Merge(update)
	}
	return update.Clone()
}

// DocumentFilter narrows SearchDocuments. Zero fields do not filter.
type DocumentFilter struct {
	EntityType string
	Tags       []string
	TextSearch string
	Limit      int
}

// Matches reports whether doc passes the filter.
// Tags match when any tag is shared, TextSearch is a case-insensitive name substring.
func (f *DocumentFilter) Matches(doc *Document) bool {
	if f == nil {
		return true
	}
	if f.EntityType != "" && doc.EntityType != f.EntityType {
		return false
	}
	if f.TextSearch != "" && !strings.Contains(strings.ToLower(doc.EntityName), strings.ToLower(f.TextSearch)) {
		return false
	}
	if len(f.Tags) > 0 {
		have := doc.Tags()
		for _, want := range f.Tags {
			for _, tag := range have {
				if tag == want {
					return true
				}
			}
		}
		return false
	}
	return true
}

// EffectiveLimit returns Limit or DefaultSearchLimit when unset.
func (f *DocumentFilter) EffectiveLimit() int {
	if f == nil || f.Limit <= 0 {
		return DefaultSearchLimit
	}
	return f.Limit
}
