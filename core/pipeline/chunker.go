package pipeline

import (
	"sort"
	"strings"

	"github.com/siherrmann/persona/model"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	sourceGlobalSummary  = "global_summary"
	sourceStructuredData = "structured_data"

	minContentFieldLength = 10
)

// AttributeGroup is a named set of attribute synonyms embedded together.
type AttributeGroup struct {
	Name       string
	Attributes []string
}

// AttributeGroups is the ordered grouping table used for attribute chunks.
var AttributeGroups = []AttributeGroup{
	{Name: "identity", Attributes: []string{"name", "full_name", "first_name", "last_name", "title", "role"}},
	{Name: "skills", Attributes: []string{"skills", "expertise", "technologies", "tools", "languages"}},
	{Name: "experience", Attributes: []string{"experience", "years_experience", "positions", "roles"}},
	{Name: "education", Attributes: []string{"education", "degrees", "certifications", "qualifications"}},
	{Name: "location", Attributes: []string{"location", "city", "country", "region", "address"}},
	{Name: "contact", Attributes: []string{"email", "phone", "website", "linkedin", "github"}},
	{Name: "organization", Attributes: []string{"company", "organization", "employer", "team", "department"}},
	{Name: "projects", Attributes: []string{"projects", "portfolio", "achievements", "contributions"}},
}

// GroupOf returns the group claiming attribute, or "" when it is ungrouped.
func GroupOf(attribute string) string {
	for _, group := range AttributeGroups {
		for _, a := range group.Attributes {
			if a == attribute {
				return group.Name
			}
		}
	}
	return ""
}

// FormatLabel turns an attribute key into a display label: "years_experience" -> "Years Experience".
func FormatLabel(key string) string {
	return cases.Title(language.Und).String(strings.ReplaceAll(key, "_", " "))
}

// GenerateAllChunks builds the global and attribute chunks of a document.
func GenerateAllChunks(entityID string, doc *model.Document, opts model.ChunkOptions) ([]*model.EmbeddingChunk, error) {
	var chunks []*model.EmbeddingChunk

	if opts.IncludeGlobal {
		global, err := CreateGlobalChunk(entityID, doc.ID, doc, opts.Summary)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, global)
	}

	if opts.IncludeAttributes && len(doc.Structured) > 0 {
		attributeChunks, err := CreateAttributeChunks(entityID, doc.ID, doc.Structured, entityName(doc), doc.EntityType, opts.GroupAttributes)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, attributeChunks...)
	}

	return chunks, nil
}

// CreateGlobalChunk builds the chunk representing the whole entity.
// Without a summary the text is "Name (Type)", the narrative text, the
// structured data and long content strings, one per line.
func CreateGlobalChunk(entityID, docID string, doc *model.Document, summary string) (*model.EmbeddingChunk, error) {
	text := strings.TrimSpace(summary)
	if text == "" {
		parts := []string{entityName(doc) + " (" + entityType(doc) + ")"}

		if strings.TrimSpace(doc.Text) != "" {
			parts = append(parts, doc.Text)
		}

		attrs, err := model.ParseAttributes(doc.Structured)
		if err != nil {
			return nil, err
		}
		if formatted := formatStructuredData(attrs); formatted != "" {
			parts = append(parts, formatted)
		}

		for _, key := range sortedKeys(doc.Content) {
			if s, ok := doc.Content[key].(string); ok && len(s) > minContentFieldLength {
				parts = append(parts, FormatLabel(key)+": "+s)
			}
		}

		text = strings.Join(parts, "\n")
	}

	return &model.EmbeddingChunk{
		EntityID:  entityID,
		DocID:     docID,
		ChunkType: model.ChunkTypeGlobal,
		Text:      text,
		Metadata: model.Metadata{
			"entity_name": doc.EntityName,
			"entity_type": doc.EntityType,
			"source":      sourceGlobalSummary,
		},
	}, nil
}

// CreateAttributeChunks builds one chunk per populated attribute group and one
// per ungrouped attribute. Without grouping every attribute gets its own chunk.
// Empty values never produce a chunk.
func CreateAttributeChunks(entityID, docID string, structured model.Metadata, name, entityType string, groupAttributes bool) ([]*model.EmbeddingChunk, error) {
	attrs, err := model.ParseAttributes(structured)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = "Unknown"
	}

	var chunks []*model.EmbeddingChunk
	claimed := map[string]bool{}

	if groupAttributes {
		for _, group := range AttributeGroups {
			var members []string
			lines := []string{name + " - " + FormatLabel(group.Name) + ":"}
			for _, attr := range group.Attributes {
				value, ok := attrs[attr]
				if !ok {
					continue
				}
				claimed[attr] = true
				if value.IsEmpty() {
					continue
				}
				members = append(members, attr)
				lines = append(lines, FormatLabel(attr)+": "+value.String())
			}
			if len(members) == 0 {
				continue
			}

			chunks = append(chunks, &model.EmbeddingChunk{
				EntityID:      entityID,
				DocID:         docID,
				ChunkType:     model.ChunkTypeAttribute,
				AttributeName: group.Name,
				Text:          strings.Join(lines, "\n"),
				Metadata: model.Metadata{
					"entity_name":     name,
					"entity_type":     entityType,
					"attribute_group": group.Name,
					"attributes":      members,
					"source":          sourceStructuredData,
				},
			})
		}
	}

	for _, attr := range attrs.Keys() {
		value := attrs[attr]
		if claimed[attr] || value.IsEmpty() {
			continue
		}

		chunks = append(chunks, &model.EmbeddingChunk{
			EntityID:      entityID,
			DocID:         docID,
			ChunkType:     model.ChunkTypeAttribute,
			AttributeName: attr,
			Text:          name + " - " + FormatLabel(attr) + ": " + value.String(),
			Metadata: model.Metadata{
				"entity_name":    name,
				"entity_type":    entityType,
				"attribute_name": attr,
				"source":         sourceStructuredData,
			},
		})
	}

	return chunks, nil
}

func formatStructuredData(attrs model.Attributes) string {
	var lines []string
	for _, key := range attrs.Keys() {
		value := attrs[key]
		if value.IsEmpty() {
			continue
		}
		label := FormatLabel(key)
		if value.Kind == model.KindMap {
			for _, sub := range value.Keys() {
				if value.Map[sub].IsEmpty() {
					continue
				}
				lines = append(lines, label+" - "+sub+": "+value.Map[sub].String())
			}
			continue
		}
		lines = append(lines, label+": "+value.String())
	}
	return strings.Join(lines, "\n")
}

func entityName(doc *model.Document) string {
	if doc.EntityName == "" {
		return "Unknown"
	}
	return doc.EntityName
}

func entityType(doc *model.Document) string {
	if doc.EntityType == "" {
		return "Entity"
	}
	return doc.EntityType
}

func sortedKeys(m model.Metadata) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
