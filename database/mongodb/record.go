package mongodb

import (
	"strings"
	"time"

	"github.com/siherrmann/persona/helper"
	"github.com/siherrmann/persona/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// documentRecord is the stored form of a model.Document.
type documentRecord struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	EntityID   string             `bson:"entity_id"`
	EntityType string             `bson:"entity_type"`
	EntityName string             `bson:"entity_name"`
	Structured bson.M             `bson:"structured"`
	Content    bson.M             `bson:"content"`
	Text       string             `bson:"text"`
	Metadata   bson.M             `bson:"metadata"`
	Version    int                `bson:"version"`
	CreatedAt  time.Time          `bson:"created_at"`
	UpdatedAt  time.Time          `bson:"updated_at"`
}

func newRecord(doc *model.Document) *documentRecord {
	return &documentRecord{
		EntityID:   doc.EntityID,
		EntityType: doc.EntityType,
		EntityName: doc.EntityName,
		Structured: bson.M(doc.Structured),
		Content:    bson.M(doc.Content),
		Text:       doc.Text,
		Metadata:   bson.M(doc.Metadata),
		Version:    doc.Version,
		CreatedAt:  doc.CreatedAt.UTC(),
		UpdatedAt:  doc.UpdatedAt.UTC(),
	}
}

func (r *documentRecord) document() *model.Document {
	return &model.Document{
		ID:         r.ID.Hex(),
		EntityID:   r.EntityID,
		EntityType: r.EntityType,
		EntityName: r.EntityName,
		Structured: plainMap(r.Structured),
		Content:    plainMap(r.Content),
		Text:       r.Text,
		Metadata:   plainMap(r.Metadata),
		Version:    r.Version,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

// plainMap converts decoded BSON containers back to maps and slices.
func plainMap(m bson.M) model.Metadata {
	out := make(model.Metadata, len(m))
	for k, v := range m {
		out[k] = plain(v)
	}
	return out
}

func plain(v any) any {
	switch value := v.(type) {
	case bson.M:
		return map[string]any(plainMap(value))
	case map[string]any:
		return map[string]any(plainMap(value))
	case bson.D:
		out := make(map[string]any, len(value))
		for _, e := range value {
			out[e.Key] = plain(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(value))
		for i, e := range value {
			out[i] = plain(e)
		}
		return out
	case int32:
		return int64(value)
	case primitive.DateTime:
		return value.Time().UTC()
	default:
		return v
	}
}

// checkKeys rejects keys MongoDB cannot address in an update path.
func checkKeys(field string, m model.Metadata) error {
	for k := range m {
		if k == "" || strings.Contains(k, ".") || strings.HasPrefix(k, "$") {
			return helper.NewValidationError("%s key %q must not be empty, contain '.' or start with '$'", field, k)
		}
	}
	return nil
}

// updateDocument builds the update for entityID. Merging sets dotted paths,
// replacing sets the whole map.
func updateDocument(update *model.DocumentUpdate, now time.Time) (bson.M, error) {
	set := bson.M{}
	stamp := now.UTC().Format(time.RFC3339Nano)

	for _, field := range []struct {
		name  string
		value model.Metadata
	}{
		{"content", update.Content},
		{"structured", update.Structured},
		{"metadata", update.Metadata},
	} {
		if field.value == nil {
			continue
		}
		if err := checkKeys(field.name, field.value); err != nil {
			return nil, err
		}
		if update.Merge {
			for k, v := range field.value {
				set[field.name+"."+k] = v
			}
			continue
		}
		replacement := bson.M(field.value.Clone())
		if field.name == "metadata" {
			replacement[model.MetadataUpdatedAt] = stamp
		}
		set[field.name] = replacement
	}

	if update.Text != nil {
		set["text"] = *update.Text
	}
	if update.Metadata == nil || update.Merge {
		set["metadata."+model.MetadataUpdatedAt] = stamp
	}
	set["updated_at"] = now.UTC()

	return bson.M{
		"$set": set,
		"$inc": bson.M{"version": 1},
	}, nil
}
