package mongodb

import (
	"testing"
	"time"

	"github.com/siherrmann/persona/helper"
	"github.com/siherrmann/persona/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestCheckKeys(t *testing.T) {
	t.Run("Plain keys are accepted", func(t *testing.T) {
		assert.NoError(t, checkKeys("content", model.Metadata{"bio": "x", "years_experience": 3}))
	})

	t.Run("Dotted and operator keys are rejected", func(t *testing.T) {
		assert.ErrorIs(t, checkKeys("content", model.Metadata{"a.b": 1}), helper.ErrValidation)
		assert.ErrorIs(t, checkKeys("content", model.Metadata{"$set": 1}), helper.ErrValidation)
		assert.ErrorIs(t, checkKeys("content", model.Metadata{"": 1}), helper.ErrValidation)
	})
}

func TestUpdateDocument(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	stamp := now.Format(time.RFC3339Nano)

	t.Run("Merge sets dotted paths", func(t *testing.T) {
		change, err := updateDocument(&model.DocumentUpdate{Content: model.Metadata{"bio": "new"}, Merge: true}, now)
		require.NoError(t, err)

		set := change["$set"].(bson.M)
		assert.Equal(t, "new", set["content.bio"])
		assert.Equal(t, stamp, set["metadata.updated_at"])
		assert.Equal(t, now, set["updated_at"])
		assert.NotContains(t, set, "structured", "Expected nil maps to stay untouched")
		assert.Equal(t, bson.M{"version": 1}, change["$inc"])
	})

	t.Run("Replace sets whole maps", func(t *testing.T) {
		text := "plain"
		change, err := updateDocument(&model.DocumentUpdate{
			Structured: model.Metadata{"title": "CTO"},
			Metadata:   model.Metadata{"tags": []any{"vip"}},
			Text:       &text,
		}, now)
		require.NoError(t, err)

		set := change["$set"].(bson.M)
		assert.Equal(t, bson.M{"title": "CTO"}, set["structured"])
		assert.Equal(t, bson.M{"tags": []any{"vip"}, "updated_at": stamp}, set["metadata"])
		assert.NotContains(t, set, "metadata.updated_at", "Expected no conflicting metadata paths")
		assert.Equal(t, "plain", set["text"])
	})

	t.Run("Invalid keys fail", func(t *testing.T) {
		_, err := updateDocument(&model.DocumentUpdate{Content: model.Metadata{"a.b": 1}, Merge: true}, now)
		assert.ErrorIs(t, err, helper.ErrValidation)
	})
}

func TestPlain(t *testing.T) {
	t.Run("Decoded containers become maps and slices", func(t *testing.T) {
		decoded := plainMap(bson.M{
			"skills": bson.A{"Go", bson.D{{Key: "level", Value: int32(3)}}},
			"links":  bson.M{"github": "alice"},
		})

		assert.Equal(t, model.Metadata{
			"skills": []any{"Go", map[string]any{"level": int64(3)}},
			"links":  map[string]any{"github": "alice"},
		}, decoded)
	})
}

func TestConfig(t *testing.T) {
	t.Run("Missing uri is invalid", func(t *testing.T) {
		t.Setenv("MONGODB_URI", "")
		_, err := NewConfigFromEnv()
		assert.ErrorIs(t, err, helper.ErrValidation)
	})

	t.Run("Defaults", func(t *testing.T) {
		t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
		t.Setenv("MONGODB_DATABASE", "")
		t.Setenv("MONGODB_COLLECTION", "")
		config, err := NewConfigFromEnv()
		require.NoError(t, err)
		assert.Equal(t, DefaultDatabase, config.Database)
		assert.Equal(t, DefaultCollection, config.Collection)
	})
}
