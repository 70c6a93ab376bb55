package database

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/siherrmann/persona/helper"
	"github.com/siherrmann/persona/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDimension = 4

// axisEmbedder maps each known keyword onto its own axis, other texts onto the last axis.
func axisEmbedder(texts []string) ([][]float32, error) {
	axes := map[string]int{"kubernetes": 0, "cooking": 1, "music": 2}
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		vector := make([]float32, testDimension)
		matched := false
		for _, word := range strings.Fields(strings.ToLower(text)) {
			if axis, ok := axes[word]; ok {
				vector[axis]++
				matched = true
			}
		}
		if !matched {
			vector[testDimension-1] = 1
		}
		embeddings[i] = vector
	}
	return embeddings, nil
}

func newTestChunksDBHandler(t *testing.T) *ChunksDBHandler {
	database := initDB(t)
	chunksDbHandler, err := NewChunksDBHandler(database, testDimension, axisEmbedder, true)
	require.NoError(t, err, "Expected NewChunksDBHandler to not return an error")
	return chunksDbHandler
}

func TestChunksNewChunksDBHandler(t *testing.T) {
	database := initDB(t)

	t.Run("Valid call NewChunksDBHandler", func(t *testing.T) {
		chunksDbHandler, err := NewChunksDBHandler(database, testDimension, axisEmbedder, true)
		assert.NoError(t, err, "Expected NewChunksDBHandler to not return an error")
		require.NotNil(t, chunksDbHandler, "Expected NewChunksDBHandler to return a non-nil instance")
	})

	t.Run("Invalid call NewChunksDBHandler with nil database", func(t *testing.T) {
		_, err := NewChunksDBHandler(nil, testDimension, axisEmbedder, false)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "database connection is nil")
	})

	t.Run("Invalid call NewChunksDBHandler without embedder", func(t *testing.T) {
		_, err := NewChunksDBHandler(database, testDimension, nil, false)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "embed function is nil")
	})
}

func TestChunksAddAndGet(t *testing.T) {
	chunksDbHandler := newTestChunksDBHandler(t)
	ctx := context.Background()
	entityID := model.NewEntityID("Person")

	t.Run("Add chunks batch", func(t *testing.T) {
		ids, err := chunksDbHandler.AddChunksBatch(ctx, []*model.EmbeddingChunk{
			{EntityID: entityID, DocID: "1", ChunkType: model.ChunkTypeAttribute, AttributeName: "skills", Text: "Alice kubernetes", Metadata: model.Metadata{"source": "structured_data"}},
			{EntityID: entityID, DocID: "1", ChunkType: model.ChunkTypeGlobal, Text: "Alice (Person) kubernetes cooking"},
		})
		require.NoError(t, err, "Expected AddChunksBatch to not return an error")
		require.Len(t, ids, 2)
		assert.NotEmpty(t, ids[0], "Expected generated chunk ids")
		assert.NotEqual(t, ids[0], ids[1])
	})

	t.Run("Get entity chunks puts global first", func(t *testing.T) {
		chunks, err := chunksDbHandler.GetEntityChunks(ctx, entityID, nil)
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Equal(t, model.ChunkTypeGlobal, chunks[0].ChunkType)
		assert.Empty(t, chunks[0].AttributeName)
		assert.Equal(t, "skills", chunks[1].AttributeName)
		assert.Equal(t, "structured_data", chunks[1].Metadata["source"])
		assert.Equal(t, "1", chunks[1].DocID)
	})

	t.Run("Get entity chunks with filter", func(t *testing.T) {
		chunks, err := chunksDbHandler.GetEntityChunks(ctx, entityID, &model.ChunkFilter{ChunkType: model.ChunkTypeAttribute})
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, "skills", chunks[0].AttributeName)
	})

	t.Run("Upsert by chunk id", func(t *testing.T) {
		chunkID, err := chunksDbHandler.AddChunkVector(ctx, &model.EmbeddingChunk{ChunkID: "fixed-" + entityID, EntityID: entityID, ChunkType: model.ChunkTypeAttribute, AttributeName: "hobbies", Text: "music"})
		require.NoError(t, err)
		assert.Equal(t, "fixed-"+entityID, chunkID)

		_, err = chunksDbHandler.AddChunkVector(ctx, &model.EmbeddingChunk{ChunkID: "fixed-" + entityID, EntityID: entityID, ChunkType: model.ChunkTypeAttribute, AttributeName: "hobbies", Text: "cooking"})
		require.NoError(t, err)

		chunks, err := chunksDbHandler.GetEntityChunks(ctx, entityID, &model.ChunkFilter{AttributeName: "hobbies"})
		require.NoError(t, err)
		require.Len(t, chunks, 1, "Expected the chunk to be replaced")
		assert.Equal(t, "cooking", chunks[0].Text)
	})

	t.Run("Wrong dimension is rejected", func(t *testing.T) {
		database := initDB(t)
		wide, err := NewChunksDBHandler(database, testDimension, func(texts []string) ([][]float32, error) {
			return [][]float32{{1, 2, 3, 4, 5}}, nil
		}, false)
		require.NoError(t, err)

		_, err = wide.AddChunkVector(ctx, &model.EmbeddingChunk{EntityID: entityID, ChunkType: model.ChunkTypeGlobal, Text: "x"})
		assert.ErrorIs(t, err, helper.ErrValidation)
	})

	t.Run("Embedder errors are returned", func(t *testing.T) {
		database := initDB(t)
		failing, err := NewChunksDBHandler(database, testDimension, func(texts []string) ([][]float32, error) {
			return nil, errors.New("model offline")
		}, false)
		require.NoError(t, err)

		_, err = failing.AddChunkVector(ctx, &model.EmbeddingChunk{EntityID: entityID, ChunkType: model.ChunkTypeGlobal, Text: "x"})
		assert.ErrorContains(t, err, "model offline")
	})

	t.Run("Empty batch", func(t *testing.T) {
		ids, err := chunksDbHandler.AddChunksBatch(ctx, nil)
		assert.NoError(t, err)
		assert.Empty(t, ids)
	})
}

func TestChunksSearch(t *testing.T) {
	chunksDbHandler := newTestChunksDBHandler(t)
	ctx := context.Background()
	alice := model.NewEntityID("Person")
	bob := model.NewEntityID("Person")

	_, err := chunksDbHandler.AddChunksBatch(ctx, []*model.EmbeddingChunk{
		{EntityID: alice, ChunkType: model.ChunkTypeGlobal, Text: "kubernetes cooking"},
		{EntityID: alice, ChunkType: model.ChunkTypeAttribute, AttributeName: "skills", Text: "kubernetes"},
		{EntityID: bob, ChunkType: model.ChunkTypeGlobal, Text: "music"},
	})
	require.NoError(t, err)

	t.Run("Best chunk first", func(t *testing.T) {
		chunks, err := chunksDbHandler.SearchChunks(ctx, "kubernetes", &model.ChunkFilter{EntityID: alice}, 10, 0.5)
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Equal(t, "skills", chunks[0].AttributeName)
		assert.InDelta(t, 1.0, chunks[0].Score, 0.0001, "Expected identical direction to score 1")
		assert.InDelta(t, 0.7071, chunks[1].Score, 0.001)
	})

	t.Run("Threshold removes weak hits", func(t *testing.T) {
		chunks, err := chunksDbHandler.SearchChunks(ctx, "kubernetes", &model.ChunkFilter{EntityID: alice}, 10, 0.9)
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, "skills", chunks[0].AttributeName)
	})

	t.Run("Chunk type filter", func(t *testing.T) {
		chunks, err := chunksDbHandler.SearchChunks(ctx, "kubernetes", &model.ChunkFilter{EntityID: alice, ChunkType: model.ChunkTypeGlobal}, 10, 0.5)
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, model.ChunkTypeGlobal, chunks[0].ChunkType)
	})

	t.Run("Orthogonal entities are not returned", func(t *testing.T) {
		chunks, err := chunksDbHandler.SearchChunks(ctx, "music", &model.ChunkFilter{EntityID: alice}, 10, 0.5)
		require.NoError(t, err)
		assert.Empty(t, chunks)

		chunks, err = chunksDbHandler.SearchChunks(ctx, "music", &model.ChunkFilter{EntityID: bob}, 10, 0.5)
		require.NoError(t, err)
		assert.Len(t, chunks, 1)
	})

	t.Run("Limit caps the hits", func(t *testing.T) {
		chunks, err := chunksDbHandler.SearchChunks(ctx, "kubernetes", &model.ChunkFilter{EntityID: alice}, 1, 0.0)
		require.NoError(t, err)
		assert.Len(t, chunks, 1)
	})
}

func TestChunksDeleteAndInfo(t *testing.T) {
	chunksDbHandler := newTestChunksDBHandler(t)
	ctx := context.Background()
	entityID := model.NewEntityID("Person")

	_, err := chunksDbHandler.AddChunksBatch(ctx, []*model.EmbeddingChunk{
		{EntityID: entityID, ChunkType: model.ChunkTypeGlobal, Text: "music"},
		{EntityID: entityID, ChunkType: model.ChunkTypeAttribute, AttributeName: "skills", Text: "kubernetes"},
		{EntityID: entityID, ChunkType: model.ChunkTypeAttribute, AttributeName: "hobbies", Text: "cooking"},
	})
	require.NoError(t, err)

	t.Run("Collection info", func(t *testing.T) {
		info, err := chunksDbHandler.CollectionInfo(ctx)
		require.NoError(t, err)
		assert.Equal(t, ChunksTableName, info.Name)
		assert.Equal(t, testDimension, info.Dimension)
		assert.Equal(t, "Cosine", info.Distance)
		assert.GreaterOrEqual(t, info.VectorCount, 3)
	})

	t.Run("Delete with filter", func(t *testing.T) {
		deleted, err := chunksDbHandler.DeleteEntityChunks(ctx, entityID, &model.ChunkFilter{AttributeName: "hobbies"})
		require.NoError(t, err)
		assert.Equal(t, 1, deleted)
	})

	t.Run("Delete all chunks of an entity", func(t *testing.T) {
		deleted, err := chunksDbHandler.DeleteEntityChunks(ctx, entityID, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, deleted)

		chunks, err := chunksDbHandler.GetEntityChunks(ctx, entityID, nil)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})

	t.Run("Delete without chunks", func(t *testing.T) {
		deleted, err := chunksDbHandler.DeleteEntityChunks(ctx, entityID, nil)
		require.NoError(t, err)
		assert.Zero(t, deleted)
	})
}
