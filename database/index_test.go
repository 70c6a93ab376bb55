package database

import (
	"context"
	"testing"

	"github.com/siherrmann/persona/helper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeIndexType(t *testing.T) {
	chunksDbHandler := newTestChunksDBHandler(t)
	ctx := context.Background()

	t.Run("Default index is HNSW", func(t *testing.T) {
		indexType, err := chunksDbHandler.IndexType(ctx)
		require.NoError(t, err)
		assert.Equal(t, IndexTypeHNSW, indexType)
	})

	t.Run("Change index to IVFFlat with default params", func(t *testing.T) {
		err := chunksDbHandler.ChangeIndexType(ctx, IndexTypeIVFFlat, IndexParams{})
		assert.NoError(t, err, "Expected ChangeIndexType to ivfflat to not return an error")

		indexType, err := chunksDbHandler.IndexType(ctx)
		require.NoError(t, err)
		assert.Equal(t, IndexTypeIVFFlat, indexType)
	})

	t.Run("Change index to IVFFlat with custom params", func(t *testing.T) {
		err := chunksDbHandler.ChangeIndexType(ctx, IndexTypeIVFFlat, IndexParams{Lists: 200})
		assert.NoError(t, err, "Expected ChangeIndexType to ivfflat with custom params to not return an error")
	})

	t.Run("Change index to HNSW with custom params", func(t *testing.T) {
		err := chunksDbHandler.ChangeIndexType(ctx, IndexTypeHNSW, IndexParams{M: 32, EfConstruction: 128})
		assert.NoError(t, err, "Expected ChangeIndexType to hnsw with custom params to not return an error")
	})

	t.Run("Change index with unsupported index type", func(t *testing.T) {
		err := chunksDbHandler.ChangeIndexType(ctx, "invalid", IndexParams{})
		assert.ErrorIs(t, err, helper.ErrValidation)
		assert.Contains(t, err.Error(), "unsupported index type", "Expected error message to mention unsupported index type")
	})

	t.Run("Change index back to HNSW for cleanup", func(t *testing.T) {
		err := chunksDbHandler.ChangeIndexType(ctx, IndexTypeHNSW, IndexParams{})
		assert.NoError(t, err, "Expected ChangeIndexType to hnsw for cleanup to not return an error")

		indexType, err := chunksDbHandler.IndexType(ctx)
		require.NoError(t, err)
		assert.Equal(t, IndexTypeHNSW, indexType)
	})
}
