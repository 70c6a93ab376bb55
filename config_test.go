package persona

import (
	"log/slog"
	"testing"
	"time"

	"github.com/siherrmann/persona/core/pipeline"
	"github.com/siherrmann/persona/helper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearConfigEnvs(t *testing.T) {
	for _, key := range []string{
		"GRAPH_BACKEND", "DOCUMENT_BACKEND", "VECTOR_BACKEND", "SUMMARIZER",
		"EMBEDDING_DIM", "EMBEDDING_CACHE_SIZE", "EMBEDDING_CACHE_TTL", "BATCH_CONCURRENCY", "LOG_LEVEL",
		"OPENAI_API_KEY", "OPENAI_MODEL", "GEMINI_API_KEY", "GEMINI_MODEL",
	} {
		t.Setenv(key, "")
	}
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Run("Defaults use postgres everywhere", func(t *testing.T) {
		clearConfigEnvs(t)

		config, err := NewConfigFromEnv()
		require.NoError(t, err, "Expected no error reading the default configuration")
		assert.Equal(t, BackendPostgres, config.GraphBackend)
		assert.Equal(t, BackendPostgres, config.DocumentBackend)
		assert.Equal(t, BackendPostgres, config.VectorBackend)
		assert.Equal(t, SummarizerNone, config.Summarizer)
		assert.Equal(t, pipeline.DefaultEmbeddingDim, config.EmbeddingDim)
		assert.True(t, config.usesPostgres())
	})

	t.Run("Backends and pipeline settings are read", func(t *testing.T) {
		clearConfigEnvs(t)
		t.Setenv("GRAPH_BACKEND", "Neo4j")
		t.Setenv("DOCUMENT_BACKEND", "mongodb")
		t.Setenv("VECTOR_BACKEND", "qdrant")
		t.Setenv("SUMMARIZER", "openai")
		t.Setenv("OPENAI_API_KEY", "sk-test")
		t.Setenv("EMBEDDING_DIM", "768")
		t.Setenv("EMBEDDING_CACHE_TTL", "5m")
		t.Setenv("BATCH_CONCURRENCY", "8")
		t.Setenv("LOG_LEVEL", "debug")

		config, err := NewConfigFromEnv()
		require.NoError(t, err)
		assert.Equal(t, BackendNeo4j, config.GraphBackend, "Expected backend names to be case-insensitive")
		assert.Equal(t, BackendMongoDB, config.DocumentBackend)
		assert.Equal(t, BackendQdrant, config.VectorBackend)
		assert.Equal(t, "sk-test", config.SummarizerKey)
		assert.Equal(t, pipeline.DefaultOpenAIModel, config.SummarizerModel)
		assert.Equal(t, 768, config.EmbeddingDim)
		assert.Equal(t, 5*time.Minute, config.EmbeddingCacheTTL)
		assert.Equal(t, 8, config.BatchConcurrency)
		assert.Equal(t, slog.LevelDebug, config.LogLevel)
		assert.False(t, config.usesPostgres())
	})

	t.Run("Invalid values are rejected", func(t *testing.T) {
		for key, value := range map[string]string{
			"GRAPH_BACKEND":       "qdrant",
			"DOCUMENT_BACKEND":    "neo4j",
			"VECTOR_BACKEND":      "mongodb",
			"SUMMARIZER":          "claude",
			"EMBEDDING_DIM":       "many",
			"EMBEDDING_CACHE_TTL": "soon",
			"LOG_LEVEL":           "loud",
		} {
			clearConfigEnvs(t)
			t.Setenv(key, value)

			_, err := NewConfigFromEnv()
			assert.ErrorIs(t, err, helper.ErrValidation, "Expected %s=%s to be rejected", key, value)
		}
	})

	t.Run("Dimension must be positive", func(t *testing.T) {
		config := DefaultConfig()
		config.EmbeddingDim = 0
		assert.ErrorIs(t, config.Validate(), helper.ErrValidation)
	})

	t.Run("Nil configuration", func(t *testing.T) {
		var config *Config
		assert.Error(t, config.Validate())
	})
}
