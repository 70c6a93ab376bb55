package persona

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/siherrmann/persona/database"
	"github.com/siherrmann/persona/database/memory"
	"github.com/siherrmann/persona/helper"
	"github.com/siherrmann/persona/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig(dimension int) *Config {
	config := DefaultConfig()
	config.GraphBackend = BackendMemory
	config.DocumentBackend = BackendMemory
	config.VectorBackend = BackendMemory
	config.EmbeddingDim = dimension
	return config
}

func testLogger() *slog.Logger {
	return helper.NewLogger(os.Stdout, slog.LevelWarn)
}

func aliceInput() *model.NewEntity {
	return &model.NewEntity{
		Type: "Person",
		Name: "Alice",
		Structured: model.Metadata{
			"title":  "Senior Engineer",
			"skills": []any{"Python", "Docker"},
		},
		Text: "Alice is a senior engineer.",
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("Memory backends", func(t *testing.T) {
		p, err := Open(ctx, memoryConfig(4096), WithEmbedder(memory.TokenEmbedder(4096)), WithLogger(testLogger()))
		require.NoError(t, err, "Expected Open to not return an error")
		require.NotNil(t, p.EmbeddingPipeline, "Expected the pipeline to be wired")
		assert.IsType(t, &memory.GraphStore{}, p.Graph)
		assert.IsType(t, &memory.DocumentStore{}, p.Documents)
		assert.IsType(t, &memory.VectorStore{}, p.Vectors)
		assert.Nil(t, p.DB, "Expected no Postgres connection without a postgres backend")

		assert.NoError(t, p.Close(ctx))
	})

	t.Run("Invalid configuration", func(t *testing.T) {
		config := memoryConfig(4096)
		config.VectorBackend = BackendNeo4j
		_, err := Open(ctx, config, WithEmbedder(memory.TokenEmbedder(4096)))
		assert.ErrorIs(t, err, helper.ErrValidation)
	})

	t.Run("Missing neo4j uri", func(t *testing.T) {
		t.Setenv("NEO4J_URI", "")
		config := memoryConfig(4096)
		config.GraphBackend = BackendNeo4j
		_, err := Open(ctx, config, WithEmbedder(memory.TokenEmbedder(4096)), WithLogger(testLogger()))
		assert.ErrorIs(t, err, helper.ErrValidation)
	})

	t.Run("Remote backends connect lazily", func(t *testing.T) {
		t.Setenv("NEO4J_URI", "bolt://127.0.0.1:1")
		t.Setenv("MONGODB_URI", "mongodb://127.0.0.1:1")
		t.Setenv("QDRANT_URL", "http://127.0.0.1:1")
		config := memoryConfig(8)
		config.GraphBackend = BackendNeo4j
		config.DocumentBackend = BackendMongoDB
		config.VectorBackend = BackendQdrant

		p, err := Open(ctx, config, WithEmbedder(memory.TokenEmbedder(8)), WithLogger(testLogger()))
		require.NoError(t, err, "Expected no connection attempt on Open")
		assert.NoError(t, p.Close(ctx))
	})
}

func TestPersonaMemory(t *testing.T) {
	ctx := context.Background()
	p, err := Open(ctx, memoryConfig(4096), WithEmbedder(memory.TokenEmbedder(4096)), WithLogger(testLogger()))
	require.NoError(t, err)
	defer p.Close(ctx)

	t.Run("Add, search and delete an entity", func(t *testing.T) {
		entityID, err := p.AddNewEntity(ctx, aliceInput())
		require.NoError(t, err, "Expected no error adding entity")

		matches, err := p.SearchSimilarEntities(ctx, "Python Docker", model.SearchOptions{Limit: 5, ScoreThreshold: 0.1})
		require.NoError(t, err)
		require.Len(t, matches, 1, "Expected Alice exactly once")
		assert.Equal(t, entityID, matches[0].EntityID)
		assert.Equal(t, "Alice", matches[0].EntityName)

		result, err := p.DeleteEntity(ctx, entityID)
		require.NoError(t, err)
		assert.True(t, result.GraphDeleted)
		assert.True(t, result.DocumentDeleted)
		assert.Equal(t, 3, result.ChunksDeleted)
	})

	t.Run("Index type needs postgres", func(t *testing.T) {
		err := p.ChangeIndexType(ctx, database.IndexTypeIVFFlat, database.IndexParams{})
		assert.ErrorIs(t, err, helper.ErrValidation)
	})
}

func TestPersonaPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping postgres integration test in short mode")
	}
	ctx := context.Background()
	const dimension = 256

	helper.SetTestDatabaseConfigEnvs(t, dbPort)
	config := DefaultConfig()
	config.EmbeddingDim = dimension

	p, err := Open(ctx, config, WithEmbedder(memory.TokenEmbedder(dimension)), WithLogger(testLogger()))
	require.NoError(t, err, "Expected Open to not return an error")
	defer func() {
		assert.NoError(t, p.Close(ctx), "Expected Close to not return an error")
	}()
	require.NotNil(t, p.DB, "Expected a Postgres connection")
	assert.IsType(t, &database.GraphDBHandler{}, p.Graph)
	assert.IsType(t, &database.DocumentsDBHandler{}, p.Documents)
	assert.IsType(t, &database.ChunksDBHandler{}, p.Vectors)

	bobID, err := p.AddNewEntity(ctx, &model.NewEntity{Type: "Person", Name: "Bob", Structured: model.Metadata{"title": "Designer"}})
	require.NoError(t, err)

	t.Run("Alice end to end", func(t *testing.T) {
		input := aliceInput()
		input.Relationships = []*model.Relationship{{TargetID: bobID, Type: "knows"}}

		aliceID, err := p.AddNewEntity(ctx, input)
		require.NoError(t, err, "Expected no error adding entity")

		info, err := p.GetEntityEmbeddingsInfo(ctx, aliceID)
		require.NoError(t, err)
		assert.Equal(t, 1, info.GlobalChunks)
		assert.Equal(t, 2, info.AttributeChunks)

		entity, err := p.Graph.GetEntity(ctx, aliceID)
		require.NoError(t, err)
		assert.True(t, entity.EmbeddingsGenerated(), "Expected entity to be marked as indexed")

		neighbors, err := p.Graph.GetNeighbors(ctx, aliceID)
		require.NoError(t, err)
		require.Len(t, neighbors, 1)
		assert.Equal(t, "KNOWS", neighbors[0].Relationship.Type)

		nodes, err := p.FetchEntityContext(ctx, aliceID, 1)
		require.NoError(t, err)
		assert.Len(t, nodes, 2, "Expected Alice and Bob")

		matches, err := p.SearchSimilarEntities(ctx, "Python Docker", model.SearchOptions{Limit: 5, ScoreThreshold: 0.1})
		require.NoError(t, err)
		require.NotEmpty(t, matches)
		assert.Equal(t, aliceID, matches[0].EntityID, "Expected Alice to rank first")

		result, err := p.DeleteEntity(ctx, aliceID)
		require.NoError(t, err)
		assert.Equal(t, 3, result.ChunksDeleted)

		_, err = p.Documents.GetDocument(ctx, aliceID)
		assert.ErrorIs(t, err, helper.ErrNotFound)
	})

	t.Run("Change index type", func(t *testing.T) {
		require.NoError(t, p.ChangeIndexType(ctx, database.IndexTypeIVFFlat, database.IndexParams{Lists: 10}))
		indexType, err := p.Vectors.(*database.ChunksDBHandler).IndexType(ctx)
		require.NoError(t, err)
		assert.Equal(t, database.IndexTypeIVFFlat, indexType)

		require.NoError(t, p.ChangeIndexType(ctx, database.IndexTypeHNSW, database.IndexParams{}))
	})
}
