package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/persona/core/store"
	"github.com/siherrmann/persona/helper"
	"github.com/siherrmann/persona/model"
	loadSql "github.com/siherrmann/persona/sql"
)

// ChunksTableName is the collection name reported by CollectionInfo.
const ChunksTableName = "entity_chunks"

// ChunksDBHandler stores chunk embeddings in a pgvector column.
// It implements store.VectorStore.
type ChunksDBHandler struct {
	db        *helper.Database
	dimension int
	embed     store.EmbedFunc
}

// NewChunksDBHandler creates a new chunks database handler.
// It loads the chunk SQL functions and creates the table with a vector column
// of the given dimension. Texts are embedded with embed.
// If force is true, it will reload the SQL functions even if they already exist.
func NewChunksDBHandler(db *helper.Database, dimension int, embed store.EmbedFunc, force bool) (*ChunksDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}
	if embed == nil {
		return nil, helper.NewError("embedder validation", fmt.Errorf("embed function is nil"))
	}
	if dimension <= 0 {
		return nil, helper.NewValidationError("dimension must be positive, got %d", dimension)
	}

	chunksDbHandler := &ChunksDBHandler{
		db:        db,
		dimension: dimension,
		embed:     embed,
	}

	err := loadSql.LoadEntityChunksSql(chunksDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load entity chunks sql", err)
	}

	err = chunksDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ChunksDBHandler")

	return chunksDbHandler, nil
}

// CreateTable creates the 'entity_chunks' table in the database.
// If the table already exists, it does not create it again.
// It also creates the entity and HNSW cosine indexes.
func (h *ChunksDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_entity_chunks($1);`, h.dimension)
	if err != nil {
		return helper.NewError("init entity chunks", err)
	}

	h.db.Logger.Info("Checked/created table entity_chunks")

	return nil
}

// AddChunkVector embeds and upserts a single chunk.
func (h *ChunksDBHandler) AddChunkVector(ctx context.Context, chunk *model.EmbeddingChunk) (string, error) {
	ids, err := h.AddChunksBatch(ctx, []*model.EmbeddingChunk{chunk})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// AddChunksBatch embeds all texts in one call and upserts the chunks in one transaction.
func (h *ChunksDBHandler) AddChunksBatch(ctx context.Context, chunks []*model.EmbeddingChunk) ([]string, error) {
	if len(chunks) == 0 {
		return []string{}, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	embeddings, err := h.embed(texts)
	if err != nil {
		return nil, helper.NewError("embed chunks", err)
	}
	if len(embeddings) != len(chunks) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(chunks), len(embeddings))
	}
	for _, embedding := range embeddings {
		if len(embedding) != h.dimension {
			return nil, helper.NewValidationError("embedding has dimension %d, collection expects %d", len(embedding), h.dimension)
		}
	}

	tx, err := h.db.Instance.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	ids := make([]string, len(chunks))
	for i, chunk := range chunks {
		chunkID := chunk.ChunkID
		if chunkID == "" {
			chunkID = uuid.NewString()
		}
		metadata := chunk.Metadata
		if metadata == nil {
			metadata = model.Metadata{}
		}

		err := tx.QueryRowContext(
			ctx,
			`SELECT * FROM upsert_entity_chunk($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			chunkID,
			chunk.EntityID,
			chunk.DocID,
			string(chunk.ChunkType),
			chunk.AttributeName,
			chunk.Text,
			metadata,
			pgvector.NewVector(embeddings[i]),
			now,
		).Scan(&ids[i])
		if err != nil {
			return nil, classify("upsert chunk", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, classify("commit", err)
	}

	return ids, nil
}

// SearchChunks embeds the query and returns chunks with a cosine similarity
// of at least threshold, best first.
func (h *ChunksDBHandler) SearchChunks(ctx context.Context, query string, filter *model.ChunkFilter, limit int, threshold float64) ([]*model.EmbeddingChunk, error) {
	if limit <= 0 {
		limit = model.DefaultSearchLimitEntities
	}

	embeddings, err := h.embed([]string{query})
	if err != nil {
		return nil, helper.NewError("embed query", err)
	}
	if len(embeddings) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(embeddings))
	}

	entityID, chunkType, attributeName := filterParams(filter)
	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM search_entity_chunks($1, $2, $3, $4, $5, $6)`,
		pgvector.NewVector(embeddings[0]),
		entityID,
		chunkType,
		attributeName,
		limit,
		threshold,
	)
	if err != nil {
		return nil, classify("query", err)
	}
	defer rows.Close()

	chunks := []*model.EmbeddingChunk{}
	for rows.Next() {
		chunk := &model.EmbeddingChunk{}
		var chunkTypeValue string
		err := rows.Scan(
			&chunk.ChunkID,
			&chunk.EntityID,
			&chunk.DocID,
			&chunkTypeValue,
			&chunk.AttributeName,
			&chunk.Text,
			&chunk.Metadata,
			&chunk.CreatedAt,
			&chunk.Score,
		)
		if err != nil {
			return nil, classify("scan", err)
		}
		chunk.ChunkType = model.ChunkType(chunkTypeValue)
		chunks = append(chunks, chunk)
	}

	if err = rows.Err(); err != nil {
		return nil, classify("rows error", err)
	}

	return chunks, nil
}

// GetEntityChunks returns the chunks of an entity, global chunks first.
func (h *ChunksDBHandler) GetEntityChunks(ctx context.Context, entityID string, filter *model.ChunkFilter) ([]*model.EmbeddingChunk, error) {
	_, chunkType, attributeName := filterParams(filter)
	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM select_entity_chunks($1, $2, $3)`,
		entityID,
		chunkType,
		attributeName,
	)
	if err != nil {
		return nil, classify("query", err)
	}
	defer rows.Close()

	chunks := []*model.EmbeddingChunk{}
	for rows.Next() {
		chunk := &model.EmbeddingChunk{}
		var chunkTypeValue string
		err := rows.Scan(
			&chunk.ChunkID,
			&chunk.EntityID,
			&chunk.DocID,
			&chunkTypeValue,
			&chunk.AttributeName,
			&chunk.Text,
			&chunk.Metadata,
			&chunk.CreatedAt,
		)
		if err != nil {
			return nil, classify("scan", err)
		}
		chunk.ChunkType = model.ChunkType(chunkTypeValue)
		chunks = append(chunks, chunk)
	}

	if err = rows.Err(); err != nil {
		return nil, classify("rows error", err)
	}

	return chunks, nil
}

// DeleteEntityChunks deletes the matching chunks of an entity and returns how many were removed.
func (h *ChunksDBHandler) DeleteEntityChunks(ctx context.Context, entityID string, filter *model.ChunkFilter) (int, error) {
	_, chunkType, attributeName := filterParams(filter)

	var deleted int
	err := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT delete_entity_chunks($1, $2, $3)`,
		entityID,
		chunkType,
		attributeName,
	).Scan(&deleted)
	if err != nil {
		return 0, classify("delete chunks", err)
	}

	return deleted, nil
}

// CollectionInfo reports the chunk count and the dimension of the vector column.
func (h *ChunksDBHandler) CollectionInfo(ctx context.Context) (*model.CollectionInfo, error) {
	info := &model.CollectionInfo{
		Name:     ChunksTableName,
		Distance: "Cosine",
	}

	err := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM entity_chunks_info()`,
	).Scan(&info.VectorCount, &info.Dimension)
	if err != nil {
		return nil, classify("collection info", err)
	}

	return info, nil
}

// Close is a no-op, the connection pool is owned by the caller.
func (h *ChunksDBHandler) Close(ctx context.Context) error {
	return nil
}

func filterParams(filter *model.ChunkFilter) (entityID, chunkType, attributeName string) {
	if filter == nil {
		return "", "", ""
	}
	return filter.EntityID, string(filter.ChunkType), filter.AttributeName
}
