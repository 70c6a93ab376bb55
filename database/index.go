package database

import (
	"context"
	"fmt"
	"time"

	"github.com/siherrmann/persona/helper"
)

// Vector index types supported by pgvector.
const (
	IndexTypeHNSW    = "hnsw"
	IndexTypeIVFFlat = "ivfflat"
)

// IndexParams tunes the vector index. Zero values use the pgvector defaults
// m=16, ef_construction=64 for HNSW and lists=100 for IVFFlat.
type IndexParams struct {
	M              int
	EfConstruction int
	Lists          int
}

// ChangeIndexType rebuilds the cosine index of entity_chunks as HNSW or IVFFlat.
func (h *ChunksDBHandler) ChangeIndexType(ctx context.Context, indexType string, params IndexParams) error {
	var createIndexSQL string
	switch indexType {
	case IndexTypeHNSW:
		m := params.M
		if m <= 0 {
			m = 16
		}
		efConstruction := params.EfConstruction
		if efConstruction <= 0 {
			efConstruction = 64
		}
		createIndexSQL = fmt.Sprintf(
			`CREATE INDEX idx_entity_chunks_embedding ON entity_chunks USING hnsw (embedding vector_cosine_ops) WITH (m = %d, ef_construction = %d);`,
			m, efConstruction,
		)
	case IndexTypeIVFFlat:
		lists := params.Lists
		if lists <= 0 {
			lists = 100
		}
		createIndexSQL = fmt.Sprintf(
			`CREATE INDEX idx_entity_chunks_embedding ON entity_chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d);`,
			lists,
		)
	default:
		return helper.NewError("change index type", helper.NewValidationError("unsupported index type: %s (use 'hnsw' or 'ivfflat')", indexType))
	}

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `DROP INDEX IF EXISTS idx_entity_chunks_embedding;`)
	if err != nil {
		return helper.NewError("drop index", err)
	}

	h.db.Logger.Info("Dropped existing vector index")

	_, err = h.db.Instance.ExecContext(ctx, createIndexSQL)
	if err != nil {
		return helper.NewError("create index", err)
	}

	h.db.Logger.Info("Created vector index", "type", indexType, "m", params.M, "ef_construction", params.EfConstruction, "lists", params.Lists)

	return nil
}

// IndexType returns the access method of the current vector index.
func (h *ChunksDBHandler) IndexType(ctx context.Context) (string, error) {
	var indexType string
	err := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT am.amname FROM pg_class c JOIN pg_am am ON am.oid = c.relam WHERE c.relname = 'idx_entity_chunks_embedding'`,
	).Scan(&indexType)
	if err != nil {
		return "", classify("index type", err)
	}
	return indexType, nil
}
