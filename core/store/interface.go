package store

import (
	"context"

	"github.com/siherrmann/persona/model"
)

// EmbedFunc embeds a batch of texts, returning one vector per text in input order.
type EmbedFunc func(texts []string) ([][]float32, error)

// SummarizeFunc turns a prompt into a short summary of at most maxTokens tokens.
type SummarizeFunc func(ctx context.Context, prompt string, maxTokens int) (string, error)

// GraphStore owns entity identity and typed relationships.
// All writes merge on identity and are safe to repeat.
type GraphStore interface {
	// AddEntity creates or updates the entity, refreshing name and type and
	// merging properties. Properties not passed are kept.
	AddEntity(ctx context.Context, entityID, entityType, name string, properties model.Metadata) (*model.Entity, error)
	// AddRelationship creates or updates the (source, target, type) edge.
	// It fails with helper.ErrNotFound when an endpoint does not exist.
	AddRelationship(ctx context.Context, rel *model.Relationship) (*model.Relationship, error)
	GetEntity(ctx context.Context, entityID string) (*model.Entity, error)
	// GetNeighbors returns adjacent entities in both directions.
	GetNeighbors(ctx context.Context, entityID string) ([]*model.Neighbor, error)
	// DeleteEntity removes the entity and every incident relationship.
	DeleteEntity(ctx context.Context, entityID string) error
	Close(ctx context.Context) error
}

// DocumentStore owns the versioned content of entities, unique by entity id.
type DocumentStore interface {
	// CreateDocument fails with helper.ErrAlreadyExists on a duplicate entity id.
	CreateDocument(ctx context.Context, doc *model.Document) (string, error)
	GetDocument(ctx context.Context, entityID string) (*model.Document, error)
	// UpdateDocument returns false when the document does not exist.
	UpdateDocument(ctx context.Context, entityID string, update *model.DocumentUpdate) (bool, error)
	DeleteDocument(ctx context.Context, entityID string) (bool, error)
	SearchDocuments(ctx context.Context, filter *model.DocumentFilter) ([]*model.Document, error)
	// ListEntityIDs lists every entity id, optionally restricted to one type.
	ListEntityIDs(ctx context.Context, entityType string) ([]string, error)
	Close(ctx context.Context) error
}

// VectorStore owns chunk embeddings and cosine similarity search.
type VectorStore interface {
	AddChunkVector(ctx context.Context, chunk *model.EmbeddingChunk) (string, error)
	// AddChunksBatch embeds all texts in one call and upserts by chunk id.
	AddChunksBatch(ctx context.Context, chunks []*model.EmbeddingChunk) ([]string, error)
	// SearchChunks returns chunks with a similarity of at least threshold, best first.
	// The threshold is used as given. Callers wanting 0.5 use model.DefaultSearchOptions.
	SearchChunks(ctx context.Context, query string, filter *model.ChunkFilter, limit int, threshold float64) ([]*model.EmbeddingChunk, error)
	GetEntityChunks(ctx context.Context, entityID string, filter *model.ChunkFilter) ([]*model.EmbeddingChunk, error)
	DeleteEntityChunks(ctx context.Context, entityID string, filter *model.ChunkFilter) (int, error)
	CollectionInfo(ctx context.Context) (*model.CollectionInfo, error)
	Close(ctx context.Context) error
}

// Store names used in error reports.
const (
	NameGraph    = "graph"
	NameDocument = "document"
	NameVector   = "vector"
)
