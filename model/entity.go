package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// PropertyEmbeddingsGenerated marks an entity whose chunks were indexed.
	PropertyEmbeddingsGenerated = "embeddings_generated"
	// PropertyEmbeddingChunkCount holds the chunk count of the last indexing run.
	PropertyEmbeddingChunkCount = "embedding_chunk_count"
)

// Entity is a canonical node of the knowledge base (person, organization, ...).
// EntityID is the join key across the graph, document and vector stores.
type Entity struct {
	EntityID   string    `json:"entity_id"`
	Type       string    `json:"entity_type"`
	Name       string    `json:"name"`
	Properties Metadata  `json:"properties,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewEntityID mints a namespaced id of the form "<type>:<uuid>".
func NewEntityID(entityType string) string {
	return strings.ToLower(strings.TrimSpace(entityType)) + ":" + uuid.NewString()
}

// EntityTypeFromID returns the namespace part of an entity id.
func EntityTypeFromID(entityID string) string {
	prefix, _, found := strings.Cut(entityID, ":")
	if !found {
		return ""
	}
	return prefix
}

// EmbeddingsGenerated reports whether the entity was marked as indexed.
func (e *Entity) EmbeddingsGenerated() bool {
	v, _ := e.Properties[PropertyEmbeddingsGenerated].(bool)
	return v
}
