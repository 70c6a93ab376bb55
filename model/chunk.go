package model

import (
	"strings"
	"time"
)

// ChunkType tells global entity chunks from attribute chunks.
type ChunkType string

const (
	ChunkTypeGlobal    ChunkType = "global"
	ChunkTypeAttribute ChunkType = "attribute"
)

// Payload keys of a persisted chunk.
const (
	PayloadChunkID       = "chunk_id"
	PayloadEntityID      = "entity_id"
	PayloadDocID         = "doc_id"
	PayloadChunkType     = "chunk_type"
	PayloadAttributeName = "attribute_name"
	PayloadText          = "text"
	PayloadMetadata      = "metadata"
	PayloadCreatedAt     = "created_at"
)

// EmbeddingChunk is a unit of embeddable text derived from a document.
// Chunks are disposable and can always be regenerated from the document.
type EmbeddingChunk struct {
	ChunkID       string    `json:"chunk_id"`
	EntityID      string    `json:"entity_id"`
	DocID         string    `json:"doc_id"`
	ChunkType     ChunkType `json:"chunk_type"`
	AttributeName string    `json:"attribute_name,omitempty"`
	Text          string    `json:"text"`
	Metadata      Metadata  `json:"metadata,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	// Results
	Embedding []float32 `json:"embedding,omitempty"`
	Score     float64   `json:"score,omitempty"`
}

// Payload flattens the chunk into the record stored next to its vector.
func (c *EmbeddingChunk) Payload() Metadata {
	payload := Metadata{
		PayloadChunkID:   c.ChunkID,
		PayloadEntityID:  c.EntityID,
		PayloadDocID:     c.DocID,
		PayloadChunkType: string(c.ChunkType),
		PayloadText:      c.Text,
		PayloadMetadata:  c.Metadata.Clone(),
		PayloadCreatedAt: c.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if c.AttributeName != "" {
		payload[PayloadAttributeName] = c.AttributeName
	}
	return payload
}

// ChunkFromPayload rebuilds a chunk from a stored payload.
func ChunkFromPayload(payload Metadata) *EmbeddingChunk {
	chunk := &EmbeddingChunk{
		ChunkID:       payload.String(PayloadChunkID),
		EntityID:      payload.String(PayloadEntityID),
		DocID:         payload.String(PayloadDocID),
		ChunkType:     ChunkType(payload.String(PayloadChunkType)),
		AttributeName: payload.String(PayloadAttributeName),
		Text:          payload.String(PayloadText),
		Metadata:      Metadata{},
	}
	switch meta := payload[PayloadMetadata].(type) {
	case Metadata:
		chunk.Metadata = meta
	case map[string]interface{}:
		chunk.Metadata = Metadata(meta)
	}
	if created, err := time.Parse(time.RFC3339Nano, payload.String(PayloadCreatedAt)); err == nil {
		chunk.CreatedAt = created
	}
	return chunk
}

// ChunkSize is a rough size estimate of a chunk.
type ChunkSize struct {
	Characters      int     `json:"characters"`
	Words           int     `json:"words"`
	EstimatedTokens float64 `json:"estimated_tokens"`
}

// EstimateSize estimates tokens as 1.3 per whitespace separated word.
func (c *EmbeddingChunk) EstimateSize() ChunkSize {
	words := len(strings.Fields(c.Text))
	return ChunkSize{
		Characters:      len([]rune(c.Text)),
		Words:           words,
		EstimatedTokens: float64(words) * 1.3,
	}
}

// ChunkFilter narrows chunk lookups. Zero fields do not filter.
type ChunkFilter struct {
	EntityID      string
	ChunkType     ChunkType
	AttributeName string
}

// Matches reports whether chunk passes the filter.
func (f *ChunkFilter) Matches(chunk *EmbeddingChunk) bool {
	if f == nil {
		return true
	}
	if f.EntityID != "" && chunk.EntityID != f.EntityID {
		return false
	}
	if f.ChunkType != "" && chunk.ChunkType != f.ChunkType {
		return false
	}
	if f.AttributeName != "" && chunk.AttributeName != f.AttributeName {
		return false
	}
	return true
}
