package model

// ProcessResult reports the chunks written for one entity.
type ProcessResult struct {
	EntityID        string   `json:"entity_id"`
	ChunkIDs        []string `json:"chunk_ids"`
	ChunkCount      int      `json:"chunk_count"`
	GlobalChunks    int      `json:"global_chunks"`
	AttributeChunks int      `json:"attribute_chunks"`
	UsedLLM         bool     `json:"used_llm"`
}

// BatchResult is one slot of a batch run. Exactly one of Result and Error is set.
type BatchResult struct {
	EntityID string         `json:"entity_id"`
	Result   *ProcessResult `json:"result,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// EntityMatch is one deduplicated entity returned by a semantic search.
type EntityMatch struct {
	EntityID         string    `json:"entity_id"`
	EntityName       string    `json:"entity_name"`
	EntityType       string    `json:"entity_type"`
	Score            float64   `json:"score"`
	MatchedChunk     ChunkType `json:"matched_chunk"`
	MatchedAttribute string    `json:"matched_attribute,omitempty"`
	MatchedText      string    `json:"matched_text"`
}

// EmbeddingsInfo describes the chunks currently indexed for an entity.
type EmbeddingsInfo struct {
	EntityID        string            `json:"entity_id"`
	TotalChunks     int               `json:"total_chunks"`
	GlobalChunks    int               `json:"global_chunks"`
	AttributeChunks int               `json:"attribute_chunks"`
	Attributes      []string          `json:"attributes"`
	Chunks          []*EmbeddingChunk `json:"chunks"`
}

// DeleteResult records which legs of a cascading delete completed.
type DeleteResult struct {
	EntityID        string `json:"entity_id"`
	GraphDeleted    bool   `json:"graph_deleted"`
	DocumentDeleted bool   `json:"document_deleted"`
	ChunksDeleted   int    `json:"chunks_deleted"`
}

// CollectionInfo describes a vector collection.
type CollectionInfo struct {
	Name        string `json:"name"`
	VectorCount int    `json:"vector_count"`
	Dimension   int    `json:"dimension"`
	Distance    string `json:"distance"`
}
