package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/persona/core/store"
	"github.com/siherrmann/persona/helper"
	"github.com/siherrmann/persona/model"
)

const distanceCosine = "Cosine"

// VectorStore is an in-process store.VectorStore using brute force cosine similarity.
type VectorStore struct {
	mu        sync.RWMutex
	name      string
	dimension int
	embed     store.EmbedFunc
	chunks    map[string]*model.EmbeddingChunk
}

// NewVectorStore creates an empty collection embedding texts with embed.
func NewVectorStore(name string, dimension int, embed store.EmbedFunc) (*VectorStore, error) {
	if embed == nil {
		return nil, fmt.Errorf("embed function is nil")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dimension)
	}
	return &VectorStore{
		name:      name,
		dimension: dimension,
		embed:     embed,
		chunks:    map[string]*model.EmbeddingChunk{},
	}, nil
}

func (s *VectorStore) AddChunkVector(ctx context.Context, chunk *model.EmbeddingChunk) (string, error) {
	ids, err := s.AddChunksBatch(ctx, []*model.EmbeddingChunk{chunk})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

func (s *VectorStore) AddChunksBatch(ctx context.Context, chunks []*model.EmbeddingChunk) ([]string, error) {
	if len(chunks) == 0 {
		return []string{}, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	embeddings, err := s.embed(texts)
	if err != nil {
		return nil, helper.NewError("embed chunks", err)
	}
	if len(embeddings) != len(chunks) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(chunks), len(embeddings))
	}

	for _, embedding := range embeddings {
		if len(embedding) != s.dimension {
			return nil, helper.NewValidationError("embedding has dimension %d, collection expects %d", len(embedding), s.dimension)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	ids := make([]string, len(chunks))
	for i, chunk := range chunks {
		stored := *chunk
		if stored.ChunkID == "" {
			stored.ChunkID = uuid.NewString()
		}
		stored.Metadata = chunk.Metadata.Clone()
		stored.Embedding = embeddings[i]
		stored.CreatedAt = now
		stored.Score = 0
		s.chunks[stored.ChunkID] = &stored
		ids[i] = stored.ChunkID
	}
	return ids, nil
}

func (s *VectorStore) SearchChunks(ctx context.Context, query string, filter *model.ChunkFilter, limit int, threshold float64) ([]*model.EmbeddingChunk, error) {
	if limit <= 0 {
		limit = model.DefaultSearchLimitEntities
	}

	embeddings, err := s.embed([]string{query})
	if err != nil {
		return nil, helper.NewError("embed query", err)
	}
	if len(embeddings) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(embeddings))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []*model.EmbeddingChunk
	for _, chunk := range s.chunks {
		if !filter.Matches(chunk) {
			continue
		}
		score := cosineSimilarity(embeddings[0], chunk.Embedding)
		if score < threshold {
			continue
		}
		hit := cloneChunk(chunk)
		hit.Score = score
		hits = append(hits, hit)
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// GetEntityChunks returns the chunks of an entity, global chunks first.
func (s *VectorStore) GetEntityChunks(ctx context.Context, entityID string, filter *model.ChunkFilter) ([]*model.EmbeddingChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks := []*model.EmbeddingChunk{}
	for _, chunk := range s.chunks {
		if chunk.EntityID == entityID && filter.Matches(chunk) {
			chunks = append(chunks, cloneChunk(chunk))
		}
	}
	sort.Slice(chunks, func(i, j int) bool {
		if chunks[i].ChunkType != chunks[j].ChunkType {
			return chunks[i].ChunkType == model.ChunkTypeGlobal
		}
		if chunks[i].AttributeName != chunks[j].AttributeName {
			return chunks[i].AttributeName < chunks[j].AttributeName
		}
		return chunks[i].ChunkID < chunks[j].ChunkID
	})
	return chunks, nil
}

func (s *VectorStore) DeleteEntityChunks(ctx context.Context, entityID string, filter *model.ChunkFilter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, chunk := range s.chunks {
		if chunk.EntityID == entityID && filter.Matches(chunk) {
			delete(s.chunks, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *VectorStore) CollectionInfo(ctx context.Context) (*model.CollectionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &model.CollectionInfo{
		Name:        s.name,
		VectorCount: len(s.chunks),
		Dimension:   s.dimension,
		Distance:    distanceCosine,
	}, nil
}

func (s *VectorStore) Close(ctx context.Context) error {
	return nil
}

func cloneChunk(c *model.EmbeddingChunk) *model.EmbeddingChunk {
	clone := *c
	clone.Metadata = c.Metadata.Clone()
	clone.Embedding = nil
	return &clone
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
