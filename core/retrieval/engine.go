package retrieval

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"unicode/utf8"

	"github.com/siherrmann/persona/core/store"
	"github.com/siherrmann/persona/helper"
	"github.com/siherrmann/persona/model"
)

const (
	// overfetchFactor widens the chunk search so that deduplication still
	// leaves enough distinct entities to fill the limit.
	overfetchFactor  = 3
	matchedTextLimit = 200
)

// Engine turns chunk level vector hits into ranked, deduplicated entities.
type Engine struct {
	vectors   store.VectorStore
	documents store.DocumentStore
	log       *slog.Logger
}

// NewEngine creates a new retrieval engine
func NewEngine(vectors store.VectorStore, documents store.DocumentStore, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		vectors:   vectors,
		documents: documents,
		log:       logger,
	}
}

// SearchEntities runs a similarity search over chunks, keeps the best chunk of
// every entity, enriches it from the document store and ranks by score.
// Entities whose document is gone or whose type does not match are skipped.
func (e *Engine) SearchEntities(ctx context.Context, query string, opts model.SearchOptions) ([]*model.EntityMatch, error) {
	if opts.Limit <= 0 {
		opts.Limit = model.DefaultSearchLimitEntities
	}

	filter := &model.ChunkFilter{}
	if opts.GlobalOnly {
		filter.ChunkType = model.ChunkTypeGlobal
	}

	hits, err := e.vectors.SearchChunks(ctx, query, filter, opts.Limit*overfetchFactor, opts.ScoreThreshold)
	if err != nil {
		return nil, err
	}

	var matches []*model.EntityMatch
	for _, hit := range DedupByEntity(hits) {
		doc, err := e.documents.GetDocument(ctx, hit.EntityID)
		if errors.Is(err, helper.ErrNotFound) {
			e.log.Debug("Skipping search hit without document", slog.String("entity_id", hit.EntityID))
			continue
		}
		if err != nil {
			return nil, err
		}
		if opts.EntityType != "" && doc.EntityType != opts.EntityType {
			continue
		}

		matches = append(matches, &model.EntityMatch{
			EntityID:         hit.EntityID,
			EntityName:       doc.EntityName,
			EntityType:       doc.EntityType,
			Score:            hit.Score,
			MatchedChunk:     hit.ChunkType,
			MatchedAttribute: hit.AttributeName,
			MatchedText:      truncateText(hit.Text, matchedTextLimit),
		})
		if len(matches) == opts.Limit {
			break
		}
	}

	return matches, nil
}

// DedupByEntity keeps the highest scoring chunk of each entity.
// The result is ordered by descending score, ties by entity id.
func DedupByEntity(hits []*model.EmbeddingChunk) []*model.EmbeddingChunk {
	best := make(map[string]*model.EmbeddingChunk, len(hits))
	for _, hit := range hits {
		current, ok := best[hit.EntityID]
		if !ok || hit.Score > current.Score {
			best[hit.EntityID] = hit
		}
	}

	out := make([]*model.EmbeddingChunk, 0, len(best))
	for _, hit := range best {
		out = append(out, hit)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].EntityID < out[j].EntityID
	})
	return out
}

func truncateText(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit]) + "..."
}
