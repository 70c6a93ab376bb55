package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/siherrmann/persona/core/graph"
	"github.com/siherrmann/persona/core/retrieval"
	"github.com/siherrmann/persona/core/store"
	"github.com/siherrmann/persona/helper"
	"github.com/siherrmann/persona/model"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchConcurrency is the number of entities ProcessBatch works on at once.
const DefaultBatchConcurrency = 4

// EmbeddingPipeline keeps the graph, document and vector stores of an entity in sync.
// Steps for one entity run in order, batches run entities in parallel.
// Writes are best-effort, nothing is rolled back across stores.
type EmbeddingPipeline struct {
	graph     store.GraphStore
	documents store.DocumentStore
	vectors   store.VectorStore
	engine    *retrieval.Engine

	summarize   store.SummarizeFunc
	concurrency int

	log *slog.Logger
}

// NewEmbeddingPipeline creates a pipeline over the three stores.
func NewEmbeddingPipeline(graphStore store.GraphStore, documents store.DocumentStore, vectors store.VectorStore, logger *slog.Logger) *EmbeddingPipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmbeddingPipeline{
		graph:       graphStore,
		documents:   documents,
		vectors:     vectors,
		engine:      retrieval.NewEngine(vectors, documents, logger),
		concurrency: DefaultBatchConcurrency,
		log:         logger,
	}
}

// SetSummarizer enables LLM summaries for global chunks. nil disables them.
func (p *EmbeddingPipeline) SetSummarizer(summarize store.SummarizeFunc) {
	p.summarize = summarize
}

// SetConcurrency sets the parallelism of ProcessBatch.
func (p *EmbeddingPipeline) SetConcurrency(n int) {
	if n <= 0 {
		n = DefaultBatchConcurrency
	}
	p.concurrency = n
}

// AddNewEntity validates the input, writes the entity to the graph and the
// document store, links the requested relationships and indexes its chunks.
// When indexing fails the entity id is returned together with the error.
func (p *EmbeddingPipeline) AddNewEntity(ctx context.Context, input *model.NewEntity) (string, error) {
	const op = "add_new_entity"

	if err := validateNewEntity(input); err != nil {
		return "", helper.NewStoreError(op, "", "", err)
	}

	entityID := model.NewEntityID(input.Type)

	_, err := p.graph.AddEntity(ctx, entityID, input.Type, input.Name, input.Structured.Clone())
	if err != nil {
		return "", helper.NewStoreError(op, entityID, store.NameGraph, err)
	}

	doc := &model.Document{
		EntityID:   entityID,
		EntityType: input.Type,
		EntityName: input.Name,
		Structured: input.Structured.Clone(),
		Content:    input.Content.Clone(),
		Text:       input.Text,
		Metadata:   input.Metadata.Clone(),
	}
	if _, err := p.documents.CreateDocument(ctx, doc); err != nil {
		p.log.Error("Entity left without document", slog.String("entity_id", entityID), slog.Any("error", err))
		return "", helper.NewStoreError(op, entityID, store.NameDocument, err)
	}

	for _, rel := range input.Relationships {
		link := *rel
		link.SourceID = entityID
		if _, err := p.graph.AddRelationship(ctx, &link); err != nil {
			p.log.Warn(
				"Failed to add relationship",
				slog.String("entity_id", entityID),
				slog.String("target_id", link.TargetID),
				slog.String("rel_type", link.Type),
				slog.Any("error", err),
			)
		}
	}

	if _, err := p.ProcessEntity(ctx, entityID, model.DefaultProcessOptions()); err != nil {
		return entityID, err
	}

	p.log.Info("Added entity", slog.String("entity_id", entityID), slog.String("name", input.Name))
	return entityID, nil
}

// ProcessEntity regenerates and indexes the chunks of one entity from its document.
// Without ForceRegenerate the new chunks are added next to the existing ones, so
// the entity holds more than one global chunk until the next forced run.
func (p *EmbeddingPipeline) ProcessEntity(ctx context.Context, entityID string, opts model.ProcessOptions) (*model.ProcessResult, error) {
	const op = "process_entity"

	doc, err := p.documents.GetDocument(ctx, entityID)
	if err != nil {
		return nil, helper.NewStoreError(op, entityID, store.NameDocument, err)
	}

	if opts.ForceRegenerate {
		if _, err := p.vectors.DeleteEntityChunks(ctx, entityID, nil); err != nil {
			return nil, helper.NewStoreError(op, entityID, store.NameVector, err)
		}
	}

	summary := ""
	if opts.GenerateGlobal {
		summary = p.globalSummary(ctx, entityID, doc)
	}

	chunks, err := GenerateAllChunks(entityID, doc, model.ChunkOptions{
		IncludeGlobal:     opts.GenerateGlobal,
		IncludeAttributes: opts.GenerateAttributes,
		GroupAttributes:   opts.GroupAttributes,
		Summary:           summary,
	})
	if err != nil {
		return nil, helper.NewStoreError(op, entityID, "", err)
	}

	result := &model.ProcessResult{
		EntityID: entityID,
		ChunkIDs: []string{},
		UsedLLM:  summary != "",
	}
	for _, chunk := range chunks {
		switch chunk.ChunkType {
		case model.ChunkTypeGlobal:
			result.GlobalChunks++
		case model.ChunkTypeAttribute:
			result.AttributeChunks++
		}
	}

	if len(chunks) > 0 {
		ids, err := p.vectors.AddChunksBatch(ctx, chunks)
		if err != nil {
			return nil, helper.NewStoreError(op, entityID, store.NameVector, err)
		}
		result.ChunkIDs = ids
	}
	result.ChunkCount = len(result.ChunkIDs)

	p.markIndexed(ctx, doc, result, opts.ForceRegenerate)

	p.log.Debug("Processed entity", slog.String("entity_id", entityID), slog.Int("chunks", result.ChunkCount))
	return result, nil
}

// ProcessBatch processes entityIDs in parallel, or every entity of entityType
// when no ids are given. Each entity gets its own result slot. When any entity
// failed the full slice is returned with a *helper.PartialFailureError.
func (p *EmbeddingPipeline) ProcessBatch(ctx context.Context, entityIDs []string, entityType string, opts model.ProcessOptions) ([]*model.BatchResult, error) {
	if len(entityIDs) == 0 {
		ids, err := p.documents.ListEntityIDs(ctx, entityType)
		if err != nil {
			return nil, helper.NewStoreError("process_batch", "", store.NameDocument, err)
		}
		entityIDs = ids
	}

	results := make([]*model.BatchResult, len(entityIDs))
	var mu sync.Mutex
	failed := map[string]string{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, entityID := range entityIDs {
		g.Go(func() error {
			slot := &model.BatchResult{EntityID: entityID}
			result, err := p.ProcessEntity(gctx, entityID, opts)
			if err != nil {
				slot.Error = err.Error()
				mu.Lock()
				failed[entityID] = slot.Error
				mu.Unlock()
				p.log.Warn("Failed to process entity", slog.String("entity_id", entityID), slog.Any("error", err))
			} else {
				slot.Result = result
			}
			results[i] = slot
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) > 0 {
		return results, &helper.PartialFailureError{Failed: failed, Total: len(entityIDs)}
	}
	return results, nil
}

// UpdateEntityEmbeddings merges updated into the structured data of the
// document and the graph entity, then reprocesses the entity. With
// regenerateAll false the previous chunks, including the global one, are kept.
func (p *EmbeddingPipeline) UpdateEntityEmbeddings(ctx context.Context, entityID string, updated model.Metadata, regenerateAll bool) (*model.ProcessResult, error) {
	const op = "update_entity_embeddings"

	if len(updated) > 0 {
		if _, err := model.ParseAttributes(updated); err != nil {
			return nil, helper.NewStoreError(op, entityID, "", err)
		}

		ok, err := p.documents.UpdateDocument(ctx, entityID, &model.DocumentUpdate{
			Structured: updated.Clone(),
			Merge:      true,
		})
		if err != nil {
			return nil, helper.NewStoreError(op, entityID, store.NameDocument, err)
		}
		if !ok {
			return nil, helper.NewStoreError(op, entityID, store.NameDocument, helper.ErrNotFound)
		}

		entity, err := p.graph.GetEntity(ctx, entityID)
		switch {
		case errors.Is(err, helper.ErrNotFound):
			p.log.Warn("Graph entity missing during update", slog.String("entity_id", entityID))
		case err != nil:
			return nil, helper.NewStoreError(op, entityID, store.NameGraph, err)
		default:
			if _, err := p.graph.AddEntity(ctx, entityID, entity.Type, entity.Name, updated.Clone()); err != nil {
				return nil, helper.NewStoreError(op, entityID, store.NameGraph, err)
			}
		}
	}

	opts := model.DefaultProcessOptions()
	opts.ForceRegenerate = regenerateAll
	return p.ProcessEntity(ctx, entityID, opts)
}

// SearchSimilarEntities returns the entities best matching query, each at most once.
func (p *EmbeddingPipeline) SearchSimilarEntities(ctx context.Context, query string, opts model.SearchOptions) ([]*model.EntityMatch, error) {
	matches, err := p.engine.SearchEntities(ctx, query, opts)
	if err != nil {
		return nil, helper.NewStoreError("search_similar_entities", "", store.NameVector, err)
	}
	return matches, nil
}

// GetEntityEmbeddingsInfo summarizes the chunks indexed for an entity.
func (p *EmbeddingPipeline) GetEntityEmbeddingsInfo(ctx context.Context, entityID string) (*model.EmbeddingsInfo, error) {
	chunks, err := p.vectors.GetEntityChunks(ctx, entityID, nil)
	if err != nil {
		return nil, helper.NewStoreError("get_entity_embeddings_info", entityID, store.NameVector, err)
	}

	info := &model.EmbeddingsInfo{
		EntityID:    entityID,
		TotalChunks: len(chunks),
		Attributes:  []string{},
		Chunks:      chunks,
	}
	seen := map[string]bool{}
	for _, chunk := range chunks {
		switch chunk.ChunkType {
		case model.ChunkTypeGlobal:
			info.GlobalChunks++
		case model.ChunkTypeAttribute:
			info.AttributeChunks++
		}
		if chunk.AttributeName != "" && !seen[chunk.AttributeName] {
			seen[chunk.AttributeName] = true
			info.Attributes = append(info.Attributes, chunk.AttributeName)
		}
	}
	sort.Strings(info.Attributes)

	return info, nil
}

// DeleteEntity removes the entity from the graph, document and vector store in
// that order and stops at the first failing store. The result tells which
// stores were cleaned. An entity already missing from a store counts as deleted.
func (p *EmbeddingPipeline) DeleteEntity(ctx context.Context, entityID string) (*model.DeleteResult, error) {
	const op = "delete_entity"
	result := &model.DeleteResult{EntityID: entityID}

	if err := p.graph.DeleteEntity(ctx, entityID); err != nil && !errors.Is(err, helper.ErrNotFound) {
		return result, helper.NewStoreError(op, entityID, store.NameGraph, err)
	}
	result.GraphDeleted = true

	if _, err := p.documents.DeleteDocument(ctx, entityID); err != nil && !errors.Is(err, helper.ErrNotFound) {
		return result, helper.NewStoreError(op, entityID, store.NameDocument, err)
	}
	result.DocumentDeleted = true

	count, err := p.vectors.DeleteEntityChunks(ctx, entityID, nil)
	if err != nil {
		return result, helper.NewStoreError(op, entityID, store.NameVector, err)
	}
	result.ChunksDeleted = count

	p.log.Info("Deleted entity", slog.String("entity_id", entityID), slog.Int("chunks", count))
	return result, nil
}

// FetchEntityContext returns the entity and everything reachable within depth hops.
func (p *EmbeddingPipeline) FetchEntityContext(ctx context.Context, entityID string, depth int) ([]*model.ContextNode, error) {
	if depth <= 0 {
		depth = 1
	}
	nodes, err := graph.BFS(ctx, p.graph, entityID, depth, nil)
	if err != nil {
		return nil, helper.NewStoreError("fetch_entity_context", entityID, store.NameGraph, err)
	}
	return nodes, nil
}

// Close closes all three stores.
func (p *EmbeddingPipeline) Close(ctx context.Context) error {
	return errors.Join(
		p.graph.Close(ctx),
		p.documents.Close(ctx),
		p.vectors.Close(ctx),
	)
}

func (p *EmbeddingPipeline) globalSummary(ctx context.Context, entityID string, doc *model.Document) string {
	if p.summarize == nil {
		return ""
	}
	summary, err := p.summarize(ctx, BuildSummaryPrompt(doc), SummaryMaxTokens)
	if err != nil {
		warning := &helper.DegradedFeatureWarning{Feature: "summarizer", Err: err}
		p.log.Warn("Falling back to template summary", slog.String("entity_id", entityID), slog.Any("warning", warning))
		return ""
	}
	return summary
}

// markIndexed records the indexing state on the graph entity. The flag is only
// set while a global chunk is known to exist. A missing graph entity is not
// recreated. Failures are logged.
func (p *EmbeddingPipeline) markIndexed(ctx context.Context, doc *model.Document, result *model.ProcessResult, replaced bool) {
	entity, err := p.graph.GetEntity(ctx, doc.EntityID)
	switch {
	case errors.Is(err, helper.ErrNotFound):
		p.log.Warn("Graph entity missing, skipping embedding metadata", slog.String("entity_id", doc.EntityID))
		return
	case err != nil:
		p.log.Warn("Failed to read graph entity for embedding metadata", slog.String("entity_id", doc.EntityID), slog.Any("error", err))
		return
	}

	properties := model.Metadata{
		model.PropertyEmbeddingChunkCount: result.ChunkCount,
	}
	switch {
	case result.GlobalChunks > 0:
		properties[model.PropertyEmbeddingsGenerated] = true
	case replaced:
		properties[model.PropertyEmbeddingsGenerated] = false
	}
	if _, err := p.graph.AddEntity(ctx, entity.EntityID, entity.Type, entity.Name, properties); err != nil {
		p.log.Warn("Failed to update embedding metadata", slog.String("entity_id", doc.EntityID), slog.Any("error", err))
	}
}

func validateNewEntity(input *model.NewEntity) error {
	if input == nil {
		return helper.NewValidationError("entity input is nil")
	}
	if input.Type == "" {
		return helper.NewValidationError("entity type is required")
	}
	if input.Name == "" {
		return helper.NewValidationError("entity name is required")
	}
	if _, err := model.ParseAttributes(input.Structured); err != nil {
		return err
	}
	for _, rel := range input.Relationships {
		if rel == nil {
			return helper.NewValidationError("relationship is nil")
		}
		check := *rel
		check.SourceID = "pending"
		if err := check.Normalize(); err != nil {
			return err
		}
	}
	return nil
}
