package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/siherrmann/persona"
	"github.com/siherrmann/persona/helper"
	"github.com/siherrmann/persona/model"
)

var people = []*model.NewEntity{
	{
		Type:       "Person",
		Name:       "Dana",
		Structured: model.Metadata{"title": "Data Scientist", "skills": []any{"Python", "PyTorch"}, "location": "Lisbon"},
		Content:    model.Metadata{"bio": "Dana trains ranking models for search."},
	},
	{
		Type:       "Person",
		Name:       "Eli",
		Structured: model.Metadata{"title": "SRE", "skills": []any{"Go", "Prometheus", "Kubernetes"}, "email": "eli@example.com"},
		Content:    model.Metadata{"bio": "Eli keeps the clusters alive."},
	},
	{
		Type:       "Person",
		Name:       "Fay",
		Structured: model.Metadata{"title": "Designer", "hobbies": []any{"pottery", "climbing"}},
	},
}

// The graph lives in Neo4j, documents in MongoDB and vectors in Qdrant when
// QDRANT_URL is set, otherwise in memory. SUMMARIZER=openai|gemini enables
// LLM summaries for the global chunks.
func main() {
	ctx := context.Background()

	teardownNeo4j, boltURL, err := helper.MustStartNeo4jContainer()
	if err != nil {
		log.Fatalf("Failed to start Neo4j container: %v", err)
	}
	defer teardownNeo4j(context.Background())

	teardownMongo, mongoURI, err := helper.MustStartMongoContainer()
	if err != nil {
		log.Fatalf("Failed to start MongoDB container: %v", err)
	}
	defer teardownMongo(context.Background())

	mustSetenv("NEO4J_URI", boltURL)
	mustSetenv("NEO4J_PASSWORD", "password")
	mustSetenv("MONGODB_URI", mongoURI)
	mustSetenv("GRAPH_BACKEND", string(persona.BackendNeo4j))
	mustSetenv("DOCUMENT_BACKEND", string(persona.BackendMongoDB))
	if os.Getenv("QDRANT_URL") != "" {
		mustSetenv("VECTOR_BACKEND", string(persona.BackendQdrant))
	} else {
		mustSetenv("VECTOR_BACKEND", string(persona.BackendMemory))
	}

	config, err := persona.NewConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to read configuration: %v", err)
	}

	p, err := persona.Open(ctx, config)
	if err != nil {
		log.Fatalf("Failed to open persona: %v", err)
	}
	defer p.Close(ctx)

	var ids []string
	for _, person := range people {
		id, err := p.AddNewEntity(ctx, person)
		if err != nil {
			log.Fatalf("Failed to add %s: %v", person.Name, err)
		}
		ids = append(ids, id)
	}
	if _, err := p.Graph.AddRelationship(ctx, &model.Relationship{SourceID: ids[0], TargetID: ids[1], Type: "MENTORS", Confidence: model.Confidence(0.8)}); err != nil {
		log.Fatalf("Failed to link entities: %v", err)
	}

	// Rebuild every Person with grouped attributes, a missing id fails on its own
	opts := model.DefaultProcessOptions()
	opts.ForceRegenerate = true
	results, err := p.ProcessBatch(ctx, append(ids, "person:missing"), "", opts)
	var partial *helper.PartialFailureError
	if err != nil && !errors.As(err, &partial) {
		log.Fatalf("Failed to process batch: %v", err)
	}
	for _, result := range results {
		if result.Error != "" {
			fmt.Printf("%s failed: %s\n", result.EntityID, result.Error)
			continue
		}
		fmt.Printf("%s: %d chunks, llm=%t\n", result.EntityID, result.Result.ChunkCount, result.Result.UsedLLM)
	}

	for _, query := range []string{"machine learning engineer", "who runs kubernetes", "arts and crafts"} {
		matches, err := p.SearchSimilarEntities(ctx, query, model.SearchOptions{EntityType: "Person", Limit: 3, ScoreThreshold: 0.2})
		if err != nil {
			log.Fatalf("Failed to search: %v", err)
		}
		fmt.Printf("\n%s\n", query)
		for _, match := range matches {
			fmt.Printf("  %s %.3f [%s %s]\n", match.EntityName, match.Score, match.MatchedChunk, match.MatchedAttribute)
		}
	}

	docs, err := p.Documents.SearchDocuments(ctx, &model.DocumentFilter{EntityType: "Person", TextSearch: "a"})
	if err != nil {
		log.Fatalf("Failed to search documents: %v", err)
	}
	fmt.Printf("\n%d documents with an 'a' in the name\n", len(docs))
	for _, doc := range docs {
		fmt.Printf("  %s v%d: %s\n", doc.EntityName, doc.Version, doc.Summary(80))
	}
}

func mustSetenv(key, value string) {
	if err := os.Setenv(key, value); err != nil {
		log.Fatalf("Failed to set %s: %v", key, err)
	}
}
