package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/siherrmann/persona"
	"github.com/siherrmann/persona/helper"
	"github.com/siherrmann/persona/model"
)

func main() {
	ctx := context.Background()

	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "database",
		Username: "user",
		Password: "password",
		Schema:   "public",
		SSLMode:  "disable",
	}

	logger := helper.NewLogger(os.Stdout, slog.LevelInfo)
	db, err := helper.NewDatabase("example", dbConfig, logger)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Postgres for all three stores, all-MiniLM-L6-v2 embeddings
	p, err := persona.Open(ctx, persona.DefaultConfig(), persona.WithDatabase(db), persona.WithLogger(logger))
	if err != nil {
		log.Fatalf("Failed to open persona: %v", err)
	}
	defer p.Close(ctx)

	orgID, err := p.AddNewEntity(ctx, &model.NewEntity{
		Type:       "Organization",
		Name:       "KubeCo",
		Structured: model.Metadata{"industry": "Cloud hosting", "location": "Berlin"},
		Text:       "KubeCo runs managed Kubernetes clusters.",
	})
	if err != nil {
		log.Fatalf("Failed to add organization: %v", err)
	}

	aliceID, err := p.AddNewEntity(ctx, &model.NewEntity{
		Type: "Person",
		Name: "Alice",
		Structured: model.Metadata{
			"title":            "Senior Engineer",
			"skills":           []any{"Python", "Docker", "Kubernetes"},
			"years_experience": 8,
			"location":         "Berlin",
		},
		Text:          "Alice builds the platform team's deployment tooling.",
		Relationships: []*model.Relationship{{TargetID: orgID, Type: "WORKS_AT"}},
	})
	if err != nil {
		log.Fatalf("Failed to add person: %v", err)
	}
	fmt.Printf("Added %s and %s\n", aliceID, orgID)

	info, err := p.GetEntityEmbeddingsInfo(ctx, aliceID)
	if err != nil {
		log.Fatalf("Failed to get embeddings info: %v", err)
	}
	fmt.Printf("Alice has %d chunks (%d global, %d attribute): %v\n", info.TotalChunks, info.GlobalChunks, info.AttributeChunks, info.Attributes)

	queryText := "Who knows container orchestration?"
	fmt.Printf("\nQuerying: %s\n", queryText)

	matches, err := p.SearchSimilarEntities(ctx, queryText, model.SearchOptions{Limit: 5, ScoreThreshold: 0.2})
	if err != nil {
		log.Fatalf("Failed to search: %v", err)
	}
	for i, match := range matches {
		fmt.Printf("%d. %s (%s) score=%.3f via %s %s\n", i+1, match.EntityName, match.EntityType, match.Score, match.MatchedChunk, match.MatchedAttribute)
		fmt.Printf("   %s\n", match.MatchedText)
	}

	nodes, err := p.FetchEntityContext(ctx, aliceID, 1)
	if err != nil {
		log.Fatalf("Failed to fetch context: %v", err)
	}
	fmt.Println("\nContext of Alice:")
	for _, node := range nodes {
		fmt.Printf("- %s (%s) at distance %d\n", node.Entity.Name, node.Entity.Type, node.Distance)
	}

	result, err := p.UpdateEntityEmbeddings(ctx, aliceID, model.Metadata{"skills": []any{"Python", "Docker", "Kubernetes", "Go"}}, false)
	if err != nil {
		log.Fatalf("Failed to update entity: %v", err)
	}
	fmt.Printf("\nRe-indexed Alice with %d chunks\n", result.ChunkCount)

	deleted, err := p.DeleteEntity(ctx, aliceID)
	if err != nil {
		log.Fatalf("Failed to delete entity: %v", err)
	}
	fmt.Printf("Deleted Alice: graph=%t document=%t chunks=%d\n", deleted.GraphDeleted, deleted.DocumentDeleted, deleted.ChunksDeleted)
}
