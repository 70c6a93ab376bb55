package persona

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/siherrmann/persona/core/pipeline"
	"github.com/siherrmann/persona/core/store"
	"github.com/siherrmann/persona/database"
	"github.com/siherrmann/persona/database/memory"
	"github.com/siherrmann/persona/database/mongodb"
	"github.com/siherrmann/persona/database/neo4jdb"
	"github.com/siherrmann/persona/database/qdrant"
	"github.com/siherrmann/persona/helper"
	loadSql "github.com/siherrmann/persona/sql"
)

// Persona provides a unified interface to the entity knowledge base.
// The pipeline operations are promoted from the embedded EmbeddingPipeline.
type Persona struct {
	*pipeline.EmbeddingPipeline

	Graph     store.GraphStore
	Documents store.DocumentStore
	Vectors   store.VectorStore
	DB        *helper.Database

	ownsDB bool
	log    *slog.Logger
}

type options struct {
	logger    *slog.Logger
	embed     store.EmbedFunc
	summarize store.SummarizeFunc
	db        *helper.Database
}

// Option customizes Open.
type Option func(*options)

// WithLogger replaces the pretty stdout logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEmbedder replaces the default hugot embedder. Its vectors must have
// Config.EmbeddingDim dimensions.
func WithEmbedder(embed store.EmbedFunc) Option {
	return func(o *options) {
		o.embed = embed
	}
}

// WithSummarizer replaces the summarizer selected by Config.Summarizer.
func WithSummarizer(summarize store.SummarizeFunc) Option {
	return func(o *options) {
		o.summarize = summarize
	}
}

// WithDatabase shares an open Postgres connection. Close leaves it open.
func WithDatabase(db *helper.Database) Option {
	return func(o *options) {
		o.db = db
	}
}

// Open builds the configured stores and wires the embedding pipeline.
// Postgres is connected eagerly, Neo4j, MongoDB and Qdrant on first use.
func Open(ctx context.Context, config *Config, opts ...Option) (*Persona, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = helper.NewLogger(os.Stdout, config.LogLevel)
	}

	p := &Persona{DB: o.db, log: o.logger}

	embed := o.embed
	if embed == nil {
		var err error
		embed, err = pipeline.DefaultEmbedder()
		if err != nil {
			return nil, helper.NewError("create default embedder", err)
		}
	}
	embed = pipeline.CachedEmbedder(embed, config.EmbeddingCacheSize, config.EmbeddingCacheTTL)

	if config.usesPostgres() && p.DB == nil {
		dbConfig, err := helper.NewDatabaseConfiguration()
		if err != nil {
			return nil, helper.NewError("database configuration", err)
		}
		p.DB, err = helper.NewDatabase("persona", dbConfig, o.logger)
		if err != nil {
			return nil, helper.NewError("open database", err)
		}
		p.ownsDB = true
	}
	if config.usesPostgres() {
		if err := loadSql.Init(p.DB.Instance); err != nil {
			p.closePartial(ctx)
			return nil, helper.NewError("initialize database extensions", err)
		}
	}

	var err error
	if p.Graph, err = openGraph(config, p.DB, o.logger); err != nil {
		p.closePartial(ctx)
		return nil, err
	}
	if p.Documents, err = openDocuments(config, p.DB, o.logger); err != nil {
		p.closePartial(ctx)
		return nil, err
	}
	if p.Vectors, err = openVectors(config, p.DB, embed, o.logger); err != nil {
		p.closePartial(ctx)
		return nil, err
	}

	p.EmbeddingPipeline = pipeline.NewEmbeddingPipeline(p.Graph, p.Documents, p.Vectors, o.logger)
	p.SetConcurrency(config.BatchConcurrency)

	summarize := o.summarize
	if summarize == nil {
		switch config.Summarizer {
		case SummarizerOpenAI:
			summarize = pipeline.OpenAISummarizer(config.SummarizerKey, config.SummarizerModel)
		case SummarizerGemini:
			summarize = pipeline.GeminiSummarizer(config.SummarizerKey, config.SummarizerModel)
		}
	}
	p.SetSummarizer(summarize)

	o.logger.Info("Opened persona",
		slog.String("graph", string(config.GraphBackend)),
		slog.String("documents", string(config.DocumentBackend)),
		slog.String("vectors", string(config.VectorBackend)),
		slog.Bool("summarizer", summarize != nil),
	)

	return p, nil
}

func openGraph(config *Config, db *helper.Database, logger *slog.Logger) (store.GraphStore, error) {
	switch config.GraphBackend {
	case BackendNeo4j:
		neo4jConfig, err := neo4jdb.NewConfigFromEnv()
		if err != nil {
			return nil, helper.NewError("neo4j configuration", err)
		}
		graph, err := neo4jdb.NewGraphStore(neo4jConfig, logger)
		if err != nil {
			return nil, err
		}
		return graph, nil
	case BackendMemory:
		return memory.NewGraphStore(), nil
	default:
		graph, err := database.NewGraphDBHandler(db, false)
		if err != nil {
			return nil, helper.NewError("create graph handler", err)
		}
		return graph, nil
	}
}

func openDocuments(config *Config, db *helper.Database, logger *slog.Logger) (store.DocumentStore, error) {
	switch config.DocumentBackend {
	case BackendMongoDB:
		mongoConfig, err := mongodb.NewConfigFromEnv()
		if err != nil {
			return nil, helper.NewError("mongodb configuration", err)
		}
		documents, err := mongodb.NewDocumentStore(mongoConfig, logger)
		if err != nil {
			return nil, err
		}
		return documents, nil
	case BackendMemory:
		return memory.NewDocumentStore(), nil
	default:
		documents, err := database.NewDocumentsDBHandler(db, false)
		if err != nil {
			return nil, helper.NewError("create documents handler", err)
		}
		return documents, nil
	}
}

func openVectors(config *Config, db *helper.Database, embed store.EmbedFunc, logger *slog.Logger) (store.VectorStore, error) {
	switch config.VectorBackend {
	case BackendQdrant:
		qdrantConfig, err := qdrant.NewConfigFromEnv()
		if err != nil {
			return nil, helper.NewError("qdrant configuration", err)
		}
		qdrantConfig.Dimension = config.EmbeddingDim
		vectors, err := qdrant.NewVectorStore(qdrantConfig, embed, logger)
		if err != nil {
			return nil, err
		}
		return vectors, nil
	case BackendMemory:
		vectors, err := memory.NewVectorStore(database.ChunksTableName, config.EmbeddingDim, embed)
		if err != nil {
			return nil, err
		}
		return vectors, nil
	default:
		chunks, err := database.NewChunksDBHandler(db, config.EmbeddingDim, embed, false)
		if err != nil {
			return nil, helper.NewError("create chunks handler", err)
		}
		return chunks, nil
	}
}

// ChangeIndexType switches the pgvector index between hnsw and ivfflat.
func (p *Persona) ChangeIndexType(ctx context.Context, indexType string, params database.IndexParams) error {
	chunks, ok := p.Vectors.(*database.ChunksDBHandler)
	if !ok {
		return helper.NewError("change index type", helper.NewValidationError("vector backend is not postgres"))
	}
	return chunks.ChangeIndexType(ctx, indexType, params)
}

// Close closes the three stores and the Postgres connection when Open created it.
func (p *Persona) Close(ctx context.Context) error {
	var err error
	if p.EmbeddingPipeline != nil {
		err = p.EmbeddingPipeline.Close(ctx)
	}
	if p.ownsDB {
		err = errors.Join(err, p.DB.Close())
	}
	if err != nil {
		return helper.NewError("close", err)
	}
	return nil
}

func (p *Persona) closePartial(ctx context.Context) {
	for _, closer := range []interface{ Close(context.Context) error }{p.Graph, p.Documents, p.Vectors} {
		if closer != nil {
			if err := closer.Close(ctx); err != nil {
				p.log.Warn("Failed to close store", slog.String("error", err.Error()))
			}
		}
	}
	if p.ownsDB {
		_ = p.DB.Close()
	}
}
