package persona

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/siherrmann/persona/core/pipeline"
	"github.com/siherrmann/persona/helper"
)

// Backend names a store implementation.
type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendNeo4j    Backend = "neo4j"
	BackendMongoDB  Backend = "mongodb"
	BackendQdrant   Backend = "qdrant"
	BackendMemory   Backend = "memory"
)

// Summarizer names the optional LLM used for global chunk summaries.
type Summarizer string

const (
	SummarizerNone   Summarizer = "none"
	SummarizerOpenAI Summarizer = "openai"
	SummarizerGemini Summarizer = "gemini"
)

// Config selects the backend of every store and the pipeline settings.
type Config struct {
	GraphBackend    Backend
	DocumentBackend Backend
	VectorBackend   Backend

	Summarizer      Summarizer
	SummarizerKey   string
	SummarizerModel string

	EmbeddingDim       int
	EmbeddingCacheSize int
	EmbeddingCacheTTL  time.Duration
	BatchConcurrency   int

	LogLevel slog.Level
}

// DefaultConfig keeps everything in Postgres without a summarizer.
func DefaultConfig() *Config {
	return &Config{
		GraphBackend:       BackendPostgres,
		DocumentBackend:    BackendPostgres,
		VectorBackend:      BackendPostgres,
		Summarizer:         SummarizerNone,
		EmbeddingDim:       pipeline.DefaultEmbeddingDim,
		EmbeddingCacheSize: 1024,
		EmbeddingCacheTTL:  time.Hour,
		BatchConcurrency:   pipeline.DefaultBatchConcurrency,
		LogLevel:           slog.LevelInfo,
	}
}

// NewConfigFromEnv reads GRAPH_BACKEND, DOCUMENT_BACKEND, VECTOR_BACKEND,
// SUMMARIZER, EMBEDDING_DIM, EMBEDDING_CACHE_SIZE, EMBEDDING_CACHE_TTL,
// BATCH_CONCURRENCY and LOG_LEVEL on top of DefaultConfig.
// The summarizer key and model come from OPENAI_* or GEMINI_*.
func NewConfigFromEnv() (*Config, error) {
	helper.LoadEnv()

	config := DefaultConfig()
	config.GraphBackend = Backend(strings.ToLower(helper.GetEnv("GRAPH_BACKEND", string(config.GraphBackend))))
	config.DocumentBackend = Backend(strings.ToLower(helper.GetEnv("DOCUMENT_BACKEND", string(config.DocumentBackend))))
	config.VectorBackend = Backend(strings.ToLower(helper.GetEnv("VECTOR_BACKEND", string(config.VectorBackend))))
	config.Summarizer = Summarizer(strings.ToLower(helper.GetEnv("SUMMARIZER", string(config.Summarizer))))

	switch config.Summarizer {
	case SummarizerOpenAI:
		config.SummarizerKey = helper.GetEnv("OPENAI_API_KEY", "")
		config.SummarizerModel = helper.GetEnv("OPENAI_MODEL", pipeline.DefaultOpenAIModel)
	case SummarizerGemini:
		config.SummarizerKey = helper.GetEnv("GEMINI_API_KEY", "")
		config.SummarizerModel = helper.GetEnv("GEMINI_MODEL", pipeline.DefaultGeminiModel)
	}

	var err error
	if config.EmbeddingDim, err = envInt("EMBEDDING_DIM", config.EmbeddingDim); err != nil {
		return nil, err
	}
	if config.EmbeddingCacheSize, err = envInt("EMBEDDING_CACHE_SIZE", config.EmbeddingCacheSize); err != nil {
		return nil, err
	}
	if config.BatchConcurrency, err = envInt("BATCH_CONCURRENCY", config.BatchConcurrency); err != nil {
		return nil, err
	}
	if v := helper.GetEnv("EMBEDDING_CACHE_TTL", ""); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return nil, helper.NewError("configuration", helper.NewValidationError("EMBEDDING_CACHE_TTL %q: %v", v, err))
		}
		config.EmbeddingCacheTTL = ttl
	}
	if v := helper.GetEnv("LOG_LEVEL", ""); v != "" {
		if err := config.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, helper.NewError("configuration", helper.NewValidationError("LOG_LEVEL %q: %v", v, err))
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks that every store has a backend able to serve it.
func (c *Config) Validate() error {
	if c == nil {
		return helper.NewError("configuration", fmt.Errorf("configuration is nil"))
	}
	if err := checkBackend("GRAPH_BACKEND", c.GraphBackend, BackendPostgres, BackendNeo4j, BackendMemory); err != nil {
		return err
	}
	if err := checkBackend("DOCUMENT_BACKEND", c.DocumentBackend, BackendPostgres, BackendMongoDB, BackendMemory); err != nil {
		return err
	}
	if err := checkBackend("VECTOR_BACKEND", c.VectorBackend, BackendPostgres, BackendQdrant, BackendMemory); err != nil {
		return err
	}
	switch c.Summarizer {
	case "", SummarizerNone, SummarizerOpenAI, SummarizerGemini:
	default:
		return helper.NewError("configuration", helper.NewValidationError("SUMMARIZER %q must be one of none, openai, gemini", c.Summarizer))
	}
	if c.EmbeddingDim <= 0 {
		return helper.NewError("configuration", helper.NewValidationError("EMBEDDING_DIM must be positive"))
	}
	return nil
}

func (c *Config) usesPostgres() bool {
	return c.GraphBackend == BackendPostgres || c.DocumentBackend == BackendPostgres || c.VectorBackend == BackendPostgres
}

func checkBackend(name string, backend Backend, allowed ...Backend) error {
	for _, a := range allowed {
		if backend == a {
			return nil
		}
	}
	names := make([]string, len(allowed))
	for i, a := range allowed {
		names[i] = string(a)
	}
	return helper.NewError("configuration", helper.NewValidationError("%s %q must be one of %s", name, backend, strings.Join(names, ", ")))
}

func envInt(key string, fallback int) (int, error) {
	v := helper.GetEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, helper.NewError("configuration", helper.NewValidationError("%s %q is not an integer", key, v))
	}
	return n, nil
}
