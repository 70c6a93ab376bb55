package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/siherrmann/persona/core/store"
	"github.com/siherrmann/persona/helper"
)

const (
	// DefaultModelName is the sentence transformer used by DefaultEmbedder.
	DefaultModelName = "sentence-transformers/all-MiniLM-L6-v2"
	// DefaultEmbeddingDim is the output dimension of DefaultModelName.
	DefaultEmbeddingDim = 384
)

// HugotEmbedder runs a local sentence transformer through hugot.
type HugotEmbedder struct {
	mu       sync.Mutex
	session  *hugot.Session
	pipeline *pipelines.FeatureExtractionPipeline
	model    string
}

// NewHugotEmbedder downloads the model if needed and starts a Go backend session.
func NewHugotEmbedder(modelName string) (*HugotEmbedder, error) {
	modelPath, err := helper.PrepareModel(modelName, "onnx/model.onnx")
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "embedder-pipeline",
	}
	sentencePipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create sentence pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create sentence pipeline: %w", err)
	}

	return &HugotEmbedder{
		session:  session,
		pipeline: sentencePipeline,
		model:    modelName,
	}, nil
}

// Embed embeds all texts in a single pipeline run.
func (e *HugotEmbedder) Embed(texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	result, err := e.pipeline.RunPipeline(texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}

	return result.Embeddings, nil
}

// ModelName returns the model the embedder was created with.
func (e *HugotEmbedder) ModelName() string {
	return e.model
}

// Close destroys the hugot session.
func (e *HugotEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	return err
}

// DefaultEmbedder creates an embedder using all-MiniLM-L6-v2,
// which produces 384-dimensional embeddings.
func DefaultEmbedder() (store.EmbedFunc, error) {
	embedder, err := NewHugotEmbedder(DefaultModelName)
	if err != nil {
		return nil, err
	}
	return embedder.Embed, nil
}

// CachedEmbedder wraps embed with an expiring LRU cache keyed by the text hash.
// Only cache misses are sent to embed, in one batch.
func CachedEmbedder(embed store.EmbedFunc, size int, ttl time.Duration) store.EmbedFunc {
	if embed == nil || size <= 0 || ttl <= 0 {
		return embed
	}
	cache := expirable.NewLRU[string, []float32](size, nil, ttl)

	return func(texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		var missTexts []string
		var missIndex []int

		for i, text := range texts {
			if cached, ok := cache.Get(cacheKey(text)); ok {
				out[i] = cloneEmbedding(cached)
				continue
			}
			missTexts = append(missTexts, text)
			missIndex = append(missIndex, i)
		}
		if len(missTexts) == 0 {
			return out, nil
		}

		embeddings, err := embed(missTexts)
		if err != nil {
			return nil, err
		}
		if len(embeddings) != len(missTexts) {
			return nil, fmt.Errorf("expected %d embeddings, got %d", len(missTexts), len(embeddings))
		}
		for j, embedding := range embeddings {
			cache.Add(cacheKey(missTexts[j]), cloneEmbedding(embedding))
			out[missIndex[j]] = embedding
		}

		return out, nil
	}
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
