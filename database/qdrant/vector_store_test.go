package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/siherrmann/persona/helper"
	"github.com/siherrmann/persona/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
}

// fakeQdrant answers every request with the next queued response and records the request.
type fakeQdrant struct {
	t         *testing.T
	requests  []recordedRequest
	responses []*http.Response
}

func (f *fakeQdrant) roundTrip(r *http.Request) (*http.Response, error) {
	recorded := recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery}
	if r.Body != nil {
		raw, err := io.ReadAll(r.Body)
		require.NoError(f.t, err)
		if len(raw) > 0 {
			require.NoError(f.t, json.Unmarshal(raw, &recorded.Body))
		}
	}
	f.requests = append(f.requests, recorded)

	require.NotEmpty(f.t, f.responses, "Unexpected request %s %s", r.Method, r.URL.Path)
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

func okResponse(t *testing.T, result any) *http.Response {
	return jsonResponse(t, http.StatusOK, map[string]any{"result": result, "status": "ok", "time": 0.001})
}

func jsonResponse(t *testing.T, status int, body any) *http.Response {
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return &http.Response{
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(raw)),
	}
}

func existingCollection(t *testing.T, size int) *http.Response {
	return okResponse(t, map[string]any{
		"points_count": 7,
		"config": map[string]any{
			"params": map[string]any{
				"vectors": map[string]any{"size": size, "distance": "Cosine"},
			},
		},
	})
}

func fixedEmbedder(texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func newTestVectorStore(t *testing.T, responses ...*http.Response) (*VectorStore, *fakeQdrant) {
	fake := &fakeQdrant{t: t, responses: responses}
	s, err := NewVectorStore(
		&Config{URL: "http://qdrant.local/", Collection: "chunks", APIKey: "secret", Dimension: 3},
		fixedEmbedder,
		nil,
		WithHTTPClient(&http.Client{Transport: roundTripFunc(fake.roundTrip)}),
	)
	require.NoError(t, err, "Expected NewVectorStore to not return an error")
	return s, fake
}

func TestConfig(t *testing.T) {
	t.Run("Valid config", func(t *testing.T) {
		assert.NoError(t, (&Config{URL: "http://qdrant:6333", Collection: "c", Dimension: 384}).Validate())
	})

	t.Run("Invalid configs", func(t *testing.T) {
		for _, config := range []*Config{
			nil,
			{Collection: "c", Dimension: 3},
			{URL: "qdrant:6333", Collection: "c", Dimension: 3},
			{URL: "http://qdrant:6333", Dimension: 3},
			{URL: "http://qdrant:6333", Collection: "c"},
		} {
			assert.Error(t, config.Validate(), "Expected %+v to be invalid", config)
		}
	})

	t.Run("From environment", func(t *testing.T) {
		t.Setenv("QDRANT_URL", "http://qdrant:6333")
		t.Setenv("QDRANT_COLLECTION", "")
		t.Setenv("QDRANT_API_KEY", "key")
		t.Setenv("EMBEDDING_DIM", "768")

		config, err := NewConfigFromEnv()
		require.NoError(t, err)
		assert.Equal(t, DefaultCollection, config.Collection)
		assert.Equal(t, "key", config.APIKey)
		assert.Equal(t, 768, config.Dimension)
	})

	t.Run("Invalid dimension in environment", func(t *testing.T) {
		t.Setenv("QDRANT_URL", "http://qdrant:6333")
		t.Setenv("EMBEDDING_DIM", "many")

		_, err := NewConfigFromEnv()
		assert.ErrorIs(t, err, helper.ErrValidation)
	})
}

func TestAddChunksBatch(t *testing.T) {
	t.Run("Upsert request shape", func(t *testing.T) {
		s, fake := newTestVectorStore(t,
			existingCollection(t, 3),
			okResponse(t, map[string]any{"operation_id": 1, "status": "completed"}),
		)

		ids, err := s.AddChunksBatch(context.Background(), []*model.EmbeddingChunk{
			{ChunkID: "skills-chunk", EntityID: "person:1", DocID: "1", ChunkType: model.ChunkTypeAttribute, AttributeName: "skills", Text: "Alice - Skills"},
			{EntityID: "person:1", ChunkType: model.ChunkTypeGlobal, Text: "Alice (Person)"},
		})
		require.NoError(t, err)
		require.Len(t, ids, 2)
		assert.Equal(t, "skills-chunk", ids[0])
		assert.NotEmpty(t, ids[1], "Expected a generated chunk id")

		require.Len(t, fake.requests, 2)
		assert.Equal(t, http.MethodGet, fake.requests[0].Method)
		assert.Equal(t, "/collections/chunks", fake.requests[0].Path)

		upsert := fake.requests[1]
		assert.Equal(t, http.MethodPut, upsert.Method)
		assert.Equal(t, "/collections/chunks/points", upsert.Path)
		assert.Equal(t, "wait=true", upsert.Query)

		points, ok := upsert.Body["points"].([]any)
		require.True(t, ok, "Expected a points array")
		require.Len(t, points, 2)
		first := points[0].(map[string]any)
		assert.Equal(t, pointID("skills-chunk"), first["id"], "Expected a derived UUID point id")
		assert.Equal(t, []any{1.0, 0.0, 0.0}, first["vector"])
		payload := first["payload"].(map[string]any)
		assert.Equal(t, "skills-chunk", payload[model.PayloadChunkID])
		assert.Equal(t, "person:1", payload[model.PayloadEntityID])
		assert.Equal(t, "attribute", payload[model.PayloadChunkType])
		assert.Equal(t, "skills", payload[model.PayloadAttributeName])
		second := points[1].(map[string]any)
		assert.Equal(t, ids[1], second["id"], "Expected UUID chunk ids to be used as point ids")
	})

	t.Run("Missing collection is created", func(t *testing.T) {
		s, fake := newTestVectorStore(t,
			jsonResponse(t, http.StatusNotFound, map[string]any{"status": map[string]any{"error": "Not found"}}),
			okResponse(t, true),
			okResponse(t, map[string]any{"status": "completed"}),
		)

		_, err := s.AddChunkVector(context.Background(), &model.EmbeddingChunk{EntityID: "person:1", ChunkType: model.ChunkTypeGlobal, Text: "x"})
		require.NoError(t, err)

		require.Len(t, fake.requests, 3)
		create := fake.requests[1]
		assert.Equal(t, http.MethodPut, create.Method)
		assert.Equal(t, "/collections/chunks", create.Path)
		assert.Equal(t, map[string]any{"size": 3.0, "distance": "Cosine"}, create.Body["vectors"])
	})

	t.Run("Collection is checked once", func(t *testing.T) {
		s, fake := newTestVectorStore(t,
			existingCollection(t, 3),
			okResponse(t, map[string]any{"status": "completed"}),
			okResponse(t, map[string]any{"status": "completed"}),
		)

		for i := 0; i < 2; i++ {
			_, err := s.AddChunkVector(context.Background(), &model.EmbeddingChunk{EntityID: "person:1", ChunkType: model.ChunkTypeGlobal, Text: "x"})
			require.NoError(t, err)
		}
		assert.Len(t, fake.requests, 3)
	})

	t.Run("Vector size mismatch", func(t *testing.T) {
		s, _ := newTestVectorStore(t, existingCollection(t, 384))

		_, err := s.AddChunkVector(context.Background(), &model.EmbeddingChunk{EntityID: "person:1", Text: "x"})
		assert.ErrorIs(t, err, helper.ErrValidation)
	})

	t.Run("Transport failures are unavailable", func(t *testing.T) {
		s, err := NewVectorStore(
			&Config{URL: "http://qdrant.local", Collection: "chunks", Dimension: 3},
			fixedEmbedder,
			nil,
			WithHTTPClient(&http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
				return nil, errors.New("connection refused")
			})}),
		)
		require.NoError(t, err)

		_, err = s.AddChunkVector(context.Background(), &model.EmbeddingChunk{EntityID: "person:1", Text: "x"})
		assert.ErrorIs(t, err, helper.ErrStoreUnavailable)

		var opError *OperationError
		require.ErrorAs(t, err, &opError)
		assert.Equal(t, OperationErrorTransportFailed, opError.Code)
	})

	t.Run("API key header is sent", func(t *testing.T) {
		var header string
		s, err := NewVectorStore(
			&Config{URL: "http://qdrant.local", Collection: "chunks", APIKey: "secret", Dimension: 3},
			fixedEmbedder,
			nil,
			WithHTTPClient(&http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
				header = r.Header.Get("api-key")
				return existingCollection(t, 3), nil
			})}),
		)
		require.NoError(t, err)

		_, err = s.CollectionInfo(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "secret", header)
	})
}

func TestSearchChunks(t *testing.T) {
	t.Run("Search request shape", func(t *testing.T) {
		s, fake := newTestVectorStore(t,
			existingCollection(t, 3),
			okResponse(t, []map[string]any{
				{"id": "a", "score": 0.71, "payload": map[string]any{"chunk_id": "c2", "entity_id": "person:1", "chunk_type": "global", "text": "Alice"}},
				{"id": "b", "score": 0.93, "payload": map[string]any{"chunk_id": "c1", "entity_id": "person:1", "chunk_type": "attribute", "attribute_name": "skills", "text": "Go", "metadata": map[string]any{"source": "structured_data"}}},
			}),
		)

		chunks, err := s.SearchChunks(context.Background(), "golang", &model.ChunkFilter{EntityID: "person:1", ChunkType: model.ChunkTypeAttribute}, 15, 0.5)
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Equal(t, "c1", chunks[0].ChunkID, "Expected results ordered by score")
		assert.Equal(t, 0.93, chunks[0].Score)
		assert.Equal(t, "skills", chunks[0].AttributeName)
		assert.Equal(t, "structured_data", chunks[0].Metadata["source"])
		assert.Equal(t, model.ChunkTypeGlobal, chunks[1].ChunkType)

		search := fake.requests[1]
		assert.Equal(t, http.MethodPost, search.Method)
		assert.Equal(t, "/collections/chunks/points/search", search.Path)
		assert.Equal(t, 15.0, search.Body["limit"])
		assert.Equal(t, 0.5, search.Body["score_threshold"])
		assert.Equal(t, true, search.Body["with_payload"])
		assert.Equal(t, map[string]any{"must": []any{
			map[string]any{"key": "entity_id", "match": map[string]any{"value": "person:1"}},
			map[string]any{"key": "chunk_type", "match": map[string]any{"value": "attribute"}},
		}}, search.Body["filter"])
	})

	t.Run("No filter and default limit", func(t *testing.T) {
		s, fake := newTestVectorStore(t, existingCollection(t, 3), okResponse(t, []any{}))

		chunks, err := s.SearchChunks(context.Background(), "anything", nil, 0, 0.5)
		require.NoError(t, err)
		assert.Empty(t, chunks)
		assert.Equal(t, float64(model.DefaultSearchLimitEntities), fake.requests[1].Body["limit"])
		assert.NotContains(t, fake.requests[1].Body, "filter")
	})
}

func TestGetEntityChunks(t *testing.T) {
	t.Run("Scroll is paginated", func(t *testing.T) {
		s, fake := newTestVectorStore(t,
			existingCollection(t, 3),
			okResponse(t, map[string]any{
				"points": []map[string]any{
					{"id": "a", "payload": map[string]any{"chunk_id": "c2", "entity_id": "person:1", "chunk_type": "attribute", "attribute_name": "skills"}},
				},
				"next_page_offset": "b",
			}),
			okResponse(t, map[string]any{
				"points": []map[string]any{
					{"id": "b", "payload": map[string]any{"chunk_id": "c1", "entity_id": "person:1", "chunk_type": "global"}},
				},
				"next_page_offset": nil,
			}),
		)

		chunks, err := s.GetEntityChunks(context.Background(), "person:1", nil)
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Equal(t, model.ChunkTypeGlobal, chunks[0].ChunkType, "Expected global chunks first")
		assert.Equal(t, "skills", chunks[1].AttributeName)

		require.Len(t, fake.requests, 3)
		assert.Equal(t, "/collections/chunks/points/scroll", fake.requests[1].Path)
		assert.NotContains(t, fake.requests[1].Body, "offset")
		assert.Equal(t, "b", fake.requests[2].Body["offset"], "Expected the next page offset to be passed on")
	})
}

func TestDeleteEntityChunks(t *testing.T) {
	t.Run("Count then delete", func(t *testing.T) {
		s, fake := newTestVectorStore(t,
			existingCollection(t, 3),
			okResponse(t, map[string]any{"count": 3}),
			okResponse(t, map[string]any{"status": "completed"}),
		)

		deleted, err := s.DeleteEntityChunks(context.Background(), "person:1", nil)
		require.NoError(t, err)
		assert.Equal(t, 3, deleted)

		require.Len(t, fake.requests, 3)
		assert.Equal(t, "/collections/chunks/points/count", fake.requests[1].Path)
		assert.Equal(t, true, fake.requests[1].Body["exact"])
		assert.Equal(t, "/collections/chunks/points/delete", fake.requests[2].Path)
		assert.Equal(t, "wait=true", fake.requests[2].Query)
		assert.Equal(t, fake.requests[1].Body["filter"], fake.requests[2].Body["filter"], "Expected the same filter for count and delete")
	})

	t.Run("Nothing to delete", func(t *testing.T) {
		s, fake := newTestVectorStore(t,
			existingCollection(t, 3),
			okResponse(t, map[string]any{"count": 0}),
		)

		deleted, err := s.DeleteEntityChunks(context.Background(), "person:1", &model.ChunkFilter{AttributeName: "skills"})
		require.NoError(t, err)
		assert.Zero(t, deleted)
		assert.Len(t, fake.requests, 2, "Expected no delete request")
	})
}

func TestCollectionInfo(t *testing.T) {
	t.Run("Reports the collection", func(t *testing.T) {
		s, _ := newTestVectorStore(t, existingCollection(t, 3), existingCollection(t, 3))

		info, err := s.CollectionInfo(context.Background())
		require.NoError(t, err)
		assert.Equal(t, &model.CollectionInfo{Name: "chunks", VectorCount: 7, Dimension: 3, Distance: "Cosine"}, info)
	})

	t.Run("Error status is returned", func(t *testing.T) {
		s, _ := newTestVectorStore(t, jsonResponse(t, http.StatusInternalServerError, map[string]any{"status": map[string]any{"error": "boom"}}))

		_, err := s.CollectionInfo(context.Background())
		var opError *OperationError
		require.ErrorAs(t, err, &opError)
		assert.Equal(t, OperationErrorQueryFailed, opError.Code)
		assert.Equal(t, http.StatusInternalServerError, opError.StatusCode)
		assert.NotErrorIs(t, err, helper.ErrStoreUnavailable)
	})
}
