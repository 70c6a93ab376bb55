package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/persona/core/store"
	"github.com/siherrmann/persona/helper"
	"github.com/siherrmann/persona/model"
)

const (
	distanceCosine    = "Cosine"
	scrollPageSize    = 256
	maxErrorBodyBytes = 1024
)

// pointIDNamespace derives point ids for chunk ids that are not UUIDs.
var pointIDNamespace = uuid.MustParse("6f1c3a52-7d0e-4b8e-9a41-2f6c1d5e8b37")

type envelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
}

type scoredPoint struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload model.Metadata  `json:"payload"`
}

type collectionResult struct {
	PointsCount int `json:"points_count"`
	Config      struct {
		Params struct {
			Vectors struct {
				Size     int    `json:"size"`
				Distance string `json:"distance"`
			} `json:"vectors"`
		} `json:"params"`
	} `json:"config"`
}

// VectorStore is a store.VectorStore backed by a Qdrant collection.
// The collection is checked, and created with Cosine distance, on first use.
type VectorStore struct {
	cfg     Config
	baseURL string
	http    *http.Client
	embed   store.EmbedFunc
	log     *slog.Logger

	mu    sync.Mutex
	ready bool
}

// Option customizes a VectorStore.
type Option func(*VectorStore)

// WithHTTPClient replaces the default client with a 10 second timeout.
func WithHTTPClient(client *http.Client) Option {
	return func(s *VectorStore) {
		s.http = client
	}
}

// NewVectorStore creates a store for cfg embedding texts with embed.
// No request is made until the first call.
func NewVectorStore(cfg *Config, embed store.EmbedFunc, logger *slog.Logger, opts ...Option) (*VectorStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if embed == nil {
		return nil, helper.NewError("embedder validation", fmt.Errorf("embed function is nil"))
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &VectorStore{
		cfg:     *cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		embed:   embed,
		log:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	logger.Info("Initialized qdrant vector store", slog.String("url", s.baseURL), slog.String("collection", cfg.Collection), slog.Int("dimension", cfg.Dimension))

	return s, nil
}

func (s *VectorStore) AddChunkVector(ctx context.Context, chunk *model.EmbeddingChunk) (string, error) {
	ids, err := s.AddChunksBatch(ctx, []*model.EmbeddingChunk{chunk})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// AddChunksBatch embeds all texts in one call and upserts the points with wait=true.
func (s *VectorStore) AddChunksBatch(ctx context.Context, chunks []*model.EmbeddingChunk) ([]string, error) {
	const op = "upsert"
	if len(chunks) == 0 {
		return []string{}, nil
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
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

	now := time.Now().UTC()
	ids := make([]string, len(chunks))
	points := make([]map[string]any, 0, len(chunks))
	for i, chunk := range chunks {
		if len(embeddings[i]) != s.cfg.Dimension {
			return nil, opErr(op, OperationErrorValidation, fmt.Sprintf("embedding has dimension %d, collection expects %d", len(embeddings[i]), s.cfg.Dimension), nil)
		}
		stored := *chunk
		if stored.ChunkID == "" {
			stored.ChunkID = uuid.NewString()
		}
		stored.CreatedAt = now
		ids[i] = stored.ChunkID
		points = append(points, map[string]any{
			"id":      pointID(stored.ChunkID),
			"vector":  embeddings[i],
			"payload": stored.Payload(),
		})
	}

	req := map[string]any{"points": points}
	if err := s.doJSON(ctx, op, http.MethodPut, s.collectionPath("/points?wait=true"), req, nil); err != nil {
		return nil, err
	}
	return ids, nil
}

// SearchChunks returns chunks with a cosine similarity of at least threshold, best first.
func (s *VectorStore) SearchChunks(ctx context.Context, query string, filter *model.ChunkFilter, limit int, threshold float64) ([]*model.EmbeddingChunk, error) {
	const op = "search"
	if limit <= 0 {
		limit = model.DefaultSearchLimitEntities
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}

	embeddings, err := s.embed([]string{query})
	if err != nil {
		return nil, helper.NewError("embed query", err)
	}
	if len(embeddings) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(embeddings))
	}

	req := map[string]any{
		"vector":          embeddings[0],
		"limit":           limit,
		"with_payload":    true,
		"with_vector":     false,
		"score_threshold": threshold,
	}
	if f := payloadFilter("", filter); f != nil {
		req["filter"] = f
	}

	var points []scoredPoint
	if err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/search"), req, &points); err != nil {
		return nil, err
	}

	chunks := make([]*model.EmbeddingChunk, 0, len(points))
	for _, point := range points {
		chunk := model.ChunkFromPayload(point.Payload)
		chunk.Score = point.Score
		chunks = append(chunks, chunk)
	}
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Score != chunks[j].Score {
			return chunks[i].Score > chunks[j].Score
		}
		return chunks[i].ChunkID < chunks[j].ChunkID
	})
	return chunks, nil
}

// GetEntityChunks scrolls through all pages and returns global chunks first.
func (s *VectorStore) GetEntityChunks(ctx context.Context, entityID string, filter *model.ChunkFilter) ([]*model.EmbeddingChunk, error) {
	const op = "scroll"
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}

	chunks := []*model.EmbeddingChunk{}
	var offset json.RawMessage
	for {
		req := map[string]any{
			"filter":       payloadFilter(entityID, filter),
			"limit":        scrollPageSize,
			"with_payload": true,
			"with_vector":  false,
		}
		if offset != nil {
			req["offset"] = offset
		}

		var page struct {
			Points         []scoredPoint   `json:"points"`
			NextPageOffset json.RawMessage `json:"next_page_offset"`
		}
		if err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/scroll"), req, &page); err != nil {
			return nil, err
		}
		for _, point := range page.Points {
			chunks = append(chunks, model.ChunkFromPayload(point.Payload))
		}

		if len(page.NextPageOffset) == 0 || string(page.NextPageOffset) == "null" {
			break
		}
		offset = page.NextPageOffset
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		gi, gj := chunks[i].ChunkType == model.ChunkTypeGlobal, chunks[j].ChunkType == model.ChunkTypeGlobal
		if gi != gj {
			return gi
		}
		if chunks[i].AttributeName != chunks[j].AttributeName {
			return chunks[i].AttributeName < chunks[j].AttributeName
		}
		return chunks[i].ChunkID < chunks[j].ChunkID
	})
	return chunks, nil
}

// DeleteEntityChunks counts the matching points, then deletes them by filter.
func (s *VectorStore) DeleteEntityChunks(ctx context.Context, entityID string, filter *model.ChunkFilter) (int, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return 0, err
	}

	f := payloadFilter(entityID, filter)

	var counted struct {
		Count int `json:"count"`
	}
	if err := s.doJSON(ctx, "count", http.MethodPost, s.collectionPath("/points/count"), map[string]any{"filter": f, "exact": true}, &counted); err != nil {
		return 0, err
	}
	if counted.Count == 0 {
		return 0, nil
	}

	if err := s.doJSON(ctx, "delete", http.MethodPost, s.collectionPath("/points/delete?wait=true"), map[string]any{"filter": f}, nil); err != nil {
		return 0, err
	}
	return counted.Count, nil
}

// CollectionInfo reports the point count, dimension and distance of the collection.
func (s *VectorStore) CollectionInfo(ctx context.Context) (*model.CollectionInfo, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}

	var result collectionResult
	if err := s.doJSON(ctx, "collection_info", http.MethodGet, s.collectionPath(""), nil, &result); err != nil {
		return nil, err
	}
	return &model.CollectionInfo{
		Name:        s.cfg.Collection,
		VectorCount: result.PointsCount,
		Dimension:   result.Config.Params.Vectors.Size,
		Distance:    result.Config.Params.Vectors.Distance,
	}, nil
}

// Close releases idle connections.
func (s *VectorStore) Close(ctx context.Context) error {
	s.http.CloseIdleConnections()
	return nil
}

// ensureCollection creates the collection on first use and checks the vector size of an existing one.
func (s *VectorStore) ensureCollection(ctx context.Context) error {
	const op = "ensure_collection"

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}

	var result collectionResult
	err := s.doJSON(ctx, op, http.MethodGet, s.collectionPath(""), nil, &result)
	var opError *OperationError
	if errors.As(err, &opError) && opError.StatusCode == http.StatusNotFound {
		req := map[string]any{
			"vectors": map[string]any{
				"size":     s.cfg.Dimension,
				"distance": distanceCosine,
			},
		}
		if err := s.doJSON(ctx, op, http.MethodPut, s.collectionPath(""), req, nil); err != nil {
			return err
		}
		s.log.Info("Created qdrant collection", slog.String("collection", s.cfg.Collection), slog.Int("dimension", s.cfg.Dimension))
		s.ready = true
		return nil
	}
	if err != nil {
		return err
	}

	if size := result.Config.Params.Vectors.Size; size != 0 && size != s.cfg.Dimension {
		return opErr(op, OperationErrorValidation, fmt.Sprintf("collection %q has vector size %d, expected %d", s.cfg.Collection, size, s.cfg.Dimension), nil)
	}
	s.ready = true
	return nil
}

func (s *VectorStore) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("api-key", s.cfg.APIKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("body=%q", truncateBody(raw)),
		}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode envelope failed", err)
	}
	if status := parseStatus(env.Status); status != "" {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    status,
		}
	}

	if out == nil || len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode result failed", err)
	}
	return nil
}

func (s *VectorStore) collectionPath(suffix string) string {
	return "/collections/" + s.cfg.Collection + suffix
}

// pointID keeps UUID chunk ids and derives a stable UUID for any other id.
func pointID(chunkID string) string {
	if parsed, err := uuid.Parse(chunkID); err == nil {
		return parsed.String()
	}
	return uuid.NewSHA1(pointIDNamespace, []byte(chunkID)).String()
}

func payloadFilter(entityID string, filter *model.ChunkFilter) map[string]any {
	var must []any
	match := func(key, value string) {
		if value != "" {
			must = append(must, map[string]any{"key": key, "match": map[string]any{"value": value}})
		}
	}
	if entityID == "" && filter != nil {
		entityID = filter.EntityID
	}
	match(model.PayloadEntityID, entityID)
	if filter != nil {
		match(model.PayloadChunkType, string(filter.ChunkType))
		match(model.PayloadAttributeName, filter.AttributeName)
	}
	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

func parseStatus(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}

	var statusString string
	if err := json.Unmarshal(raw, &statusString); err == nil {
		if strings.EqualFold(statusString, "ok") || strings.EqualFold(statusString, "acknowledged") || strings.EqualFold(statusString, "completed") {
			return ""
		}
		return fmt.Sprintf("status=%q", statusString)
	}

	var statusObject struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &statusObject); err == nil && statusObject.Error != "" {
		return statusObject.Error
	}
	return "status=" + status
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}
