package mongodb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/siherrmann/persona/helper"
	"github.com/siherrmann/persona/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// DocumentStore is a store.DocumentStore backed by one MongoDB collection.
// The client is connected, and the indexes created, on first use.
type DocumentStore struct {
	cfg Config
	log *slog.Logger

	mu         sync.Mutex
	client     *mongo.Client
	collection *mongo.Collection
}

// NewDocumentStore validates cfg. No connection is made until the first call.
func NewDocumentStore(cfg *Config, logger *slog.Logger) (*DocumentStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("Initialized mongodb document store", slog.String("database", cfg.Database), slog.String("collection", cfg.Collection))

	return &DocumentStore{cfg: *cfg, log: logger}, nil
}

func (s *DocumentStore) connect(ctx context.Context) (*mongo.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.collection != nil {
		return s.collection, nil
	}

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(s.cfg.URI).
		SetServerSelectionTimeout(10*time.Second))
	if err != nil {
		return nil, classify("connect", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, helper.NewError("ping", fmt.Errorf("%w: %w", helper.ErrStoreUnavailable, err))
	}

	collection := client.Database(s.cfg.Database).Collection(s.cfg.Collection)
	_, err = collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "entity_id", Value: 1}}, Options: options.Index().SetUnique(true).SetName("entity_id_unique")},
		{Keys: bson.D{{Key: "entity_type", Value: 1}}, Options: options.Index().SetName("entity_type")},
		{Keys: bson.D{{Key: "metadata.tags", Value: 1}}, Options: options.Index().SetName("metadata_tags")},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, classify("create indexes", err)
	}

	s.log.Info("Checked/created mongodb indexes", slog.String("collection", s.cfg.Collection))

	s.client = client
	s.collection = collection
	return collection, nil
}

// CreateDocument inserts doc as version 1 and returns its entity id.
func (s *DocumentStore) CreateDocument(ctx context.Context, doc *model.Document) (string, error) {
	if doc == nil || doc.EntityID == "" {
		return "", helper.NewValidationError("document requires an entity id")
	}
	for name, m := range map[string]model.Metadata{"content": doc.Content, "structured": doc.Structured, "metadata": doc.Metadata} {
		if err := checkKeys(name, m); err != nil {
			return "", err
		}
	}
	collection, err := s.connect(ctx)
	if err != nil {
		return "", err
	}

	prepared := *doc
	prepared.Prepare(time.Now())

	_, err = collection.InsertOne(ctx, newRecord(&prepared))
	if err != nil {
		return "", classify("insert document", err)
	}
	return prepared.EntityID, nil
}

func (s *DocumentStore) GetDocument(ctx context.Context, entityID string) (*model.Document, error) {
	collection, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	var record documentRecord
	err = collection.FindOne(ctx, bson.M{"entity_id": entityID}).Decode(&record)
	if err != nil {
		return nil, classify("get document", err)
	}
	return record.document(), nil
}

// UpdateDocument applies update atomically and bumps the version.
// It returns false when no document exists for entityID.
func (s *DocumentStore) UpdateDocument(ctx context.Context, entityID string, update *model.DocumentUpdate) (bool, error) {
	if update == nil {
		update = &model.DocumentUpdate{}
	}
	change, err := updateDocument(update, time.Now())
	if err != nil {
		return false, helper.NewError("update document", err)
	}
	collection, err := s.connect(ctx)
	if err != nil {
		return false, err
	}

	result, err := collection.UpdateOne(ctx, bson.M{"entity_id": entityID}, change)
	if err != nil {
		return false, classify("update document", err)
	}
	return result.MatchedCount > 0, nil
}

func (s *DocumentStore) DeleteDocument(ctx context.Context, entityID string) (bool, error) {
	collection, err := s.connect(ctx)
	if err != nil {
		return false, err
	}

	result, err := collection.DeleteOne(ctx, bson.M{"entity_id": entityID})
	if err != nil {
		return false, classify("delete document", err)
	}
	return result.DeletedCount > 0, nil
}

// SearchDocuments filters by type, any shared tag and a case-insensitive name
// substring, most recently updated first.
func (s *DocumentStore) SearchDocuments(ctx context.Context, filter *model.DocumentFilter) ([]*model.Document, error) {
	collection, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	query := bson.M{}
	if filter != nil {
		if filter.EntityType != "" {
			query["entity_type"] = filter.EntityType
		}
		if len(filter.Tags) > 0 {
			query["metadata.tags"] = bson.M{"$in": filter.Tags}
		}
		if filter.TextSearch != "" {
			query["entity_name"] = bson.M{"$regex": regexp.QuoteMeta(filter.TextSearch), "$options": "i"}
		}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "entity_id", Value: 1}}).
		SetLimit(int64(filter.EffectiveLimit()))

	cursor, err := collection.Find(ctx, query, opts)
	if err != nil {
		return nil, classify("search documents", err)
	}
	defer cursor.Close(ctx)

	var records []documentRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, classify("decode documents", err)
	}

	docs := make([]*model.Document, 0, len(records))
	for i := range records {
		docs = append(docs, records[i].document())
	}
	return docs, nil
}

func (s *DocumentStore) ListEntityIDs(ctx context.Context, entityType string) ([]string, error) {
	collection, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	query := bson.M{}
	if entityType != "" {
		query["entity_type"] = entityType
	}
	opts := options.Find().
		SetProjection(bson.M{"entity_id": 1, "_id": 0}).
		SetSort(bson.D{{Key: "entity_id", Value: 1}})

	cursor, err := collection.Find(ctx, query, opts)
	if err != nil {
		return nil, classify("list entity ids", err)
	}
	defer cursor.Close(ctx)

	ids := []string{}
	for cursor.Next(ctx) {
		var row struct {
			EntityID string `bson:"entity_id"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, classify("decode entity id", err)
		}
		ids = append(ids, row.EntityID)
	}
	if err := cursor.Err(); err != nil {
		return nil, classify("list entity ids", err)
	}
	return ids, nil
}

func (s *DocumentStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	err := s.client.Disconnect(ctx)
	s.client = nil
	s.collection = nil
	return err
}

// classify maps driver errors onto the helper sentinels.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return helper.NewError(op, fmt.Errorf("%w: %w", helper.ErrNotFound, err))
	case mongo.IsDuplicateKeyError(err):
		return helper.NewError(op, fmt.Errorf("%w: %w", helper.ErrAlreadyExists, err))
	case mongo.IsNetworkError(err), mongo.IsTimeout(err), errors.Is(err, mongo.ErrClientDisconnected):
		return helper.NewError(op, fmt.Errorf("%w: %w", helper.ErrStoreUnavailable, err))
	}
	return helper.NewError(op, err)
}
