package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/siherrmann/persona/helper"
	"github.com/siherrmann/persona/model"
)

// DocumentStore is an in-process store.DocumentStore.
// Documents are deep-copied through JSON on the way in and out, like a real store would.
type DocumentStore struct {
	mu        sync.RWMutex
	documents map[string]*model.Document
	sequence  int
}

// NewDocumentStore creates an empty document store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{documents: map[string]*model.Document{}}
}

func (s *DocumentStore) CreateDocument(ctx context.Context, doc *model.Document) (string, error) {
	if doc.EntityID == "" {
		return "", helper.NewValidationError("entity id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[doc.EntityID]; ok {
		return "", helper.NewError("create document", helper.ErrAlreadyExists)
	}

	stored, err := copyDocument(doc)
	if err != nil {
		return "", helper.NewError("create document", err)
	}
	s.sequence++
	stored.ID = strconv.Itoa(s.sequence)
	stored.Prepare(time.Now().UTC())
	s.documents[doc.EntityID] = stored

	return doc.EntityID, nil
}

func (s *DocumentStore) GetDocument(ctx context.Context, entityID string) (*model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[entityID]
	if !ok {
		return nil, helper.NewError("get document", helper.ErrNotFound)
	}
	return copyDocument(doc)
}

func (s *DocumentStore) UpdateDocument(ctx context.Context, entityID string, update *model.DocumentUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[entityID]
	if !ok {
		return false, nil
	}

	changes, err := copyUpdate(update)
	if err != nil {
		return false, helper.NewError("update document", err)
	}
	changes.Apply(doc, time.Now().UTC())
	return true, nil
}

func (s *DocumentStore) DeleteDocument(ctx context.Context, entityID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[entityID]; !ok {
		return false, nil
	}
	delete(s.documents, entityID)
	return true, nil
}

// SearchDocuments returns matching documents, most recently updated first.
func (s *DocumentStore) SearchDocuments(ctx context.Context, filter *model.DocumentFilter) ([]*model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []*model.Document
	for _, doc := range s.documents {
		if filter.Matches(doc) {
			matches = append(matches, doc)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].UpdatedAt.Equal(matches[j].UpdatedAt) {
			return matches[i].UpdatedAt.After(matches[j].UpdatedAt)
		}
		return matches[i].EntityID < matches[j].EntityID
	})
	if limit := filter.EffectiveLimit(); len(matches) > limit {
		matches = matches[:limit]
	}

	out := make([]*model.Document, 0, len(matches))
	for _, doc := range matches {
		clone, err := copyDocument(doc)
		if err != nil {
			return nil, helper.NewError("search documents", err)
		}
		out = append(out, clone)
	}
	return out, nil
}

// ListEntityIDs returns the sorted ids of all documents, optionally of one type.
func (s *DocumentStore) ListEntityIDs(ctx context.Context, entityType string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := []string{}
	for id, doc := range s.documents {
		if entityType == "" || doc.EntityType == entityType {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *DocumentStore) Close(ctx context.Context) error {
	return nil
}

func copyDocument(doc *model.Document) (*model.Document, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var clone model.Document
	if err := json.Unmarshal(b, &clone); err != nil {
		return nil, err
	}
	return &clone, nil
}

func copyUpdate(update *model.DocumentUpdate) (*model.DocumentUpdate, error) {
	clone := &model.DocumentUpdate{Text: update.Text, Merge: update.Merge}
	for _, pair := range []struct {
		from model.Metadata
		to   *model.Metadata
	}{
		{update.Content, &clone.Content},
		{update.Structured, &clone.Structured},
		{update.Metadata, &clone.Metadata},
	} {
		if pair.from == nil {
			continue
		}
		b, err := json.Marshal(pair.from)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(b, pair.to); err != nil {
			return nil, err
		}
	}
	return clone, nil
}
