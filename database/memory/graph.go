package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/siherrmann/persona/helper"
	"github.com/siherrmann/persona/model"
)

type relationshipKey struct {
	source, target, relType string
}

// GraphStore is an in-process store.GraphStore.
type GraphStore struct {
	mu            sync.RWMutex
	entities      map[string]*model.Entity
	relationships map[relationshipKey]*model.Relationship
}

// NewGraphStore creates an empty graph.
func NewGraphStore() *GraphStore {
	return &GraphStore{
		entities:      map[string]*model.Entity{},
		relationships: map[relationshipKey]*model.Relationship{},
	}
}

func (g *GraphStore) AddEntity(ctx context.Context, entityID, entityType, name string, properties model.Metadata) (*model.Entity, error) {
	if entityID == "" {
		return nil, helper.NewValidationError("entity id is required")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UTC()
	entity, ok := g.entities[entityID]
	if !ok {
		entity = &model.Entity{
			EntityID:   entityID,
			Properties: model.Metadata{},
			CreatedAt:  now,
		}
		g.entities[entityID] = entity
	}
	entity.Type = entityType
	entity.Name = name
	entity.Properties = entity.Properties.Merge(properties)
	entity.UpdatedAt = now

	return cloneEntity(entity), nil
}

func (g *GraphStore) AddRelationship(ctx context.Context, rel *model.Relationship) (*model.Relationship, error) {
	stored := *rel
	if err := stored.Normalize(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.entities[stored.SourceID]; !ok {
		return nil, helper.NewError("add relationship", helper.ErrNotFound)
	}
	if _, ok := g.entities[stored.TargetID]; !ok {
		return nil, helper.NewError("add relationship", helper.ErrNotFound)
	}

	now := time.Now().UTC()
	key := relationshipKey{stored.SourceID, stored.TargetID, stored.Type}
	if existing, ok := g.relationships[key]; ok {
		existing.Source = stored.Source
		existing.Confidence = stored.Confidence
		existing.Properties = existing.Properties.Merge(stored.Properties)
		existing.UpdatedAt = now
		return cloneRelationship(existing), nil
	}

	stored.Properties = stored.Properties.Clone()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	g.relationships[key] = &stored
	return cloneRelationship(&stored), nil
}

func (g *GraphStore) GetEntity(ctx context.Context, entityID string) (*model.Entity, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	entity, ok := g.entities[entityID]
	if !ok {
		return nil, helper.NewError("get entity", helper.ErrNotFound)
	}
	return cloneEntity(entity), nil
}

// GetNeighbors returns outgoing neighbors first, each direction ordered by
// relationship type and neighbor id.
func (g *GraphStore) GetNeighbors(ctx context.Context, entityID string) ([]*model.Neighbor, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.entities[entityID]; !ok {
		return nil, helper.NewError("get neighbors", helper.ErrNotFound)
	}

	var outgoing, incoming []*model.Neighbor
	for key, rel := range g.relationships {
		if key.source == entityID {
			outgoing = append(outgoing, &model.Neighbor{
				Entity:       cloneEntity(g.entities[key.target]),
				Relationship: cloneRelationship(rel),
				Direction:    model.DirectionOutgoing,
			})
		}
		if key.target == entityID {
			incoming = append(incoming, &model.Neighbor{
				Entity:       cloneEntity(g.entities[key.source]),
				Relationship: cloneRelationship(rel),
				Direction:    model.DirectionIncoming,
			})
		}
	}
	sortNeighbors(outgoing)
	sortNeighbors(incoming)

	return append(outgoing, incoming...), nil
}

func (g *GraphStore) DeleteEntity(ctx context.Context, entityID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.entities[entityID]; !ok {
		return helper.NewError("delete entity", helper.ErrNotFound)
	}
	delete(g.entities, entityID)
	for key := range g.relationships {
		if key.source == entityID || key.target == entityID {
			delete(g.relationships, key)
		}
	}
	return nil
}

// RelationshipCount returns the number of stored relationships.
func (g *GraphStore) RelationshipCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.relationships)
}

func (g *GraphStore) Close(ctx context.Context) error {
	return nil
}

func sortNeighbors(neighbors []*model.Neighbor) {
	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Relationship.Type != neighbors[j].Relationship.Type {
			return neighbors[i].Relationship.Type < neighbors[j].Relationship.Type
		}
		return neighbors[i].Entity.EntityID < neighbors[j].Entity.EntityID
	})
}

func cloneEntity(e *model.Entity) *model.Entity {
	clone := *e
	clone.Properties = e.Properties.Clone()
	return &clone
}

func cloneRelationship(r *model.Relationship) *model.Relationship {
	clone := *r
	clone.Properties = r.Properties.Clone()
	if r.Confidence != nil {
		clone.Confidence = model.Confidence(*r.Confidence)
	}
	return &clone
}
