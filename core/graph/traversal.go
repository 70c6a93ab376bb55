package graph

import (
	"context"

	"github.com/siherrmann/persona/model"
)

// GraphDB is the part of a graph store a traversal needs.
type GraphDB interface {
	GetEntity(ctx context.Context, entityID string) (*model.Entity, error)
	GetNeighbors(ctx context.Context, entityID string) ([]*model.Neighbor, error)
}

// BFS walks the graph breadth-first from sourceID up to maxHops away.
// The source itself is the first result. relTypes restricts the followed
// relationship types, an empty list follows all of them.
func BFS(ctx context.Context, db GraphDB, sourceID string, maxHops int, relTypes []string) ([]*model.ContextNode, error) {
	source, err := db.GetEntity(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	allowed := make(map[string]bool, len(relTypes))
	for _, t := range relTypes {
		allowed[t] = true
	}

	visited := map[string]bool{sourceID: true}
	queue := []*model.ContextNode{{
		Entity:   source,
		Distance: 0,
		Path:     []string{sourceID},
	}}

	var results []*model.ContextNode
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		current := queue[0]
		queue = queue[1:]
		results = append(results, current)

		if current.Distance >= maxHops {
			continue
		}

		neighbors, err := db.GetNeighbors(ctx, current.Entity.EntityID)
		if err != nil {
			return nil, err
		}

		for _, neighbor := range neighbors {
			if neighbor.Entity == nil || visited[neighbor.Entity.EntityID] {
				continue
			}
			if len(allowed) > 0 && (neighbor.Relationship == nil || !allowed[neighbor.Relationship.Type]) {
				continue
			}
			visited[neighbor.Entity.EntityID] = true

			path := make([]string, len(current.Path), len(current.Path)+1)
			copy(path, current.Path)
			path = append(path, neighbor.Entity.EntityID)

			queue = append(queue, &model.ContextNode{
				Entity:   neighbor.Entity,
				Distance: current.Distance + 1,
				Path:     path,
				Via:      neighbor,
			})
		}
	}

	return results, nil
}

// GetNeighbors returns the entities one hop away from entityID.
func GetNeighbors(ctx context.Context, db GraphDB, entityID string, relTypes []string) ([]*model.Entity, error) {
	results, err := BFS(ctx, db, entityID, 1, relTypes)
	if err != nil {
		return nil, err
	}

	neighbors := make([]*model.Entity, 0, len(results)-1)
	for _, r := range results[1:] {
		neighbors = append(neighbors, r.Entity)
	}
	return neighbors, nil
}
