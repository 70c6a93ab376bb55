package database

import (
	"context"

	"github.com/siherrmann/persona/model"
)

// AddRelationship inserts or refreshes the (source, target, type) relationship.
// A missing endpoint violates a foreign key and is reported as helper.ErrNotFound.
func (h *GraphDBHandler) AddRelationship(ctx context.Context, rel *model.Relationship) (*model.Relationship, error) {
	stored := *rel
	if err := stored.Normalize(); err != nil {
		return nil, err
	}

	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM upsert_relationship($1, $2, $3, $4, $5, $6)`,
		stored.SourceID,
		stored.TargetID,
		stored.Type,
		stored.Source,
		stored.ConfidenceValue(),
		stored.Properties,
	)

	result := &model.Relationship{}
	err := row.Scan(
		&result.SourceID,
		&result.TargetID,
		&result.Type,
		&result.Source,
		&result.Confidence,
		&result.Properties,
		&result.CreatedAt,
		&result.UpdatedAt,
	)
	if err != nil {
		return nil, classify("add relationship", err)
	}

	return result, nil
}

// GetNeighbors returns outgoing neighbors first, each direction ordered by
// relationship type and neighbor id.
func (h *GraphDBHandler) GetNeighbors(ctx context.Context, entityID string) ([]*model.Neighbor, error) {
	if _, err := h.GetEntity(ctx, entityID); err != nil {
		return nil, err
	}

	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM select_neighbors($1)`,
		entityID,
	)
	if err != nil {
		return nil, classify("query", err)
	}
	defer rows.Close()

	neighbors := []*model.Neighbor{}
	for rows.Next() {
		var direction string
		neighbor := &model.Neighbor{
			Entity:       &model.Entity{},
			Relationship: &model.Relationship{},
		}
		err := rows.Scan(
			&direction,
			&neighbor.Relationship.SourceID,
			&neighbor.Relationship.TargetID,
			&neighbor.Relationship.Type,
			&neighbor.Relationship.Source,
			&neighbor.Relationship.Confidence,
			&neighbor.Relationship.Properties,
			&neighbor.Relationship.CreatedAt,
			&neighbor.Relationship.UpdatedAt,
			&neighbor.Entity.EntityID,
			&neighbor.Entity.Type,
			&neighbor.Entity.Name,
			&neighbor.Entity.Properties,
			&neighbor.Entity.CreatedAt,
			&neighbor.Entity.UpdatedAt,
		)
		if err != nil {
			return nil, classify("scan", err)
		}
		neighbor.Direction = model.Direction(direction)
		neighbors = append(neighbors, neighbor)
	}

	if err = rows.Err(); err != nil {
		return nil, classify("rows error", err)
	}

	return neighbors, nil
}
