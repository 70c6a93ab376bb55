package neo4jdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/siherrmann/persona/helper"
	"github.com/siherrmann/persona/model"
)

// GraphStore is a store.GraphStore backed by Neo4j.
// Every entity is an :Entity node carrying an extra label derived from its type.
// The driver is opened on first use.
type GraphStore struct {
	cfg Config
	log *slog.Logger

	mu     sync.Mutex
	driver neo4j.DriverWithContext
}

// NewGraphStore validates cfg. No connection is made until the first call.
func NewGraphStore(cfg *Config, logger *slog.Logger) (*GraphStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("Initialized neo4j graph store", slog.String("uri", cfg.URI))

	return &GraphStore{cfg: *cfg, log: logger}, nil
}

func (g *GraphStore) connect(ctx context.Context) (neo4j.DriverWithContext, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.driver != nil {
		return g.driver, nil
	}

	auth := neo4j.BasicAuth(g.cfg.User, g.cfg.Password, "")
	driver, err := neo4j.NewDriverWithContext(g.cfg.URI, auth, func(cfg *neo4j.Config) {
		cfg.MaxConnectionPoolSize = 50
		cfg.ConnectionAcquisitionTimeout = 10 * time.Second
	})
	if err != nil {
		return nil, classify("init driver", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(context.Background())
		return nil, helper.NewError("verify connectivity", fmt.Errorf("%w: %w", helper.ErrStoreUnavailable, err))
	}

	g.driver = driver
	g.ensureSchema(ctx)

	return driver, nil
}

// ensureSchema creates the entity id constraint. Failures only log.
func (g *GraphStore) ensureSchema(ctx context.Context) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: g.cfg.Database, AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `CREATE CONSTRAINT entity_id_unique IF NOT EXISTS FOR (e:Entity) REQUIRE e.entity_id IS UNIQUE`, nil)
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	if err != nil {
		g.log.Warn("Failed to create entity constraint", slog.String("error", err.Error()))
	}
}

func (g *GraphStore) write(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error) {
	driver, err := g.connect(ctx)
	if err != nil {
		return nil, err
	}
	session := driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: g.cfg.Database, AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)
	return session.ExecuteWrite(ctx, work)
}

func (g *GraphStore) read(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error) {
	driver, err := g.connect(ctx)
	if err != nil {
		return nil, err
	}
	session := driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: g.cfg.Database, AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)
	return session.ExecuteRead(ctx, work)
}

// AddEntity merges the node on entity_id. A changed type swaps the type label.
func (g *GraphStore) AddEntity(ctx context.Context, entityID, entityType, name string, properties model.Metadata) (*model.Entity, error) {
	if entityID == "" {
		return nil, helper.NewValidationError("entity id is required")
	}
	props, err := encodeProperties(properties)
	if err != nil {
		return nil, helper.NewError("encode properties", helper.NewValidationError("%v", err))
	}

	result, err := g.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (e:Entity {entity_id: $entity_id}) RETURN e.entity_type AS entity_type`, map[string]any{"entity_id": entityID})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}

		removeLabel := ""
		if len(records) > 0 {
			oldType, _ := records[0].Get("entity_type")
			if s, ok := oldType.(string); ok && typeLabel(s) != typeLabel(entityType) {
				removeLabel = typeLabel(s)
			}
		}

		cypher := `MERGE (e:Entity {entity_id: $entity_id})
ON CREATE SET e.created_at = $now
SET e.entity_type = $entity_type, e.name = $name, e.updated_at = $now, e += $props`
		if removeLabel != "" && removeLabel != "Entity" {
			cypher += fmt.Sprintf("\nREMOVE e:`%s`", removeLabel)
		}
		if label := typeLabel(entityType); label != "" && label != "Entity" {
			cypher += fmt.Sprintf("\nSET e:`%s`", label)
		}
		cypher += "\nRETURN e"

		res, err = tx.Run(ctx, cypher, map[string]any{
			"entity_id":   entityID,
			"entity_type": entityType,
			"name":        name,
			"now":         time.Now().UTC(),
			"props":       props,
		})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		node, _, err := neo4j.GetRecordValue[neo4j.Node](record, "e")
		if err != nil {
			return nil, err
		}
		return entityFromProps(node.Props), nil
	})
	if err != nil {
		return nil, classify("add entity", err)
	}
	return result.(*model.Entity), nil
}

// AddRelationship merges the typed edge between two existing nodes.
func (g *GraphStore) AddRelationship(ctx context.Context, rel *model.Relationship) (*model.Relationship, error) {
	if rel == nil {
		return nil, helper.NewValidationError("relationship is nil")
	}
	normalized := *rel
	if err := normalized.Normalize(); err != nil {
		return nil, err
	}
	props, err := encodeProperties(normalized.Properties)
	if err != nil {
		return nil, helper.NewError("encode properties", helper.NewValidationError("%v", err))
	}

	// The type is safe to interpolate after Normalize.
	cypher := fmt.Sprintf(`MATCH (a:Entity {entity_id: $source_id}), (b:Entity {entity_id: $target_id})
MERGE (a)-[r:`+"`%s`"+`]->(b)
ON CREATE SET r.created_at = $now
SET r.source = $source, r.confidence = $confidence, r.updated_at = $now, r += $props
RETURN r`, normalized.Type)

	result, err := g.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, map[string]any{
			"source_id":  normalized.SourceID,
			"target_id":  normalized.TargetID,
			"source":     normalized.Source,
			"confidence": normalized.ConfidenceValue(),
			"now":        time.Now().UTC(),
			"props":      props,
		})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, helper.ErrNotFound
		}
		r, _, err := neo4j.GetRecordValue[neo4j.Relationship](records[0], "r")
		if err != nil {
			return nil, err
		}
		return relationshipFromProps(r.Type, normalized.SourceID, normalized.TargetID, r.Props), nil
	})
	if err != nil {
		return nil, classify("add relationship", err)
	}
	return result.(*model.Relationship), nil
}

func (g *GraphStore) GetEntity(ctx context.Context, entityID string) (*model.Entity, error) {
	result, err := g.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return getEntity(ctx, tx, entityID)
	})
	if err != nil {
		return nil, classify("get entity", err)
	}
	return result.(*model.Entity), nil
}

func getEntity(ctx context.Context, tx neo4j.ManagedTransaction, entityID string) (*model.Entity, error) {
	res, err := tx.Run(ctx, `MATCH (e:Entity {entity_id: $entity_id}) RETURN e`, map[string]any{"entity_id": entityID})
	if err != nil {
		return nil, err
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, helper.ErrNotFound
	}
	node, _, err := neo4j.GetRecordValue[neo4j.Node](records[0], "e")
	if err != nil {
		return nil, err
	}
	return entityFromProps(node.Props), nil
}

// GetNeighbors returns outgoing neighbors first, each direction ordered by
// relationship type and neighbor id.
func (g *GraphStore) GetNeighbors(ctx context.Context, entityID string) ([]*model.Neighbor, error) {
	result, err := g.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := getEntity(ctx, tx, entityID); err != nil {
			return nil, err
		}

		res, err := tx.Run(ctx, `MATCH (e:Entity {entity_id: $entity_id})-[r]->(n:Entity)
RETURN 'outgoing' AS direction, r, n
UNION ALL
MATCH (e:Entity {entity_id: $entity_id})<-[r]-(n:Entity)
RETURN 'incoming' AS direction, r, n`, map[string]any{"entity_id": entityID})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}

		var outgoing, incoming []*model.Neighbor
		for _, record := range records {
			direction, _, err := neo4j.GetRecordValue[string](record, "direction")
			if err != nil {
				return nil, err
			}
			r, _, err := neo4j.GetRecordValue[neo4j.Relationship](record, "r")
			if err != nil {
				return nil, err
			}
			n, _, err := neo4j.GetRecordValue[neo4j.Node](record, "n")
			if err != nil {
				return nil, err
			}

			neighbor := entityFromProps(n.Props)
			if model.Direction(direction) == model.DirectionOutgoing {
				outgoing = append(outgoing, &model.Neighbor{
					Entity:       neighbor,
					Relationship: relationshipFromProps(r.Type, entityID, neighbor.EntityID, r.Props),
					Direction:    model.DirectionOutgoing,
				})
			} else {
				incoming = append(incoming, &model.Neighbor{
					Entity:       neighbor,
					Relationship: relationshipFromProps(r.Type, neighbor.EntityID, entityID, r.Props),
					Direction:    model.DirectionIncoming,
				})
			}
		}
		sortNeighbors(outgoing)
		sortNeighbors(incoming)

		return append(outgoing, incoming...), nil
	})
	if err != nil {
		return nil, classify("get neighbors", err)
	}
	return result.([]*model.Neighbor), nil
}

// DeleteEntity detaches and deletes the node.
func (g *GraphStore) DeleteEntity(ctx context.Context, entityID string) error {
	_, err := g.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (e:Entity {entity_id: $entity_id}) DETACH DELETE e RETURN count(*) AS deleted`, map[string]any{"entity_id": entityID})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		deleted, _, err := neo4j.GetRecordValue[int64](record, "deleted")
		if err != nil {
			return nil, err
		}
		if deleted == 0 {
			return nil, helper.ErrNotFound
		}
		return nil, nil
	})
	if err != nil {
		return classify("delete entity", err)
	}
	return nil
}

func (g *GraphStore) Close(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.driver == nil {
		return nil
	}
	err := g.driver.Close(ctx)
	g.driver = nil
	return err
}

func sortNeighbors(neighbors []*model.Neighbor) {
	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Relationship.Type != neighbors[j].Relationship.Type {
			return neighbors[i].Relationship.Type < neighbors[j].Relationship.Type
		}
		return neighbors[i].Entity.EntityID < neighbors[j].Entity.EntityID
	})
}

// classify maps driver errors onto the helper sentinels.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, helper.ErrNotFound), errors.Is(err, helper.ErrValidation), errors.Is(err, helper.ErrStoreUnavailable):
		return helper.NewError(op, err)
	case neo4j.IsConnectivityError(err), errors.Is(err, context.DeadlineExceeded):
		return helper.NewError(op, fmt.Errorf("%w: %w", helper.ErrStoreUnavailable, err))
	}

	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) && neoErr.Code == "Neo.ClientError.Schema.ConstraintValidationFailed" {
		return helper.NewError(op, fmt.Errorf("%w: %w", helper.ErrAlreadyExists, err))
	}
	return helper.NewError(op, err)
}
