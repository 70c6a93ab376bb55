package database

import (
	"context"
	"fmt"
	"time"

	"github.com/siherrmann/persona/helper"
	"github.com/siherrmann/persona/model"
	loadSql "github.com/siherrmann/persona/sql"
)

// GraphDBHandler stores entities and relationships in Postgres.
// It implements store.GraphStore.
type GraphDBHandler struct {
	db *helper.Database
}

// NewGraphDBHandler creates a new graph database handler.
// It loads the entity and relationship SQL functions and creates both tables.
// If force is true, it will reload the SQL functions even if they already exist.
func NewGraphDBHandler(db *helper.Database, force bool) (*GraphDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	graphDbHandler := &GraphDBHandler{
		db: db,
	}

	err := loadSql.LoadEntitiesSql(graphDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load entities sql", err)
	}

	err = loadSql.LoadRelationshipsSql(graphDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load relationships sql", err)
	}

	err = graphDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized GraphDBHandler")

	return graphDbHandler, nil
}

// CreateTable creates the 'entities' and 'relationships' tables in the database.
// If the tables already exist, it does not create them again.
func (h *GraphDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_entities();`)
	if err != nil {
		return helper.NewError("init entities", err)
	}

	_, err = h.db.Instance.ExecContext(ctx, `SELECT init_relationships();`)
	if err != nil {
		return helper.NewError("init relationships", err)
	}

	h.db.Logger.Info("Checked/created tables entities and relationships")

	return nil
}

// AddEntity inserts the entity or updates its type and name, merging properties.
func (h *GraphDBHandler) AddEntity(ctx context.Context, entityID, entityType, name string, properties model.Metadata) (*model.Entity, error) {
	if entityID == "" {
		return nil, helper.NewValidationError("entity id is required")
	}
	if properties == nil {
		properties = model.Metadata{}
	}

	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM upsert_entity($1, $2, $3, $4)`,
		entityID,
		entityType,
		name,
		properties,
	)

	entity := &model.Entity{}
	err := scanEntity(row, entity)
	if err != nil {
		return nil, classify("scan", err)
	}

	return entity, nil
}

// GetEntity returns the entity or helper.ErrNotFound.
func (h *GraphDBHandler) GetEntity(ctx context.Context, entityID string) (*model.Entity, error) {
	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM select_entity($1)`,
		entityID,
	)

	entity := &model.Entity{}
	err := scanEntity(row, entity)
	if err != nil {
		return nil, classify("scan", err)
	}

	return entity, nil
}

// DeleteEntity deletes the entity. Its relationships are removed by cascade.
func (h *GraphDBHandler) DeleteEntity(ctx context.Context, entityID string) error {
	var deleted int
	err := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT delete_entity($1)`,
		entityID,
	).Scan(&deleted)
	if err != nil {
		return classify("scan", err)
	}
	if deleted == 0 {
		return helper.NewError("delete entity", helper.ErrNotFound)
	}

	return nil
}

// Close is a no-op, the connection pool is owned by the caller.
func (h *GraphDBHandler) Close(ctx context.Context) error {
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner, entity *model.Entity) error {
	return row.Scan(
		&entity.EntityID,
		&entity.Type,
		&entity.Name,
		&entity.Properties,
		&entity.CreatedAt,
		&entity.UpdatedAt,
	)
}
