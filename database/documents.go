package database

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/siherrmann/persona/helper"
	"github.com/siherrmann/persona/model"
	loadSql "github.com/siherrmann/persona/sql"
)

// DocumentsDBHandler stores entity documents in Postgres.
// It implements store.DocumentStore.
type DocumentsDBHandler struct {
	db *helper.Database
}

// NewDocumentsDBHandler creates a new documents database handler.
// It initializes the database connection and loads document-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewDocumentsDBHandler(db *helper.Database, force bool) (*DocumentsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	documentsDbHandler := &DocumentsDBHandler{
		db: db,
	}

	err := loadSql.LoadDocumentsSql(documentsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load documents sql", err)
	}

	err = documentsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized DocumentsDBHandler")

	return documentsDbHandler, nil
}

// CreateTable creates the 'documents' table in the database.
// If the table already exists, it does not create it again.
func (h *DocumentsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_documents();`)
	if err != nil {
		return helper.NewError("init documents", err)
	}

	h.db.Logger.Info("Checked/created table documents")

	return nil
}

// CreateDocument inserts the document with version 1 and returns its entity id.
// A second document for the same entity fails with helper.ErrAlreadyExists.
func (h *DocumentsDBHandler) CreateDocument(ctx context.Context, doc *model.Document) (string, error) {
	if doc.EntityID == "" {
		return "", helper.NewValidationError("entity id is required")
	}

	stored := *doc
	stored.Prepare(time.Now().UTC())

	var id string
	err := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM insert_document($1, $2, $3, $4, $5, $6, $7, $8)`,
		stored.EntityID,
		stored.EntityType,
		stored.EntityName,
		stored.Structured,
		stored.Content,
		stored.Text,
		stored.Metadata,
		stored.CreatedAt,
	).Scan(&id)
	if err != nil {
		return "", classify("create document", err)
	}

	return stored.EntityID, nil
}

// GetDocument returns the document of an entity or helper.ErrNotFound.
func (h *DocumentsDBHandler) GetDocument(ctx context.Context, entityID string) (*model.Document, error) {
	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM select_document($1)`,
		entityID,
	)

	doc := &model.Document{}
	err := scanDocument(row, doc)
	if err != nil {
		return nil, classify("get document", err)
	}

	return doc, nil
}

// UpdateDocument applies a partial update and bumps the version.
// It returns false when no document exists for the entity.
func (h *DocumentsDBHandler) UpdateDocument(ctx context.Context, entityID string, update *model.DocumentUpdate) (bool, error) {
	if update == nil {
		update = &model.DocumentUpdate{}
	}

	var text string
	if update.Text != nil {
		text = *update.Text
	}

	var updated int
	err := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT update_document($1, $2, $3, $4, $5, $6, $7)`,
		entityID,
		jsonbParam(update.Structured),
		jsonbParam(update.Content),
		update.Text != nil,
		text,
		jsonbParam(update.Metadata),
		update.Merge,
	).Scan(&updated)
	if err != nil {
		return false, classify("update document", err)
	}

	return updated > 0, nil
}

// DeleteDocument deletes the document, returning false when there was none.
func (h *DocumentsDBHandler) DeleteDocument(ctx context.Context, entityID string) (bool, error) {
	var deleted int
	err := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT delete_document($1)`,
		entityID,
	).Scan(&deleted)
	if err != nil {
		return false, classify("delete document", err)
	}

	return deleted > 0, nil
}

// SearchDocuments returns matching documents, most recently updated first.
func (h *DocumentsDBHandler) SearchDocuments(ctx context.Context, filter *model.DocumentFilter) ([]*model.Document, error) {
	var entityType, textSearch string
	var tags []string
	if filter != nil {
		entityType = filter.EntityType
		textSearch = filter.TextSearch
		tags = filter.Tags
	}

	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM search_documents($1, $2, $3, $4)`,
		entityType,
		pq.Array(tags),
		textSearch,
		filter.EffectiveLimit(),
	)
	if err != nil {
		return nil, classify("query", err)
	}
	defer rows.Close()

	documents := []*model.Document{}
	for rows.Next() {
		doc := &model.Document{}
		err := scanDocument(rows, doc)
		if err != nil {
			return nil, classify("scan", err)
		}
		documents = append(documents, doc)
	}

	if err = rows.Err(); err != nil {
		return nil, classify("rows error", err)
	}

	return documents, nil
}

// ListEntityIDs returns the sorted entity ids of all documents, optionally of one type.
func (h *DocumentsDBHandler) ListEntityIDs(ctx context.Context, entityType string) ([]string, error) {
	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM list_entity_ids($1)`,
		entityType,
	)
	if err != nil {
		return nil, classify("query", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, classify("scan", err)
		}
		ids = append(ids, id)
	}

	if err = rows.Err(); err != nil {
		return nil, classify("rows error", err)
	}

	return ids, nil
}

// Close is a no-op, the connection pool is owned by the caller.
func (h *DocumentsDBHandler) Close(ctx context.Context) error {
	return nil
}

func scanDocument(row rowScanner, doc *model.Document) error {
	return row.Scan(
		&doc.ID,
		&doc.EntityID,
		&doc.EntityType,
		&doc.EntityName,
		&doc.Structured,
		&doc.Content,
		&doc.Text,
		&doc.Metadata,
		&doc.Version,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
}

// jsonbParam passes a nil map as SQL NULL instead of an empty object.
func jsonbParam(m model.Metadata) any {
	if m == nil {
		return nil
	}
	return m
}
