package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

const documentColumns = `uuid, name, location, source_location, hash, type, status, failure, tags, created_by, created_at, updated_at`

// CreateDocument inserts a new document.
func (s *Store) CreateDocument(ctx context.Context, doc *domain.Document) error {
	failure, err := marshalFailure(doc.Failure)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = now
	}

	_, err = s.db.Exec(ctx, `INSERT INTO documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		doc.UUID, doc.Name, doc.Location, doc.SourceLocation, doc.Hash, doc.Type, string(doc.Status),
		failure, nonNilTags(doc.Tags), doc.CreatedBy, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("document %s: %w", doc.UUID, domain.ErrConflict)
		}
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by uuid.
func (s *Store) GetDocument(ctx context.Context, uuid string) (*domain.Document, error) {
	return s.getDocumentBy(ctx, "uuid", uuid)
}

// GetDocumentByHash retrieves a document by content hash.
func (s *Store) GetDocumentByHash(ctx context.Context, hash string) (*domain.Document, error) {
	return s.getDocumentBy(ctx, "hash", hash)
}

// GetDocumentByLocation retrieves a document by indexed location.
func (s *Store) GetDocumentByLocation(ctx context.Context, location string) (*domain.Document, error) {
	return s.getDocumentBy(ctx, "location", location)
}

func (s *Store) getDocumentBy(ctx context.Context, column, value string) (*domain.Document, error) {
	row := s.db.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE `+column+` = $1 LIMIT 1`, value)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("document with %s %s: %w", column, value, domain.ErrNotFound)
	}
	return doc, err
}

// ListDocuments returns documents matching q, newest first. Everything but
// metadata conditions is evaluated in SQL.
func (s *Store) ListDocuments(ctx context.Context, q domain.DocumentQuery) ([]domain.Document, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.DocumentUUID != "" {
		where = append(where, "uuid = "+arg(q.DocumentUUID))
	}
	if len(q.Statuses) > 0 {
		statuses := make([]string, len(q.Statuses))
		for i, st := range q.Statuses {
			statuses[i] = string(st)
		}
		where = append(where, "status = ANY("+arg(statuses)+")")
	}
	if q.CreatedFrom != nil {
		where = append(where, "created_at >= "+arg(*q.CreatedFrom))
	}
	if q.CreatedTo != nil {
		where = append(where, "created_at < "+arg(q.CreatedTo.AddDate(0, 0, 1)))
	}
	if len(q.Tags) > 0 {
		if q.TagMatch == domain.TagMatchIntersect {
			where = append(where, "tags && "+arg(q.Tags))
		} else {
			where = append(where, "tags @> "+arg(q.Tags))
		}
	}

	query := `SELECT ` + documentColumns + ` FROM documents`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, uuid"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document //nolint:prealloc // size unknown from query
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}

	if len(q.Conditions) == 0 || len(docs) == 0 {
		return docs, nil
	}
	return s.filterByValues(ctx, q, docs)
}

func (s *Store) filterByValues(ctx context.Context, q domain.DocumentQuery, docs []domain.Document) ([]domain.Document, error) {
	ids := make([]string, len(docs))
	for i := range docs {
		ids[i] = docs[i].UUID
	}
	values, err := s.ListValues(ctx, ids)
	if err != nil {
		return nil, err
	}
	byDoc := make(map[string]map[string]*domain.MetadataValue, len(docs))
	for i := range values {
		v := &values[i]
		if v.ChunkUUID != "" {
			continue
		}
		if byDoc[v.DocumentUUID] == nil {
			byDoc[v.DocumentUUID] = make(map[string]*domain.MetadataValue)
		}
		byDoc[v.DocumentUUID][v.MetadataUUID] = v
	}

	out := docs[:0]
	for _, d := range docs {
		if q.MatchesValues(byDoc[d.UUID]) {
			out = append(out, d)
		}
	}
	return out, nil
}

// UpdateTags replaces a document's tags.
func (s *Store) UpdateTags(ctx context.Context, uuid string, tags []string) error {
	tag, err := s.db.Exec(ctx, "UPDATE documents SET tags = $1, updated_at = $2 WHERE uuid = $3",
		nonNilTags(tags), time.Now().UTC(), uuid)
	if err != nil {
		return fmt.Errorf("updating tags: %w", err)
	}
	return requireRows(tag, "document "+uuid)
}

// TransitionStatus moves a document between statuses with a conditional UPDATE.
func (s *Store) TransitionStatus(ctx context.Context, uuid string, from, to domain.DocumentStatus, failure *domain.Failure) error {
	var raw []byte
	if to == domain.StatusFailed {
		var err error
		if raw, err = marshalFailure(failure); err != nil {
			return err
		}
	}

	tag, err := s.db.Exec(ctx, `UPDATE documents SET status = $1, failure = $2, updated_at = $3
		WHERE uuid = $4 AND status = $5`, string(to), raw, time.Now().UTC(), uuid, string(from))
	if err != nil {
		return fmt.Errorf("transitioning document: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return s.statusConflict(ctx, uuid, from)
}

// statusConflict explains why a conditional update touched no row.
func (s *Store) statusConflict(ctx context.Context, uuid string, from domain.DocumentStatus) error {
	var current string
	err := s.db.QueryRow(ctx, "SELECT status FROM documents WHERE uuid = $1", uuid).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("document %s: %w", uuid, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("reading document status: %w", err)
	}
	return fmt.Errorf("document %s is %s, not %s: %w", uuid, current, from, domain.ErrConflict)
}

// ReclaimDocument retries a FAILED document from a new upload.
func (s *Store) ReclaimDocument(ctx context.Context, uuid string, r domain.Relocation) error {
	tag, err := s.db.Exec(ctx, `UPDATE documents SET status = $1, failure = NULL, name = $2, location = $3,
		source_location = $4, type = $5, updated_at = $6
		WHERE uuid = $7 AND status = $8`,
		string(domain.StatusExtracted), r.Name, r.Location, r.SourceLocation, r.Type, time.Now().UTC(),
		uuid, string(domain.StatusFailed))
	if err != nil {
		return fmt.Errorf("reclaiming document: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return s.statusConflict(ctx, uuid, domain.StatusFailed)
}

// DeleteDocument removes a document; chunks and values cascade.
func (s *Store) DeleteDocument(ctx context.Context, uuid string) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM documents WHERE uuid = $1", uuid)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return requireRows(tag, "document "+uuid)
}

func scanDocument(row pgx.Row) (*domain.Document, error) {
	var doc domain.Document
	var status string
	var failure []byte
	if err := row.Scan(&doc.UUID, &doc.Name, &doc.Location, &doc.SourceLocation, &doc.Hash, &doc.Type,
		&status, &failure, &doc.Tags, &doc.CreatedBy, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	doc.Status = domain.DocumentStatus(status)
	if doc.Tags == nil {
		doc.Tags = []string{}
	}
	if len(failure) > 0 {
		var f domain.Failure
		if err := json.Unmarshal(failure, &f); err != nil {
			return nil, fmt.Errorf("unmarshalling failure: %w", err)
		}
		doc.Failure = &f
	}
	return &doc, nil
}

func marshalFailure(f *domain.Failure) ([]byte, error) {
	if f == nil {
		return nil, nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshalling failure: %w", err)
	}
	return b, nil
}
