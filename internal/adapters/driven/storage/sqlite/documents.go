package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/custodia-labs/docpipe/internal/core/domain"
	"github.com/custodia-labs/docpipe/internal/core/ports/driven"
)

// documentStore implements driven.DocumentStore.
type documentStore struct {
	store *Store
}

var _ driven.DocumentStore = (*documentStore)(nil)

const documentColumns = `uuid, name, location, source_location, hash, type, status, failure, tags, created_by, created_at, updated_at`

// CreateDocument inserts a new document.
func (s *documentStore) CreateDocument(ctx context.Context, doc *domain.Document) error {
	tags, err := marshalTags(doc.Tags)
	if err != nil {
		return err
	}
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

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.UUID, doc.Name, doc.Location, doc.SourceLocation, doc.Hash, doc.Type,
		string(doc.Status), failure, tags, doc.CreatedBy, doc.CreatedAt.UTC(), doc.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("document %s: %w", doc.UUID, domain.ErrConflict)
		}
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by uuid.
func (s *documentStore) GetDocument(ctx context.Context, uuid string) (*domain.Document, error) {
	return s.getBy(ctx, "uuid", uuid)
}

// GetDocumentByHash retrieves a document by content hash.
func (s *documentStore) GetDocumentByHash(ctx context.Context, hash string) (*domain.Document, error) {
	return s.getBy(ctx, "hash", hash)
}

// GetDocumentByLocation retrieves a document by indexed location.
func (s *documentStore) GetDocumentByLocation(ctx context.Context, location string) (*domain.Document, error) {
	return s.getBy(ctx, "location", location)
}

func (s *documentStore) getBy(ctx context.Context, column, value string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE `+column+` = ? LIMIT 1`, value)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document with %s %s: %w", column, value, domain.ErrNotFound)
	}
	return doc, err
}

// ListDocuments returns documents matching q, newest first. The uuid,
// status and date bounds are pushed into SQL; tags and metadata conditions
// are evaluated on the loaded rows.
func (s *documentStore) ListDocuments(ctx context.Context, q domain.DocumentQuery) ([]domain.Document, error) {
	var where []string
	var args []any
	if q.DocumentUUID != "" {
		where = append(where, "uuid = ?")
		args = append(args, q.DocumentUUID)
	}
	if len(q.Statuses) > 0 {
		statuses := make([]string, len(q.Statuses))
		for i, st := range q.Statuses {
			statuses[i] = string(st)
		}
		where = append(where, "status IN ("+placeholders(len(statuses))+")")
		args = append(args, stringArgs(statuses)...)
	}

	query := `SELECT ` + documentColumns + ` FROM documents`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	rows, err := s.store.db.QueryContext(ctx, query, args...)
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
		if !q.MatchesDocument(doc) {
			continue
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}

	if len(q.Conditions) > 0 && len(docs) > 0 {
		docs, err = s.filterByValues(ctx, q, docs)
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		}
		return docs[i].UUID < docs[j].UUID
	})
	return docs, nil
}

func (s *documentStore) filterByValues(ctx context.Context, q domain.DocumentQuery, docs []domain.Document) ([]domain.Document, error) {
	ids := make([]string, len(docs))
	for i := range docs {
		ids[i] = docs[i].UUID
	}
	values, err := (&metadataStore{store: s.store}).ListValues(ctx, ids)
	if err != nil {
		return nil, err
	}

	byDoc := make(map[string]map[string]*domain.MetadataValue, len(docs))
	for i := range values {
		v := &values[i]
		if v.ChunkUUID != "" {
			continue
		}
		m, ok := byDoc[v.DocumentUUID]
		if !ok {
			m = make(map[string]*domain.MetadataValue)
			byDoc[v.DocumentUUID] = m
		}
		m[v.MetadataUUID] = v
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
func (s *documentStore) UpdateTags(ctx context.Context, uuid string, tags []string) error {
	raw, err := marshalTags(tags)
	if err != nil {
		return err
	}
	res, err := s.store.db.ExecContext(ctx,
		"UPDATE documents SET tags = ?, updated_at = ? WHERE uuid = ?", raw, time.Now().UTC(), uuid)
	if err != nil {
		return fmt.Errorf("updating tags: %w", err)
	}
	return requireAffected(res, "document "+uuid)
}

// TransitionStatus moves a document between statuses with a single
// conditional UPDATE.
func (s *documentStore) TransitionStatus(ctx context.Context, uuid string, from, to domain.DocumentStatus, failure *domain.Failure) error {
	var raw sql.NullString
	if to == domain.StatusFailed && failure != nil {
		f, err := marshalFailure(failure)
		if err != nil {
			return err
		}
		raw = f
	}

	res, err := s.store.db.ExecContext(ctx, `
		UPDATE documents SET status = ?, failure = ?, updated_at = ?
		WHERE uuid = ? AND status = ?
	`, string(to), raw, time.Now().UTC(), uuid, string(from))
	if err != nil {
		return fmt.Errorf("transitioning document: %w", err)
	}
	return s.conditional(ctx, res, uuid, from)
}

// ReclaimDocument retries a FAILED document from a new upload.
func (s *documentStore) ReclaimDocument(ctx context.Context, uuid string, r domain.Relocation) error {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE documents SET status = ?, failure = NULL, name = ?, location = ?, source_location = ?,
			type = ?, updated_at = ?
		WHERE uuid = ? AND status = ?
	`, string(domain.StatusExtracted), r.Name, r.Location, r.SourceLocation, r.Type, time.Now().UTC(),
		uuid, string(domain.StatusFailed))
	if err != nil {
		return fmt.Errorf("reclaiming document: %w", err)
	}
	return s.conditional(ctx, res, uuid, domain.StatusFailed)
}

// conditional maps a conditional UPDATE that touched no row to
// ErrNotFound or ErrConflict.
func (s *documentStore) conditional(ctx context.Context, res sql.Result, uuid string, from domain.DocumentStatus) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 1 {
		return nil
	}

	var current string
	err = s.store.db.QueryRowContext(ctx, "SELECT status FROM documents WHERE uuid = ?", uuid).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("document %s: %w", uuid, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("reading document status: %w", err)
	}
	return fmt.Errorf("document %s is %s, not %s: %w", uuid, current, from, domain.ErrConflict)
}

// DeleteDocument removes a document; chunks and values cascade.
func (s *documentStore) DeleteDocument(ctx context.Context, uuid string) error {
	res, err := s.store.db.ExecContext(ctx, "DELETE FROM documents WHERE uuid = ?", uuid)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return requireAffected(res, "document "+uuid)
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var status, tags string
	var failure sql.NullString
	if err := row.Scan(&doc.UUID, &doc.Name, &doc.Location, &doc.SourceLocation, &doc.Hash,
		&doc.Type, &status, &failure, &tags, &doc.CreatedBy, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	doc.Status = domain.DocumentStatus(status)
	var err error
	if doc.Tags, err = unmarshalTags(tags); err != nil {
		return nil, err
	}
	if failure.Valid && failure.String != "" {
		var f domain.Failure
		if err := json.Unmarshal([]byte(failure.String), &f); err != nil {
			return nil, fmt.Errorf("unmarshalling failure: %w", err)
		}
		doc.Failure = &f
	}
	return &doc, nil
}

func marshalFailure(f *domain.Failure) (sql.NullString, error) {
	if f == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshalling failure: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// requireAffected maps a zero-row mutation to domain.ErrNotFound.
func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return nil
}
