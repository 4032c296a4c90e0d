package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/docpipe/internal/core/domain"
	"github.com/custodia-labs/docpipe/internal/core/ports/driven"
)

// recurrentQueryStore implements driven.RecurrentQueryStore.
type recurrentQueryStore struct {
	store *Store
}

var _ driven.RecurrentQueryStore = (*recurrentQueryStore)(nil)

const queryColumns = `uuid, name, query_type, content, tags, start_date, end_date, user_uuid, comments,
	created_by, created_at, updated_by, updated_at`

// CreateRecurrentQuery inserts a saved query.
func (s *recurrentQueryStore) CreateRecurrentQuery(ctx context.Context, q *domain.RecurrentQuery) error {
	tags, err := marshalTags(q.Tags)
	if err != nil {
		return err
	}
	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO recurrent_queries (`+queryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, q.UUID, q.Name, q.QueryType, q.Content, tags, nullTime(q.StartDate), nullTime(q.EndDate),
		q.UserUUID, q.Comments, q.CreatedBy, q.CreatedAt.UTC(), q.UpdatedBy, q.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("recurrent query %s: %w", q.UUID, domain.ErrConflict)
		}
		return fmt.Errorf("saving recurrent query: %w", err)
	}
	return nil
}

// UpdateRecurrentQuery replaces a saved query.
func (s *recurrentQueryStore) UpdateRecurrentQuery(ctx context.Context, q *domain.RecurrentQuery) error {
	tags, err := marshalTags(q.Tags)
	if err != nil {
		return err
	}
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE recurrent_queries SET
			name = ?, query_type = ?, content = ?, tags = ?, start_date = ?, end_date = ?,
			user_uuid = ?, comments = ?, updated_by = ?, updated_at = ?
		WHERE uuid = ?
	`, q.Name, q.QueryType, q.Content, tags, nullTime(q.StartDate), nullTime(q.EndDate),
		q.UserUUID, q.Comments, q.UpdatedBy, q.UpdatedAt.UTC(), q.UUID)
	if err != nil {
		return fmt.Errorf("updating recurrent query: %w", err)
	}
	return requireAffected(res, "recurrent query "+q.UUID)
}

// GetRecurrentQuery retrieves a saved query by uuid.
func (s *recurrentQueryStore) GetRecurrentQuery(ctx context.Context, id string) (*domain.RecurrentQuery, error) {
	row := s.store.db.QueryRowContext(ctx, `SELECT `+queryColumns+` FROM recurrent_queries WHERE uuid = ?`, id)
	q, err := scanQuery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("recurrent query %s: %w", id, domain.ErrNotFound)
	}
	return q, err
}

// DeleteRecurrentQuery removes a saved query.
func (s *recurrentQueryStore) DeleteRecurrentQuery(ctx context.Context, id string) error {
	res, err := s.store.db.ExecContext(ctx, "DELETE FROM recurrent_queries WHERE uuid = ?", id)
	if err != nil {
		return fmt.Errorf("deleting recurrent query: %w", err)
	}
	return requireAffected(res, "recurrent query "+id)
}

// ListRecurrentQueries returns saved queries matching f, sorted by name.
func (s *recurrentQueryStore) ListRecurrentQueries(ctx context.Context, f domain.RecurrentQueryFilter) ([]domain.RecurrentQuery, error) {
	var where []string
	var args []any
	if f.UUID != "" {
		where = append(where, "uuid = ?")
		args = append(args, f.UUID)
	}
	if f.UserUUID != "" {
		where = append(where, "user_uuid = ?")
		args = append(args, f.UserUUID)
	}
	query := `SELECT ` + queryColumns + ` FROM recurrent_queries`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY name, uuid"

	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying recurrent queries: %w", err)
	}
	defer rows.Close()

	out := []domain.RecurrentQuery{}
	for rows.Next() {
		q, err := scanQuery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating recurrent queries: %w", err)
	}
	return out, nil
}

func scanQuery(row rowScanner) (*domain.RecurrentQuery, error) {
	var q domain.RecurrentQuery
	var tags string
	var start, end sql.NullTime
	if err := row.Scan(&q.UUID, &q.Name, &q.QueryType, &q.Content, &tags, &start, &end, &q.UserUUID,
		&q.Comments, &q.CreatedBy, &q.CreatedAt, &q.UpdatedBy, &q.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning recurrent query: %w", err)
	}
	var err error
	if q.Tags, err = unmarshalTags(tags); err != nil {
		return nil, err
	}
	if start.Valid {
		t := start.Time.UTC()
		q.StartDate = &t
	}
	if end.Valid {
		t := end.Time.UTC()
		q.EndDate = &t
	}
	return &q, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
