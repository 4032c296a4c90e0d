package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

const queryColumns = `uuid, name, query_type, content, tags, start_date, end_date, user_uuid, comments,
	created_by, created_at, updated_by, updated_at`

// CreateRecurrentQuery inserts a saved query.
func (s *Store) CreateRecurrentQuery(ctx context.Context, q *domain.RecurrentQuery) error {
	_, err := s.db.Exec(ctx, `INSERT INTO recurrent_queries (`+queryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		q.UUID, q.Name, q.QueryType, q.Content, nonNilTags(q.Tags), q.StartDate, q.EndDate, q.UserUUID,
		q.Comments, q.CreatedBy, q.CreatedAt, q.UpdatedBy, q.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("recurrent query %s: %w", q.UUID, domain.ErrConflict)
		}
		return fmt.Errorf("saving recurrent query: %w", err)
	}
	return nil
}

// UpdateRecurrentQuery replaces a saved query.
func (s *Store) UpdateRecurrentQuery(ctx context.Context, q *domain.RecurrentQuery) error {
	tag, err := s.db.Exec(ctx, `UPDATE recurrent_queries SET
			name = $1, query_type = $2, content = $3, tags = $4, start_date = $5, end_date = $6,
			user_uuid = $7, comments = $8, updated_by = $9, updated_at = $10
		WHERE uuid = $11`,
		q.Name, q.QueryType, q.Content, nonNilTags(q.Tags), q.StartDate, q.EndDate,
		q.UserUUID, q.Comments, q.UpdatedBy, q.UpdatedAt, q.UUID)
	if err != nil {
		return fmt.Errorf("updating recurrent query: %w", err)
	}
	return requireRows(tag, "recurrent query "+q.UUID)
}

// GetRecurrentQuery retrieves a saved query by uuid.
func (s *Store) GetRecurrentQuery(ctx context.Context, id string) (*domain.RecurrentQuery, error) {
	q, err := scanQuery(s.db.QueryRow(ctx, `SELECT `+queryColumns+` FROM recurrent_queries WHERE uuid = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("recurrent query %s: %w", id, domain.ErrNotFound)
	}
	return q, err
}

// DeleteRecurrentQuery removes a saved query.
func (s *Store) DeleteRecurrentQuery(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM recurrent_queries WHERE uuid = $1", id)
	if err != nil {
		return fmt.Errorf("deleting recurrent query: %w", err)
	}
	return requireRows(tag, "recurrent query "+id)
}

// ListRecurrentQueries returns saved queries matching f, sorted by name.
func (s *Store) ListRecurrentQueries(ctx context.Context, f domain.RecurrentQueryFilter) ([]domain.RecurrentQuery, error) {
	var where []string
	var args []any
	if f.UUID != "" {
		args = append(args, f.UUID)
		where = append(where, fmt.Sprintf("uuid = $%d", len(args)))
	}
	if f.UserUUID != "" {
		args = append(args, f.UserUUID)
		where = append(where, fmt.Sprintf("user_uuid = $%d", len(args)))
	}
	query := `SELECT ` + queryColumns + ` FROM recurrent_queries`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY name, uuid"

	rows, err := s.db.Query(ctx, query, args...)
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

func scanQuery(row pgx.Row) (*domain.RecurrentQuery, error) {
	var q domain.RecurrentQuery
	if err := row.Scan(&q.UUID, &q.Name, &q.QueryType, &q.Content, &q.Tags, &q.StartDate, &q.EndDate,
		&q.UserUUID, &q.Comments, &q.CreatedBy, &q.CreatedAt, &q.UpdatedBy, &q.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning recurrent query: %w", err)
	}
	if q.Tags == nil {
		q.Tags = []string{}
	}
	return &q, nil
}
