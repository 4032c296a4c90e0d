package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

const synonymColumns = `uuid, name, value, comments, created_at, updated_at`

// CreateSynonym inserts a synonym.
func (s *Store) CreateSynonym(ctx context.Context, syn *domain.Synonym) error {
	_, err := s.db.Exec(ctx, `INSERT INTO synonyms (`+synonymColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		syn.UUID, syn.Name, syn.Value, syn.Comments, syn.CreatedAt, syn.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("synonym name %q: %w", syn.Name, domain.ErrConflict)
		}
		return fmt.Errorf("saving synonym: %w", err)
	}
	return nil
}

// UpdateSynonym replaces a synonym.
func (s *Store) UpdateSynonym(ctx context.Context, syn *domain.Synonym) error {
	tag, err := s.db.Exec(ctx, `UPDATE synonyms SET name = $1, value = $2, comments = $3, updated_at = $4 WHERE uuid = $5`,
		syn.Name, syn.Value, syn.Comments, syn.UpdatedAt, syn.UUID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("synonym name %q: %w", syn.Name, domain.ErrConflict)
		}
		return fmt.Errorf("updating synonym: %w", err)
	}
	return requireRows(tag, "synonym "+syn.UUID)
}

// GetSynonym retrieves a synonym by uuid.
func (s *Store) GetSynonym(ctx context.Context, id string) (*domain.Synonym, error) {
	var syn domain.Synonym
	err := s.db.QueryRow(ctx, `SELECT `+synonymColumns+` FROM synonyms WHERE uuid = $1`, id).
		Scan(&syn.UUID, &syn.Name, &syn.Value, &syn.Comments, &syn.CreatedAt, &syn.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("synonym %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning synonym: %w", err)
	}
	return &syn, nil
}

// DeleteSynonym removes a synonym.
func (s *Store) DeleteSynonym(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM synonyms WHERE uuid = $1", id)
	if err != nil {
		return fmt.Errorf("deleting synonym: %w", err)
	}
	return requireRows(tag, "synonym "+id)
}

// ListSynonyms returns synonyms sorted by name.
func (s *Store) ListSynonyms(ctx context.Context) ([]domain.Synonym, error) {
	rows, err := s.db.Query(ctx, `SELECT `+synonymColumns+` FROM synonyms ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying synonyms: %w", err)
	}
	defer rows.Close()

	out := []domain.Synonym{}
	for rows.Next() {
		var syn domain.Synonym
		if err := rows.Scan(&syn.UUID, &syn.Name, &syn.Value, &syn.Comments, &syn.CreatedAt, &syn.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning synonym: %w", err)
		}
		out = append(out, syn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating synonyms: %w", err)
	}
	return out, nil
}
