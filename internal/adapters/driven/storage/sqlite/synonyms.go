package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/custodia-labs/docpipe/internal/core/domain"
	"github.com/custodia-labs/docpipe/internal/core/ports/driven"
)

// synonymStore implements driven.SynonymStore.
type synonymStore struct {
	store *Store
}

var _ driven.SynonymStore = (*synonymStore)(nil)

const synonymColumns = `uuid, name, value, comments, created_at, updated_at`

// CreateSynonym inserts a synonym.
func (s *synonymStore) CreateSynonym(ctx context.Context, syn *domain.Synonym) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO synonyms (`+synonymColumns+`) VALUES (?, ?, ?, ?, ?, ?)
	`, syn.UUID, syn.Name, syn.Value, syn.Comments, syn.CreatedAt.UTC(), syn.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("synonym name %q: %w", syn.Name, domain.ErrConflict)
		}
		return fmt.Errorf("saving synonym: %w", err)
	}
	return nil
}

// UpdateSynonym replaces a synonym.
func (s *synonymStore) UpdateSynonym(ctx context.Context, syn *domain.Synonym) error {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE synonyms SET name = ?, value = ?, comments = ?, updated_at = ? WHERE uuid = ?
	`, syn.Name, syn.Value, syn.Comments, syn.UpdatedAt.UTC(), syn.UUID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("synonym name %q: %w", syn.Name, domain.ErrConflict)
		}
		return fmt.Errorf("updating synonym: %w", err)
	}
	return requireAffected(res, "synonym "+syn.UUID)
}

// GetSynonym retrieves a synonym by uuid.
func (s *synonymStore) GetSynonym(ctx context.Context, id string) (*domain.Synonym, error) {
	row := s.store.db.QueryRowContext(ctx, `SELECT `+synonymColumns+` FROM synonyms WHERE uuid = ?`, id)
	syn, err := scanSynonym(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("synonym %s: %w", id, domain.ErrNotFound)
	}
	return syn, err
}

// DeleteSynonym removes a synonym.
func (s *synonymStore) DeleteSynonym(ctx context.Context, id string) error {
	res, err := s.store.db.ExecContext(ctx, "DELETE FROM synonyms WHERE uuid = ?", id)
	if err != nil {
		return fmt.Errorf("deleting synonym: %w", err)
	}
	return requireAffected(res, "synonym "+id)
}

// ListSynonyms returns synonyms sorted by name.
func (s *synonymStore) ListSynonyms(ctx context.Context) ([]domain.Synonym, error) {
	rows, err := s.store.db.QueryContext(ctx, `SELECT `+synonymColumns+` FROM synonyms ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying synonyms: %w", err)
	}
	defer rows.Close()

	out := []domain.Synonym{}
	for rows.Next() {
		syn, err := scanSynonym(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *syn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating synonyms: %w", err)
	}
	return out, nil
}

func scanSynonym(row rowScanner) (*domain.Synonym, error) {
	var syn domain.Synonym
	if err := row.Scan(&syn.UUID, &syn.Name, &syn.Value, &syn.Comments, &syn.CreatedAt, &syn.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning synonym: %w", err)
	}
	return &syn, nil
}
