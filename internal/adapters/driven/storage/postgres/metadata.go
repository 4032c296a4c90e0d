package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

const definitionColumns = `uuid, name, description, type, created_at, updated_at`

const valueColumns = `uuid, document_uuid, chunk_uuid, metadata_uuid, value_string, value_int, value_float,
	value_boolean, value_date, comments, created_at, updated_at`

// CreateDefinition inserts a definition.
func (s *Store) CreateDefinition(ctx context.Context, def *domain.MetadataDefinition) error {
	_, err := s.db.Exec(ctx, `INSERT INTO metadata_definitions (`+definitionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		def.UUID, def.Name, def.Description, string(def.Type), def.CreatedAt, def.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("metadata name %q: %w", def.Name, domain.ErrConflict)
		}
		return fmt.Errorf("saving metadata definition: %w", err)
	}
	return nil
}

// UpdateDefinition replaces a definition's mutable fields.
func (s *Store) UpdateDefinition(ctx context.Context, def *domain.MetadataDefinition) error {
	tag, err := s.db.Exec(ctx, `UPDATE metadata_definitions SET name = $1, description = $2, type = $3, updated_at = $4
		WHERE uuid = $5`, def.Name, def.Description, string(def.Type), def.UpdatedAt, def.UUID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("metadata name %q: %w", def.Name, domain.ErrConflict)
		}
		return fmt.Errorf("updating metadata definition: %w", err)
	}
	return requireRows(tag, "metadata "+def.UUID)
}

// GetDefinition retrieves a definition by uuid.
func (s *Store) GetDefinition(ctx context.Context, id string) (*domain.MetadataDefinition, error) {
	row := s.db.QueryRow(ctx, `SELECT `+definitionColumns+` FROM metadata_definitions WHERE uuid = $1`, id)
	def, err := scanDefinition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("metadata %s: %w", id, domain.ErrNotFound)
	}
	return def, err
}

// ListDefinitions returns definitions sorted by name.
func (s *Store) ListDefinitions(ctx context.Context) ([]domain.MetadataDefinition, error) {
	rows, err := s.db.Query(ctx, `SELECT `+definitionColumns+` FROM metadata_definitions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying metadata definitions: %w", err)
	}
	defer rows.Close()

	defs := []domain.MetadataDefinition{}
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, *def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating metadata definitions: %w", err)
	}
	return defs, nil
}

// DeleteDefinition removes a definition, optionally with its values. The
// definition row is locked first so no value can be written in between.
func (s *Store) DeleteDefinition(ctx context.Context, id string, cascade bool) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var locked string
	err = tx.QueryRow(ctx, "SELECT uuid FROM metadata_definitions WHERE uuid = $1 FOR UPDATE", id).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("metadata %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("locking metadata definition: %w", err)
	}

	var n int
	if err := tx.QueryRow(ctx, "SELECT COUNT(*) FROM metadata_values WHERE metadata_uuid = $1", id).Scan(&n); err != nil {
		return fmt.Errorf("counting metadata values: %w", err)
	}
	if n > 0 {
		if !cascade {
			return fmt.Errorf("metadata %s has %d values: %w", id, n, domain.ErrConflict)
		}
		if _, err := tx.Exec(ctx, "DELETE FROM metadata_values WHERE metadata_uuid = $1", id); err != nil {
			return fmt.Errorf("deleting metadata values: %w", err)
		}
	}
	if _, err := tx.Exec(ctx, "DELETE FROM metadata_definitions WHERE uuid = $1", id); err != nil {
		return fmt.Errorf("deleting metadata definition: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// CountValues counts values referencing a definition.
func (s *Store) CountValues(ctx context.Context, metadataUUID string) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM metadata_values WHERE metadata_uuid = $1", metadataUUID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting metadata values: %w", err)
	}
	return n, nil
}

// UpsertValue writes a value keyed by (document, chunk, definition).
func (s *Store) UpsertValue(ctx context.Context, v *domain.MetadataValue) error {
	def, err := s.GetDefinition(ctx, v.MetadataUUID)
	if err != nil {
		return err
	}
	if err := v.Validate(def); err != nil {
		return err
	}

	now := time.Now().UTC()
	if v.UUID == "" {
		v.UUID = uuid.New().String()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	v.UpdatedAt = now

	err = s.db.QueryRow(ctx, `INSERT INTO metadata_values (`+valueColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (document_uuid, chunk_uuid, metadata_uuid) DO UPDATE SET
			value_string = EXCLUDED.value_string,
			value_int = EXCLUDED.value_int,
			value_float = EXCLUDED.value_float,
			value_boolean = EXCLUDED.value_boolean,
			value_date = EXCLUDED.value_date,
			comments = EXCLUDED.comments,
			updated_at = EXCLUDED.updated_at
		RETURNING uuid, created_at`,
		v.UUID, v.DocumentUUID, v.ChunkUUID, v.MetadataUUID, v.String, v.Int, v.Float, v.Boolean, v.Date,
		v.Comments, v.CreatedAt, v.UpdatedAt).Scan(&v.UUID, &v.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("document %s: %w", v.DocumentUUID, domain.ErrNotFound)
		}
		return fmt.Errorf("saving metadata value: %w", err)
	}
	return nil
}

// DeleteValue removes the document-level value for a definition.
func (s *Store) DeleteValue(ctx context.Context, documentUUID, metadataUUID string) error {
	if _, err := s.db.Exec(ctx, "DELETE FROM metadata_values WHERE document_uuid = $1 AND chunk_uuid = '' AND metadata_uuid = $2",
		documentUUID, metadataUUID); err != nil {
		return fmt.Errorf("deleting metadata value: %w", err)
	}
	return nil
}

// ListValues returns values of the given documents, or all values for nil.
func (s *Store) ListValues(ctx context.Context, documentUUIDs []string) ([]domain.MetadataValue, error) {
	if documentUUIDs != nil && len(documentUUIDs) == 0 {
		return []domain.MetadataValue{}, nil
	}
	query := `SELECT ` + valueColumns + ` FROM metadata_values`
	var args []any
	if documentUUIDs != nil {
		query += ` WHERE document_uuid = ANY($1)`
		args = append(args, documentUUIDs)
	}
	query += ` ORDER BY document_uuid, metadata_uuid, chunk_uuid`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying metadata values: %w", err)
	}
	defer rows.Close()

	values := []domain.MetadataValue{}
	for rows.Next() {
		var v domain.MetadataValue
		if err := rows.Scan(&v.UUID, &v.DocumentUUID, &v.ChunkUUID, &v.MetadataUUID, &v.String, &v.Int,
			&v.Float, &v.Boolean, &v.Date, &v.Comments, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning metadata value: %w", err)
		}
		if v.Date != nil {
			d := v.Date.UTC()
			v.Date = &d
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating metadata values: %w", err)
	}
	return values, nil
}

func scanDefinition(row pgx.Row) (*domain.MetadataDefinition, error) {
	var def domain.MetadataDefinition
	var typ string
	if err := row.Scan(&def.UUID, &def.Name, &def.Description, &typ, &def.CreatedAt, &def.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning metadata definition: %w", err)
	}
	def.Type = domain.MetadataType(typ)
	return &def, nil
}
