package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/docpipe/internal/core/domain"
	"github.com/custodia-labs/docpipe/internal/core/ports/driven"
)

// metadataStore implements driven.MetadataStore.
type metadataStore struct {
	store *Store
}

var _ driven.MetadataStore = (*metadataStore)(nil)

const definitionColumns = `uuid, name, description, type, created_at, updated_at`

const valueColumns = `uuid, document_uuid, chunk_uuid, metadata_uuid, value_string, value_int, value_float,
	value_boolean, value_date, comments, created_at, updated_at`

// CreateDefinition inserts a definition.
func (s *metadataStore) CreateDefinition(ctx context.Context, def *domain.MetadataDefinition) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO metadata_definitions (`+definitionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
	`, def.UUID, def.Name, def.Description, string(def.Type), def.CreatedAt.UTC(), def.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("metadata name %q: %w", def.Name, domain.ErrConflict)
		}
		return fmt.Errorf("saving metadata definition: %w", err)
	}
	return nil
}

// UpdateDefinition replaces a definition's mutable fields.
func (s *metadataStore) UpdateDefinition(ctx context.Context, def *domain.MetadataDefinition) error {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE metadata_definitions SET name = ?, description = ?, type = ?, updated_at = ?
		WHERE uuid = ?
	`, def.Name, def.Description, string(def.Type), def.UpdatedAt.UTC(), def.UUID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("metadata name %q: %w", def.Name, domain.ErrConflict)
		}
		return fmt.Errorf("updating metadata definition: %w", err)
	}
	return requireAffected(res, "metadata "+def.UUID)
}

// GetDefinition retrieves a definition by uuid.
func (s *metadataStore) GetDefinition(ctx context.Context, id string) (*domain.MetadataDefinition, error) {
	row := s.store.db.QueryRowContext(ctx,
		`SELECT `+definitionColumns+` FROM metadata_definitions WHERE uuid = ?`, id)
	def, err := scanDefinition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("metadata %s: %w", id, domain.ErrNotFound)
	}
	return def, err
}

// ListDefinitions returns definitions sorted by name.
func (s *metadataStore) ListDefinitions(ctx context.Context) ([]domain.MetadataDefinition, error) {
	rows, err := s.store.db.QueryContext(ctx,
		`SELECT `+definitionColumns+` FROM metadata_definitions ORDER BY name`)
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

// DeleteDefinition removes a definition. The value count and the delete
// share one transaction.
func (s *metadataStore) DeleteDefinition(ctx context.Context, id string, cascade bool) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var n int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM metadata_values WHERE metadata_uuid = ?", id).Scan(&n); err != nil {
		return fmt.Errorf("counting metadata values: %w", err)
	}
	if n > 0 {
		if !cascade {
			return fmt.Errorf("metadata %s has %d values: %w", id, n, domain.ErrConflict)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM metadata_values WHERE metadata_uuid = ?", id); err != nil {
			return fmt.Errorf("deleting metadata values: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM metadata_definitions WHERE uuid = ?", id)
	if err != nil {
		return fmt.Errorf("deleting metadata definition: %w", err)
	}
	if err := requireAffected(res, "metadata "+id); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// CountValues counts values referencing a definition.
func (s *metadataStore) CountValues(ctx context.Context, metadataUUID string) (int, error) {
	var n int
	if err := s.store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM metadata_values WHERE metadata_uuid = ?", metadataUUID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting metadata values: %w", err)
	}
	return n, nil
}

// UpsertValue writes a value keyed by (document, chunk, definition). An
// existing row keeps its uuid and creation time; v is updated to match.
func (s *metadataStore) UpsertValue(ctx context.Context, v *domain.MetadataValue) error {
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

	var boolean sql.NullBool
	if v.Boolean != nil {
		boolean = sql.NullBool{Bool: *v.Boolean, Valid: true}
	}
	var date sql.NullTime
	if v.Date != nil {
		date = sql.NullTime{Time: v.Date.UTC(), Valid: true}
	}

	row := s.store.db.QueryRowContext(ctx, `
		INSERT INTO metadata_values (`+valueColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_uuid, chunk_uuid, metadata_uuid) DO UPDATE SET
			value_string = excluded.value_string,
			value_int = excluded.value_int,
			value_float = excluded.value_float,
			value_boolean = excluded.value_boolean,
			value_date = excluded.value_date,
			comments = excluded.comments,
			updated_at = excluded.updated_at
		RETURNING uuid, created_at
	`, v.UUID, v.DocumentUUID, v.ChunkUUID, v.MetadataUUID, v.String, v.Int, v.Float,
		boolean, date, v.Comments, v.CreatedAt, v.UpdatedAt)
	if err := row.Scan(&v.UUID, &v.CreatedAt); err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("document %s: %w", v.DocumentUUID, domain.ErrNotFound)
		}
		return fmt.Errorf("saving metadata value: %w", err)
	}
	return nil
}

// DeleteValue removes the document-level value for a definition.
func (s *metadataStore) DeleteValue(ctx context.Context, documentUUID, metadataUUID string) error {
	_, err := s.store.db.ExecContext(ctx,
		"DELETE FROM metadata_values WHERE document_uuid = ? AND chunk_uuid = '' AND metadata_uuid = ?",
		documentUUID, metadataUUID)
	if err != nil {
		return fmt.Errorf("deleting metadata value: %w", err)
	}
	return nil
}

// ListValues returns values of the given documents, or all values for nil.
func (s *metadataStore) ListValues(ctx context.Context, documentUUIDs []string) ([]domain.MetadataValue, error) {
	if documentUUIDs != nil && len(documentUUIDs) == 0 {
		return []domain.MetadataValue{}, nil
	}

	query := `SELECT ` + valueColumns + ` FROM metadata_values`
	var args []any
	if documentUUIDs != nil {
		query += ` WHERE document_uuid IN (` + placeholders(len(documentUUIDs)) + `)`
		args = stringArgs(documentUUIDs)
	}
	query += ` ORDER BY document_uuid, metadata_uuid, chunk_uuid`

	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying metadata values: %w", err)
	}
	defer rows.Close()

	values := []domain.MetadataValue{}
	for rows.Next() {
		v, err := scanValue(rows)
		if err != nil {
			return nil, err
		}
		values = append(values, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating metadata values: %w", err)
	}
	return values, nil
}

func scanDefinition(row rowScanner) (*domain.MetadataDefinition, error) {
	var def domain.MetadataDefinition
	var typ string
	if err := row.Scan(&def.UUID, &def.Name, &def.Description, &typ, &def.CreatedAt, &def.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning metadata definition: %w", err)
	}
	def.Type = domain.MetadataType(typ)
	return &def, nil
}

func scanValue(row rowScanner) (*domain.MetadataValue, error) {
	var v domain.MetadataValue
	var str sql.NullString
	var i sql.NullInt64
	var f sql.NullFloat64
	var b sql.NullBool
	var d sql.NullTime
	if err := row.Scan(&v.UUID, &v.DocumentUUID, &v.ChunkUUID, &v.MetadataUUID, &str, &i, &f, &b, &d,
		&v.Comments, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, fmt.Errorf("scanning metadata value: %w", err)
	}
	if str.Valid {
		v.String = &str.String
	}
	if i.Valid {
		v.Int = &i.Int64
	}
	if f.Valid {
		v.Float = &f.Float64
	}
	if b.Valid {
		v.Boolean = &b.Bool
	}
	if d.Valid {
		t := d.Time.UTC()
		v.Date = &t
	}
	return &v, nil
}
