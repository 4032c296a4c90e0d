package postgres

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/custodia-labs/docpipe/internal/adapters/driven/storage/postgres/migrations"
)

// migrationLock serializes concurrent Migrate calls across processes.
const migrationLock = int64(0x646f6370)

// Migrate applies pending embedded migrations.
func (s *Store) Migrate(ctx context.Context) error {
	return apply(ctx, s.db, migrations.FS)
}

// Version returns the highest applied migration number.
func (s *Store) Version(ctx context.Context) (int, error) {
	var v string
	if err := s.db.QueryRow(ctx, "SELECT COALESCE(MAX(version), '0') FROM docpipe_schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("getting current version: %w", err)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing schema version %q: %w", v, err)
	}
	return n, nil
}

// apply runs every unapplied NNN_*.sql file of fsys in one transaction
// guarded by an advisory lock.
func apply(ctx context.Context, db DB, fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("migrate: begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLock); err != nil {
		return fmt.Errorf("migrate: acquire advisory lock: %w", err)
	}
	if _, err := tx.Exec(ctx, `CREATE TABLE IF NOT EXISTS docpipe_schema_migrations (
        version    text PRIMARY KEY,
        applied_at timestamptz NOT NULL DEFAULT now()
    )`); err != nil {
		return fmt.Errorf("migrate: ensure tracking table: %w", err)
	}

	applied := make(map[string]struct{})
	rows, err := tx.Query(ctx, "SELECT version FROM docpipe_schema_migrations")
	if err != nil {
		return fmt.Errorf("migrate: list applied versions: %w", err)
	}
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("migrate: read applied versions: %w", err)
		}
		applied[version] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("migrate: read applied versions: %w", err)
	}

	for _, name := range files {
		version, _, _ := strings.Cut(name, "_")
		if _, ok := applied[version]; ok {
			continue
		}
		raw, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("migrate: %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, string(raw)); err != nil {
			return fmt.Errorf("migrate: %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, "INSERT INTO docpipe_schema_migrations (version) VALUES ($1) ON CONFLICT DO NOTHING", version); err != nil {
			return fmt.Errorf("migrate: record %s: %w", version, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("migrate: commit transaction: %w", err)
	}
	committed = true
	return nil
}
