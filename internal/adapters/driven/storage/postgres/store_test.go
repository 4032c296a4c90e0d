package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return New(mock), mock
}

func TestNewPoolConfigDefaults(t *testing.T) {
	cfg, err := newPoolConfig("postgres://postgres@localhost:5432/docpipe?sslmode=disable")
	require.NoError(t, err)
	assert.EqualValues(t, 10, cfg.MaxConns)
	assert.EqualValues(t, 2, cfg.MinConns)
	assert.Equal(t, time.Hour, cfg.MaxConnLifetime)

	cfg, err = newPoolConfig("postgres://postgres@localhost:5432/docpipe",
		WithPoolConfig(PoolConfig{MaxConns: 40, MaxConnIdleTime: time.Minute}))
	require.NoError(t, err)
	assert.EqualValues(t, 40, cfg.MaxConns)
	assert.EqualValues(t, 2, cfg.MinConns)
	assert.Equal(t, time.Minute, cfg.MaxConnIdleTime)
}

func TestMigrate_AppliesPending(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WithArgs(migrationLock).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS docpipe_schema_migrations").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT version FROM docpipe_schema_migrations").WillReturnRows(mock.NewRows([]string{"version"}))
	mock.ExpectExec("CREATE EXTENSION IF NOT EXISTS vector").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO docpipe_schema_migrations").WithArgs("001").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_Idempotent(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WithArgs(migrationLock).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS docpipe_schema_migrations").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT version FROM docpipe_schema_migrations").
		WillReturnRows(mock.NewRows([]string{"version"}).AddRow("001"))
	mock.ExpectCommit()

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVersion(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT COALESCE\\(MAX\\(version\\), '0'\\) FROM docpipe_schema_migrations").
		WillReturnRows(mock.NewRows([]string{"version"}).AddRow("001"))

	v, err := s.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDocument_DuplicateIsConflict(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO documents").WillReturnError(&pgconn.PgError{Code: codeUniqueViolation})

	err := s.CreateDocument(context.Background(), &domain.Document{UUID: "d1", Hash: "h1", Status: domain.StatusExtracted})
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("applied", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec("UPDATE documents SET status").
			WithArgs("CHUNKED", pgxmock.AnyArg(), pgxmock.AnyArg(), "d1", "EXTRACTED").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, s.TransitionStatus(ctx, "d1", domain.StatusExtracted, domain.StatusChunked, nil))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lost race", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec("UPDATE documents SET status").WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery("SELECT status FROM documents").WithArgs("d1").
			WillReturnRows(mock.NewRows([]string{"status"}).AddRow("INDEXED"))

		err := s.TransitionStatus(ctx, "d1", domain.StatusExtracted, domain.StatusChunked, nil)
		assert.ErrorIs(t, err, domain.ErrConflict)
		assert.Contains(t, err.Error(), "INDEXED")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec("UPDATE documents SET status").WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery("SELECT status FROM documents").WithArgs("d1").
			WillReturnRows(mock.NewRows([]string{"status"}))

		err := s.TransitionStatus(ctx, "d1", domain.StatusExtracted, domain.StatusChunked, nil)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestReclaimDocument(t *testing.T) {
	ctx := context.Background()
	reloc := domain.Relocation{Name: "retry.pdf", Location: "s3://indexed/indexed/b.pdf", SourceLocation: "s3://intake/uploads/b.pdf", Type: "PDF"}

	t.Run("applied", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec("UPDATE documents SET status").
			WithArgs("EXTRACTED", "retry.pdf", reloc.Location, reloc.SourceLocation, "PDF", pgxmock.AnyArg(), "d1", "FAILED").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, s.ReclaimDocument(ctx, "d1", reloc))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already reclaimed", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec("UPDATE documents SET status").WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery("SELECT status FROM documents").WithArgs("d1").
			WillReturnRows(mock.NewRows([]string{"status"}).AddRow("EXTRACTED"))

		err := s.ReclaimDocument(ctx, "d1", reloc)
		assert.ErrorIs(t, err, domain.ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSearchSimilar(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT uuid, document_uuid").
		WithArgs(pgxmock.AnyArg(), []string{"d1"}, 5).
		WillReturnRows(mock.NewRows([]string{"uuid", "document_uuid", "similarity"}).
			AddRow("c1", "d1", 0.93).
			AddRow("c2", "d1", 0.41))

	hits, err := s.SearchSimilar(ctx, []float32{0.1, 0.2}, 5, []string{"d1"})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "c1", hits[0].ChunkUUID)
	assert.InDelta(t, 0.93, hits[0].Similarity, 1e-9)

	hits, err = s.SearchSimilar(ctx, []float32{0.1, 0.2}, 5, []string{})
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteDefinition_RejectsWhenValuesExist(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT uuid FROM metadata_definitions").WithArgs("m1").
		WillReturnRows(mock.NewRows([]string{"uuid"}).AddRow("m1"))
	mock.ExpectQuery("SELECT COUNT").WithArgs("m1").
		WillReturnRows(mock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectRollback()

	err := s.DeleteDefinition(context.Background(), "m1", false)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteDefinition_Missing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT uuid FROM metadata_definitions").WithArgs("m1").
		WillReturnRows(mock.NewRows([]string{"uuid"}))
	mock.ExpectRollback()

	err := s.DeleteDefinition(context.Background(), "m1", true)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertValue_RejectsWrongType(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("FROM metadata_definitions WHERE uuid").WithArgs("m1").
		WillReturnRows(mock.NewRows([]string{"uuid", "name", "description", "type", "created_at", "updated_at"}).
			AddRow("m1", "amount", "total", "float", now, now))

	v := domain.StringValue("ten")
	v.DocumentUUID, v.MetadataUUID = "d1", "m1"
	err := s.UpsertValue(context.Background(), &v)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSynonym_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("FROM synonyms WHERE uuid").WithArgs("s1").
		WillReturnRows(mock.NewRows([]string{"uuid", "name", "value", "comments", "created_at", "updated_at"}))

	_, err := s.GetSynonym(context.Background(), "s1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecurrentQueries_FiltersByUser(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("FROM recurrent_queries WHERE user_uuid").WithArgs("u1").
		WillReturnRows(mock.NewRows([]string{"uuid", "name", "query_type", "content", "tags", "start_date", "end_date",
			"user_uuid", "comments", "created_by", "created_at", "updated_by", "updated_at"}).
			AddRow("q1", "weekly", "search", "invoices", []string{"finance"}, nil, nil,
				"u1", "", "ana", now, "ana", now))

	out, err := s.ListRecurrentQueries(context.Background(), domain.RecurrentQueryFilter{UserUUID: "u1"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []string{"finance"}, out[0].Tags)
	assert.Nil(t, out[0].StartDate)
	assert.NoError(t, mock.ExpectationsWereMet())
}
