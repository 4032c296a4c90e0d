package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/custodia-labs/docpipe/internal/adapters/driven/storage/vector"
	"github.com/custodia-labs/docpipe/internal/core/domain"
	"github.com/custodia-labs/docpipe/internal/core/ports/driven"
)

// chunkStore implements driven.ChunkStore and driven.VectorIndex.
type chunkStore struct {
	store *Store
}

var (
	_ driven.ChunkStore  = (*chunkStore)(nil)
	_ driven.VectorIndex = (*chunkStore)(nil)
)

const chunkColumns = `uuid, document_uuid, position, text, hash, length, overlap, start_offset, end_offset, created_at,
	embedding_uuid, embedder_type, tokens, seconds, embedding, embedded_at`

// ReplaceChunks replaces every chunk of a document in one transaction.
// Chunk-level metadata values of the old chunks are dropped with them.
func (s *chunkStore) ReplaceChunks(ctx context.Context, documentUUID string, chunks []domain.Chunk) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE uuid = ?", documentUUID).Scan(&exists); err != nil {
		return fmt.Errorf("checking document: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("document %s: %w", documentUUID, domain.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM metadata_values WHERE document_uuid = ? AND chunk_uuid <> ''", documentUUID); err != nil {
		return fmt.Errorf("deleting chunk metadata: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_uuid = ?", documentUUID); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (`+chunkColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, c := range chunks {
		created := c.CreatedAt
		if created.IsZero() {
			created = now
		}
		emb := embeddingArgs(c.Embedding)
		if _, err := stmt.ExecContext(ctx, c.UUID, documentUUID, c.Position, c.Text, c.Hash,
			c.Length, c.Overlap, c.Start, c.End, created.UTC(),
			emb[0], emb[1], emb[2], emb[3], emb[4], emb[5]); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("chunk %s: %w", c.UUID, domain.ErrConflict)
			}
			return fmt.Errorf("saving chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ListChunks returns a document's chunks ordered by position.
func (s *chunkStore) ListChunks(ctx context.Context, documentUUID string) ([]domain.Chunk, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+chunkColumns+`
		FROM chunks WHERE document_uuid = ?
		ORDER BY position
	`, documentUUID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	return scanChunks(rows)
}

// GetChunks returns the chunks with the given uuids.
func (s *chunkStore) GetChunks(ctx context.Context, uuids []string) ([]domain.Chunk, error) {
	if len(uuids) == 0 {
		return []domain.Chunk{}, nil
	}
	rows, err := s.store.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE uuid IN (`+placeholders(len(uuids))+`)`,
		stringArgs(uuids)...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	return scanChunks(rows)
}

// SaveEmbedding stores a chunk's vector, replacing any prior one.
func (s *chunkStore) SaveEmbedding(ctx context.Context, chunkUUID string, emb domain.ChunkEmbedding) error {
	if emb.CreatedAt.IsZero() {
		emb.CreatedAt = time.Now().UTC()
	}
	args := embeddingArgs(&emb)
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE chunks SET embedding_uuid = ?, embedder_type = ?, tokens = ?, seconds = ?, embedding = ?, embedded_at = ?
		WHERE uuid = ?
	`, args[0], args[1], args[2], args[3], args[4], args[5], chunkUUID)
	if err != nil {
		return fmt.Errorf("saving embedding: %w", err)
	}
	return requireAffected(res, "chunk "+chunkUUID)
}

// SearchSimilar loads every stored vector in scope and ranks them in
// process. A non-nil empty documentUUIDs matches nothing.
func (s *chunkStore) SearchSimilar(ctx context.Context, vec []float32, k int, documentUUIDs []string) ([]driven.VectorHit, error) {
	if documentUUIDs != nil && len(documentUUIDs) == 0 {
		return []driven.VectorHit{}, nil
	}

	query := `SELECT uuid, document_uuid, position, created_at, embedding FROM chunks WHERE embedding IS NOT NULL`
	var args []any
	if documentUUIDs != nil {
		query += ` AND document_uuid IN (` + placeholders(len(documentUUIDs)) + `)`
		args = stringArgs(documentUUIDs)
	}

	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying embeddings: %w", err)
	}
	defer rows.Close()

	var candidates []vector.Candidate
	for rows.Next() {
		var c vector.Candidate
		var blob []byte
		if err := rows.Scan(&c.ChunkUUID, &c.DocumentUUID, &c.Position, &c.CreatedAt, &blob); err != nil {
			return nil, fmt.Errorf("scanning embedding: %w", err)
		}
		c.Vector = bytesToFloat32Slice(blob)
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating embeddings: %w", err)
	}
	return vector.Rank(vec, candidates, k), nil
}

// embeddingArgs returns the six embedding column values, all NULL for nil.
func embeddingArgs(e *domain.ChunkEmbedding) [6]any {
	if e == nil || len(e.Vector) == 0 {
		return [6]any{nil, nil, nil, nil, nil, nil}
	}
	return [6]any{e.UUID, e.EmbedderType, e.Tokens, e.Seconds, float32SliceToBytes(e.Vector), e.CreatedAt.UTC()}
}

func scanChunks(rows *sql.Rows) ([]domain.Chunk, error) {
	defer rows.Close()

	chunks := []domain.Chunk{}
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].DocumentUUID != chunks[j].DocumentUUID {
			return chunks[i].DocumentUUID < chunks[j].DocumentUUID
		}
		return chunks[i].Position < chunks[j].Position
	})
	return chunks, nil
}

func scanChunk(row rowScanner) (*domain.Chunk, error) {
	var c domain.Chunk
	var embUUID, embedder sql.NullString
	var tokens sql.NullInt64
	var seconds sql.NullFloat64
	var blob []byte
	var embeddedAt sql.NullTime
	if err := row.Scan(&c.UUID, &c.DocumentUUID, &c.Position, &c.Text, &c.Hash, &c.Length, &c.Overlap,
		&c.Start, &c.End, &c.CreatedAt, &embUUID, &embedder, &tokens, &seconds, &blob, &embeddedAt); err != nil {
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}
	if len(blob) > 0 {
		c.Embedding = &domain.ChunkEmbedding{
			UUID:         embUUID.String,
			EmbedderType: embedder.String,
			Tokens:       int(tokens.Int64),
			Seconds:      seconds.Float64,
			Vector:       bytesToFloat32Slice(blob),
			CreatedAt:    embeddedAt.Time,
		}
	}
	return &c, nil
}
