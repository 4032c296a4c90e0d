package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/custodia-labs/docpipe/internal/core/domain"
	"github.com/custodia-labs/docpipe/internal/core/ports/driven"
)

const chunkColumns = `uuid, document_uuid, position, text, hash, length, overlap, start_offset, end_offset, created_at,
	embedding_uuid, embedder_type, tokens, seconds, embedding, embedded_at`

// ReplaceChunks replaces every chunk of a document in one transaction.
func (s *Store) ReplaceChunks(ctx context.Context, documentUUID string, chunks []domain.Chunk) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Locks the document row so concurrent replacements serialize.
	var locked string
	err = tx.QueryRow(ctx, "SELECT uuid FROM documents WHERE uuid = $1 FOR UPDATE", documentUUID).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("document %s: %w", documentUUID, domain.ErrNotFound)
		}
		return fmt.Errorf("locking document: %w", err)
	}

	if _, err := tx.Exec(ctx, "DELETE FROM metadata_values WHERE document_uuid = $1 AND chunk_uuid <> ''", documentUUID); err != nil {
		return fmt.Errorf("deleting chunk metadata: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM chunks WHERE document_uuid = $1", documentUUID); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, c := range chunks {
		created := c.CreatedAt
		if created.IsZero() {
			created = now
		}
		e := embeddingArgs(c.Embedding)
		batch.Queue(`INSERT INTO chunks (`+chunkColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			c.UUID, documentUUID, c.Position, c.Text, c.Hash, c.Length, c.Overlap, c.Start, c.End, created,
			e[0], e[1], e[2], e[3], e[4], e[5])
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("chunks of %s: %w", documentUUID, domain.ErrConflict)
			}
			return fmt.Errorf("saving chunks: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ListChunks returns a document's chunks ordered by position.
func (s *Store) ListChunks(ctx context.Context, documentUUID string) ([]domain.Chunk, error) {
	rows, err := s.db.Query(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE document_uuid = $1 ORDER BY position`, documentUUID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	return collectChunks(rows)
}

// GetChunks returns the chunks with the given uuids.
func (s *Store) GetChunks(ctx context.Context, uuids []string) ([]domain.Chunk, error) {
	if len(uuids) == 0 {
		return []domain.Chunk{}, nil
	}
	rows, err := s.db.Query(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE uuid = ANY($1)
		ORDER BY document_uuid, position`, uuids)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	return collectChunks(rows)
}

// SaveEmbedding stores a chunk's vector, replacing any prior one.
func (s *Store) SaveEmbedding(ctx context.Context, chunkUUID string, emb domain.ChunkEmbedding) error {
	if emb.CreatedAt.IsZero() {
		emb.CreatedAt = time.Now().UTC()
	}
	e := embeddingArgs(&emb)
	tag, err := s.db.Exec(ctx, `UPDATE chunks SET embedding_uuid = $1, embedder_type = $2, tokens = $3,
		seconds = $4, embedding = $5, embedded_at = $6 WHERE uuid = $7`,
		e[0], e[1], e[2], e[3], e[4], e[5], chunkUUID)
	if err != nil {
		return fmt.Errorf("saving embedding: %w", err)
	}
	return requireRows(tag, "chunk "+chunkUUID)
}

// SearchSimilar ranks chunks with pgvector's cosine distance. Ties keep
// chunk creation order.
func (s *Store) SearchSimilar(ctx context.Context, vec []float32, k int, documentUUIDs []string) ([]driven.VectorHit, error) {
	if documentUUIDs != nil && len(documentUUIDs) == 0 {
		return []driven.VectorHit{}, nil
	}

	args := []any{pgvector.NewVector(vec)}
	query := `SELECT uuid, document_uuid, 1 - (embedding <=> $1) AS similarity
		FROM chunks WHERE embedding IS NOT NULL AND vector_dims(embedding) = vector_dims($1)`
	if documentUUIDs != nil {
		args = append(args, documentUUIDs)
		query += fmt.Sprintf(" AND document_uuid = ANY($%d)", len(args))
	}
	query += " ORDER BY embedding <=> $1, created_at, document_uuid, position"
	if k > 0 {
		args = append(args, k)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching vectors: %w", err)
	}
	defer rows.Close()

	hits := []driven.VectorHit{}
	for rows.Next() {
		var h driven.VectorHit
		if err := rows.Scan(&h.ChunkUUID, &h.DocumentUUID, &h.Similarity); err != nil {
			return nil, fmt.Errorf("scanning vector hit: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vector hits: %w", err)
	}
	return hits, nil
}

func embeddingArgs(e *domain.ChunkEmbedding) [6]any {
	if e == nil || len(e.Vector) == 0 {
		return [6]any{nil, nil, nil, nil, nil, nil}
	}
	return [6]any{e.UUID, e.EmbedderType, e.Tokens, e.Seconds, pgvector.NewVector(e.Vector), e.CreatedAt}
}

func collectChunks(rows pgx.Rows) ([]domain.Chunk, error) {
	defer rows.Close()

	chunks := []domain.Chunk{}
	for rows.Next() {
		var c domain.Chunk
		var embUUID, embedder *string
		var tokens *int
		var seconds *float64
		var vec *pgvector.Vector
		var embeddedAt *time.Time
		if err := rows.Scan(&c.UUID, &c.DocumentUUID, &c.Position, &c.Text, &c.Hash, &c.Length, &c.Overlap,
			&c.Start, &c.End, &c.CreatedAt, &embUUID, &embedder, &tokens, &seconds, &vec, &embeddedAt); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		if vec != nil && len(vec.Slice()) > 0 {
			c.Embedding = &domain.ChunkEmbedding{
				UUID:         deref(embUUID),
				EmbedderType: deref(embedder),
				Tokens:       deref(tokens),
				Seconds:      deref(seconds),
				Vector:       vec.Slice(),
			}
			if embeddedAt != nil {
				c.Embedding.CreatedAt = *embeddedAt
			}
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
