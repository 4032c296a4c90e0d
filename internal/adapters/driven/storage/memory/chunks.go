package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/custodia-labs/docpipe/internal/adapters/driven/storage/vector"
	"github.com/custodia-labs/docpipe/internal/core/domain"
	"github.com/custodia-labs/docpipe/internal/core/ports/driven"
)

// ReplaceChunks replaces every chunk of a document.
func (s *Store) ReplaceChunks(_ context.Context, documentUUID string, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[documentUUID]; !ok {
		return fmt.Errorf("document %s: %w", documentUUID, domain.ErrNotFound)
	}
	stored := make([]domain.Chunk, len(chunks))
	for i, c := range chunks {
		c.DocumentUUID = documentUUID
		stored[i] = cloneChunk(c)
	}
	sort.SliceStable(stored, func(i, j int) bool { return stored[i].Position < stored[j].Position })

	// Chunk-level values of dropped chunks go with them.
	for k := range s.values {
		if k.document == documentUUID && k.chunk != "" {
			delete(s.values, k)
		}
	}
	s.chunks[documentUUID] = stored
	return nil
}

// ListChunks returns a document's chunks ordered by position.
func (s *Store) ListChunks(_ context.Context, documentUUID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks := s.chunks[documentUUID]
	out := make([]domain.Chunk, len(chunks))
	for i, c := range chunks {
		out[i] = cloneChunk(c)
	}
	return out, nil
}

// GetChunks returns the chunks with the given uuids.
func (s *Store) GetChunks(_ context.Context, uuids []string) ([]domain.Chunk, error) {
	want := make(map[string]struct{}, len(uuids))
	for _, id := range uuids {
		want[id] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Chunk
	for _, chunks := range s.chunks {
		for _, c := range chunks {
			if _, ok := want[c.UUID]; ok {
				out = append(out, cloneChunk(c))
			}
		}
	}
	return out, nil
}

// SaveEmbedding stores a chunk's embedding.
func (s *Store) SaveEmbedding(_ context.Context, chunkUUID string, emb domain.ChunkEmbedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for doc, chunks := range s.chunks {
		for i := range chunks {
			if chunks[i].UUID == chunkUUID {
				e := emb
				e.Vector = append([]float32(nil), emb.Vector...)
				s.chunks[doc][i].Embedding = &e
				return nil
			}
		}
	}
	return fmt.Errorf("chunk %s: %w", chunkUUID, domain.ErrNotFound)
}

// SearchSimilar ranks vectorized chunks by cosine similarity.
func (s *Store) SearchSimilar(_ context.Context, vec []float32, k int, documentUUIDs []string) ([]driven.VectorHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var allow map[string]struct{}
	if documentUUIDs != nil {
		allow = make(map[string]struct{}, len(documentUUIDs))
		for _, id := range documentUUIDs {
			allow[id] = struct{}{}
		}
	}

	var candidates []vector.Candidate
	for doc, chunks := range s.chunks {
		if allow != nil {
			if _, ok := allow[doc]; !ok {
				continue
			}
		}
		for _, c := range chunks {
			if !c.Vectorized() {
				continue
			}
			candidates = append(candidates, vector.Candidate{
				ChunkUUID:    c.UUID,
				DocumentUUID: doc,
				Position:     c.Position,
				CreatedAt:    c.CreatedAt,
				Vector:       c.Embedding.Vector,
			})
		}
	}
	return vector.Rank(vec, candidates, k), nil
}

func cloneChunk(c domain.Chunk) domain.Chunk {
	if c.Embedding != nil {
		e := *c.Embedding
		e.Vector = append([]float32(nil), c.Embedding.Vector...)
		c.Embedding = &e
	}
	return c
}
