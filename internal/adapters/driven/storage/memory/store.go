// Package memory provides in-memory implementations of the driven store
// ports. It backs the dev server and service tests.
package memory

import (
	"sync"

	"github.com/custodia-labs/docpipe/internal/core/domain"
	"github.com/custodia-labs/docpipe/internal/core/ports/driven"
)

// Ensure Store implements every store port.
var (
	_ driven.Repository          = (*Store)(nil)
	_ driven.DocumentStore       = (*Store)(nil)
	_ driven.ChunkStore          = (*Store)(nil)
	_ driven.VectorIndex         = (*Store)(nil)
	_ driven.MetadataStore       = (*Store)(nil)
	_ driven.SynonymStore        = (*Store)(nil)
	_ driven.RecurrentQueryStore = (*Store)(nil)
)

// Store keeps every entity behind one lock so cascades are atomic.
type Store struct {
	mu sync.RWMutex

	documents   map[string]domain.Document
	chunks      map[string][]domain.Chunk // by document uuid, ordered by position
	definitions map[string]domain.MetadataDefinition
	values      map[valueKey]domain.MetadataValue
	synonyms    map[string]domain.Synonym
	queries     map[string]domain.RecurrentQuery
}

type valueKey struct {
	document string
	chunk    string
	metadata string
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		documents:   make(map[string]domain.Document),
		chunks:      make(map[string][]domain.Chunk),
		definitions: make(map[string]domain.MetadataDefinition),
		values:      make(map[valueKey]domain.MetadataValue),
		synonyms:    make(map[string]domain.Synonym),
		queries:     make(map[string]domain.RecurrentQuery),
	}
}

func (s *Store) Documents() driven.DocumentStore              { return s }
func (s *Store) Chunks() driven.ChunkStore                    { return s }
func (s *Store) Vectors() driven.VectorIndex                  { return s }
func (s *Store) Metadata() driven.MetadataStore               { return s }
func (s *Store) Synonyms() driven.SynonymStore                { return s }
func (s *Store) RecurrentQueries() driven.RecurrentQueryStore { return s }

// Close is a no-op.
func (s *Store) Close() error { return nil }
