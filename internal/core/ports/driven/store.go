package driven

import (
	"context"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

// DocumentStore persists documents. Status changes go through
// TransitionStatus so concurrent handlers serialize on the stored state.
type DocumentStore interface {
	// CreateDocument inserts a new document. A duplicate uuid or hash
	// returns domain.ErrConflict.
	CreateDocument(ctx context.Context, doc *domain.Document) error

	// GetDocument retrieves a document by uuid.
	GetDocument(ctx context.Context, uuid string) (*domain.Document, error)

	// GetDocumentByHash retrieves the document with the given content hash.
	GetDocumentByHash(ctx context.Context, hash string) (*domain.Document, error)

	// GetDocumentByLocation retrieves a document by its indexed location.
	GetDocumentByLocation(ctx context.Context, location string) (*domain.Document, error)

	// ListDocuments returns documents matching q, newest first.
	ListDocuments(ctx context.Context, q domain.DocumentQuery) ([]domain.Document, error)

	// UpdateTags replaces the document's tag set.
	UpdateTags(ctx context.Context, uuid string, tags []string) error

	// TransitionStatus moves a document from one status to another. It
	// returns domain.ErrConflict when the stored status is not from, and
	// domain.ErrNotFound when the document does not exist. failure is stored
	// when to is FAILED and cleared otherwise.
	TransitionStatus(ctx context.Context, uuid string, from, to domain.DocumentStatus, failure *domain.Failure) error

	// ReclaimDocument moves a FAILED document back to EXTRACTED and points it
	// at r in the same conditional write. It returns domain.ErrConflict when
	// the document is no longer FAILED.
	ReclaimDocument(ctx context.Context, uuid string, r domain.Relocation) error

	// DeleteDocument removes a document with its chunks, embeddings and metadata values.
	DeleteDocument(ctx context.Context, uuid string) error
}

// ChunkStore persists chunks and their embeddings.
type ChunkStore interface {
	// ReplaceChunks atomically replaces every chunk of a document.
	ReplaceChunks(ctx context.Context, documentUUID string, chunks []domain.Chunk) error

	// ListChunks returns a document's chunks ordered by position.
	ListChunks(ctx context.Context, documentUUID string) ([]domain.Chunk, error)

	// GetChunks returns the chunks with the given uuids, in any order.
	GetChunks(ctx context.Context, uuids []string) ([]domain.Chunk, error)

	// SaveEmbedding stores a chunk's vector and stats, replacing any prior one.
	SaveEmbedding(ctx context.Context, chunkUUID string, emb domain.ChunkEmbedding) error
}

// VectorHit is a chunk ranked by similarity to a query vector.
type VectorHit struct {
	ChunkUUID    string
	DocumentUUID string
	Similarity   float64
}

// VectorIndex ranks vectorized chunks against a query vector.
type VectorIndex interface {
	// SearchSimilar returns at most k hits, most similar first; ties keep
	// chunk creation order. A nil documentUUIDs searches every document;
	// otherwise only chunks of the listed documents are considered.
	SearchSimilar(ctx context.Context, vector []float32, k int, documentUUIDs []string) ([]VectorHit, error)
}

// MetadataStore persists metadata definitions and values.
type MetadataStore interface {
	// CreateDefinition inserts a definition; a duplicate name is domain.ErrConflict.
	CreateDefinition(ctx context.Context, def *domain.MetadataDefinition) error

	// UpdateDefinition replaces a definition's mutable fields.
	UpdateDefinition(ctx context.Context, def *domain.MetadataDefinition) error

	// GetDefinition retrieves a definition by uuid.
	GetDefinition(ctx context.Context, uuid string) (*domain.MetadataDefinition, error)

	// ListDefinitions returns every definition sorted by name.
	ListDefinitions(ctx context.Context) ([]domain.MetadataDefinition, error)

	// DeleteDefinition removes a definition. Without cascade, existing values
	// make it fail with domain.ErrConflict; with cascade they are removed first.
	DeleteDefinition(ctx context.Context, uuid string, cascade bool) error

	// CountValues returns how many values reference a definition.
	CountValues(ctx context.Context, metadataUUID string) (int, error)

	// UpsertValue writes the value for its (document, chunk, definition) key.
	UpsertValue(ctx context.Context, v *domain.MetadataValue) error

	// DeleteValue removes the document-level value for a definition.
	DeleteValue(ctx context.Context, documentUUID, metadataUUID string) error

	// ListValues returns values for the given documents; nil lists all values.
	ListValues(ctx context.Context, documentUUIDs []string) ([]domain.MetadataValue, error)
}

// SynonymStore persists synonyms.
type SynonymStore interface {
	// CreateSynonym inserts a synonym; a duplicate name is domain.ErrConflict.
	CreateSynonym(ctx context.Context, s *domain.Synonym) error
	UpdateSynonym(ctx context.Context, s *domain.Synonym) error
	GetSynonym(ctx context.Context, uuid string) (*domain.Synonym, error)
	DeleteSynonym(ctx context.Context, uuid string) error
	ListSynonyms(ctx context.Context) ([]domain.Synonym, error)
}

// RecurrentQueryStore persists saved queries.
type RecurrentQueryStore interface {
	CreateRecurrentQuery(ctx context.Context, q *domain.RecurrentQuery) error
	UpdateRecurrentQuery(ctx context.Context, q *domain.RecurrentQuery) error
	GetRecurrentQuery(ctx context.Context, uuid string) (*domain.RecurrentQuery, error)
	DeleteRecurrentQuery(ctx context.Context, uuid string) error
	ListRecurrentQueries(ctx context.Context, f domain.RecurrentQueryFilter) ([]domain.RecurrentQuery, error)
}

// Repository bundles every store a backend provides.
type Repository interface {
	Documents() DocumentStore
	Chunks() ChunkStore
	Vectors() VectorIndex
	Metadata() MetadataStore
	Synonyms() SynonymStore
	RecurrentQueries() RecurrentQueryStore
	Close() error
}
