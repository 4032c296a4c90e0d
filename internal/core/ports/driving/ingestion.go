package driving

import (
	"context"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

// IngestionService drives documents through the pipeline in response to
// storage events. Every handler is safe under at-least-once delivery.
type IngestionService interface {
	// HandleEvent routes an event by bucket to Ingest or Vectorize.
	HandleEvent(ctx context.Context, event domain.StorageEvent) (*domain.IngestResult, error)

	// Ingest extracts, chunks and indexes an intake object.
	Ingest(ctx context.Context, obj domain.Object) (*domain.IngestResult, error)

	// Vectorize embeds the chunks of the document stored at obj.
	Vectorize(ctx context.Context, obj domain.Object) (*domain.IngestResult, error)
}

// Vectorizer embeds a document's pending chunks.
type Vectorizer interface {
	VectorizeDocument(ctx context.Context, documentUUID string, force bool) (*domain.VectorizeReport, error)
}
