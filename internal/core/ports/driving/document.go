package driving

import (
	"context"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

// DocumentService lists and maintains ingested documents.
type DocumentService interface {
	// List returns documents matching the filters, newest first.
	List(ctx context.Context, req domain.DocumentListRequest) ([]domain.DocumentView, error)

	// Get returns one document with its metadata.
	Get(ctx context.Context, uuid string) (*domain.DocumentView, error)

	// UpdateTags replaces a document's tags.
	UpdateTags(ctx context.Context, uuid string, tags []string) (*domain.Document, error)

	// Delete removes a document and everything it owns.
	Delete(ctx context.Context, uuid string) error
}
