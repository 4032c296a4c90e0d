package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/docpipe/internal/core/domain"
	"github.com/custodia-labs/docpipe/internal/core/ports/driven"
	"github.com/custodia-labs/docpipe/internal/core/ports/driving"
	"github.com/custodia-labs/docpipe/internal/filters"
	"github.com/custodia-labs/docpipe/internal/logger"
)

// Ensure DocumentService implements the interface.
var _ driving.DocumentService = (*DocumentService)(nil)

// DocumentService lists documents and manages their tags.
type DocumentService struct {
	docs    driven.DocumentStore
	meta    driven.MetadataStore
	queries queryBuilder
}

// NewDocumentService creates a document service. tagMatch is the default
// tag semantics when a request does not choose one.
func NewDocumentService(docs driven.DocumentStore, meta driven.MetadataStore, registry *filters.Registry, tagMatch domain.TagMatch) *DocumentService {
	return &DocumentService{
		docs:    docs,
		meta:    meta,
		queries: queryBuilder{registry: registry, defaultTagMatch: tagMatch},
	}
}

// List returns documents matching the request with their metadata, newest first.
func (s *DocumentService) List(ctx context.Context, req domain.DocumentListRequest) ([]domain.DocumentView, error) {
	q, err := s.queries.build(ctx, queryInput{
		Filters:   req.Filters,
		Tags:      req.Tags,
		TagMatch:  req.TagMatch,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	})
	if err != nil {
		return nil, err
	}

	docs, err := s.docs.ListDocuments(ctx, q)
	if err != nil {
		return nil, upstream("list documents", err)
	}
	logger.Debug("Document listing matched %d documents", len(docs))

	ids := make([]string, len(docs))
	for i := range docs {
		ids[i] = docs[i].UUID
	}
	entries, err := metadataEntries(ctx, s.meta, ids)
	if err != nil {
		return nil, err
	}

	views := make([]domain.DocumentView, len(docs))
	for i := range docs {
		views[i] = domain.DocumentView{Document: docs[i], Metadata: nonNil(entries[docs[i].UUID])}
	}
	return views, nil
}

// Get returns one document with its metadata.
func (s *DocumentService) Get(ctx context.Context, uuid string) (*domain.DocumentView, error) {
	if strings.TrimSpace(uuid) == "" {
		return nil, fmt.Errorf("%w: document_uuid is required", domain.ErrValidation)
	}
	doc, err := s.docs.GetDocument(ctx, uuid)
	if err != nil {
		return nil, upstream("get document", err)
	}
	entries, err := metadataEntries(ctx, s.meta, []string{uuid})
	if err != nil {
		return nil, err
	}
	return &domain.DocumentView{Document: *doc, Metadata: nonNil(entries[uuid])}, nil
}

// UpdateTags normalises and replaces a document's tags.
func (s *DocumentService) UpdateTags(ctx context.Context, uuid string, tags []string) (*domain.Document, error) {
	if strings.TrimSpace(uuid) == "" {
		return nil, fmt.Errorf("%w: document_uuid is required", domain.ErrValidation)
	}
	if tags == nil {
		return nil, fmt.Errorf("%w: tags is required", domain.ErrValidation)
	}
	normalised := domain.NormaliseTags(tags)
	if err := s.docs.UpdateTags(ctx, uuid, normalised); err != nil {
		return nil, upstream("update tags", err)
	}
	logger.Info("Document %s tags set to %v", uuid, normalised)

	doc, err := s.docs.GetDocument(ctx, uuid)
	if err != nil {
		return nil, upstream("get document", err)
	}
	return doc, nil
}

// Delete removes a document with its chunks and metadata values.
func (s *DocumentService) Delete(ctx context.Context, uuid string) error {
	if strings.TrimSpace(uuid) == "" {
		return fmt.Errorf("%w: document_uuid is required", domain.ErrValidation)
	}
	if err := s.docs.DeleteDocument(ctx, uuid); err != nil {
		return upstream("delete document", err)
	}
	logger.Info("Deleted document %s", uuid)
	return nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
