package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

// CreateDocument stores a new document.
func (s *Store) CreateDocument(_ context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[doc.UUID]; ok {
		return fmt.Errorf("document %s: %w", doc.UUID, domain.ErrConflict)
	}
	for _, d := range s.documents {
		if doc.Hash != "" && d.Hash == doc.Hash {
			return fmt.Errorf("document hash %s: %w", doc.Hash, domain.ErrConflict)
		}
	}
	s.documents[doc.UUID] = cloneDocument(*doc)
	return nil
}

// GetDocument retrieves a document by uuid.
func (s *Store) GetDocument(_ context.Context, uuid string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[uuid]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", uuid, domain.ErrNotFound)
	}
	d := cloneDocument(doc)
	return &d, nil
}

// GetDocumentByHash retrieves a document by content hash.
func (s *Store) GetDocumentByHash(_ context.Context, hash string) (*domain.Document, error) {
	return s.findDocument(func(d *domain.Document) bool { return d.Hash == hash }, "hash "+hash)
}

// GetDocumentByLocation retrieves a document by indexed location.
func (s *Store) GetDocumentByLocation(_ context.Context, location string) (*domain.Document, error) {
	return s.findDocument(func(d *domain.Document) bool { return d.Location == location }, "location "+location)
}

func (s *Store) findDocument(match func(*domain.Document) bool, what string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, doc := range s.documents {
		if match(&doc) {
			d := cloneDocument(doc)
			return &d, nil
		}
	}
	return nil, fmt.Errorf("document with %s: %w", what, domain.ErrNotFound)
}

// ListDocuments returns documents matching q, newest first.
func (s *Store) ListDocuments(_ context.Context, q domain.DocumentQuery) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Document
	for _, doc := range s.documents {
		if !q.MatchesDocument(&doc) {
			continue
		}
		if len(q.Conditions) > 0 && !q.MatchesValues(s.documentValuesLocked(doc.UUID)) {
			continue
		}
		result = append(result, cloneDocument(doc))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].UUID < result[j].UUID
	})
	return result, nil
}

// documentValuesLocked returns document-level values keyed by metadata uuid.
func (s *Store) documentValuesLocked(documentUUID string) map[string]*domain.MetadataValue {
	out := make(map[string]*domain.MetadataValue)
	for k, v := range s.values {
		if k.document == documentUUID && k.chunk == "" {
			v := v
			out[k.metadata] = &v
		}
	}
	return out
}

// UpdateTags replaces a document's tags.
func (s *Store) UpdateTags(_ context.Context, uuid string, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[uuid]
	if !ok {
		return fmt.Errorf("document %s: %w", uuid, domain.ErrNotFound)
	}
	doc.Tags = append([]string(nil), tags...)
	doc.UpdatedAt = time.Now().UTC()
	s.documents[uuid] = doc
	return nil
}

// TransitionStatus moves a document between statuses if it is still in from.
func (s *Store) TransitionStatus(_ context.Context, uuid string, from, to domain.DocumentStatus, failure *domain.Failure) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[uuid]
	if !ok {
		return fmt.Errorf("document %s: %w", uuid, domain.ErrNotFound)
	}
	if doc.Status != from {
		return fmt.Errorf("document %s is %s, not %s: %w", uuid, doc.Status, from, domain.ErrConflict)
	}
	doc.Status = to
	doc.Failure = nil
	if to == domain.StatusFailed && failure != nil {
		f := *failure
		doc.Failure = &f
	}
	doc.UpdatedAt = time.Now().UTC()
	s.documents[uuid] = doc
	return nil
}

// ReclaimDocument retries a FAILED document from a new upload.
func (s *Store) ReclaimDocument(_ context.Context, uuid string, r domain.Relocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[uuid]
	if !ok {
		return fmt.Errorf("document %s: %w", uuid, domain.ErrNotFound)
	}
	if doc.Status != domain.StatusFailed {
		return fmt.Errorf("document %s is %s, not %s: %w", uuid, doc.Status, domain.StatusFailed, domain.ErrConflict)
	}
	doc.Status = domain.StatusExtracted
	doc.Failure = nil
	doc.Name, doc.Location, doc.SourceLocation, doc.Type = r.Name, r.Location, r.SourceLocation, r.Type
	doc.UpdatedAt = time.Now().UTC()
	s.documents[uuid] = doc
	return nil
}

// DeleteDocument removes a document with its chunks and metadata values.
func (s *Store) DeleteDocument(_ context.Context, uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[uuid]; !ok {
		return fmt.Errorf("document %s: %w", uuid, domain.ErrNotFound)
	}
	delete(s.documents, uuid)
	delete(s.chunks, uuid)
	for k := range s.values {
		if k.document == uuid {
			delete(s.values, k)
		}
	}
	return nil
}

func cloneDocument(d domain.Document) domain.Document {
	d.Tags = append([]string{}, d.Tags...)
	if d.Failure != nil {
		f := *d.Failure
		d.Failure = &f
	}
	return d
}
