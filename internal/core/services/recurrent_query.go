package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/docpipe/internal/core/domain"
	"github.com/custodia-labs/docpipe/internal/core/ports/driven"
	"github.com/custodia-labs/docpipe/internal/core/ports/driving"
)

// Ensure RecurrentQueryService implements the interface.
var _ driving.RecurrentQueryService = (*RecurrentQueryService)(nil)

// RecurrentQueryService manages saved searches.
type RecurrentQueryService struct {
	store driven.RecurrentQueryStore
	now   func() time.Time
}

// NewRecurrentQueryService creates a recurrent query service.
func NewRecurrentQueryService(store driven.RecurrentQueryStore) *RecurrentQueryService {
	return &RecurrentQueryService{store: store, now: time.Now}
}

// Create stores a saved query owned by the caller unless user_uuid is set.
func (s *RecurrentQueryService) Create(ctx context.Context, q domain.RecurrentQuery) (*domain.RecurrentQuery, error) {
	normaliseQuery(&q)
	if err := q.Validate(); err != nil {
		return nil, err
	}

	caller, _ := domain.CallerFrom(ctx)
	if q.UserUUID == "" {
		q.UserUUID = caller.Subject
	}
	now := s.now().UTC()
	q.UUID = uuid.New().String()
	q.CreatedBy, q.UpdatedBy = caller.Actor(), caller.Actor()
	q.CreatedAt, q.UpdatedAt = now, now

	if err := s.store.CreateRecurrentQuery(ctx, &q); err != nil {
		return nil, upstream("create recurrent query", err)
	}
	return &q, nil
}

// Get returns a saved query.
func (s *RecurrentQueryService) Get(ctx context.Context, id string) (*domain.RecurrentQuery, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: recurrent_query_uuid is required", domain.ErrValidation)
	}
	q, err := s.store.GetRecurrentQuery(ctx, id)
	if err != nil {
		return nil, upstream("get recurrent query", err)
	}
	return q, nil
}

// Update replaces the mutable fields of a saved query. Ownership and
// creation audit fields are kept.
func (s *RecurrentQueryService) Update(ctx context.Context, q domain.RecurrentQuery) (*domain.RecurrentQuery, error) {
	if strings.TrimSpace(q.UUID) == "" {
		return nil, fmt.Errorf("%w: recurrent_query_uuid is required", domain.ErrValidation)
	}
	normaliseQuery(&q)
	if err := q.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.store.GetRecurrentQuery(ctx, q.UUID)
	if err != nil {
		return nil, upstream("get recurrent query", err)
	}
	caller, _ := domain.CallerFrom(ctx)
	if q.UserUUID == "" {
		q.UserUUID = existing.UserUUID
	}
	q.CreatedBy = existing.CreatedBy
	q.CreatedAt = existing.CreatedAt
	q.UpdatedBy = caller.Actor()
	q.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateRecurrentQuery(ctx, &q); err != nil {
		return nil, upstream("update recurrent query", err)
	}
	return &q, nil
}

// Delete removes a saved query.
func (s *RecurrentQueryService) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: recurrent_query_uuid is required", domain.ErrValidation)
	}
	if err := s.store.DeleteRecurrentQuery(ctx, id); err != nil {
		return upstream("delete recurrent query", err)
	}
	return nil
}

// List returns saved queries matching f, sorted by name.
func (s *RecurrentQueryService) List(ctx context.Context, f domain.RecurrentQueryFilter) ([]domain.RecurrentQuery, error) {
	out, err := s.store.ListRecurrentQueries(ctx, f)
	if err != nil {
		return nil, upstream("list recurrent queries", err)
	}
	return nonNil(out), nil
}

func normaliseQuery(q *domain.RecurrentQuery) {
	q.Name = strings.TrimSpace(q.Name)
	q.QueryType = strings.TrimSpace(q.QueryType)
	q.Tags = domain.NormaliseTags(q.Tags)
}
