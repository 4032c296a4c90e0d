package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

// CreateRecurrentQuery stores a saved query.
func (s *Store) CreateRecurrentQuery(_ context.Context, q *domain.RecurrentQuery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.queries[q.UUID]; ok {
		return fmt.Errorf("recurrent query %s: %w", q.UUID, domain.ErrConflict)
	}
	s.queries[q.UUID] = cloneQuery(*q)
	return nil
}

// UpdateRecurrentQuery replaces a saved query.
func (s *Store) UpdateRecurrentQuery(_ context.Context, q *domain.RecurrentQuery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.queries[q.UUID]; !ok {
		return fmt.Errorf("recurrent query %s: %w", q.UUID, domain.ErrNotFound)
	}
	s.queries[q.UUID] = cloneQuery(*q)
	return nil
}

// GetRecurrentQuery retrieves a saved query by uuid.
func (s *Store) GetRecurrentQuery(_ context.Context, uuid string) (*domain.RecurrentQuery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.queries[uuid]
	if !ok {
		return nil, fmt.Errorf("recurrent query %s: %w", uuid, domain.ErrNotFound)
	}
	c := cloneQuery(q)
	return &c, nil
}

// DeleteRecurrentQuery removes a saved query.
func (s *Store) DeleteRecurrentQuery(_ context.Context, uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.queries[uuid]; !ok {
		return fmt.Errorf("recurrent query %s: %w", uuid, domain.ErrNotFound)
	}
	delete(s.queries, uuid)
	return nil
}

// ListRecurrentQueries returns saved queries matching f, sorted by name.
func (s *Store) ListRecurrentQueries(_ context.Context, f domain.RecurrentQueryFilter) ([]domain.RecurrentQuery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.RecurrentQuery
	for _, q := range s.queries {
		if f.UUID != "" && q.UUID != f.UUID {
			continue
		}
		if f.UserUUID != "" && q.UserUUID != f.UserUUID {
			continue
		}
		out = append(out, cloneQuery(q))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].UUID < out[j].UUID
	})
	return out, nil
}

func cloneQuery(q domain.RecurrentQuery) domain.RecurrentQuery {
	q.Tags = append([]string{}, q.Tags...)
	return q
}
