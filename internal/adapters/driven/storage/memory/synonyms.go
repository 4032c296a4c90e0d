package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

// CreateSynonym stores a new synonym.
func (s *Store) CreateSynonym(_ context.Context, syn *domain.Synonym) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.synonyms[syn.UUID]; ok {
		return fmt.Errorf("synonym %s: %w", syn.UUID, domain.ErrConflict)
	}
	if s.synonymNameTakenLocked(syn.Name, "") {
		return fmt.Errorf("synonym name %q: %w", syn.Name, domain.ErrConflict)
	}
	s.synonyms[syn.UUID] = *syn
	return nil
}

// UpdateSynonym replaces a synonym.
func (s *Store) UpdateSynonym(_ context.Context, syn *domain.Synonym) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.synonyms[syn.UUID]; !ok {
		return fmt.Errorf("synonym %s: %w", syn.UUID, domain.ErrNotFound)
	}
	if s.synonymNameTakenLocked(syn.Name, syn.UUID) {
		return fmt.Errorf("synonym name %q: %w", syn.Name, domain.ErrConflict)
	}
	s.synonyms[syn.UUID] = *syn
	return nil
}

func (s *Store) synonymNameTakenLocked(name, except string) bool {
	for id, syn := range s.synonyms {
		if id != except && syn.Name == name {
			return true
		}
	}
	return false
}

// GetSynonym retrieves a synonym by uuid.
func (s *Store) GetSynonym(_ context.Context, uuid string) (*domain.Synonym, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	syn, ok := s.synonyms[uuid]
	if !ok {
		return nil, fmt.Errorf("synonym %s: %w", uuid, domain.ErrNotFound)
	}
	return &syn, nil
}

// DeleteSynonym removes a synonym.
func (s *Store) DeleteSynonym(_ context.Context, uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.synonyms[uuid]; !ok {
		return fmt.Errorf("synonym %s: %w", uuid, domain.ErrNotFound)
	}
	delete(s.synonyms, uuid)
	return nil
}

// ListSynonyms returns synonyms sorted by name.
func (s *Store) ListSynonyms(_ context.Context) ([]domain.Synonym, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Synonym, 0, len(s.synonyms))
	for _, syn := range s.synonyms {
		out = append(out, syn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
