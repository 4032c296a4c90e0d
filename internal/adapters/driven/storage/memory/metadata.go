package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

// CreateDefinition stores a new metadata definition.
func (s *Store) CreateDefinition(_ context.Context, def *domain.MetadataDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.definitions[def.UUID]; ok {
		return fmt.Errorf("metadata %s: %w", def.UUID, domain.ErrConflict)
	}
	if s.definitionNameTakenLocked(def.Name, "") {
		return fmt.Errorf("metadata name %q: %w", def.Name, domain.ErrConflict)
	}
	s.definitions[def.UUID] = *def
	return nil
}

// UpdateDefinition replaces a definition.
func (s *Store) UpdateDefinition(_ context.Context, def *domain.MetadataDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.definitions[def.UUID]; !ok {
		return fmt.Errorf("metadata %s: %w", def.UUID, domain.ErrNotFound)
	}
	if s.definitionNameTakenLocked(def.Name, def.UUID) {
		return fmt.Errorf("metadata name %q: %w", def.Name, domain.ErrConflict)
	}
	s.definitions[def.UUID] = *def
	return nil
}

func (s *Store) definitionNameTakenLocked(name, except string) bool {
	for id, d := range s.definitions {
		if id != except && d.Name == name {
			return true
		}
	}
	return false
}

// GetDefinition retrieves a definition by uuid.
func (s *Store) GetDefinition(_ context.Context, uuid string) (*domain.MetadataDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, ok := s.definitions[uuid]
	if !ok {
		return nil, fmt.Errorf("metadata %s: %w", uuid, domain.ErrNotFound)
	}
	return &def, nil
}

// ListDefinitions returns definitions sorted by name.
func (s *Store) ListDefinitions(_ context.Context) ([]domain.MetadataDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.MetadataDefinition, 0, len(s.definitions))
	for _, d := range s.definitions {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DeleteDefinition removes a definition, optionally with its values.
func (s *Store) DeleteDefinition(_ context.Context, uuid string, cascade bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.definitions[uuid]; !ok {
		return fmt.Errorf("metadata %s: %w", uuid, domain.ErrNotFound)
	}
	var refs []valueKey
	for k := range s.values {
		if k.metadata == uuid {
			refs = append(refs, k)
		}
	}
	if len(refs) > 0 && !cascade {
		return fmt.Errorf("metadata %s has %d values: %w", uuid, len(refs), domain.ErrConflict)
	}
	for _, k := range refs {
		delete(s.values, k)
	}
	delete(s.definitions, uuid)
	return nil
}

// CountValues counts values referencing a definition.
func (s *Store) CountValues(_ context.Context, metadataUUID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for k := range s.values {
		if k.metadata == metadataUUID {
			n++
		}
	}
	return n, nil
}

// UpsertValue writes a value keyed by (document, chunk, definition).
func (s *Store) UpsertValue(_ context.Context, v *domain.MetadataValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, ok := s.definitions[v.MetadataUUID]
	if !ok {
		return fmt.Errorf("metadata %s: %w", v.MetadataUUID, domain.ErrNotFound)
	}
	if _, ok := s.documents[v.DocumentUUID]; !ok {
		return fmt.Errorf("document %s: %w", v.DocumentUUID, domain.ErrNotFound)
	}
	if err := v.Validate(&def); err != nil {
		return err
	}

	key := valueKey{document: v.DocumentUUID, chunk: v.ChunkUUID, metadata: v.MetadataUUID}
	now := time.Now().UTC()
	stored := *v
	if prev, ok := s.values[key]; ok {
		stored.UUID = prev.UUID
		stored.CreatedAt = prev.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.values[key] = stored
	*v = stored
	return nil
}

// DeleteValue removes the document-level value for a definition.
func (s *Store) DeleteValue(_ context.Context, documentUUID, metadataUUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, valueKey{document: documentUUID, metadata: metadataUUID})
	return nil
}

// ListValues returns values of the given documents, or all values for nil.
func (s *Store) ListValues(_ context.Context, documentUUIDs []string) ([]domain.MetadataValue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var allow map[string]struct{}
	if documentUUIDs != nil {
		allow = make(map[string]struct{}, len(documentUUIDs))
		for _, id := range documentUUIDs {
			allow[id] = struct{}{}
		}
	}

	var out []domain.MetadataValue
	for k, v := range s.values {
		if allow != nil {
			if _, ok := allow[k.document]; !ok {
				continue
			}
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DocumentUUID != out[j].DocumentUUID {
			return out[i].DocumentUUID < out[j].DocumentUUID
		}
		if out[i].MetadataUUID != out[j].MetadataUUID {
			return out[i].MetadataUUID < out[j].MetadataUUID
		}
		return out[i].ChunkUUID < out[j].ChunkUUID
	})
	return out, nil
}
