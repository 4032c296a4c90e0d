package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/custodia-labs/docpipe/internal/core/domain"
	"github.com/custodia-labs/docpipe/internal/core/ports/driven"
	"github.com/custodia-labs/docpipe/internal/core/ports/driving"
	"github.com/custodia-labs/docpipe/internal/logger"
)

// Ensure SynonymService implements the interface.
var _ driving.SynonymService = (*SynonymService)(nil)

// SynonymService manages synonyms and expands queries with them.
type SynonymService struct {
	store     driven.SynonymStore
	wholeWord bool
	now       func() time.Time
}

// NewSynonymService creates a synonym service. With wholeWord set, a name
// only matches on word boundaries.
func NewSynonymService(store driven.SynonymStore, wholeWord bool) *SynonymService {
	return &SynonymService{store: store, wholeWord: wholeWord, now: time.Now}
}

// Add creates a synonym.
func (s *SynonymService) Add(ctx context.Context, syn domain.Synonym) (*domain.Synonym, error) {
	if err := syn.Validate(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	syn.UUID = uuid.New().String()
	syn.CreatedAt, syn.UpdatedAt = now, now
	if err := s.store.CreateSynonym(ctx, &syn); err != nil {
		return nil, upstream("create synonym", err)
	}
	logger.Info("Added synonym %q -> %q", syn.Name, syn.Value)
	return &syn, nil
}

// Update replaces a synonym's name, value and comments.
func (s *SynonymService) Update(ctx context.Context, syn domain.Synonym) (*domain.Synonym, error) {
	if strings.TrimSpace(syn.UUID) == "" {
		return nil, fmt.Errorf("%w: synonym_uuid is required", domain.ErrValidation)
	}
	if err := syn.Validate(); err != nil {
		return nil, err
	}
	existing, err := s.store.GetSynonym(ctx, syn.UUID)
	if err != nil {
		return nil, upstream("get synonym", err)
	}
	syn.CreatedAt = existing.CreatedAt
	syn.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateSynonym(ctx, &syn); err != nil {
		return nil, upstream("update synonym", err)
	}
	return &syn, nil
}

// Delete removes a synonym.
func (s *SynonymService) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: synonym_uuid is required", domain.ErrValidation)
	}
	if err := s.store.DeleteSynonym(ctx, id); err != nil {
		return upstream("delete synonym", err)
	}
	return nil
}

// List returns synonyms sorted by name.
func (s *SynonymService) List(ctx context.Context) ([]domain.Synonym, error) {
	syns, err := s.store.ListSynonyms(ctx)
	if err != nil {
		return nil, upstream("list synonyms", err)
	}
	return syns, nil
}

// Expand rewrites query with every stored synonym.
func (s *SynonymService) Expand(ctx context.Context, query string) (*domain.Expansion, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is required", domain.ErrValidation)
	}
	syns, err := s.store.ListSynonyms(ctx)
	if err != nil {
		return nil, upstream("list synonyms", err)
	}
	processed := ExpandQuery(query, syns, s.wholeWord)
	logger.Debug("Expanded query %q -> %q", query, processed)
	return &domain.Expansion{OriginalQuery: query, ProcessedQuery: processed}, nil
}

// ExpandQuery scans query once from left to right. At each position the
// longest matching synonym name is replaced with
// "name or value" and scanning resumes after the match, so inserted text is
// never rescanned. Matching is case-sensitive.
func ExpandQuery(query string, synonyms []domain.Synonym, wholeWord bool) string {
	candidates := make([]domain.Synonym, 0, len(synonyms))
	for _, syn := range synonyms {
		if syn.Name != "" {
			candidates = append(candidates, syn)
		}
	}
	if len(candidates) == 0 {
		return query
	}
	sort.Slice(candidates, func(i, j int) bool {
		if len(candidates[i].Name) != len(candidates[j].Name) {
			return len(candidates[i].Name) > len(candidates[j].Name)
		}
		return candidates[i].Name < candidates[j].Name
	})

	var b strings.Builder
	for i := 0; i < len(query); {
		matched := false
		for _, syn := range candidates {
			if !strings.HasPrefix(query[i:], syn.Name) {
				continue
			}
			end := i + len(syn.Name)
			if wholeWord && !(boundaryBefore(query, i) && boundaryAfter(query, end)) {
				continue
			}
			b.WriteString(syn.Name)
			b.WriteString(" or ")
			b.WriteString(syn.Value)
			i = end
			matched = true
			break
		}
		if !matched {
			_, size := utf8.DecodeRuneInString(query[i:])
			b.WriteString(query[i : i+size])
			i += size
		}
	}
	return b.String()
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}
