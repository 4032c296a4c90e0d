// Package filters decodes wire-level document filters into a domain.DocumentQuery.
//
// Each filter_type has a decoder registered by name. A request carrying an
// unknown filter_type is rejected with a hint naming the closest known type.
package filters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

// DecoderFunc decodes one filter payload into q.
type DecoderFunc func(ctx context.Context, raw json.RawMessage, q *domain.DocumentQuery) error

// Registry maps filter types to their decoders.
type Registry struct {
	decoders map[string]DecoderFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		decoders: make(map[string]DecoderFunc),
	}
}

// Register adds a decoder. Names are case-insensitive.
func (r *Registry) Register(name string, decoder DecoderFunc) {
	r.decoders[strings.ToLower(name)] = decoder
}

// Has returns true if a decoder with the given name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.decoders[strings.ToLower(name)]
	return ok
}

// Names returns all registered filter types, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.decoders))
	for name := range r.decoders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply decodes every filter into q. Filters combine with AND.
func (r *Registry) Apply(ctx context.Context, filters []domain.DocumentFilter, q *domain.DocumentQuery) error {
	for i, f := range filters {
		name := strings.ToLower(strings.TrimSpace(f.Type))
		if name == "" {
			return fmt.Errorf("%w: document_filters[%d]: filter_type is required", domain.ErrValidation, i)
		}
		decoder, ok := r.decoders[name]
		if !ok {
			return fmt.Errorf("%w: document_filters[%d]: unknown filter_type %q%s",
				domain.ErrValidation, i, f.Type, Suggest(name, r.Names()))
		}
		raw, err := unwrap(f.Value)
		if err != nil {
			return fmt.Errorf("%w: document_filters[%d]: %v", domain.ErrValidation, i, err)
		}
		if err := decoder(ctx, raw, q); err != nil {
			return fmt.Errorf("document_filters[%d]: %w", i, err)
		}
	}
	return nil
}

// Suggest returns a " (did you mean ...?)" hint for the closest candidate,
// or "" when nothing is close.
func Suggest(name string, candidates []string) string {
	best, bestDist := "", -1
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(name, c)
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	if best == "" || bestDist > maxSuggestDistance(name) {
		return ""
	}
	return fmt.Sprintf(" (did you mean %q?)", best)
}

func maxSuggestDistance(name string) int {
	if n := len(name) / 2; n < 3 {
		return n
	}
	return 3
}

// unwrap accepts filter_value as an object or as a JSON string holding one.
func unwrap(raw json.RawMessage) (json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("filter_value is required")
	}
	if raw[0] != '"' {
		return raw, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("filter_value: %v", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("filter_value is required")
	}
	return json.RawMessage(s), nil
}

// decodeStrict decodes raw into v, keeping numbers as json.Number.
func decodeStrict(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: filter_value: %v", domain.ErrValidation, err)
	}
	return nil
}
