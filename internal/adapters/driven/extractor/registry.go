// Package extractor routes documents to a text extractor by MIME type.
package extractor

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"sort"
	"strings"

	"github.com/custodia-labs/docpipe/internal/core/domain"
	"github.com/custodia-labs/docpipe/internal/core/ports/driven"
)

// Ensure Registry implements the interface.
var _ driven.TextExtractor = (*Registry)(nil)

// magic maps leading bytes to the MIME type they identify.
var magic = []struct {
	prefix      []byte
	contentType string
}{
	{[]byte("%PDF-"), "application/pdf"},
}

// Registry dispatches to registered extractors.
type Registry struct {
	byType map[string]driven.TextExtractor
}

// NewRegistry registers each extractor under every type it supports.
// Later extractors win on overlap.
func NewRegistry(extractors ...driven.TextExtractor) *Registry {
	r := &Registry{byType: make(map[string]driven.TextExtractor)}
	for _, e := range extractors {
		for _, t := range e.SupportedTypes() {
			r.byType[Normalise(t)] = e
		}
	}
	return r
}

// Extract picks an extractor for contentType, sniffing the content when the
// declared type is missing or unknown.
func (r *Registry) Extract(ctx context.Context, data []byte, contentType string) (string, error) {
	ct := Normalise(contentType)
	e, ok := r.byType[ct]
	if !ok {
		sniffed := Sniff(data)
		e, ok = r.byType[sniffed]
		if !ok {
			return "", fmt.Errorf("%w: content type %q", domain.ErrUnsupportedFormat, contentType)
		}
		ct = sniffed
	}
	return e.Extract(ctx, data, ct)
}

// SupportedTypes lists every registered type in order.
func (r *Registry) SupportedTypes() []string {
	types := make([]string, 0, len(r.byType))
	for t := range r.byType {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Normalise lower-cases a MIME type and drops its parameters.
func Normalise(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		return mt
	}
	base, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

// Sniff identifies data by magic bytes, or returns "".
func Sniff(data []byte) string {
	for _, m := range magic {
		if bytes.HasPrefix(data, m.prefix) {
			return m.contentType
		}
	}
	return ""
}
