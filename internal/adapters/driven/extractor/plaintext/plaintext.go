// Package plaintext extracts UTF-8 text files.
package plaintext

import (
	"bytes"
	"context"
	"strings"

	"github.com/custodia-labs/docpipe/internal/core/ports/driven"
)

// Ensure Extractor implements the interface.
var _ driven.TextExtractor = (*Extractor)(nil)

var bom = []byte{0xEF, 0xBB, 0xBF}

// Extractor returns text content as-is, minus a byte order mark. Invalid
// UTF-8 is replaced with U+FFFD.
type Extractor struct{}

// New creates a plaintext extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract implements driven.TextExtractor.
func (e *Extractor) Extract(ctx context.Context, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data = bytes.TrimPrefix(data, bom)
	return strings.ToValidUTF8(string(data), "\uFFFD"), nil
}

// SupportedTypes implements driven.TextExtractor.
func (e *Extractor) SupportedTypes() []string {
	return []string{"text/plain", "text/markdown"}
}
