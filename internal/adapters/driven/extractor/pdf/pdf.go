// Package pdf extracts text from PDF documents with ledongthuc/pdf.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/custodia-labs/docpipe/internal/core/domain"
	"github.com/custodia-labs/docpipe/internal/core/ports/driven"
	"github.com/custodia-labs/docpipe/internal/logger"
)

// ContentType is the MIME type handled by this extractor.
const ContentType = "application/pdf"

// Ensure Extractor implements the interface.
var _ driven.TextExtractor = (*Extractor)(nil)

// Extractor reads the text layer of each page in order.
type Extractor struct{}

// New creates a PDF extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract joins page texts with newlines. Null pages are skipped. The
// parser cannot be interrupted mid-page, so it runs on its own goroutine and
// Extract returns as soon as ctx ends.
func (e *Extractor) Extract(ctx context.Context, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := parsePDF(ctx, data)
		done <- result{text, err}
	}()

	select {
	case r := <-done:
		return r.text, r.err
	case <-ctx.Done():
		logger.Warn("pdf: extraction abandoned: %v", ctx.Err())
		return "", ctx.Err()
	}
}

// parsePDF is swapped in tests.
var parsePDF = parse

// parse reads every page. The parser panics on some malformed files, so
// panics become extraction errors.
func parse(ctx context.Context, data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: malformed pdf: %v", domain.ErrExtraction, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: opening pdf: %v", domain.ErrExtraction, err)
	}

	n := reader.NumPage()
	pages := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: page %d: %v", domain.ErrExtraction, i, err)
		}
		pages = append(pages, pageText)
	}
	logger.Debug("pdf: extracted %d of %d pages", len(pages), n)

	return strings.ToValidUTF8(strings.Join(pages, "\n"), "\uFFFD"), nil
}

// SupportedTypes implements driven.TextExtractor.
func (e *Extractor) SupportedTypes() []string {
	return []string{ContentType}
}
