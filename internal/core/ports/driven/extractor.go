package driven

import "context"

// TextExtractor turns raw document bytes into UTF-8 text.
// Identical input must yield identical output.
type TextExtractor interface {
	// Extract parses data declared as contentType. Unknown types return
	// domain.ErrUnsupportedFormat; corrupt content returns domain.ErrExtraction.
	Extract(ctx context.Context, data []byte, contentType string) (string, error)

	// SupportedTypes lists the MIME types this extractor handles.
	SupportedTypes() []string
}
