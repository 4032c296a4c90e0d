package domain

import (
	"context"
	"errors"
)

// Domain errors form a closed set of failure kinds. Every error returned by
// the core wraps exactly one of them (a timeout wraps ErrUpstream as well),
// so callers branch with errors.Is instead of matching messages.
var (
	// ErrValidation indicates a malformed or missing required field.
	ErrValidation = errors.New("validation error")

	// ErrNotFound indicates a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a lost conditional write or a duplicate unique key.
	ErrConflict = errors.New("conflict")

	// ErrUpstream indicates a storage, embedding or LLM provider failure.
	ErrUpstream = errors.New("upstream error")

	// ErrTimeout indicates a provider call exceeded its deadline.
	// Timeouts always wrap ErrUpstream too.
	ErrTimeout = errors.New("timeout")

	// ErrExtraction indicates the document content could not be parsed.
	ErrExtraction = errors.New("extraction error")

	// ErrUnsupportedFormat indicates the declared content type has no extractor.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrInternal indicates an unexpected failure.
	ErrInternal = errors.New("internal error")
)

// Kind names an error category for transports.
type Kind string

// Error kinds, one per sentinel.
const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindUpstream          Kind = "upstream"
	KindTimeout           Kind = "timeout"
	KindExtraction        Kind = "extraction"
	KindUnsupportedFormat Kind = "unsupported_format"
	KindInternal          Kind = "internal"
)

// kindOrder is checked top to bottom; timeout precedes upstream.
var kindOrder = []struct {
	err  error
	kind Kind
}{
	{ErrValidation, KindValidation},
	{ErrNotFound, KindNotFound},
	{ErrConflict, KindConflict},
	{ErrTimeout, KindTimeout},
	{ErrUpstream, KindUpstream},
	{ErrExtraction, KindExtraction},
	{ErrUnsupportedFormat, KindUnsupportedFormat},
	{ErrInternal, KindInternal},
}

// KindOf reports the kind of err. Errors outside the closed set are internal.
// It returns the empty kind for a nil error.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kindOrder {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}

// IsKnown reports whether err already carries one of the domain kinds.
func IsKnown(err error) bool {
	for _, k := range kindOrder {
		if errors.Is(err, k.err) {
			return true
		}
	}
	return false
}
