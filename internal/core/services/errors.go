package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

// upstream classifies a provider or storage failure. Deadlines become
// timeouts (which are also upstream errors); errors that already carry a
// domain kind keep it.
func upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrTimeout) {
		return fmt.Errorf("%s: %w: %w: %v", op, domain.ErrTimeout, domain.ErrUpstream, err)
	}
	if domain.IsKnown(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, domain.ErrUpstream, err)
}

// withTimeout bounds ctx by d; a non-positive d leaves ctx unbounded.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// parseDay parses an optional YYYY-MM-DD bound.
func parseDay(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be YYYY-MM-DD, got %q", domain.ErrValidation, field, s)
	}
	return &t, nil
}
