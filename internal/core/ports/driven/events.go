package driven

import (
	"context"
	"errors"
	"time"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

// EventPublisher is the operator-visible channel for pipeline transitions
// and failures. Publish must not block the caller on slow subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.PipelineEvent)
}

// RateLimiter throttles provider calls.
type RateLimiter interface {
	// Wait blocks until a call is permitted or ctx is done.
	Wait(ctx context.Context) error
}

// ErrRateLimited marks provider errors caused by throttling (HTTP 429).
// Adapters wrap it alongside domain.ErrUpstream.
var ErrRateLimited = errors.New("rate limited")

// Backoffer is implemented by limiters that can pause callers after a 429.
type Backoffer interface {
	Backoff(d time.Duration)
}
