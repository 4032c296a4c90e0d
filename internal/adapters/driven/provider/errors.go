// Package provider holds error mapping shared by the HTTP-based embedding
// and LLM adapters.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/custodia-labs/docpipe/internal/core/domain"
	"github.com/custodia-labs/docpipe/internal/core/ports/driven"
)

// maxBody bounds how much of an error body is quoted.
const maxBody = 512

// StatusError classifies a non-2xx response. 429 also wraps
// driven.ErrRateLimited so callers can back off.
func StatusError(name string, status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxBody {
		msg = msg[:maxBody] + "..."
	}
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w: %w: status %d: %s", name, domain.ErrUpstream, driven.ErrRateLimited, status, msg)
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout:
		return fmt.Errorf("%s: %w: %w: status %d: %s", name, domain.ErrTimeout, domain.ErrUpstream, status, msg)
	default:
		return fmt.Errorf("%s: %w: status %d: %s", name, domain.ErrUpstream, status, msg)
	}
}

// TransportError classifies a failure to complete the request at all.
func TransportError(name string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w: %v", name, domain.ErrTimeout, domain.ErrUpstream, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", name, err)
	}
	return fmt.Errorf("%s: %w: %v", name, domain.ErrUpstream, err)
}
