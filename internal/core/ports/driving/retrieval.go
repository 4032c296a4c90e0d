package driving

import (
	"context"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

// RetrievalService ranks chunks against a question within filtered documents.
type RetrievalService interface {
	Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResult, error)
}

// AnswerService synthesizes an answer from selected chunks.
type AnswerService interface {
	Answer(ctx context.Context, req domain.AnswerRequest) (*domain.Answer, error)
}
