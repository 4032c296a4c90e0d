package driving

import (
	"context"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

// RecurrentQueryService manages saved queries.
type RecurrentQueryService interface {
	Create(ctx context.Context, q domain.RecurrentQuery) (*domain.RecurrentQuery, error)
	Get(ctx context.Context, uuid string) (*domain.RecurrentQuery, error)
	Update(ctx context.Context, q domain.RecurrentQuery) (*domain.RecurrentQuery, error)
	Delete(ctx context.Context, uuid string) error
	List(ctx context.Context, f domain.RecurrentQueryFilter) ([]domain.RecurrentQuery, error)
}
