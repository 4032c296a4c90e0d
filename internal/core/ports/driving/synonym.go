package driving

import (
	"context"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

// SynonymService manages synonyms and expands queries.
type SynonymService interface {
	Add(ctx context.Context, s domain.Synonym) (*domain.Synonym, error)
	Update(ctx context.Context, s domain.Synonym) (*domain.Synonym, error)
	Delete(ctx context.Context, uuid string) error
	List(ctx context.Context) ([]domain.Synonym, error)

	// Expand rewrites every synonym occurrence as "name or value".
	Expand(ctx context.Context, query string) (*domain.Expansion, error)
}
