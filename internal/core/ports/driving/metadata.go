package driving

import (
	"context"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

// MetadataService manages metadata definitions and computes values.
type MetadataService interface {
	AddDefinition(ctx context.Context, def domain.MetadataDefinition) (*domain.MetadataDefinition, error)
	UpdateDefinition(ctx context.Context, def domain.MetadataDefinition) (*domain.MetadataDefinition, error)

	// DeleteDefinition applies the configured delete policy unless cascade forces removal.
	DeleteDefinition(ctx context.Context, uuid string, cascade bool) error
	ListDefinitions(ctx context.Context) ([]domain.MetadataDefinition, error)

	// Compute evaluates definitions against documents. An empty id widens
	// the scope to all documents or all definitions. Per-pair failures are
	// reported in the outcome list, not returned as an error.
	Compute(ctx context.Context, documentUUID, metadataUUID string) (*domain.ComputeReport, error)
}
