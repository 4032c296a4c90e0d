package pubsub

import (
	"context"

	"github.com/custodia-labs/docpipe/internal/core/domain"
	"github.com/custodia-labs/docpipe/internal/core/ports/driven"
	"github.com/custodia-labs/docpipe/internal/logger"
)

var _ driven.EventPublisher = (*PipelineBroker)(nil)

// PipelineBroker is the operator channel for ingestion events. Every event
// is logged; failures at error level.
type PipelineBroker struct {
	*Broker[domain.PipelineEvent]
}

// NewPipelineBroker creates a pipeline broker.
func NewPipelineBroker() *PipelineBroker {
	return &PipelineBroker{Broker: NewBroker[domain.PipelineEvent]()}
}

// Publish implements driven.EventPublisher.
func (p *PipelineBroker) Publish(_ context.Context, event domain.PipelineEvent) {
	if event.Failed() {
		logger.Error("pipeline: document %s (%s) failed at %s: %s",
			event.DocumentUUID, event.Object, event.Stage, event.Error)
	} else {
		logger.Info("pipeline: document %s is %s", event.DocumentUUID, event.Status)
	}
	p.Broker.Publish(event)
}
