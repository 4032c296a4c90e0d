package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/custodia-labs/docpipe/internal/core/domain"
	"github.com/custodia-labs/docpipe/internal/core/ports/driven"
	"github.com/custodia-labs/docpipe/internal/core/ports/driving"
	"github.com/custodia-labs/docpipe/internal/logger"
)

// DefaultEventConcurrency bounds in-flight events when unset.
const DefaultEventConcurrency = 4

// EventWorkerConfig selects the buckets to listen on.
type EventWorkerConfig struct {
	Buckets     []string
	Concurrency int
}

// EventWorker feeds blob store notifications to the orchestrator.
type EventWorker struct {
	source driven.BlobEventSource
	ingest driving.IngestionService
	cfg    EventWorkerConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	handled atomic.Int64
	failed  atomic.Int64
}

// NewEventWorker creates a worker.
func NewEventWorker(source driven.BlobEventSource, ingest driving.IngestionService, cfg EventWorkerConfig) *EventWorker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultEventConcurrency
	}
	return &EventWorker{source: source, ingest: ingest, cfg: cfg}
}

// Start listens until ctx is done or Stop is called. It blocks, and waits
// for in-flight events before returning.
func (w *EventWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	stopCh := w.stopCh
	w.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	events, err := w.source.Listen(ctx, w.cfg.Buckets...)
	if err != nil {
		w.markStopped()
		return err
	}
	logger.Info("Listening for object events on %v", w.cfg.Buckets)

	sem := make(chan struct{}, w.cfg.Concurrency)
	for ev := range events {
		sem <- struct{}{}
		w.wg.Add(1)
		go func(ev domain.StorageEvent) {
			defer func() {
				<-sem
				w.wg.Done()
			}()
			w.handle(ctx, ev)
		}(ev)
	}
	w.wg.Wait()
	w.markStopped()

	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

// Stop ends a running Start.
func (w *EventWorker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	w.running = false
	close(w.stopCh)
	return nil
}

// Stats reports events handled successfully and events that failed.
func (w *EventWorker) Stats() (handled, failed int64) {
	return w.handled.Load(), w.failed.Load()
}

func (w *EventWorker) handle(ctx context.Context, ev domain.StorageEvent) {
	res, err := w.ingest.HandleEvent(ctx, ev)
	if err != nil {
		w.failed.Add(1)
		logger.Warn("event %s/%s: %v", ev.Bucket, ev.Key, err)
		return
	}
	w.handled.Add(1)
	logger.Debug("event %s/%s: %s %s", ev.Bucket, ev.Key, res.Outcome, res.DocumentUUID)
}

func (w *EventWorker) markStopped() {
	w.mu.Lock()
	if w.running {
		w.running = false
		close(w.stopCh)
	}
	w.mu.Unlock()
}
