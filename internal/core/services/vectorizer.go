package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/docpipe/internal/core/domain"
	"github.com/custodia-labs/docpipe/internal/core/ports/driven"
	"github.com/custodia-labs/docpipe/internal/core/ports/driving"
	"github.com/custodia-labs/docpipe/internal/logger"
	"github.com/custodia-labs/docpipe/internal/observability/tracing"
)

// Ensure VectorizerService implements the interface.
var _ driving.Vectorizer = (*VectorizerService)(nil)

// DefaultWorkers bounds concurrent provider calls when unset.
const DefaultWorkers = 4

// VectorizerConfig tunes the embedding worker pool.
type VectorizerConfig struct {
	// Workers bounds concurrent embedding calls.
	Workers int

	// Timeout bounds each embedding call.
	Timeout time.Duration
}

// VectorizerService embeds a document's chunks on a bounded worker pool.
type VectorizerService struct {
	chunks   driven.ChunkStore
	embedder driven.EmbeddingService
	limiter  driven.RateLimiter
	cfg      VectorizerConfig
	tracer   tracing.Tracer
	now      func() time.Time
}

// NewVectorizerService creates a vectorizer. limiter may be nil.
func NewVectorizerService(chunks driven.ChunkStore, embedder driven.EmbeddingService, limiter driven.RateLimiter, cfg VectorizerConfig) *VectorizerService {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	return &VectorizerService{
		chunks:   chunks,
		embedder: embedder,
		limiter:  limiter,
		cfg:      cfg,
		tracer:   tracing.NoopTracer{},
		now:      time.Now,
	}
}

// SetTracer sets the tracer for vectorization spans.
func (v *VectorizerService) SetTracer(t tracing.Tracer) {
	v.tracer = tracing.OrNoop(t)
}

// VectorizeDocument embeds every pending chunk of a document. Blank chunks
// are skipped, as are vectorized ones unless force is set. A failed chunk
// never cancels its siblings; it stays pending and is reported.
func (v *VectorizerService) VectorizeDocument(ctx context.Context, documentUUID string, force bool) (report *domain.VectorizeReport, err error) {
	ctx, span := v.tracer.Start(ctx, "vectorizer.document",
		tracing.String("document_uuid", documentUUID), tracing.Bool("force", force))
	defer func() { span.End(err) }()

	if v.embedder == nil {
		return nil, fmt.Errorf("%w: no embedding provider configured", domain.ErrInternal)
	}

	started := v.now()
	chunks, err := v.chunks.ListChunks(ctx, documentUUID)
	if err != nil {
		return nil, upstream("list chunks", err)
	}

	report = &domain.VectorizeReport{DocumentUUID: documentUUID, TotalChunks: len(chunks)}
	var pending []domain.Chunk
	for _, c := range chunks {
		if strings.TrimSpace(c.Text) == "" || (c.Vectorized() && !force) {
			report.SkippedChunks++
			continue
		}
		pending = append(pending, c)
	}
	logger.Debug("Vectorizing %d of %d chunks of %s", len(pending), len(chunks), documentUUID)

	var (
		mu   sync.Mutex
		errs []error
	)
	// A plain Group: no derived context, so one failure cancels nothing.
	var g errgroup.Group
	g.SetLimit(v.cfg.Workers)
	for _, c := range pending {
		g.Go(func() error {
			if err := v.embedChunk(ctx, c); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("chunk %d (%s): %w", c.Position, c.UUID, err))
				mu.Unlock()
				return nil
			}
			mu.Lock()
			report.ProcessedChunks++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	report.FailedChunks = len(errs)
	report.ProcessingTimeSeconds = v.now().Sub(started).Seconds()
	for _, e := range errs {
		report.Errors = append(report.Errors, e.Error())
	}

	logger.Info("Vectorized %s: processed=%d skipped=%d failed=%d total=%d",
		documentUUID, report.ProcessedChunks, report.SkippedChunks, report.FailedChunks, report.TotalChunks)

	if len(errs) > 0 {
		return report, fmt.Errorf("%w: %d of %d chunks failed to vectorize: %w",
			domain.ErrUpstream, len(errs), len(pending), errors.Join(errs...))
	}
	return report, nil
}

func (v *VectorizerService) embedChunk(ctx context.Context, c domain.Chunk) error {
	if v.limiter != nil {
		if err := v.limiter.Wait(ctx); err != nil {
			return upstream("rate limiter", err)
		}
	}

	ectx, cancel := withTimeout(ctx, v.cfg.Timeout)
	defer cancel()

	started := v.now()
	emb, err := v.embedder.Embed(ectx, c.Text)
	elapsed := v.now().Sub(started).Seconds()
	if err != nil {
		if errors.Is(err, driven.ErrRateLimited) {
			if b, ok := v.limiter.(driven.Backoffer); ok {
				b.Backoff(0)
			}
		}
		return upstream("embed", err)
	}
	if len(emb.Vector) == 0 {
		return fmt.Errorf("%w: provider returned an empty vector", domain.ErrUpstream)
	}

	tokens := emb.Tokens
	if tokens <= 0 {
		tokens = domain.UnknownTokenCount
	}
	record := domain.ChunkEmbedding{
		UUID:         uuid.New().String(),
		EmbedderType: v.embedder.ModelName(),
		Tokens:       tokens,
		Seconds:      elapsed,
		Vector:       emb.Vector,
		CreatedAt:    v.now().UTC(),
	}
	if err := v.chunks.SaveEmbedding(ctx, c.UUID, record); err != nil {
		return upstream("save embedding", err)
	}
	return nil
}
