package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/docpipe/internal/core/domain"
	"github.com/custodia-labs/docpipe/internal/core/ports/driven"
	"github.com/custodia-labs/docpipe/internal/core/ports/driving"
	"github.com/custodia-labs/docpipe/internal/filters"
	"github.com/custodia-labs/docpipe/internal/logger"
	"github.com/custodia-labs/docpipe/internal/observability/tracing"
)

// Ensure RetrievalService implements the interface.
var _ driving.RetrievalService = (*RetrievalService)(nil)

// RetrievalConfig tunes result limits and provider timeouts.
type RetrievalConfig struct {
	DefaultResults int
	MaxResults     int
	TagMatch       domain.TagMatch
	EmbedTimeout   time.Duration
}

// RetrievalService ranks chunks against a question within a filtered
// document set.
type RetrievalService struct {
	repo     driven.Repository
	embedder driven.EmbeddingService
	synonyms driving.SynonymService
	queries  queryBuilder
	cfg      RetrievalConfig
	tracer   tracing.Tracer
}

// NewRetrievalService creates a retrieval engine. synonyms may be nil, in
// which case expand_synonyms is ignored.
func NewRetrievalService(
	repo driven.Repository,
	embedder driven.EmbeddingService,
	synonyms driving.SynonymService,
	registry *filters.Registry,
	cfg RetrievalConfig,
) *RetrievalService {
	if cfg.DefaultResults <= 0 {
		cfg.DefaultResults = domain.DefaultNumResults
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = domain.MaxNumResults
	}
	return &RetrievalService{
		repo:     repo,
		embedder: embedder,
		synonyms: synonyms,
		queries:  queryBuilder{registry: registry, defaultTagMatch: cfg.TagMatch},
		cfg:      cfg,
		tracer:   tracing.NoopTracer{},
	}
}

// SetTracer sets the tracer for search spans.
func (s *RetrievalService) SetTracer(t tracing.Tracer) {
	s.tracer = tracing.OrNoop(t)
}

// Search embeds the question and returns the most similar vectorized chunks
// of the documents that pass every filter.
func (s *RetrievalService) Search(ctx context.Context, req domain.SearchRequest) (result *domain.SearchResult, err error) {
	ctx, span := s.tracer.Start(ctx, "retrieval.search", tracing.Int("num_results", req.NumResults))
	defer func() { span.End(err) }()

	logger.Section("Retrieval")
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", domain.ErrValidation)
	}
	if s.embedder == nil {
		return nil, fmt.Errorf("%w: no embedding provider configured", domain.ErrInternal)
	}

	limit := req.NumResults
	if limit <= 0 {
		limit = s.cfg.DefaultResults
	}
	if limit > s.cfg.MaxResults {
		limit = s.cfg.MaxResults
	}

	if req.ExpandSynonyms && s.synonyms != nil {
		exp, err := s.synonyms.Expand(ctx, question)
		if err != nil {
			return nil, err
		}
		question = exp.ProcessedQuery
	}
	logger.Debug("Question: %q, limit %d", question, limit)

	q, err := s.queries.build(ctx, queryInput{
		Filters:      req.Filters,
		Tags:         req.Tags,
		TagMatch:     req.TagMatch,
		DocumentUUID: req.DocumentUUID,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
	})
	if err != nil {
		return nil, err
	}

	docs, err := s.repo.Documents().ListDocuments(ctx, q)
	if err != nil {
		return nil, upstream("list documents", err)
	}
	result = &domain.SearchResult{Question: question, Chunks: []domain.RetrievedChunk{}}
	if len(docs) == 0 {
		logger.Debug("No documents pass the filters")
		return result, nil
	}
	byUUID := make(map[string]*domain.Document, len(docs))
	ids := make([]string, len(docs))
	for i := range docs {
		byUUID[docs[i].UUID] = &docs[i]
		ids[i] = docs[i].UUID
	}
	logger.Debug("%d documents pass the filters", len(docs))

	ectx, cancel := withTimeout(ctx, s.cfg.EmbedTimeout)
	emb, err := s.embedder.Embed(ectx, question)
	cancel()
	if err != nil {
		return nil, upstream("embed question", err)
	}

	hits, err := s.repo.Vectors().SearchSimilar(ctx, emb.Vector, limit, ids)
	if err != nil {
		return nil, upstream("vector search", err)
	}
	if len(hits) == 0 {
		return result, nil
	}

	chunkIDs := make([]string, len(hits))
	for i, h := range hits {
		chunkIDs[i] = h.ChunkUUID
	}
	chunks, err := s.repo.Chunks().GetChunks(ctx, chunkIDs)
	if err != nil {
		return nil, upstream("load chunks", err)
	}
	chunkByUUID := make(map[string]domain.Chunk, len(chunks))
	for _, c := range chunks {
		chunkByUUID[c.UUID] = c
	}

	hitDocs := uniqueDocuments(hits)
	entries, err := metadataEntries(ctx, s.repo.Metadata(), hitDocs)
	if err != nil {
		return nil, err
	}

	for _, h := range hits {
		c, ok := chunkByUUID[h.ChunkUUID]
		doc := byUUID[h.DocumentUUID]
		if !ok || doc == nil {
			continue
		}
		c.Embedding = stripVector(c.Embedding)
		result.Chunks = append(result.Chunks, domain.RetrievedChunk{
			Chunk:    c,
			Score:    h.Similarity,
			Document: *doc,
			Metadata: nonNil(entries[doc.UUID]),
		})
	}
	logger.Debug("Returning %d chunks", len(result.Chunks))
	return result, nil
}

func uniqueDocuments(hits []driven.VectorHit) []string {
	seen := make(map[string]struct{}, len(hits))
	var out []string
	for _, h := range hits {
		if _, ok := seen[h.DocumentUUID]; ok {
			continue
		}
		seen[h.DocumentUUID] = struct{}{}
		out = append(out, h.DocumentUUID)
	}
	return out
}

// stripVector keeps embedding stats but drops the vector from results.
func stripVector(e *domain.ChunkEmbedding) *domain.ChunkEmbedding {
	if e == nil {
		return nil
	}
	c := *e
	c.Vector = nil
	return &c
}
