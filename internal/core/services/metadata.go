package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/docpipe/internal/core/domain"
	"github.com/custodia-labs/docpipe/internal/core/ports/driven"
	"github.com/custodia-labs/docpipe/internal/core/ports/driving"
	"github.com/custodia-labs/docpipe/internal/logger"
	"github.com/custodia-labs/docpipe/internal/observability/tracing"
)

// Ensure MetadataService implements the interface.
var _ driving.MetadataService = (*MetadataService)(nil)

// DefaultContextChunks is how many chunks feed one extraction prompt.
const DefaultContextChunks = 3

// sectionSeparator joins context chunks in extraction prompts.
const sectionSeparator = "\n\n---SECTION---\n\n"

// DeletePolicy decides what happens to values when a definition is deleted.
type DeletePolicy string

// Delete policies.
const (
	DeleteReject  DeletePolicy = "reject"
	DeleteCascade DeletePolicy = "cascade"
)

// ParseDeletePolicy parses a policy name; empty selects reject.
func ParseDeletePolicy(s string) (DeletePolicy, error) {
	switch DeletePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", DeleteReject:
		return DeleteReject, nil
	case DeleteCascade:
		return DeleteCascade, nil
	}
	return "", fmt.Errorf("%w: unknown delete policy %q (want reject or cascade)", domain.ErrValidation, s)
}

// computeStatuses are the document states that have chunks to read.
var computeStatuses = []domain.DocumentStatus{domain.StatusChunked, domain.StatusIndexed, domain.StatusVectorized}

// MetadataConfig tunes metadata computation.
type MetadataConfig struct {
	Workers       int
	ContextChunks int
	DeletePolicy  DeletePolicy
	Timeout       time.Duration
}

// MetadataService manages definitions and computes values with the LLM.
type MetadataService struct {
	repo     driven.Repository
	llm      driven.LLMService
	embedder driven.EmbeddingService
	prompts  driven.PromptStore
	cfg      MetadataConfig
	tracer   tracing.Tracer
	now      func() time.Time
}

// NewMetadataService creates the metadata engine. embedder may be nil, in
// which case extraction context is the first chunks by position.
func NewMetadataService(
	repo driven.Repository,
	llm driven.LLMService,
	embedder driven.EmbeddingService,
	prompts driven.PromptStore,
	cfg MetadataConfig,
) *MetadataService {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.ContextChunks <= 0 {
		cfg.ContextChunks = DefaultContextChunks
	}
	if cfg.DeletePolicy == "" {
		cfg.DeletePolicy = DeleteReject
	}
	return &MetadataService{
		repo:     repo,
		llm:      llm,
		embedder: embedder,
		prompts:  prompts,
		cfg:      cfg,
		tracer:   tracing.NoopTracer{},
		now:      time.Now,
	}
}

// SetTracer sets the tracer for compute spans.
func (s *MetadataService) SetTracer(t tracing.Tracer) {
	s.tracer = tracing.OrNoop(t)
}

// AddDefinition validates and stores a new definition.
func (s *MetadataService) AddDefinition(ctx context.Context, def domain.MetadataDefinition) (*domain.MetadataDefinition, error) {
	if err := normaliseDefinition(&def); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	def.UUID = uuid.New().String()
	def.CreatedAt = now
	def.UpdatedAt = now

	if err := s.repo.Metadata().CreateDefinition(ctx, &def); err != nil {
		return nil, upstream("create metadata", err)
	}
	logger.Debug("Added metadata %q (%s)", def.Name, def.Type)
	return &def, nil
}

// UpdateDefinition replaces name, description and type. The type is frozen
// while values reference the definition.
func (s *MetadataService) UpdateDefinition(ctx context.Context, def domain.MetadataDefinition) (*domain.MetadataDefinition, error) {
	if def.UUID == "" {
		return nil, fmt.Errorf("%w: metadata_uuid is required", domain.ErrValidation)
	}
	if err := normaliseDefinition(&def); err != nil {
		return nil, err
	}

	store := s.repo.Metadata()
	existing, err := store.GetDefinition(ctx, def.UUID)
	if err != nil {
		return nil, upstream("get metadata", err)
	}
	if existing.Type != def.Type {
		n, err := store.CountValues(ctx, def.UUID)
		if err != nil {
			return nil, upstream("count values", err)
		}
		if n > 0 {
			return nil, fmt.Errorf("%w: metadata %q has %d values; type cannot change from %s to %s",
				domain.ErrConflict, existing.Name, n, existing.Type, def.Type)
		}
	}

	def.CreatedAt = existing.CreatedAt
	def.UpdatedAt = s.now().UTC()
	if err := store.UpdateDefinition(ctx, &def); err != nil {
		return nil, upstream("update metadata", err)
	}
	return &def, nil
}

// DeleteDefinition removes a definition. Values block the delete unless
// cascade is requested or the configured policy cascades.
func (s *MetadataService) DeleteDefinition(ctx context.Context, uuid string, cascade bool) error {
	if uuid == "" {
		return fmt.Errorf("%w: metadata_uuid is required", domain.ErrValidation)
	}
	cascade = cascade || s.cfg.DeletePolicy == DeleteCascade

	store := s.repo.Metadata()
	def, err := store.GetDefinition(ctx, uuid)
	if err != nil {
		return upstream("get metadata", err)
	}
	if !cascade {
		n, err := store.CountValues(ctx, uuid)
		if err != nil {
			return upstream("count values", err)
		}
		if n > 0 {
			return fmt.Errorf("%w: metadata %q has %d values; delete with cascade to remove them",
				domain.ErrConflict, def.Name, n)
		}
	}
	if err := store.DeleteDefinition(ctx, uuid, cascade); err != nil {
		return upstream("delete metadata", err)
	}
	logger.Debug("Deleted metadata %q (cascade=%t)", def.Name, cascade)
	return nil
}

// ListDefinitions returns every definition sorted by name.
func (s *MetadataService) ListDefinitions(ctx context.Context) ([]domain.MetadataDefinition, error) {
	defs, err := s.repo.Metadata().ListDefinitions(ctx)
	if err != nil {
		return nil, upstream("list metadata", err)
	}
	return nonNil(defs), nil
}

type computePair struct {
	doc domain.Document
	def domain.MetadataDefinition
}

// Compute extracts values for the selected (document, definition) pairs.
// With neither id it fills every missing value; with an id it recomputes
// all pairs in that scope. A failed pair never aborts the others.
func (s *MetadataService) Compute(ctx context.Context, documentUUID, metadataUUID string) (report *domain.ComputeReport, err error) {
	ctx, span := s.tracer.Start(ctx, "metadata.compute",
		tracing.String("document_uuid", documentUUID), tracing.String("metadata_uuid", metadataUUID))
	defer func() { span.End(err) }()

	logger.Section("Metadata")
	if s.llm == nil {
		return nil, fmt.Errorf("%w: no LLM provider configured", domain.ErrInternal)
	}
	tmpl, err := s.prompts.Load(driven.PromptMetadataExtraction)
	if err != nil {
		return nil, fmt.Errorf("%w: load prompt: %v", domain.ErrInternal, err)
	}

	pairs, err := s.pairs(ctx, documentUUID, metadataUUID)
	if err != nil {
		return nil, err
	}
	logger.Debug("Computing %d metadata pairs", len(pairs))

	queries := s.embedDescriptions(ctx, pairs)

	outcomes := make([]domain.ComputeOutcome, len(pairs))
	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for i, p := range pairs {
		g.Go(func() error {
			outcomes[i] = s.computePair(ctx, tmpl, p, queries[p.def.UUID])
			return nil
		})
	}
	_ = g.Wait()

	report = &domain.ComputeReport{Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Status == domain.ComputeFailed {
			report.Failed++
		} else {
			report.Succeeded++
		}
	}
	logger.Info("Metadata compute: %d succeeded, %d failed", report.Succeeded, report.Failed)
	return report, nil
}

// pairs resolves the compute scope.
func (s *MetadataService) pairs(ctx context.Context, documentUUID, metadataUUID string) ([]computePair, error) {
	store := s.repo.Metadata()

	var defs []domain.MetadataDefinition
	if metadataUUID != "" {
		def, err := store.GetDefinition(ctx, metadataUUID)
		if err != nil {
			return nil, upstream("get metadata", err)
		}
		defs = []domain.MetadataDefinition{*def}
	} else {
		var err error
		if defs, err = store.ListDefinitions(ctx); err != nil {
			return nil, upstream("list metadata", err)
		}
	}

	var docs []domain.Document
	if documentUUID != "" {
		doc, err := s.repo.Documents().GetDocument(ctx, documentUUID)
		if err != nil {
			return nil, upstream("get document", err)
		}
		if !doc.Status.HasChunks() {
			return nil, fmt.Errorf("%w: document %s is %s and has no chunks to read",
				domain.ErrValidation, documentUUID, doc.Status)
		}
		docs = []domain.Document{*doc}
	} else {
		var err error
		docs, err = s.repo.Documents().ListDocuments(ctx, domain.DocumentQuery{Statuses: computeStatuses})
		if err != nil {
			return nil, upstream("list documents", err)
		}
	}

	// Only the unscoped batch skips pairs that already have a value.
	have := map[[2]string]bool{}
	if documentUUID == "" && metadataUUID == "" && len(docs) > 0 {
		ids := make([]string, len(docs))
		for i := range docs {
			ids[i] = docs[i].UUID
		}
		values, err := store.ListValues(ctx, ids)
		if err != nil {
			return nil, upstream("list values", err)
		}
		for _, v := range values {
			if v.ChunkUUID == "" {
				have[[2]string{v.DocumentUUID, v.MetadataUUID}] = true
			}
		}
	}

	var out []computePair
	for _, doc := range docs {
		for _, def := range defs {
			if have[[2]string{doc.UUID, def.UUID}] {
				continue
			}
			out = append(out, computePair{doc: doc, def: def})
		}
	}
	return out, nil
}

// embedDescriptions embeds each definition once. Failures drop that
// definition back to positional context.
func (s *MetadataService) embedDescriptions(ctx context.Context, pairs []computePair) map[string][]float32 {
	out := map[string][]float32{}
	if s.embedder == nil {
		return out
	}
	for _, p := range pairs {
		if _, done := out[p.def.UUID]; done {
			continue
		}
		ectx, cancel := withTimeout(ctx, s.cfg.Timeout)
		emb, err := s.embedder.Embed(ectx, p.def.Description)
		cancel()
		if err != nil {
			logger.Warn("metadata: embedding %q failed, using leading chunks: %v", p.def.Name, err)
			out[p.def.UUID] = nil
			continue
		}
		out[p.def.UUID] = emb.Vector
	}
	return out
}

func (s *MetadataService) computePair(ctx context.Context, tmpl string, p computePair, query []float32) domain.ComputeOutcome {
	outcome := domain.ComputeOutcome{
		DocumentUUID: p.doc.UUID,
		MetadataUUID: p.def.UUID,
		MetadataName: p.def.Name,
	}
	fail := func(err error) domain.ComputeOutcome {
		outcome.Status = domain.ComputeFailed
		outcome.Error = err.Error()
		logger.Debug("metadata %q on %s failed: %v", p.def.Name, p.doc.UUID, err)
		return outcome
	}

	text, err := s.extractionContext(ctx, p.doc.UUID, query)
	if err != nil {
		return fail(err)
	}
	if strings.TrimSpace(text) == "" {
		return fail(fmt.Errorf("%w: document %s has no text", domain.ErrValidation, p.doc.UUID))
	}

	prompt := fmt.Sprintf(tmpl, p.def.Description, ExtractionFormat(p.def.Type), text)
	gctx, cancel := withTimeout(ctx, s.cfg.Timeout)
	answer, err := s.llm.Generate(gctx, prompt, driven.GenerateOptions{Temperature: 0})
	cancel()
	if err != nil {
		return fail(upstream("extract metadata", err))
	}

	value, err := ParseExtracted(p.def.Type, answer)
	if errors.Is(err, errNotExtracted) {
		if err := s.repo.Metadata().DeleteValue(ctx, p.doc.UUID, p.def.UUID); err != nil {
			return fail(upstream("delete value", err))
		}
		outcome.Status = domain.ComputeNotFound
		return outcome
	}
	if err != nil {
		return fail(err)
	}

	value.UUID = uuid.New().String()
	value.DocumentUUID = p.doc.UUID
	value.MetadataUUID = p.def.UUID
	value.Comments = "Extracted by model: " + s.llm.ModelName()
	if err := s.repo.Metadata().UpsertValue(ctx, &value); err != nil {
		return fail(upstream("store value", err))
	}
	outcome.Status = domain.ComputeOK
	outcome.Value = &value
	return outcome
}

// extractionContext joins the chunks most similar to query, or the leading
// chunks when there is no query vector or nothing is vectorized yet.
func (s *MetadataService) extractionContext(ctx context.Context, documentUUID string, query []float32) (string, error) {
	k := s.cfg.ContextChunks
	var texts []string

	if len(query) > 0 {
		hits, err := s.repo.Vectors().SearchSimilar(ctx, query, k, []string{documentUUID})
		if err != nil {
			return "", upstream("vector search", err)
		}
		if len(hits) > 0 {
			ids := make([]string, len(hits))
			for i, h := range hits {
				ids[i] = h.ChunkUUID
			}
			chunks, err := s.repo.Chunks().GetChunks(ctx, ids)
			if err != nil {
				return "", upstream("load chunks", err)
			}
			byUUID := make(map[string]string, len(chunks))
			for _, c := range chunks {
				byUUID[c.UUID] = c.Text
			}
			for _, id := range ids {
				if t, ok := byUUID[id]; ok {
					texts = append(texts, t)
				}
			}
		}
	}

	if len(texts) == 0 {
		chunks, err := s.repo.Chunks().ListChunks(ctx, documentUUID)
		if err != nil {
			return "", upstream("list chunks", err)
		}
		for i := 0; i < len(chunks) && i < k; i++ {
			texts = append(texts, chunks[i].Text)
		}
	}

	if len(texts) == 0 {
		return "", nil
	}
	return sectionSeparator + strings.Join(texts, sectionSeparator), nil
}

func normaliseDefinition(def *domain.MetadataDefinition) error {
	def.Name = strings.TrimSpace(def.Name)
	def.Description = strings.TrimSpace(def.Description)
	if err := def.Validate(); err != nil {
		return err
	}
	t, err := domain.ParseMetadataType(string(def.Type))
	if err != nil {
		return err
	}
	def.Type = t
	return nil
}
