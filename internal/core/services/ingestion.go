package services

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/docpipe/internal/core/domain"
	"github.com/custodia-labs/docpipe/internal/core/ports/driven"
	"github.com/custodia-labs/docpipe/internal/core/ports/driving"
	"github.com/custodia-labs/docpipe/internal/logger"
	"github.com/custodia-labs/docpipe/internal/observability/tracing"
)

// Ensure IngestionService implements the interface.
var _ driving.IngestionService = (*IngestionService)(nil)

// DocumentChunker splits extracted text into identified chunks.
type DocumentChunker interface {
	ChunkDocument(documentUUID, text string) []domain.Chunk
}

// IngestionConfig bounds the orchestrator's provider calls.
type IngestionConfig struct {
	StorageTimeout time.Duration
	ExtractTimeout time.Duration
}

// IngestionService drives documents through the ingestion state machine in
// response to storage events. It keeps no state between events; every
// transition is a conditional write on the document status.
type IngestionService struct {
	repo       driven.Repository
	blob       driven.BlobStore
	gateway    *BlobService
	extractor  driven.TextExtractor
	chunker    DocumentChunker
	vectorizer driving.Vectorizer
	events     driven.EventPublisher
	cfg        IngestionConfig
	tracer     tracing.Tracer
	now        func() time.Time
}

// NewIngestionService creates the orchestrator. events may be nil.
func NewIngestionService(
	repo driven.Repository,
	blob driven.BlobStore,
	gateway *BlobService,
	extractor driven.TextExtractor,
	chunker DocumentChunker,
	vectorizer driving.Vectorizer,
	events driven.EventPublisher,
	cfg IngestionConfig,
) *IngestionService {
	return &IngestionService{
		repo:       repo,
		blob:       blob,
		gateway:    gateway,
		extractor:  extractor,
		chunker:    chunker,
		vectorizer: vectorizer,
		events:     events,
		cfg:        cfg,
		tracer:     tracing.NoopTracer{},
		now:        time.Now,
	}
}

// SetTracer sets the tracer for stage spans.
func (s *IngestionService) SetTracer(t tracing.Tracer) {
	s.tracer = tracing.OrNoop(t)
}

// HandleEvent routes a notification by bucket. Keys arrive form-encoded
// as in S3 notifications.
func (s *IngestionService) HandleEvent(ctx context.Context, event domain.StorageEvent) (*domain.IngestResult, error) {
	key, err := url.QueryUnescape(event.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: event key %q: %v", domain.ErrValidation, event.Key, err)
	}
	obj := domain.Object{Bucket: event.Bucket, Key: key}
	cfg := s.gateway.Config()

	switch event.Bucket {
	case cfg.IntakeBucket:
		return s.Ingest(ctx, obj)
	case cfg.IndexedBucket:
		return s.Vectorize(ctx, obj)
	}
	return nil, fmt.Errorf("%w: bucket %q is neither the intake (%s) nor the indexed (%s) bucket",
		domain.ErrValidation, event.Bucket, cfg.IntakeBucket, cfg.IndexedBucket)
}

// Ingest extracts, chunks and indexes an intake object. Redelivery of an
// event already reflected in the store is a no-op.
func (s *IngestionService) Ingest(ctx context.Context, obj domain.Object) (result *domain.IngestResult, err error) {
	ctx, span := s.tracer.Start(ctx, "ingest.object", tracing.String("object", obj.String()))
	defer func() { span.End(err) }()

	logger.Section("Ingest")
	if !strings.HasPrefix(obj.Key, s.gateway.Config().SourcePrefix) {
		logger.Debug("Ignoring %s: outside %q", obj, s.gateway.Config().SourcePrefix)
		return skipped("", "", "key is outside the upload prefix"), nil
	}

	gctx, cancel := withTimeout(ctx, s.cfg.StorageTimeout)
	data, info, err := s.blob.Get(gctx, obj)
	cancel()
	if errors.Is(err, domain.ErrNotFound) {
		logger.Debug("Ignoring %s: object is gone", obj)
		return skipped("", "", "object no longer exists"), nil
	}
	if err != nil {
		return nil, upstream("get "+obj.String(), err)
	}

	hash := contentHash(data)
	doc, result, err := s.claim(ctx, obj, hash, info.ContentType)
	if result != nil || err != nil {
		return result, err
	}

	text, err := s.extract(ctx, data, info.ContentType)
	if err != nil {
		if doc == nil {
			return s.recordExtractionFailure(ctx, obj, hash, info.ContentType, err)
		}
		return s.fail(ctx, doc, obj, domain.StatusExtracted, domain.StageExtraction, err)
	}

	if doc == nil {
		doc = s.newDocument(ctx, obj, hash, info.ContentType)
		if err := s.repo.Documents().CreateDocument(ctx, doc); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return s.duplicateOf(ctx, hash)
			}
			return nil, upstream("create document", err)
		}
	}
	s.publish(ctx, doc, obj, domain.StageExtraction, domain.StatusExtracted, nil)

	n, err := s.chunk(ctx, doc, text)
	if err != nil {
		return s.fail(ctx, doc, obj, domain.StatusExtracted, domain.StageChunking, err)
	}
	ok, err := s.advance(ctx, doc, obj, domain.StatusExtracted, domain.StatusChunked, domain.StageChunking)
	if err != nil {
		return nil, err
	}
	if !ok {
		return skipped(doc.UUID, doc.Status, "document changed concurrently"), nil
	}

	ictx, ispan := s.tracer.Start(ctx, "ingest.index", tracing.String("document_uuid", doc.UUID))
	_, err = s.gateway.MoveToIndexed(ictx, obj)
	ispan.End(err)
	if err != nil {
		return s.fail(ctx, doc, obj, domain.StatusChunked, domain.StageIndexing, err)
	}
	ok, err = s.advance(ctx, doc, obj, domain.StatusChunked, domain.StatusIndexed, domain.StageIndexing)
	if err != nil {
		return nil, err
	}
	if !ok {
		// The indexed-bucket event may already have vectorized the copy.
		current, gerr := s.repo.Documents().GetDocument(ctx, doc.UUID)
		if gerr != nil {
			return nil, upstream("get document", gerr)
		}
		doc.Status = current.Status
	}

	logger.Info("Ingested %s as %s (%d chunks)", obj, doc.UUID, n)
	return &domain.IngestResult{
		DocumentUUID: doc.UUID,
		Status:       doc.Status,
		Outcome:      domain.OutcomeProcessed,
		Chunks:       n,
	}, nil
}

// claim looks up a prior document with the same content. It returns a
// final result for duplicates, the reclaimed document for a failed one, or
// nothing when the content is new. A reclaimed document takes over obj's
// name and locations, since the retry may arrive under a fresh upload key.
func (s *IngestionService) claim(ctx context.Context, obj domain.Object, hash, contentType string) (*domain.Document, *domain.IngestResult, error) {
	existing, err := s.repo.Documents().GetDocumentByHash(ctx, hash)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, upstream("get document by hash", err)
	}
	if existing.Status != domain.StatusFailed {
		logger.Debug("Duplicate content %s: document %s is %s", obj, existing.UUID, existing.Status)
		return nil, duplicate(existing), nil
	}

	reloc := domain.Relocation{
		Name:           DecodeFileName(obj.Key),
		Location:       s.gateway.IndexedObject(obj).String(),
		SourceLocation: obj.String(),
		Type:           documentType(contentType),
	}
	err = s.repo.Documents().ReclaimDocument(ctx, existing.UUID, reloc)
	if errors.Is(err, domain.ErrConflict) {
		return nil, skipped(existing.UUID, existing.Status, "another delivery reclaimed the document"), nil
	}
	if err != nil {
		return nil, nil, upstream("reclaim document", err)
	}
	logger.Info("Retrying failed document %s", existing.UUID)
	existing.Status = domain.StatusExtracted
	existing.Failure = nil
	existing.Name, existing.Location, existing.SourceLocation, existing.Type =
		reloc.Name, reloc.Location, reloc.SourceLocation, reloc.Type
	return existing, nil, nil
}

func (s *IngestionService) extract(ctx context.Context, data []byte, contentType string) (text string, err error) {
	ctx, span := s.tracer.Start(ctx, "ingest.extract", tracing.Int("bytes", len(data)))
	defer func() { span.End(err) }()

	ctx, cancel := withTimeout(ctx, s.cfg.ExtractTimeout)
	defer cancel()

	text, err = s.extractor.Extract(ctx, data, contentType)
	if err != nil {
		if domain.IsKnown(err) {
			return "", err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "", upstream("extract", err)
		}
		return "", fmt.Errorf("%w: %v", domain.ErrExtraction, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: document contains no extractable text", domain.ErrExtraction)
	}
	return text, nil
}

func (s *IngestionService) chunk(ctx context.Context, doc *domain.Document, text string) (n int, err error) {
	ctx, span := s.tracer.Start(ctx, "ingest.chunk", tracing.String("document_uuid", doc.UUID))
	defer func() { span.End(err) }()

	chunks := s.chunker.ChunkDocument(doc.UUID, text)
	if err := s.repo.Chunks().ReplaceChunks(ctx, doc.UUID, chunks); err != nil {
		return 0, upstream("store chunks", err)
	}
	logger.Debug("Stored %d chunks for %s", len(chunks), doc.UUID)
	return len(chunks), nil
}

// recordExtractionFailure persists a FAILED document under the content
// hash so a redelivery can reclaim it.
func (s *IngestionService) recordExtractionFailure(ctx context.Context, obj domain.Object, hash, contentType string, cause error) (*domain.IngestResult, error) {
	doc := s.newDocument(ctx, obj, hash, contentType)
	doc.Status = domain.StatusFailed
	doc.Failure = &domain.Failure{Stage: domain.StageExtraction, Reason: cause.Error(), At: s.now().UTC()}
	if err := s.repo.Documents().CreateDocument(ctx, doc); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return s.duplicateOf(ctx, hash)
		}
		return nil, upstream("record failure", err)
	}
	s.publish(ctx, doc, obj, domain.StageExtraction, domain.StatusFailed, cause)
	return settled(&domain.IngestResult{
		DocumentUUID: doc.UUID,
		Status:       domain.StatusFailed,
		Outcome:      domain.OutcomeFailed,
		Message:      cause.Error(),
	}, cause)
}

// fail moves doc from its current state to FAILED(stage).
func (s *IngestionService) fail(ctx context.Context, doc *domain.Document, obj domain.Object, from domain.DocumentStatus, stage domain.Stage, cause error) (*domain.IngestResult, error) {
	failure := &domain.Failure{Stage: stage, Reason: cause.Error(), At: s.now().UTC()}
	recordErr := s.repo.Documents().TransitionStatus(ctx, doc.UUID, from, domain.StatusFailed, failure)
	if recordErr != nil {
		logger.Warn("record failure of %s: %v", doc.UUID, recordErr)
	} else {
		doc.Status = domain.StatusFailed
		doc.Failure = failure
	}
	s.publish(ctx, doc, obj, stage, doc.Status, cause)
	res := &domain.IngestResult{
		DocumentUUID: doc.UUID,
		Status:       doc.Status,
		Outcome:      domain.OutcomeFailed,
		Message:      cause.Error(),
	}
	if recordErr != nil {
		return res, cause
	}
	return settled(res, cause)
}

// settled returns a recorded failure without an error unless cause is
// transient, in which case the error asks the sender to redeliver and the
// redelivery reclaims the FAILED record.
func settled(res *domain.IngestResult, cause error) (*domain.IngestResult, error) {
	if errors.Is(cause, domain.ErrUpstream) || errors.Is(cause, domain.ErrTimeout) {
		return res, cause
	}
	return res, nil
}

// advance applies a conditional transition. A lost race reports false with
// no error.
func (s *IngestionService) advance(ctx context.Context, doc *domain.Document, obj domain.Object, from, to domain.DocumentStatus, stage domain.Stage) (bool, error) {
	err := s.repo.Documents().TransitionStatus(ctx, doc.UUID, from, to, nil)
	if errors.Is(err, domain.ErrConflict) {
		logger.Debug("Transition %s -> %s of %s lost a race", from, to, doc.UUID)
		return false, nil
	}
	if err != nil {
		return false, upstream("transition "+string(from)+" -> "+string(to), err)
	}
	doc.Status = to
	s.publish(ctx, doc, obj, stage, to, nil)
	return true, nil
}

func (s *IngestionService) duplicateOf(ctx context.Context, hash string) (*domain.IngestResult, error) {
	doc, err := s.repo.Documents().GetDocumentByHash(ctx, hash)
	if err != nil {
		return nil, upstream("get document by hash", err)
	}
	return duplicate(doc), nil
}

// Vectorize embeds the chunks of the document stored at an indexed object.
func (s *IngestionService) Vectorize(ctx context.Context, obj domain.Object) (result *domain.IngestResult, err error) {
	ctx, span := s.tracer.Start(ctx, "ingest.vectorize", tracing.String("object", obj.String()))
	defer func() { span.End(err) }()

	logger.Section("Vectorize")
	doc, err := s.repo.Documents().GetDocumentByLocation(ctx, obj.String())
	if errors.Is(err, domain.ErrNotFound) {
		logger.Debug("Ignoring %s: no document at this location", obj)
		return skipped("", "", "no document at this location"), nil
	}
	if err != nil {
		return nil, upstream("get document by location", err)
	}

	switch doc.Status {
	case domain.StatusVectorized:
		return duplicate(doc), nil
	case domain.StatusChunked, domain.StatusIndexed:
	default:
		return skipped(doc.UUID, doc.Status, "document is "+string(doc.Status)), nil
	}

	report, verr := s.vectorizer.VectorizeDocument(ctx, doc.UUID, false)
	if report == nil {
		s.publish(ctx, doc, obj, domain.StageVectorization, doc.Status, verr)
		return settled(&domain.IngestResult{
			DocumentUUID: doc.UUID,
			Status:       doc.Status,
			Outcome:      domain.OutcomeFailed,
			Message:      verr.Error(),
		}, verr)
	}

	result = &domain.IngestResult{DocumentUUID: doc.UUID, Status: doc.Status, Chunks: report.TotalChunks}
	if !report.Complete() {
		// Pending chunks stay pending; redelivery retries them.
		result.Outcome = domain.OutcomePartial
		if report.ProcessedChunks == 0 {
			result.Outcome = domain.OutcomeFailed
		}
		result.Message = verr.Error()
		s.publish(ctx, doc, obj, domain.StageVectorization, doc.Status, verr)
		return settled(result, verr)
	}

	status, err := s.markVectorized(ctx, doc, obj)
	if err != nil {
		return nil, err
	}
	result.Status = status
	result.Outcome = domain.OutcomeProcessed
	logger.Info("Vectorized %s (%d chunks)", doc.UUID, report.TotalChunks)
	return result, nil
}

// markVectorized moves a CHUNKED or INDEXED document to VECTORIZED, following
// a concurrent CHUNKED -> INDEXED move once.
func (s *IngestionService) markVectorized(ctx context.Context, doc *domain.Document, obj domain.Object) (domain.DocumentStatus, error) {
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.advance(ctx, doc, obj, doc.Status, domain.StatusVectorized, domain.StageVectorization)
		if err != nil {
			return "", err
		}
		if ok {
			return domain.StatusVectorized, nil
		}
		current, err := s.repo.Documents().GetDocument(ctx, doc.UUID)
		if err != nil {
			return "", upstream("get document", err)
		}
		doc.Status = current.Status
		if doc.Status != domain.StatusChunked && doc.Status != domain.StatusIndexed {
			break
		}
	}
	return doc.Status, nil
}

func (s *IngestionService) newDocument(ctx context.Context, obj domain.Object, hash, contentType string) *domain.Document {
	now := s.now().UTC()
	doc := &domain.Document{
		UUID:           uuid.New().String(),
		Name:           DecodeFileName(obj.Key),
		Location:       s.gateway.IndexedObject(obj).String(),
		SourceLocation: obj.String(),
		Hash:           hash,
		Type:           documentType(contentType),
		Status:         domain.StatusExtracted,
		Tags:           []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if c, ok := domain.CallerFrom(ctx); ok {
		doc.CreatedBy = c.Actor()
	}
	return doc
}

func (s *IngestionService) publish(ctx context.Context, doc *domain.Document, obj domain.Object, stage domain.Stage, status domain.DocumentStatus, cause error) {
	if s.events == nil {
		return
	}
	e := domain.PipelineEvent{
		DocumentUUID: doc.UUID,
		Object:       obj,
		Stage:        stage,
		Status:       status,
		At:           s.now().UTC(),
	}
	if cause != nil {
		e.Error = cause.Error()
	}
	s.events.Publish(ctx, e)
}

func skipped(documentUUID string, status domain.DocumentStatus, why string) *domain.IngestResult {
	return &domain.IngestResult{DocumentUUID: documentUUID, Status: status, Outcome: domain.OutcomeSkipped, Message: why}
}

func duplicate(doc *domain.Document) *domain.IngestResult {
	return &domain.IngestResult{
		DocumentUUID: doc.UUID,
		Status:       doc.Status,
		Outcome:      domain.OutcomeDuplicate,
		Message:      "already " + strings.ToLower(string(doc.Status)),
	}
}

func contentHash(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func documentType(contentType string) string {
	media, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return domain.DocumentTypePDF
	}
	switch {
	case media == "text/html" || media == "application/xhtml+xml":
		return "HTML"
	case strings.HasSuffix(media, "wordprocessingml.document"):
		return "DOCX"
	case strings.HasPrefix(media, "text/"):
		return "TEXT"
	}
	return domain.DocumentTypePDF
}
