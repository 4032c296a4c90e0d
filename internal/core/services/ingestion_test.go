package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	blobmem "github.com/custodia-labs/docpipe/internal/adapters/driven/blob/memory"
	"github.com/custodia-labs/docpipe/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/docpipe/internal/chunker"
	"github.com/custodia-labs/docpipe/internal/core/domain"
)

// fakeExtractor returns the object bytes as text. Content starting with
// "CORRUPT" fails until healed.
type fakeExtractor struct {
	mu     sync.Mutex
	healed bool
	calls  int
}

func (e *fakeExtractor) Extract(_ context.Context, data []byte, _ string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if strings.HasPrefix(string(data), "CORRUPT") && !e.healed {
		return "", errors.New("malformed xref table")
	}
	return strings.TrimPrefix(string(data), "CORRUPT"), nil
}

func (e *fakeExtractor) SupportedTypes() []string { return []string{"application/pdf"} }

func (e *fakeExtractor) heal() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.healed = true
}

type ingestionFixture struct {
	store     *memory.Store
	blobs     *blobmem.Store
	gateway   *BlobService
	embedder  *mockEmbedder
	extractor *fakeExtractor
	events    *recordingPublisher
	svc       *IngestionService
}

const sampleText = "Quarterly report. Revenue grew in every region this quarter. " +
	"Costs were flat. The board approved the budget for next year."

func newIngestionFixture(t *testing.T) *ingestionFixture {
	t.Helper()
	f := &ingestionFixture{
		store:     memory.NewStore(),
		blobs:     blobmem.NewStore(),
		embedder:  newMockEmbedder(),
		extractor: &fakeExtractor{},
		events:    &recordingPublisher{},
	}
	f.gateway = NewBlobService(f.blobs, f.store, BlobConfig{
		IntakeBucket:  "intake",
		IndexedBucket: "indexed",
		CopyAttempts:  1,
		CopyDelay:     time.Millisecond,
	})
	vec := NewVectorizerService(f.store, f.embedder, nil, VectorizerConfig{Workers: 2})
	split := chunker.New(chunker.WithChunkSize(50), chunker.WithOverlap(10))
	f.svc = NewIngestionService(f.store, f.blobs, f.gateway, f.extractor, split, vec, f.events,
		IngestionConfig{StorageTimeout: time.Second, ExtractTimeout: time.Second})
	return f
}

func (f *ingestionFixture) upload(t *testing.T, key, content string) domain.Object {
	t.Helper()
	obj := domain.Object{Bucket: "intake", Key: key}
	require.NoError(t, f.blobs.Put(context.Background(), obj, []byte(content), "application/pdf"))
	return obj
}

func (f *ingestionFixture) statuses() []domain.DocumentStatus {
	f.events.mu.Lock()
	defer f.events.mu.Unlock()
	out := make([]domain.DocumentStatus, len(f.events.events))
	for i, e := range f.events.events {
		out[i] = e.Status
	}
	return out
}

func TestIngestionService_FullPipeline(t *testing.T) {
	f := newIngestionFixture(t)
	ctx := context.Background()
	const id = "3f1c9a52-8a3e-4c1e-9f3b-2d6a7c1e0b44"
	src := f.upload(t, "uploads/"+id+"-annual report.pdf", sampleText)

	res, err := f.svc.HandleEvent(ctx, domain.StorageEvent{Bucket: "intake", Key: "uploads/" + id + "-annual+report.pdf"})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeProcessed, res.Outcome)
	assert.Equal(t, domain.StatusIndexed, res.Status)
	assert.Greater(t, res.Chunks, 1)

	doc, err := f.store.GetDocument(ctx, res.DocumentUUID)
	require.NoError(t, err)
	dst := f.gateway.IndexedObject(src)
	assert.Equal(t, "annual report.pdf", doc.Name)
	assert.Equal(t, dst.String(), doc.Location)
	assert.Equal(t, src.String(), doc.SourceLocation)
	assert.Equal(t, contentHash([]byte(sampleText)), doc.Hash)
	assert.Equal(t, domain.DocumentTypePDF, doc.Type)
	assert.Empty(t, doc.Tags)
	assert.Equal(t, domain.StatusIndexed, doc.Status)

	assert.False(t, f.blobs.Has(src), "source is removed after the copy")
	assert.True(t, f.blobs.Has(dst))

	chunks, err := f.store.ListChunks(ctx, doc.UUID)
	require.NoError(t, err)
	require.Len(t, chunks, res.Chunks)
	rebuilt := chunks[0].Text
	for _, c := range chunks[1:] {
		rebuilt += string([]rune(c.Text)[c.Overlap:])
	}
	assert.Equal(t, sampleText, rebuilt)

	res, err = f.svc.HandleEvent(ctx, domain.StorageEvent{Bucket: "indexed", Key: dst.Key})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeProcessed, res.Outcome)
	assert.Equal(t, domain.StatusVectorized, res.Status)

	chunks, err = f.store.ListChunks(ctx, doc.UUID)
	require.NoError(t, err)
	for _, c := range chunks {
		assert.True(t, c.Vectorized(), "chunk %d", c.Position)
		assert.Equal(t, "mock-embed", c.Embedding.EmbedderType)
	}

	assert.Equal(t, []domain.DocumentStatus{
		domain.StatusExtracted, domain.StatusChunked, domain.StatusIndexed, domain.StatusVectorized,
	}, f.statuses())
	assert.Empty(t, f.events.failures())
}

func TestIngestionService_Redelivery(t *testing.T) {
	f := newIngestionFixture(t)
	ctx := context.Background()
	src := f.upload(t, "uploads/r1-doc.pdf", sampleText)

	first, err := f.svc.Ingest(ctx, src)
	require.NoError(t, err)
	dst := f.gateway.IndexedObject(src)
	_, err = f.svc.Vectorize(ctx, dst)
	require.NoError(t, err)
	embedCalls := f.embedder.callCount()

	// The intake object is gone, so a redelivered upload event is a no-op.
	res, err := f.svc.Ingest(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSkipped, res.Outcome)

	res, err = f.svc.Vectorize(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDuplicate, res.Outcome)
	assert.Equal(t, embedCalls, f.embedder.callCount())

	// Same bytes under a new key are recognised by hash.
	again := f.upload(t, "uploads/r2-copy.pdf", sampleText)
	res, err = f.svc.Ingest(ctx, again)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDuplicate, res.Outcome)
	assert.Equal(t, first.DocumentUUID, res.DocumentUUID)

	docs, err := f.store.ListDocuments(ctx, domain.DocumentQuery{})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestIngestionService_ConcurrentDeliveries(t *testing.T) {
	f := newIngestionFixture(t)
	ctx := context.Background()
	src := f.upload(t, "uploads/c1-doc.pdf", sampleText)

	const n = 6
	results := make([]*domain.IngestResult, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Ingest(ctx, src)
		}(i)
	}
	wg.Wait()

	processed := 0
	for i := range results {
		require.NoError(t, errs[i])
		if results[i].Outcome == domain.OutcomeProcessed {
			processed++
		}
	}
	assert.Equal(t, 1, processed)

	docs, err := f.store.ListDocuments(ctx, domain.DocumentQuery{})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestIngestionService_ExtractionFailureAndRetry(t *testing.T) {
	f := newIngestionFixture(t)
	ctx := context.Background()
	src := f.upload(t, "uploads/x1-broken.pdf", "CORRUPT"+sampleText)

	res, err := f.svc.Ingest(ctx, src)
	require.NoError(t, err, "a recorded extraction failure is not redelivered")
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	assert.Equal(t, domain.StatusFailed, res.Status)
	assert.Contains(t, res.Message, "malformed xref table")

	doc, err := f.store.GetDocument(ctx, res.DocumentUUID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, doc.Status)
	require.NotNil(t, doc.Failure)
	assert.Equal(t, domain.StageExtraction, doc.Failure.Stage)
	assert.Contains(t, doc.Failure.Reason, "malformed xref table")
	assert.True(t, f.blobs.Has(src), "a failed object stays in the intake bucket")

	failures := f.events.failures()
	require.Len(t, failures, 1)
	assert.Equal(t, domain.StageExtraction, failures[0].Stage)

	// Redelivery reclaims the failed record.
	f.extractor.heal()
	retry, err := f.svc.Ingest(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeProcessed, retry.Outcome)
	assert.Equal(t, res.DocumentUUID, retry.DocumentUUID)

	doc, err = f.store.GetDocument(ctx, res.DocumentUUID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIndexed, doc.Status)
	assert.Nil(t, doc.Failure)
}

func TestIngestionService_BlankText(t *testing.T) {
	f := newIngestionFixture(t)
	src := f.upload(t, "uploads/b1-blank.pdf", "   \n\t ")

	res, err := f.svc.Ingest(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	assert.Contains(t, res.Message, "no extractable text")
}

func TestIngestionService_RetryUnderNewKey(t *testing.T) {
	f := newIngestionFixture(t)
	ctx := context.Background()
	first := f.upload(t, "uploads/aaa-report.pdf", "CORRUPT"+sampleText)

	res, err := f.svc.Ingest(ctx, first)
	require.NoError(t, err)
	require.Equal(t, domain.StatusFailed, res.Status)

	f.extractor.heal()
	const id = "9b2e4f10-5c7d-4a8e-b1f3-6d0c2a9e7f55"
	second := f.upload(t, "uploads/"+id+"-final report.pdf", "CORRUPT"+sampleText)
	retry, err := f.svc.HandleEvent(ctx, domain.StorageEvent{Bucket: "intake", Key: "uploads/" + id + "-final+report.pdf"})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeProcessed, retry.Outcome)
	assert.Equal(t, res.DocumentUUID, retry.DocumentUUID)

	dst := f.gateway.IndexedObject(second)
	doc, err := f.store.GetDocument(ctx, res.DocumentUUID)
	require.NoError(t, err)
	assert.Equal(t, dst.String(), doc.Location)
	assert.Equal(t, second.String(), doc.SourceLocation)
	assert.Equal(t, "final report.pdf", doc.Name)
	assert.True(t, f.blobs.Has(dst))

	vec, err := f.svc.HandleEvent(ctx, domain.StorageEvent{Bucket: "indexed", Key: dst.Key})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeProcessed, vec.Outcome)
	assert.Equal(t, domain.StatusVectorized, vec.Status)

	docs, err := f.store.ListDocuments(ctx, domain.DocumentQuery{})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestIngestionService_CopyFailure(t *testing.T) {
	f := newIngestionFixture(t)
	ctx := context.Background()
	src := f.upload(t, "uploads/k1-doc.pdf", sampleText)
	f.blobs.CopyHook = func(_, _ domain.Object) error { return errProvider }

	res, err := f.svc.Ingest(ctx, src)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)

	doc, err := f.store.GetDocument(ctx, res.DocumentUUID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, doc.Status)
	assert.Equal(t, domain.StageIndexing, doc.Failure.Stage)
	assert.True(t, f.blobs.Has(src))

	f.blobs.CopyHook = nil
	retry, err := f.svc.Ingest(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeProcessed, retry.Outcome)
	assert.Equal(t, domain.StatusIndexed, retry.Status)
}

func TestIngestionService_Routing(t *testing.T) {
	f := newIngestionFixture(t)
	ctx := context.Background()

	_, err := f.svc.HandleEvent(ctx, domain.StorageEvent{Bucket: "elsewhere", Key: "uploads/a.pdf"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.HandleEvent(ctx, domain.StorageEvent{Bucket: "intake", Key: "uploads/%zz.pdf"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	f.upload(t, "other/a.pdf", sampleText)
	res, err := f.svc.HandleEvent(ctx, domain.StorageEvent{Bucket: "intake", Key: "other/a.pdf"})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSkipped, res.Outcome)

	res, err = f.svc.HandleEvent(ctx, domain.StorageEvent{Bucket: "intake", Key: "uploads/missing.pdf"})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSkipped, res.Outcome)

	res, err = f.svc.HandleEvent(ctx, domain.StorageEvent{Bucket: "indexed", Key: "indexed/unknown.pdf"})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSkipped, res.Outcome)
	assert.Zero(t, f.extractor.calls)
}

func TestIngestionService_VectorizePartialFailure(t *testing.T) {
	f := newIngestionFixture(t)
	ctx := context.Background()
	src := f.upload(t, "uploads/p1-doc.pdf", sampleText)
	res, err := f.svc.Ingest(ctx, src)
	require.NoError(t, err)
	dst := f.gateway.IndexedObject(src)

	f.embedder.failOn["board"] = errProvider
	res, err = f.svc.Vectorize(ctx, dst)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.Equal(t, domain.OutcomePartial, res.Outcome)
	assert.Equal(t, domain.StatusIndexed, res.Status)

	doc, err := f.store.GetDocument(ctx, res.DocumentUUID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIndexed, doc.Status, "partial vectorization keeps the document indexed")
	require.NotEmpty(t, f.events.failures())
	assert.Equal(t, domain.StageVectorization, f.events.failures()[0].Stage)

	delete(f.embedder.failOn, "board")
	res, err = f.svc.Vectorize(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeProcessed, res.Outcome)
	assert.Equal(t, domain.StatusVectorized, res.Status)
}

func TestIngestionService_VectorizeProviderDown(t *testing.T) {
	f := newIngestionFixture(t)
	ctx := context.Background()
	src := f.upload(t, "uploads/d1-doc.pdf", sampleText)
	_, err := f.svc.Ingest(ctx, src)
	require.NoError(t, err)

	f.embedder.failOn[""] = errProvider
	res, err := f.svc.Vectorize(ctx, f.gateway.IndexedObject(src))
	require.Error(t, err)
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)

	doc, err := f.store.GetDocument(ctx, res.DocumentUUID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIndexed, doc.Status, "provider outages are retryable")
	assert.Nil(t, doc.Failure)
}

func TestIngestionService_VectorizeStates(t *testing.T) {
	f := newIngestionFixture(t)
	ctx := context.Background()

	addDocument(t, f.store, domain.Document{UUID: "chunked", Status: domain.StatusChunked, Location: "s3://indexed/indexed/chunked.pdf"})
	addChunks(t, f.store, "chunked", "alpha", "beta")
	addDocument(t, f.store, domain.Document{UUID: "failed", Status: domain.StatusFailed, Location: "s3://indexed/indexed/failed.pdf"})
	addDocument(t, f.store, domain.Document{UUID: "extracted", Status: domain.StatusExtracted, Location: "s3://indexed/indexed/extracted.pdf"})

	res, err := f.svc.Vectorize(ctx, domain.Object{Bucket: "indexed", Key: "indexed/chunked.pdf"})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeProcessed, res.Outcome)
	assert.Equal(t, domain.StatusVectorized, res.Status)
	assert.Equal(t, 2, res.Chunks)

	for _, key := range []string{"indexed/failed.pdf", "indexed/extracted.pdf"} {
		res, err := f.svc.Vectorize(ctx, domain.Object{Bucket: "indexed", Key: key})
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeSkipped, res.Outcome, key)
	}
}

func TestIngestionService_CreatedByCaller(t *testing.T) {
	f := newIngestionFixture(t)
	ctx := domain.WithCaller(context.Background(), domain.Caller{Subject: "sub-1", Email: "ana@example.com"})
	src := f.upload(t, "uploads/u1-doc.pdf", sampleText)

	res, err := f.svc.Ingest(ctx, src)
	require.NoError(t, err)
	doc, err := f.store.GetDocument(ctx, res.DocumentUUID)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", doc.CreatedBy)
}

func TestDocumentType(t *testing.T) {
	assert.Equal(t, domain.DocumentTypePDF, documentType("application/pdf"))
	assert.Equal(t, domain.DocumentTypePDF, documentType(""))
	assert.Equal(t, "TEXT", documentType("text/plain; charset=utf-8"))
	assert.Equal(t, "HTML", documentType("text/html"))
	assert.Equal(t, "DOCX", documentType("application/vnd.openxmlformats-officedocument.wordprocessingml.document"))
}
