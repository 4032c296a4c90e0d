package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

// setupTestStore creates a SQLite store in a temporary directory.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	require.NotNil(t, store)
	t.Cleanup(func() { assert.NoError(t, store.Close()) })
	return store
}

func seedDocument(t *testing.T, s *Store, id, hash string, created time.Time, tags ...string) {
	t.Helper()
	require.NoError(t, s.Documents().CreateDocument(context.Background(), &domain.Document{
		UUID:      id,
		Name:      id + ".pdf",
		Hash:      hash,
		Location:  "s3://indexed/" + id,
		Type:      domain.DocumentTypePDF,
		Status:    domain.StatusExtracted,
		Tags:      tags,
		CreatedAt: created,
	}))
}

// ==================== Store Creation and Initialization Tests ====================

func TestNewStore_CreatesDatabaseAndMigrates(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DatabaseFile), store.Path())

	v, err := store.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	require.NoError(t, store.Close())

	// Reopening must not re-run applied migrations.
	store, err = NewStore(dir)
	require.NoError(t, err)
	v, err = store.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	require.NoError(t, store.Close())
}

// ==================== Document Store Tests ====================

func TestDocumentStore_CreateConflicts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	docs := s.Documents()
	seedDocument(t, s, "d1", "h1", time.Now(), "finance")

	err := docs.CreateDocument(ctx, &domain.Document{UUID: "d1", Hash: "h2", Status: domain.StatusExtracted})
	assert.ErrorIs(t, err, domain.ErrConflict)

	err = docs.CreateDocument(ctx, &domain.Document{UUID: "d2", Hash: "h1", Status: domain.StatusExtracted})
	assert.ErrorIs(t, err, domain.ErrConflict)

	doc, err := docs.GetDocumentByHash(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "d1", doc.UUID)
	assert.Equal(t, []string{"finance"}, doc.Tags)
	assert.Equal(t, domain.DocumentTypePDF, doc.Type)

	doc, err = docs.GetDocumentByLocation(ctx, "s3://indexed/d1")
	require.NoError(t, err)
	assert.Equal(t, "d1", doc.UUID)

	_, err = docs.GetDocument(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_TransitionStatus(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	docs := s.Documents()
	seedDocument(t, s, "d1", "h1", time.Now())

	require.NoError(t, docs.TransitionStatus(ctx, "d1", domain.StatusExtracted, domain.StatusChunked, nil))
	err := docs.TransitionStatus(ctx, "d1", domain.StatusExtracted, domain.StatusChunked, nil)
	assert.ErrorIs(t, err, domain.ErrConflict)

	failure := &domain.Failure{Stage: domain.StageIndexing, Reason: "copy failed", At: time.Now().UTC()}
	require.NoError(t, docs.TransitionStatus(ctx, "d1", domain.StatusChunked, domain.StatusFailed, failure))
	doc, err := docs.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, doc.Status)
	require.NotNil(t, doc.Failure)
	assert.Equal(t, domain.StageIndexing, doc.Failure.Stage)
	assert.Equal(t, "copy failed", doc.Failure.Reason)

	require.NoError(t, docs.TransitionStatus(ctx, "d1", domain.StatusFailed, domain.StatusExtracted, nil))
	doc, err = docs.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Nil(t, doc.Failure)

	assert.ErrorIs(t, docs.TransitionStatus(ctx, "nope", domain.StatusFailed, domain.StatusExtracted, nil), domain.ErrNotFound)
}

func TestDocumentStore_ReclaimDocument(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	docs := s.Documents()
	seedDocument(t, s, "d1", "h1", time.Now())
	reloc := domain.Relocation{Name: "retry.pdf", Location: "s3://indexed/indexed/b.pdf", SourceLocation: "s3://intake/uploads/b.pdf", Type: "PDF"}

	assert.ErrorIs(t, docs.ReclaimDocument(ctx, "d1", reloc), domain.ErrConflict)

	failure := &domain.Failure{Stage: domain.StageExtraction, Reason: "bad xref", At: time.Now().UTC()}
	require.NoError(t, docs.TransitionStatus(ctx, "d1", domain.StatusExtracted, domain.StatusFailed, failure))
	require.NoError(t, docs.ReclaimDocument(ctx, "d1", reloc))

	doc, err := docs.GetDocumentByLocation(ctx, reloc.Location)
	require.NoError(t, err)
	assert.Equal(t, "d1", doc.UUID)
	assert.Equal(t, domain.StatusExtracted, doc.Status)
	assert.Nil(t, doc.Failure)
	assert.Equal(t, "retry.pdf", doc.Name)
	assert.Equal(t, reloc.SourceLocation, doc.SourceLocation)

	assert.ErrorIs(t, docs.ReclaimDocument(ctx, "nope", reloc), domain.ErrNotFound)
}

func TestDocumentStore_TransitionStatusSingleWinner(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seedDocument(t, s, "d1", "h1", time.Now())

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.Documents().TransitionStatus(ctx, "d1", domain.StatusExtracted, domain.StatusChunked, nil)
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrConflict)
	}
	assert.Equal(t, 1, wins)
}

func TestDocumentStore_ListFiltersAndOrder(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	docs := s.Documents()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	seedDocument(t, s, "old", "h1", base, "finance")
	seedDocument(t, s, "new", "h2", base.AddDate(0, 0, 5), "finance", "q1")

	def := &domain.MetadataDefinition{UUID: "m1", Name: "amount", Description: "total", Type: domain.MetadataFloat}
	require.NoError(t, s.Metadata().CreateDefinition(ctx, def))
	v := domain.FloatValue(250)
	v.DocumentUUID, v.MetadataUUID = "new", "m1"
	require.NoError(t, s.Metadata().UpsertValue(ctx, &v))

	got, err := docs.ListDocuments(ctx, domain.DocumentQuery{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].UUID)

	got, err = docs.ListDocuments(ctx, domain.DocumentQuery{Tags: []string{"finance", "q1"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].UUID)

	got, err = docs.ListDocuments(ctx, domain.DocumentQuery{Tags: []string{"q1", "nope"}, TagMatch: domain.TagMatchIntersect})
	require.NoError(t, err)
	require.Len(t, got, 1)

	cond, err := domain.NewMetadataCondition(def, domain.OpGt, 100.0)
	require.NoError(t, err)
	got, err = docs.ListDocuments(ctx, domain.DocumentQuery{Conditions: []domain.MetadataCondition{cond}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].UUID)

	to := base
	got, err = docs.ListDocuments(ctx, domain.DocumentQuery{CreatedTo: &to})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "old", got[0].UUID)

	got, err = docs.ListDocuments(ctx, domain.DocumentQuery{Statuses: []domain.DocumentStatus{domain.StatusVectorized}})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDocumentStore_UpdateTags(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seedDocument(t, s, "d1", "h1", time.Now(), "a")

	require.NoError(t, s.Documents().UpdateTags(ctx, "d1", []string{"b", "c"}))
	doc, err := s.Documents().GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, doc.Tags)

	assert.ErrorIs(t, s.Documents().UpdateTags(ctx, "missing", nil), domain.ErrNotFound)
}

// ==================== Chunk Store Tests ====================

func TestChunkStore_ReplaceAndSearch(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	chunks := s.Chunks()
	t0 := time.Now().UTC()
	seedDocument(t, s, "d1", "h1", t0)
	seedDocument(t, s, "d2", "h2", t0)

	require.NoError(t, chunks.ReplaceChunks(ctx, "d1", []domain.Chunk{
		{UUID: "c2", Position: 1, Text: "second", CreatedAt: t0.Add(time.Millisecond)},
		{UUID: "c1", Position: 0, Text: "first", Length: 5, End: 5, CreatedAt: t0},
	}))
	require.NoError(t, chunks.ReplaceChunks(ctx, "d2", []domain.Chunk{
		{UUID: "c3", Position: 0, Text: "other", CreatedAt: t0},
	}))

	list, err := chunks.ListChunks(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c1", list[0].UUID)
	assert.Equal(t, 5, list[0].End)
	assert.Nil(t, list[0].Embedding)

	require.NoError(t, chunks.SaveEmbedding(ctx, "c1", domain.ChunkEmbedding{
		UUID: "e1", EmbedderType: "test-model", Tokens: 4, Seconds: 0.5, Vector: []float32{1, 0},
	}))
	require.NoError(t, chunks.SaveEmbedding(ctx, "c3", domain.ChunkEmbedding{UUID: "e3", Vector: []float32{0.9, 0.1}}))
	assert.ErrorIs(t, chunks.SaveEmbedding(ctx, "missing", domain.ChunkEmbedding{Vector: []float32{1}}), domain.ErrNotFound)

	got, err := chunks.GetChunks(ctx, []string{"c1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Embedding)
	assert.Equal(t, []float32{1, 0}, got[0].Embedding.Vector)
	assert.Equal(t, "test-model", got[0].Embedding.EmbedderType)
	assert.Equal(t, 4, got[0].Embedding.Tokens)

	hits, err := s.Vectors().SearchSimilar(ctx, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "c1", hits[0].ChunkUUID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)

	hits, err = s.Vectors().SearchSimilar(ctx, []float32{1, 0}, 10, []string{"d2"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c3", hits[0].ChunkUUID)

	hits, err = s.Vectors().SearchSimilar(ctx, []float32{1, 0}, 10, []string{})
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = s.Vectors().SearchSimilar(ctx, []float32{1, 0}, 1, nil)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	assert.ErrorIs(t, chunks.ReplaceChunks(ctx, "missing", nil), domain.ErrNotFound)
}

func TestChunkStore_ReplaceDropsChunkValues(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seedDocument(t, s, "d1", "h1", time.Now())
	require.NoError(t, s.Chunks().ReplaceChunks(ctx, "d1", []domain.Chunk{{UUID: "c1", Text: "x"}}))
	require.NoError(t, s.Metadata().CreateDefinition(ctx, &domain.MetadataDefinition{UUID: "m1", Name: "n", Type: domain.MetadataInt}))

	docLevel := domain.IntValue(1)
	docLevel.DocumentUUID, docLevel.MetadataUUID = "d1", "m1"
	require.NoError(t, s.Metadata().UpsertValue(ctx, &docLevel))
	chunkLevel := domain.IntValue(2)
	chunkLevel.DocumentUUID, chunkLevel.ChunkUUID, chunkLevel.MetadataUUID = "d1", "c1", "m1"
	require.NoError(t, s.Metadata().UpsertValue(ctx, &chunkLevel))

	require.NoError(t, s.Chunks().ReplaceChunks(ctx, "d1", []domain.Chunk{{UUID: "c9", Text: "y"}}))

	values, err := s.Metadata().ListValues(ctx, []string{"d1"})
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Empty(t, values[0].ChunkUUID)
}

// ==================== Metadata Store Tests ====================

func TestMetadataStore_DefinitionsAndValues(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	md := s.Metadata()
	seedDocument(t, s, "d1", "h1", time.Now())

	require.NoError(t, md.CreateDefinition(ctx, &domain.MetadataDefinition{UUID: "m2", Name: "vendor", Description: "who", Type: domain.MetadataString}))
	require.NoError(t, md.CreateDefinition(ctx, &domain.MetadataDefinition{UUID: "m1", Name: "amount", Description: "total", Type: domain.MetadataFloat}))
	assert.ErrorIs(t, md.CreateDefinition(ctx, &domain.MetadataDefinition{UUID: "m3", Name: "vendor"}), domain.ErrConflict)

	defs, err := md.ListDefinitions(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "amount", defs[0].Name)

	wrong := domain.StringValue("x")
	wrong.DocumentUUID, wrong.MetadataUUID = "d1", "m1"
	assert.ErrorIs(t, md.UpsertValue(ctx, &wrong), domain.ErrValidation)

	orphan := domain.StringValue("x")
	orphan.DocumentUUID, orphan.MetadataUUID = "nope", "m2"
	assert.ErrorIs(t, md.UpsertValue(ctx, &orphan), domain.ErrNotFound)

	v := domain.StringValue("ACME")
	v.UUID, v.DocumentUUID, v.MetadataUUID = "v1", "d1", "m2"
	require.NoError(t, md.UpsertValue(ctx, &v))

	again := domain.StringValue("Globex")
	again.UUID, again.DocumentUUID, again.MetadataUUID = "v2", "d1", "m2"
	again.Comments = "Extracted by model: test"
	require.NoError(t, md.UpsertValue(ctx, &again))
	assert.Equal(t, "v1", again.UUID)

	values, err := md.ListValues(ctx, nil)
	require.NoError(t, err)
	require.Len(t, values, 1)
	require.NotNil(t, values[0].String)
	assert.Equal(t, "Globex", *values[0].String)
	assert.Equal(t, "Extracted by model: test", values[0].Comments)

	n, err := md.CountValues(ctx, "m2")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.ErrorIs(t, md.DeleteDefinition(ctx, "m2", false), domain.ErrConflict)
	require.NoError(t, md.DeleteDefinition(ctx, "m2", true))
	values, err = md.ListValues(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, values)
	assert.ErrorIs(t, md.DeleteDefinition(ctx, "m2", false), domain.ErrNotFound)
}

func TestMetadataStore_TypedValuesRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	md := s.Metadata()
	seedDocument(t, s, "d1", "h1", time.Now())

	require.NoError(t, md.CreateDefinition(ctx, &domain.MetadataDefinition{UUID: "mb", Name: "signed", Type: domain.MetadataBoolean}))
	require.NoError(t, md.CreateDefinition(ctx, &domain.MetadataDefinition{UUID: "md", Name: "due", Type: domain.MetadataDate}))

	b := domain.BooleanValue(true)
	b.DocumentUUID, b.MetadataUUID = "d1", "mb"
	require.NoError(t, md.UpsertValue(ctx, &b))

	d := domain.DateValue(time.Date(2024, 6, 30, 15, 0, 0, 0, time.UTC))
	d.DocumentUUID, d.MetadataUUID = "d1", "md"
	require.NoError(t, md.UpsertValue(ctx, &d))

	values, err := md.ListValues(ctx, []string{"d1"})
	require.NoError(t, err)
	require.Len(t, values, 2)

	byDef := map[string]domain.MetadataValue{}
	for _, v := range values {
		byDef[v.MetadataUUID] = v
	}
	mbVal, mdVal := byDef["mb"], byDef["md"]
	assert.Equal(t, true, mbVal.Value())
	assert.Equal(t, "2024-06-30", mdVal.Value())

	require.NoError(t, md.DeleteValue(ctx, "d1", "mb"))
	n, err := md.CountValues(ctx, "mb")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDocumentStore_DeleteCascades(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seedDocument(t, s, "d1", "h1", time.Now())
	require.NoError(t, s.Metadata().CreateDefinition(ctx, &domain.MetadataDefinition{UUID: "m1", Name: "n", Type: domain.MetadataInt}))
	v := domain.IntValue(3)
	v.DocumentUUID, v.MetadataUUID = "d1", "m1"
	require.NoError(t, s.Metadata().UpsertValue(ctx, &v))
	require.NoError(t, s.Chunks().ReplaceChunks(ctx, "d1", []domain.Chunk{{UUID: "c1", Text: "x"}}))

	require.NoError(t, s.Documents().DeleteDocument(ctx, "d1"))
	chunks, err := s.Chunks().ListChunks(ctx, "d1")
	require.NoError(t, err)
	assert.Empty(t, chunks)
	n, err := s.Metadata().CountValues(ctx, "m1")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.ErrorIs(t, s.Documents().DeleteDocument(ctx, "d1"), domain.ErrNotFound)
}

// ==================== Synonym and Recurrent Query Tests ====================

func TestSynonymStore_CRUD(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	syn := s.Synonyms()

	require.NoError(t, syn.CreateSynonym(ctx, &domain.Synonym{UUID: "s1", Name: "NDA", Value: "non-disclosure agreement"}))
	require.NoError(t, syn.CreateSynonym(ctx, &domain.Synonym{UUID: "s0", Name: "ACV", Value: "annual contract value"}))
	assert.ErrorIs(t, syn.CreateSynonym(ctx, &domain.Synonym{UUID: "s2", Name: "NDA", Value: "x"}), domain.ErrConflict)
	assert.ErrorIs(t, syn.UpdateSynonym(ctx, &domain.Synonym{UUID: "missing", Name: "y", Value: "z"}), domain.ErrNotFound)

	require.NoError(t, syn.UpdateSynonym(ctx, &domain.Synonym{UUID: "s1", Name: "NDA", Value: "nondisclosure agreement"}))
	got, err := syn.GetSynonym(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "nondisclosure agreement", got.Value)

	list, err := syn.ListSynonyms(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "ACV", list[0].Name)

	require.NoError(t, syn.DeleteSynonym(ctx, "s1"))
	assert.ErrorIs(t, syn.DeleteSynonym(ctx, "s1"), domain.ErrNotFound)
	_, err = syn.GetSynonym(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecurrentQueryStore_CRUD(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	rq := s.RecurrentQueries()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, rq.CreateRecurrentQuery(ctx, &domain.RecurrentQuery{
		UUID: "q1", Name: "b", QueryType: "search", Content: "c", UserUUID: "u1",
		Tags: []string{"finance"}, StartDate: &start,
	}))
	require.NoError(t, rq.CreateRecurrentQuery(ctx, &domain.RecurrentQuery{UUID: "q2", Name: "a", QueryType: "search", Content: "c", UserUUID: "u2"}))

	all, err := rq.ListRecurrentQueries(ctx, domain.RecurrentQueryFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Name)

	mine, err := rq.ListRecurrentQueries(ctx, domain.RecurrentQueryFilter{UserUUID: "u1"})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "q1", mine[0].UUID)
	assert.Equal(t, []string{"finance"}, mine[0].Tags)
	require.NotNil(t, mine[0].StartDate)
	assert.True(t, start.Equal(*mine[0].StartDate))
	assert.Nil(t, mine[0].EndDate)

	q := mine[0]
	q.Content = "updated"
	require.NoError(t, rq.UpdateRecurrentQuery(ctx, &q))
	got, err := rq.GetRecurrentQuery(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Content)

	require.NoError(t, rq.DeleteRecurrentQuery(ctx, "q1"))
	assert.ErrorIs(t, rq.DeleteRecurrentQuery(ctx, "q1"), domain.ErrNotFound)
	_, err = rq.GetRecurrentQuery(ctx, "q1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// ==================== Helper Function Tests ====================

func TestFloat32Conversion(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 3.4028235e38}
	assert.Equal(t, in, bytesToFloat32Slice(float32SliceToBytes(in)))
	assert.Nil(t, float32SliceToBytes(nil))
	assert.Nil(t, bytesToFloat32Slice(nil))
}
