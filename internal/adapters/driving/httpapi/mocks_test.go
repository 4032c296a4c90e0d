package httpapi

import (
	"context"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

type mockBlob struct {
	upload   func(domain.UploadRequest) (*domain.UploadTicket, error)
	download func(string, int) (*domain.DownloadTicket, error)
}

func (m *mockBlob) IssueUploadURL(_ context.Context, req domain.UploadRequest) (*domain.UploadTicket, error) {
	return m.upload(req)
}

func (m *mockBlob) IssueDownloadURL(_ context.Context, id string, exp int) (*domain.DownloadTicket, error) {
	return m.download(id, exp)
}

type mockDocuments struct {
	docs      map[string]*domain.DocumentView
	lastList  domain.DocumentListRequest
	callers   []domain.Caller
	deleteErr error
}

func (m *mockDocuments) List(_ context.Context, req domain.DocumentListRequest) ([]domain.DocumentView, error) {
	m.lastList = req
	out := []domain.DocumentView{}
	for _, d := range m.docs {
		out = append(out, *d)
	}
	return out, nil
}

func (m *mockDocuments) Get(_ context.Context, id string) (*domain.DocumentView, error) {
	d, ok := m.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return d, nil
}

func (m *mockDocuments) UpdateTags(ctx context.Context, id string, tags []string) (*domain.Document, error) {
	if c, ok := domain.CallerFrom(ctx); ok {
		m.callers = append(m.callers, c)
	}
	d, ok := m.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	d.Tags = tags
	return &d.Document, nil
}

func (m *mockDocuments) Delete(_ context.Context, _ string) error {
	return m.deleteErr
}

type mockMetadata struct {
	computed [][2]string
	cascade  []bool
	defs     []domain.MetadataDefinition
}

func (m *mockMetadata) AddDefinition(_ context.Context, def domain.MetadataDefinition) (*domain.MetadataDefinition, error) {
	if def.Name == "" {
		return nil, domain.ErrValidation
	}
	def.UUID = "m-new"
	return &def, nil
}

func (m *mockMetadata) UpdateDefinition(_ context.Context, def domain.MetadataDefinition) (*domain.MetadataDefinition, error) {
	return &def, nil
}

func (m *mockMetadata) DeleteDefinition(_ context.Context, _ string, cascade bool) error {
	m.cascade = append(m.cascade, cascade)
	if !cascade {
		return domain.ErrConflict
	}
	return nil
}

func (m *mockMetadata) ListDefinitions(_ context.Context) ([]domain.MetadataDefinition, error) {
	return m.defs, nil
}

func (m *mockMetadata) Compute(_ context.Context, doc, meta string) (*domain.ComputeReport, error) {
	m.computed = append(m.computed, [2]string{doc, meta})
	return &domain.ComputeReport{Outcomes: []domain.ComputeOutcome{}, Succeeded: 1}, nil
}

type mockSynonyms struct{}

func (mockSynonyms) Add(_ context.Context, s domain.Synonym) (*domain.Synonym, error) { return &s, nil }

func (mockSynonyms) Update(_ context.Context, s domain.Synonym) (*domain.Synonym, error) {
	return &s, nil
}

func (mockSynonyms) Delete(_ context.Context, _ string) error { return domain.ErrNotFound }

func (mockSynonyms) List(_ context.Context) ([]domain.Synonym, error) { return []domain.Synonym{}, nil }

func (mockSynonyms) Expand(_ context.Context, q string) (*domain.Expansion, error) {
	return &domain.Expansion{OriginalQuery: q, ProcessedQuery: q + " or bill"}, nil
}

type mockRetrieval struct {
	err error
}

func (m mockRetrieval) Search(_ context.Context, req domain.SearchRequest) (*domain.SearchResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.SearchResult{Question: req.Question, Chunks: []domain.RetrievedChunk{}}, nil
}

type mockAnswers struct{}

func (mockAnswers) Answer(_ context.Context, req domain.AnswerRequest) (*domain.Answer, error) {
	return &domain.Answer{Answer: "42", Model: "mock", TokenUsage: &domain.TokenUsage{TotalTokens: 3}}, nil
}

type mockQueries struct {
	created []domain.RecurrentQuery
}

func (m *mockQueries) Create(_ context.Context, q domain.RecurrentQuery) (*domain.RecurrentQuery, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	q.UUID = "q1"
	m.created = append(m.created, q)
	return &q, nil
}

func (m *mockQueries) Get(_ context.Context, _ string) (*domain.RecurrentQuery, error) {
	return nil, domain.ErrNotFound
}

func (m *mockQueries) Update(_ context.Context, q domain.RecurrentQuery) (*domain.RecurrentQuery, error) {
	return &q, nil
}

func (m *mockQueries) Delete(_ context.Context, _ string) error { return nil }

func (m *mockQueries) List(_ context.Context, _ domain.RecurrentQueryFilter) ([]domain.RecurrentQuery, error) {
	return []domain.RecurrentQuery{}, nil
}

type mockIngestion struct {
	events  []domain.StorageEvent
	fail    map[string]error
	results map[string]*domain.IngestResult
}

func (m *mockIngestion) HandleEvent(_ context.Context, ev domain.StorageEvent) (*domain.IngestResult, error) {
	m.events = append(m.events, ev)
	if err := m.fail[ev.Key]; err != nil {
		return nil, err
	}
	if res, ok := m.results[ev.Key]; ok {
		return res, nil
	}
	return &domain.IngestResult{Outcome: domain.OutcomeProcessed}, nil
}

func (m *mockIngestion) Ingest(_ context.Context, _ domain.Object) (*domain.IngestResult, error) {
	return nil, nil
}

func (m *mockIngestion) Vectorize(_ context.Context, _ domain.Object) (*domain.IngestResult, error) {
	return nil, nil
}
