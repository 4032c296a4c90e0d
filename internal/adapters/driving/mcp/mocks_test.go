package mcp

import (
	"context"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

// mockRetrievalService is a mock implementation of driving.RetrievalService.
type mockRetrievalService struct {
	result *domain.SearchResult
	err    error
	last   domain.SearchRequest
}

func (m *mockRetrievalService) Search(_ context.Context, req domain.SearchRequest) (*domain.SearchResult, error) {
	m.last = req
	if m.err != nil {
		return nil, m.err
	}
	if m.result == nil {
		return &domain.SearchResult{Question: req.Question, Chunks: []domain.RetrievedChunk{}}, nil
	}
	return m.result, nil
}

// mockSynonymService is a mock implementation of driving.SynonymService.
type mockSynonymService struct {
	synonyms []domain.Synonym
	err      error
}

func (m *mockSynonymService) Add(_ context.Context, s domain.Synonym) (*domain.Synonym, error) {
	return &s, m.err
}

func (m *mockSynonymService) Update(_ context.Context, s domain.Synonym) (*domain.Synonym, error) {
	return &s, m.err
}

func (m *mockSynonymService) Delete(_ context.Context, _ string) error { return m.err }

func (m *mockSynonymService) List(_ context.Context) ([]domain.Synonym, error) {
	return m.synonyms, m.err
}

func (m *mockSynonymService) Expand(_ context.Context, q string) (*domain.Expansion, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.Expansion{OriginalQuery: q, ProcessedQuery: q + " or bill"}, nil
}

// mockAnswerService is a mock implementation of driving.AnswerService.
type mockAnswerService struct {
	last domain.AnswerRequest
}

func (m *mockAnswerService) Answer(_ context.Context, req domain.AnswerRequest) (*domain.Answer, error) {
	m.last = req
	return &domain.Answer{Answer: "The total is 42.", Model: "mock"}, nil
}

// mockDocumentService is a mock implementation of driving.DocumentService.
type mockDocumentService struct {
	docs []domain.DocumentView
	last domain.DocumentListRequest
}

func (m *mockDocumentService) List(_ context.Context, req domain.DocumentListRequest) ([]domain.DocumentView, error) {
	m.last = req
	return m.docs, nil
}

func (m *mockDocumentService) Get(_ context.Context, id string) (*domain.DocumentView, error) {
	for i := range m.docs {
		if m.docs[i].UUID == id {
			return &m.docs[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockDocumentService) UpdateTags(_ context.Context, _ string, _ []string) (*domain.Document, error) {
	return nil, nil
}

func (m *mockDocumentService) Delete(_ context.Context, _ string) error { return nil }
