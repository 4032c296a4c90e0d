package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

func newTestServer(t *testing.T, ports *Ports) *Server {
	t.Helper()
	s, err := NewServer(ports)
	require.NoError(t, err)
	return s
}

func TestServer_handleExpand(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t, &Ports{Retrieval: &mockRetrievalService{}, Synonyms: &mockSynonymService{}})

	_, out, err := s.handleExpand(ctx, nil, ExpandInput{Query: "invoice"})
	require.NoError(t, err)
	assert.Equal(t, "invoice", out.OriginalQuery)
	assert.Equal(t, "invoice or bill", out.ProcessedQuery)

	s = newTestServer(t, &Ports{Retrieval: &mockRetrievalService{}, Synonyms: &mockSynonymService{err: domain.ErrUpstream}})
	_, _, err = s.handleExpand(ctx, nil, ExpandInput{Query: "invoice"})
	assert.ErrorIs(t, err, domain.ErrUpstream)
}

func TestServer_handleRetrieve(t *testing.T) {
	ctx := context.Background()

	t.Run("maps chunks and filters", func(t *testing.T) {
		retrieval := &mockRetrievalService{result: &domain.SearchResult{
			Question: "total or sum",
			Chunks: []domain.RetrievedChunk{{
				Chunk:    domain.Chunk{UUID: "c1", Text: "Total: 42"},
				Document: domain.Document{UUID: "d1", Name: "invoice.pdf"},
				Score:    0.91,
			}},
		}}
		s := newTestServer(t, &Ports{Retrieval: retrieval})

		_, out, err := s.handleRetrieve(ctx, nil, RetrieveInput{
			Question: "total",
			Tags:     []string{"finance"},
			TagMatch: "intersect",
			Filters:  []FilterInput{{Type: "amount", Value: map[string]any{"operator": "gt", "value": 10}}},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, out.Count)
		assert.Equal(t, "c1", out.Chunks[0].ChunkUUID)
		assert.Equal(t, "invoice.pdf", out.Chunks[0].DocumentName)
		assert.Equal(t, "Total: 42", out.Chunks[0].Text)

		require.Len(t, retrieval.last.Filters, 1)
		assert.Equal(t, "amount", retrieval.last.Filters[0].Type)
		assert.JSONEq(t, `{"operator":"gt","value":10}`, string(retrieval.last.Filters[0].Value))
		assert.Equal(t, domain.TagMatchIntersect, retrieval.last.TagMatch)
	})

	t.Run("returns error on search failure", func(t *testing.T) {
		s := newTestServer(t, &Ports{Retrieval: &mockRetrievalService{err: errors.New("search failed")}})
		_, _, err := s.handleRetrieve(ctx, nil, RetrieveInput{Question: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "search failed")
	})
}

func TestServer_handleAnswer(t *testing.T) {
	ctx := context.Background()

	t.Run("uses given chunks", func(t *testing.T) {
		retrieval := &mockRetrievalService{}
		answers := &mockAnswerService{}
		s := newTestServer(t, &Ports{Retrieval: retrieval, Answers: answers})

		_, out, err := s.handleAnswer(ctx, nil, AnswerInput{
			Question: "total?",
			Chunks:   []AnswerChunkInput{{DocumentName: "a.pdf", Text: "Total: 42"}},
		})
		require.NoError(t, err)
		assert.Equal(t, "The total is 42.", out.Answer)
		assert.Empty(t, out.Sources)
		assert.Empty(t, retrieval.last.Question, "no retrieval when chunks are given")
		require.Len(t, answers.last.Chunks, 1)
	})

	t.Run("retrieves when no chunks are given", func(t *testing.T) {
		retrieval := &mockRetrievalService{result: &domain.SearchResult{Chunks: []domain.RetrievedChunk{
			{Chunk: domain.Chunk{Text: "one"}, Document: domain.Document{UUID: "d1", Name: "a.pdf"}},
			{Chunk: domain.Chunk{Text: "two"}, Document: domain.Document{UUID: "d1", Name: "a.pdf"}},
			{Chunk: domain.Chunk{Text: "three"}, Document: domain.Document{UUID: "d2", Name: "b.pdf"}},
		}}}
		answers := &mockAnswerService{}
		s := newTestServer(t, &Ports{Retrieval: retrieval, Answers: answers})

		_, out, err := s.handleAnswer(ctx, nil, AnswerInput{Question: "total?", NumResults: 3})
		require.NoError(t, err)
		assert.Equal(t, 3, retrieval.last.NumResults)
		assert.Len(t, answers.last.Chunks, 3)
		assert.Equal(t, []string{"a.pdf", "b.pdf"}, out.Sources)
	})
}

func TestServer_handleListDocuments(t *testing.T) {
	docs := &mockDocumentService{docs: []domain.DocumentView{{Document: domain.Document{
		UUID: "d1", Name: "a.pdf", Status: domain.StatusVectorized, Tags: []string{"finance"},
		CreatedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}}}}
	s := newTestServer(t, &Ports{Retrieval: &mockRetrievalService{}, Documents: docs})

	_, out, err := s.handleListDocuments(context.Background(), nil, ListDocumentsInput{StartDate: "2024-01-01"})
	require.NoError(t, err)
	require.Equal(t, 1, out.Count)
	assert.Equal(t, "2024-03-01", out.Documents[0].CreatedAt)
	assert.Equal(t, "VECTORIZED", out.Documents[0].Status)
	assert.Equal(t, "2024-01-01", docs.last.StartDate)
	assert.Empty(t, docs.last.Filters)
}

func TestToFilters(t *testing.T) {
	out, err := toFilters([]FilterInput{{Type: "tags", Value: []string{"a"}}})
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`["a"]`), out[0].Value)

	_, err = toFilters([]FilterInput{{Type: "bad", Value: func() {}}})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
