package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

// FilterInput is one document filter; Value is decoded per filter type.
type FilterInput struct {
	Type  string `json:"filter_type" jsonschema:"filter kind: document, tags or a metadata name"`
	Value any    `json:"filter_value" jsonschema:"filter payload, shape depends on filter_type"`
}

// ExpandInput is the input schema for the expand_query tool.
type ExpandInput struct {
	Query string `json:"query" jsonschema:"the query to rewrite with known synonyms"`
}

// ExpandOutput is the output schema for the expand_query tool.
type ExpandOutput struct {
	OriginalQuery  string `json:"original_query"`
	ProcessedQuery string `json:"processed_query"`
}

// RetrieveInput is the input schema for the retrieve_chunks tool.
type RetrieveInput struct {
	Question       string        `json:"question" jsonschema:"the question to match against document chunks"`
	NumResults     int           `json:"num_results,omitempty" jsonschema:"maximum number of chunks (default 20)"`
	Tags           []string      `json:"tags,omitempty" jsonschema:"only search documents with these tags"`
	TagMatch       string        `json:"tag_match,omitempty" jsonschema:"superset or intersect"`
	DocumentUUID   string        `json:"document_uuid,omitempty" jsonschema:"restrict the search to one document"`
	StartDate      string        `json:"start_date,omitempty" jsonschema:"earliest document date, YYYY-MM-DD"`
	EndDate        string        `json:"end_date,omitempty" jsonschema:"latest document date, YYYY-MM-DD"`
	ExpandSynonyms bool          `json:"expand_synonyms,omitempty" jsonschema:"rewrite the question with synonyms first"`
	Filters        []FilterInput `json:"document_filters,omitempty" jsonschema:"metadata and document filters combined with AND"`
}

// RetrieveOutput is the output schema for the retrieve_chunks tool.
type RetrieveOutput struct {
	Question string        `json:"question"`
	Chunks   []ChunkOutput `json:"chunks"`
	Count    int           `json:"count"`
}

// ChunkOutput is one ranked chunk.
type ChunkOutput struct {
	ChunkUUID    string                 `json:"document_chunk_uuid"`
	DocumentUUID string                 `json:"document_uuid"`
	DocumentName string                 `json:"document_name"`
	Text         string                 `json:"embebed_text"`
	Score        float64                `json:"score"`
	Metadata     []domain.MetadataEntry `json:"document_metadata,omitempty"`
}

// AnswerInput is the input schema for the answer_question tool.
type AnswerInput struct {
	Question   string             `json:"question" jsonschema:"the question to answer"`
	Chunks     []AnswerChunkInput `json:"chunks,omitempty" jsonschema:"context chunks; retrieved automatically when empty"`
	NumResults int                `json:"num_results,omitempty" jsonschema:"chunks to retrieve when none are given"`
}

// AnswerChunkInput is one context chunk for answer_question.
type AnswerChunkInput struct {
	DocumentName string `json:"document_name"`
	Text         string `json:"embebed_text"`
}

// AnswerOutput is the output schema for the answer_question tool.
type AnswerOutput struct {
	Answer     string             `json:"answer"`
	Model      string             `json:"model,omitempty"`
	TokenUsage *domain.TokenUsage `json:"token_usage,omitempty"`
	Sources    []string           `json:"sources,omitempty"`
}

// ListDocumentsInput is the input schema for the list_documents tool.
type ListDocumentsInput struct {
	Tags      []string      `json:"tags,omitempty" jsonschema:"only documents with these tags"`
	TagMatch  string        `json:"tag_match,omitempty" jsonschema:"superset or intersect"`
	StartDate string        `json:"start_date,omitempty" jsonschema:"earliest document date, YYYY-MM-DD"`
	EndDate   string        `json:"end_date,omitempty" jsonschema:"latest document date, YYYY-MM-DD"`
	Filters   []FilterInput `json:"document_filters,omitempty" jsonschema:"metadata and document filters combined with AND"`
}

// ListDocumentsOutput is the output schema for the list_documents tool.
type ListDocumentsOutput struct {
	Documents []DocumentOutput `json:"documents"`
	Count     int              `json:"count"`
}

// DocumentOutput summarises one document.
type DocumentOutput struct {
	UUID      string                 `json:"document_uuid"`
	Name      string                 `json:"document_name"`
	Status    string                 `json:"document_status"`
	Tags      []string               `json:"tags"`
	CreatedAt string                 `json:"creation_date"`
	Metadata  []domain.MetadataEntry `json:"document_metadata,omitempty"`
}

// registerTools registers the tools whose ports are available.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "retrieve_chunks",
		Description: "Retrieve the document chunks most similar to a question",
	}, s.handleRetrieve)

	if s.ports.Synonyms != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "expand_query",
			Description: "Rewrite a query so every known synonym reads as \"name or value\"",
		}, s.handleExpand)
	}
	if s.ports.Answers != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "answer_question",
			Description: "Answer a question from document chunks, retrieving them when none are given",
		}, s.handleAnswer)
	}
	if s.ports.Documents != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "list_documents",
			Description: "List ingested documents with their tags and metadata",
		}, s.handleListDocuments)
	}
}

func (s *Server) handleExpand(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ExpandInput,
) (*mcp.CallToolResult, ExpandOutput, error) {
	exp, err := s.ports.Synonyms.Expand(ctx, input.Query)
	if err != nil {
		return nil, ExpandOutput{}, err
	}
	return nil, ExpandOutput{OriginalQuery: exp.OriginalQuery, ProcessedQuery: exp.ProcessedQuery}, nil
}

func (s *Server) handleRetrieve(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RetrieveInput,
) (*mcp.CallToolResult, RetrieveOutput, error) {
	filters, err := toFilters(input.Filters)
	if err != nil {
		return nil, RetrieveOutput{}, err
	}
	res, err := s.ports.Retrieval.Search(ctx, domain.SearchRequest{
		Question:       input.Question,
		NumResults:     input.NumResults,
		Filters:        filters,
		Tags:           input.Tags,
		TagMatch:       domain.TagMatch(input.TagMatch),
		DocumentUUID:   input.DocumentUUID,
		StartDate:      input.StartDate,
		EndDate:        input.EndDate,
		ExpandSynonyms: input.ExpandSynonyms,
	})
	if err != nil {
		return nil, RetrieveOutput{}, err
	}

	output := RetrieveOutput{
		Question: res.Question,
		Chunks:   make([]ChunkOutput, len(res.Chunks)),
		Count:    len(res.Chunks),
	}
	for i, rc := range res.Chunks {
		output.Chunks[i] = ChunkOutput{
			ChunkUUID:    rc.Chunk.UUID,
			DocumentUUID: rc.Document.UUID,
			DocumentName: rc.Document.Name,
			Text:         rc.Chunk.Text,
			Score:        rc.Score,
			Metadata:     rc.Metadata,
		}
	}
	return nil, output, nil
}

func (s *Server) handleAnswer(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AnswerInput,
) (*mcp.CallToolResult, AnswerOutput, error) {
	req := domain.AnswerRequest{Question: input.Question}
	for _, c := range input.Chunks {
		req.Chunks = append(req.Chunks, domain.AnswerChunk{DocumentName: c.DocumentName, Text: c.Text})
	}

	var sources []string
	if len(req.Chunks) == 0 {
		res, err := s.ports.Retrieval.Search(ctx, domain.SearchRequest{
			Question:   input.Question,
			NumResults: input.NumResults,
		})
		if err != nil {
			return nil, AnswerOutput{}, err
		}
		seen := map[string]bool{}
		for _, rc := range res.Chunks {
			req.Chunks = append(req.Chunks, domain.AnswerChunk{
				DocumentName: rc.Document.Name,
				Text:         rc.Chunk.Text,
				Metadata:     rc.Metadata,
			})
			if !seen[rc.Document.UUID] {
				seen[rc.Document.UUID] = true
				sources = append(sources, rc.Document.Name)
			}
		}
	}

	ans, err := s.ports.Answers.Answer(ctx, req)
	if err != nil {
		return nil, AnswerOutput{}, err
	}
	return nil, AnswerOutput{
		Answer:     ans.Answer,
		Model:      ans.Model,
		TokenUsage: ans.TokenUsage,
		Sources:    sources,
	}, nil
}

func (s *Server) handleListDocuments(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ListDocumentsInput,
) (*mcp.CallToolResult, ListDocumentsOutput, error) {
	filters, err := toFilters(input.Filters)
	if err != nil {
		return nil, ListDocumentsOutput{}, err
	}
	docs, err := s.ports.Documents.List(ctx, domain.DocumentListRequest{
		Filters:   filters,
		Tags:      input.Tags,
		TagMatch:  domain.TagMatch(input.TagMatch),
		StartDate: input.StartDate,
		EndDate:   input.EndDate,
	})
	if err != nil {
		return nil, ListDocumentsOutput{}, err
	}

	output := ListDocumentsOutput{Documents: make([]DocumentOutput, len(docs)), Count: len(docs)}
	for i := range docs {
		output.Documents[i] = DocumentOutput{
			UUID:      docs[i].UUID,
			Name:      docs[i].Name,
			Status:    string(docs[i].Status),
			Tags:      docs[i].Tags,
			CreatedAt: docs[i].CreatedAt.Format("2006-01-02"),
			Metadata:  docs[i].Metadata,
		}
	}
	return nil, output, nil
}

func toFilters(in []FilterInput) ([]domain.DocumentFilter, error) {
	out := make([]domain.DocumentFilter, 0, len(in))
	for _, f := range in {
		raw, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: filter %q: %v", domain.ErrValidation, f.Type, err)
		}
		out = append(out, domain.DocumentFilter{Type: f.Type, Value: raw})
	}
	return out, nil
}
