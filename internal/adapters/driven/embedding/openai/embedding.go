// Package openai provides an embedding service adapter using the OpenAI API.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/custodia-labs/docpipe/internal/adapters/driven/provider"
	"github.com/custodia-labs/docpipe/internal/core/domain"
	"github.com/custodia-labs/docpipe/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Default configuration values.
const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "text-embedding-3-small"
	DefaultTimeout = 60 * time.Second
)

const name = "openai"

// Model dimensions for OpenAI embedding models.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// Config holds configuration for the OpenAI embedding service.
type Config struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL is the API base URL. Change it for Azure OpenAI or
	// compatible APIs.
	BaseURL string

	// Model is the embedding model to use (default: text-embedding-3-small).
	Model string

	// Timeout is the request timeout (default: 60s).
	Timeout time.Duration

	// Dimensions overrides the model's native size. Only text-embedding-3-*
	// models accept it.
	Dimensions int
}

// EmbeddingService generates embeddings with go-openai.
type EmbeddingService struct {
	client     *openai.Client
	model      string
	dimensions int
	override   bool
}

// NewEmbeddingService creates a new OpenAI embedding service.
func NewEmbeddingService(cfg Config) (*EmbeddingService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai api key is required", domain.ErrValidation)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	dims := cfg.Dimensions
	if dims == 0 {
		dims = modelDimensions[cfg.Model]
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = cfg.BaseURL
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &EmbeddingService{
		client:     openai.NewClientWithConfig(oc),
		model:      cfg.Model,
		dimensions: dims,
		override:   cfg.Dimensions > 0,
	}, nil
}

// Embed generates a vector embedding for the given text. The prompt token
// count from the usage block is recorded.
func (s *EmbeddingService) Embed(ctx context.Context, text string) (driven.Embedding, error) {
	resp, err := s.create(ctx, []string{text})
	if err != nil {
		return driven.Embedding{}, err
	}
	tokens := resp.Usage.PromptTokens
	if tokens <= 0 {
		tokens = domain.UnknownTokenCount
	}
	return driven.Embedding{Vector: resp.Data[0].Embedding, Tokens: tokens}, nil
}

// EmbedBatch embeds all texts in one request. Usage covers the whole batch,
// so per-text tokens are unknown.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([]driven.Embedding, error) {
	if len(texts) == 0 {
		return []driven.Embedding{}, nil
	}
	resp, err := s.create(ctx, texts)
	if err != nil {
		return nil, err
	}
	out := make([]driven.Embedding, len(texts))
	for i, d := range resp.Data {
		out[i] = driven.Embedding{Vector: d.Embedding, Tokens: domain.UnknownTokenCount}
	}
	return out, nil
}

func (s *EmbeddingService) create(ctx context.Context, texts []string) (openai.EmbeddingResponse, error) {
	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(s.model),
	}
	if s.override {
		req.Dimensions = s.dimensions
	}

	resp, err := s.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return openai.EmbeddingResponse{}, provider.OpenAIError(err)
	}
	if len(resp.Data) != len(texts) {
		return openai.EmbeddingResponse{}, fmt.Errorf("%s: %w: got %d embeddings for %d inputs",
			name, domain.ErrUpstream, len(resp.Data), len(texts))
	}
	// Results carry their input index; order by it.
	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	return resp, nil
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the name of the embedding model being used.
func (s *EmbeddingService) ModelName() string {
	return s.model
}

// Ping lists models, which validates the key without spending tokens.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	if _, err := s.client.ListModels(ctx); err != nil {
		return provider.OpenAIError(err)
	}
	return nil
}

// Close releases resources.
func (s *EmbeddingService) Close() error {
	return nil
}
