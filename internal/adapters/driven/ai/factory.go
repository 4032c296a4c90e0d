// Package ai builds the embedding and LLM adapters named in the configuration.
package ai

import (
	"context"
	"fmt"
	"time"

	ollamaembed "github.com/custodia-labs/docpipe/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/docpipe/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/docpipe/internal/adapters/driven/embedding/rediscache"
	"github.com/custodia-labs/docpipe/internal/adapters/driven/config/file"
	anthropicllm "github.com/custodia-labs/docpipe/internal/adapters/driven/llm/anthropic"
	ollamallm "github.com/custodia-labs/docpipe/internal/adapters/driven/llm/ollama"
	openaillm "github.com/custodia-labs/docpipe/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/docpipe/internal/core/domain"
	"github.com/custodia-labs/docpipe/internal/core/ports/driven"
	"github.com/custodia-labs/docpipe/internal/logger"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// Services holds the model adapters for one process.
type Services struct {
	Embedding driven.EmbeddingService
	LLM       driven.LLMService
}

// Close releases both services.
func (s *Services) Close() {
	if s.Embedding != nil {
		_ = s.Embedding.Close()
	}
	if s.LLM != nil {
		_ = s.LLM.Close()
	}
}

// New builds both services from cfg.
func New(cfg *file.Config) (*Services, error) {
	emb, err := CreateEmbeddingService(cfg.Embedding)
	if err != nil {
		return nil, err
	}
	llm, err := CreateLLMService(cfg.LLM)
	if err != nil {
		_ = emb.Close()
		return nil, err
	}
	return &Services{Embedding: emb, LLM: llm}, nil
}

// CreateEmbeddingService creates the configured embedding service, wrapped
// in the Redis cache when an address is set.
func CreateEmbeddingService(cfg file.EmbeddingConfig) (driven.EmbeddingService, error) {
	var svc driven.EmbeddingService
	switch cfg.Provider {
	case file.ProviderOllama:
		svc = ollamaembed.NewEmbeddingService(ollamaembed.Config{
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Timeout:    cfg.Timeout.D(),
			Dimensions: cfg.Dimensions,
		})

	case file.ProviderOpenAI:
		oa, err := openaiembed.NewEmbeddingService(openaiembed.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Timeout:    cfg.Timeout.D(),
			Dimensions: cfg.Dimensions,
		})
		if err != nil {
			return nil, err
		}
		svc = oa

	case file.ProviderAnthropic:
		return nil, fmt.Errorf("%w: anthropic does not support embeddings, use ollama or openai", domain.ErrValidation)

	default:
		return nil, fmt.Errorf("%w: unsupported embedding provider: %s", domain.ErrValidation, cfg.Provider)
	}

	if cfg.RedisAddr != "" {
		logger.Debug("embedding cache enabled at %s", cfg.RedisAddr)
		svc = rediscache.New(svc, rediscache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			TTL:      cfg.CacheTTL.D(),
		})
	}
	return svc, nil
}

// CreateLLMService creates the configured LLM service.
func CreateLLMService(cfg file.LLMConfig) (driven.LLMService, error) {
	switch cfg.Provider {
	case file.ProviderOllama:
		return ollamallm.NewLLMService(ollamallm.LLMConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout.D(),
		}), nil

	case file.ProviderOpenAI:
		return openaillm.NewLLMService(openaillm.LLMConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout.D(),
		})

	case file.ProviderAnthropic:
		return anthropicllm.NewLLMService(anthropicllm.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout.D(),
		})

	default:
		return nil, fmt.Errorf("%w: unsupported LLM provider: %s", domain.ErrValidation, cfg.Provider)
	}
}

// Ping checks both services, bounding each check by pingTimeout.
func (s *Services) Ping(ctx context.Context) error {
	if err := ping(ctx, "embedding", s.Embedding); err != nil {
		return err
	}
	return ping(ctx, "llm", s.LLM)
}
