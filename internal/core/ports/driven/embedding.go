// Package driven provides interfaces for infrastructure adapters (secondary/outbound ports).
package driven

import "context"

// Embedding is a vector plus the provider-reported token count.
// Tokens is domain.UnknownTokenCount when the provider reports no usage.
type Embedding struct {
	Vector []float32
	Tokens int
}

// EmbeddingService generates vector embeddings from text.
//
// Implementations may include:
//   - OpenAI (text-embedding-3-small, text-embedding-3-large)
//   - Ollama (nomic-embed-text, all-minilm)
//   - A caching decorator in front of either
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) (Embedding, error)

	// EmbedBatch generates embeddings for multiple texts in one request where
	// the provider supports it. Results are in input order.
	EmbedBatch(ctx context.Context, texts []string) ([]Embedding, error)

	// Dimensions returns the embedding vector size (e.g., 768, 1536).
	Dimensions() int

	// ModelName returns the name of the embedding model being used.
	// It is recorded as the chunk's embedder type.
	ModelName() string

	// Ping validates the service is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
