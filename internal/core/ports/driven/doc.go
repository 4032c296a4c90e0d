// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Interfaces
//
//   - DocumentStore, ChunkStore, VectorIndex, MetadataStore, SynonymStore,
//     RecurrentQueryStore: persistence (memory, sqlite, postgres)
//   - BlobStore, BlobEventSource: object storage (memory, minio)
//   - TextExtractor: raw bytes to text (pdf, plaintext)
//   - EmbeddingService, LLMService, PromptStore: model providers
//   - EventPublisher: operator-visible pipeline events
//   - RateLimiter: provider call throttling
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
