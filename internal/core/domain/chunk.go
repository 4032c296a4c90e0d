package domain

import "time"

// UnknownTokenCount is recorded when the embedding provider reports no usage.
const UnknownTokenCount = -1

// Chunk is a retrievable segment of a document. Its vector is populated by
// the vectorizer after the chunk is persisted.
type Chunk struct {
	// UUID is the chunk identifier.
	UUID string `json:"document_chunk_uuid"`

	// DocumentUUID links to the owning document.
	DocumentUUID string `json:"document_uuid"`

	// Position is the ordinal within the document, starting at 0.
	Position int `json:"position"`

	// Text is the segment content.
	Text string `json:"embebed_text"`

	// Hash is the md5 of Text.
	Hash string `json:"chunk_hash"`

	// Length is the rune count of Text.
	Length int `json:"chunk_length"`

	// Overlap is the number of leading runes shared with the previous chunk.
	Overlap int `json:"chunk_overlap"`

	// Start and End are rune offsets into the extracted text.
	Start int `json:"start_offset"`
	End   int `json:"end_offset"`

	// CreatedAt orders chunks for stable ranking.
	CreatedAt time.Time `json:"created_at"`

	// Embedding is nil until the chunk is vectorized.
	Embedding *ChunkEmbedding `json:"embedding,omitempty"`
}

// Vectorized reports whether the chunk has a persisted vector.
func (c *Chunk) Vectorized() bool {
	return c.Embedding != nil && len(c.Embedding.Vector) > 0
}

// ChunkEmbedding is the vector and the stats recorded when it was produced.
type ChunkEmbedding struct {
	// UUID identifies the embedding record.
	UUID string `json:"document_embeding_uuid"`

	// EmbedderType is the model that produced the vector.
	EmbedderType string `json:"embeder_type"`

	// Tokens is the provider-reported token count, or UnknownTokenCount.
	Tokens int `json:"embedding_token"`

	// Seconds is how long the provider call took.
	Seconds float64 `json:"embedding_time"`

	// Vector is the embedding itself.
	Vector []float32 `json:"-"`

	// CreatedAt is when the vector was stored.
	CreatedAt time.Time `json:"embedded_at"`
}
