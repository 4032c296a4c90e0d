package domain

// Default and limit values for retrieval.
const (
	DefaultNumResults = 20
	MaxNumResults     = 100
)

// SearchRequest asks the retrieval engine for chunks ranked against a question.
type SearchRequest struct {
	// Question is embedded and compared with chunk vectors.
	Question string `json:"question"`

	// NumResults caps the result count; values <= 0 select the default.
	NumResults int `json:"num_results"`

	// Filters are decoded per filter_type and combined with AND.
	Filters []DocumentFilter `json:"document_filters"`

	// Tags restrict documents according to TagMatch.
	Tags []string `json:"tags"`

	// TagMatch overrides the configured tag semantics when set.
	TagMatch TagMatch `json:"tag_match,omitempty"`

	// DocumentUUID restricts the search to one document.
	DocumentUUID string `json:"document_uuid,omitempty"`

	// StartDate and EndDate bound the document creation date (YYYY-MM-DD).
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`

	// ExpandSynonyms rewrites the question before embedding.
	ExpandSynonyms bool `json:"expand_synonyms,omitempty"`
}

// RetrievedChunk is a ranked chunk joined with its document.
type RetrievedChunk struct {
	Chunk    Chunk           `json:"chunk"`
	Score    float64         `json:"score"`
	Document Document        `json:"document"`
	Metadata []MetadataEntry `json:"document_metadata"`
}

// SearchResult is the outcome of a retrieval request.
type SearchResult struct {
	// Question is the text that was embedded, after any expansion.
	Question string           `json:"question"`
	Chunks   []RetrievedChunk `json:"chunks"`
}

// DocumentListRequest filters the document listing.
type DocumentListRequest struct {
	Filters   []DocumentFilter `json:"document_filters"`
	Tags      []string         `json:"tags"`
	TagMatch  TagMatch         `json:"tag_match,omitempty"`
	StartDate string           `json:"start_date,omitempty"`
	EndDate   string           `json:"end_date,omitempty"`
}

// DocumentView is a document with its metadata entries.
type DocumentView struct {
	Document
	Metadata []MetadataEntry `json:"document_metadata"`
}

// AnswerChunk is one piece of context supplied to the answer synthesizer.
type AnswerChunk struct {
	DocumentName string          `json:"document_name"`
	Text         string          `json:"embebed_text"`
	Metadata     []MetadataEntry `json:"document_metadata"`
}

// AnswerRequest asks for an answer grounded in chunks.
type AnswerRequest struct {
	Question string        `json:"question"`
	Chunks   []AnswerChunk `json:"chunks"`
}

// TokenUsage reports LLM token consumption.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Answer is the synthesized response.
type Answer struct {
	Answer     string      `json:"answer"`
	Model      string      `json:"model,omitempty"`
	TokenUsage *TokenUsage `json:"token_usage"`
}

// UploadRequest asks for a presigned upload URL.
type UploadRequest struct {
	FileName          string `json:"file_name"`
	ContentType       string `json:"content_type"`
	ExpirationSeconds int    `json:"expiration,omitempty"`
}

// UploadTicket is a presigned upload target.
type UploadTicket struct {
	PresignedURL string `json:"presigned_url"`
	FileName     string `json:"file_name"`
	Expiration   int    `json:"expiration"`
	Bucket       string `json:"bucket"`
	Key          string `json:"key"`
}

// DownloadTicket is a presigned download link for a document.
type DownloadTicket struct {
	PresignedURL string `json:"presigned_url"`
	DocumentName string `json:"document_name"`
	Expiration   int    `json:"expiration"`
}
