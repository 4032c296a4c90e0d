package domain

import "time"

// StorageEvent is an object-created notification from the blob store.
type StorageEvent struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Size   int64  `json:"size,omitempty"`
	ETag   string `json:"etag,omitempty"`
}

// Object returns the addressed object.
func (e StorageEvent) Object() Object {
	return Object{Bucket: e.Bucket, Key: e.Key}
}

// Outcome summarises how an event handler finished.
type Outcome string

// Event handler outcomes.
const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeSkipped   Outcome = "skipped"
	OutcomePartial   Outcome = "partial"
	OutcomeFailed    Outcome = "failed"
)

// IngestResult is returned by the orchestrator for each event.
type IngestResult struct {
	DocumentUUID string         `json:"document_uuid,omitempty"`
	Status       DocumentStatus `json:"document_status,omitempty"`
	Outcome      Outcome        `json:"outcome"`
	Chunks       int            `json:"chunks"`
	Message      string         `json:"message,omitempty"`
}

// PipelineEvent is published on every transition and failure.
type PipelineEvent struct {
	DocumentUUID string         `json:"document_uuid,omitempty"`
	Object       Object         `json:"object"`
	Stage        Stage          `json:"stage,omitempty"`
	Status       DocumentStatus `json:"document_status"`
	Error        string         `json:"error,omitempty"`
	At           time.Time      `json:"at"`
}

// Failed reports whether the event describes a failure.
func (e PipelineEvent) Failed() bool {
	return e.Error != ""
}

// VectorizeReport counts the chunks handled by one vectorization run.
type VectorizeReport struct {
	DocumentUUID          string   `json:"document_uuid"`
	ProcessedChunks       int      `json:"processed_chunks"`
	SkippedChunks         int      `json:"skipped_chunks"`
	FailedChunks          int      `json:"failed_chunks"`
	TotalChunks           int      `json:"total_chunks"`
	ProcessingTimeSeconds float64  `json:"processing_time_seconds"`
	Errors                []string `json:"errors,omitempty"`
}

// Complete reports whether every non-empty chunk now has a vector.
func (r VectorizeReport) Complete() bool {
	return r.FailedChunks == 0
}

// ComputeStatus is the outcome of one (document, definition) computation.
type ComputeStatus string

// Compute outcomes.
const (
	ComputeOK       ComputeStatus = "computed"
	ComputeNotFound ComputeStatus = "not_found"
	ComputeFailed   ComputeStatus = "failed"
)

// ComputeOutcome reports one pair.
type ComputeOutcome struct {
	DocumentUUID string         `json:"document_uuid"`
	MetadataUUID string         `json:"metadata_uuid"`
	MetadataName string         `json:"metadata_name"`
	Status       ComputeStatus  `json:"status"`
	Value        *MetadataValue `json:"value,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// ComputeReport aggregates a compute batch.
type ComputeReport struct {
	Outcomes  []ComputeOutcome `json:"outcomes"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
}
