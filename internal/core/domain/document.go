package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DocumentStatus is the ingestion lifecycle state of a document.
type DocumentStatus string

// Lifecycle states. UPLOADED is implicit: the object exists in the intake
// bucket but no Document row has been created yet.
const (
	StatusUploaded   DocumentStatus = "UPLOADED"
	StatusExtracted  DocumentStatus = "EXTRACTED"
	StatusChunked    DocumentStatus = "CHUNKED"
	StatusIndexed    DocumentStatus = "INDEXED"
	StatusVectorized DocumentStatus = "VECTORIZED"
	StatusFailed     DocumentStatus = "FAILED"
)

// Valid reports whether s is a known status.
func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusUploaded, StatusExtracted, StatusChunked, StatusIndexed, StatusVectorized, StatusFailed:
		return true
	}
	return false
}

// HasChunks reports whether documents in this status have persisted chunks.
func (s DocumentStatus) HasChunks() bool {
	return s == StatusChunked || s == StatusIndexed || s == StatusVectorized
}

// Stage names the pipeline step that produced a failure.
type Stage string

// Pipeline stages.
const (
	StageExtraction    Stage = "extraction"
	StageChunking      Stage = "chunking"
	StageIndexing      Stage = "indexing"
	StageVectorization Stage = "vectorization"
)

// DocumentTypePDF is the only document type accepted for upload.
const DocumentTypePDF = "PDF"

// Failure records why a document entered the FAILED state.
type Failure struct {
	// Stage is the step that failed.
	Stage Stage `json:"stage"`

	// Reason is the error message.
	Reason string `json:"reason"`

	// At is when the failure was recorded.
	At time.Time `json:"at"`
}

// Document is an ingested file. It is created on extraction and its status
// is only mutated by the ingestion orchestrator.
type Document struct {
	// UUID is the immutable identifier.
	UUID string `json:"document_uuid"`

	// Name is the original file name.
	Name string `json:"document_name"`

	// Location is where the indexed copy lives (s3://bucket/key).
	Location string `json:"document_location"`

	// SourceLocation is the intake object that produced the document.
	SourceLocation string `json:"source_location,omitempty"`

	// Hash is the md5 of the raw object bytes, unique per document.
	Hash string `json:"document_hash"`

	// Type is the document format, e.g. PDF.
	Type string `json:"document_type"`

	// Status is the lifecycle state.
	Status DocumentStatus `json:"document_status"`

	// Failure is set while Status is FAILED.
	Failure *Failure `json:"failure,omitempty"`

	// Tags is a sorted set of labels.
	Tags []string `json:"tags"`

	// CreatedBy is the subject that uploaded the file, when known.
	CreatedBy string `json:"created_by,omitempty"`

	// CreatedAt is the document creation date used by date-window filters.
	CreatedAt time.Time `json:"creation_date"`

	// UpdatedAt is the last mutation time.
	UpdatedAt time.Time `json:"updated_date"`
}

// Relocation points a reclaimed document at the upload that retries it.
type Relocation struct {
	Name           string
	Location       string
	SourceLocation string
	Type           string
}

// HasTag reports whether the document carries tag.
func (d *Document) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Object addresses a blob in a bucket.
type Object struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// String renders the object as an s3:// location.
func (o Object) String() string {
	return "s3://" + o.Bucket + "/" + o.Key
}

// ParseLocation parses an s3://bucket/key location.
func ParseLocation(loc string) (Object, error) {
	rest, ok := strings.CutPrefix(loc, "s3://")
	if !ok {
		return Object{}, fmt.Errorf("%w: location %q must start with s3://", ErrValidation, loc)
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return Object{}, fmt.Errorf("%w: location %q must be s3://bucket/key", ErrValidation, loc)
	}
	return Object{Bucket: bucket, Key: key}, nil
}

// NormaliseTags trims, drops blanks, de-duplicates and sorts tags.
func NormaliseTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
