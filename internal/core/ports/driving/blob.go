package driving

import (
	"context"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

// BlobGateway issues presigned URLs for document upload and download.
type BlobGateway interface {
	// IssueUploadURL validates the request and presigns a PUT into the intake bucket.
	IssueUploadURL(ctx context.Context, req domain.UploadRequest) (*domain.UploadTicket, error)

	// IssueDownloadURL presigns a GET for a document's stored object.
	IssueDownloadURL(ctx context.Context, documentUUID string, expirationSeconds int) (*domain.DownloadTicket, error)
}
