package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Bucket       string
	Key          string
	Size         int64
	ContentType  string
	ETag         string
	LastModified time.Time
}

// BlobStore wraps object storage with two logical buckets: raw intake and
// indexed. Missing objects return domain.ErrNotFound.
type BlobStore interface {
	// PresignPut returns a URL a client can PUT the object to.
	PresignPut(ctx context.Context, obj domain.Object, contentType string, ttl time.Duration) (string, error)

	// PresignGet returns a URL a client can GET the object from.
	PresignGet(ctx context.Context, obj domain.Object, ttl time.Duration) (string, error)

	// Stat returns object info without reading the content.
	Stat(ctx context.Context, obj domain.Object) (ObjectInfo, error)

	// Get reads the whole object.
	Get(ctx context.Context, obj domain.Object) ([]byte, ObjectInfo, error)

	// Put writes the object.
	Put(ctx context.Context, obj domain.Object, data []byte, contentType string) error

	// Copy duplicates src to dst.
	Copy(ctx context.Context, src, dst domain.Object) error

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, obj domain.Object) error
}

// BlobEventSource streams object-created notifications for buckets.
// The channel closes when ctx is cancelled.
type BlobEventSource interface {
	Listen(ctx context.Context, buckets ...string) (<-chan domain.StorageEvent, error)
}
