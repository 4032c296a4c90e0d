package minio

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/notification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(Config{
		Endpoint:  "localhost:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Region:    "us-east-1",
	})
	require.NoError(t, err)
	return s
}

func TestNewStore_RequiresEndpoint(t *testing.T) {
	_, err := NewStore(Config{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestPresignGet_SignsOffline(t *testing.T) {
	s := newTestStore(t)

	raw, err := s.PresignGet(context.Background(), domain.Object{Bucket: "indexed", Key: "indexed/a.pdf"}, 15*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/indexed/indexed/a.pdf", u.Path)
	assert.Equal(t, "900", u.Query().Get("X-Amz-Expires"))
}

func TestPresignPut_SignsContentType(t *testing.T) {
	s := newTestStore(t)

	raw, err := s.PresignPut(context.Background(), domain.Object{Bucket: "intake", Key: "uploads/x.pdf"}, "application/pdf", time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Contains(t, u.Query().Get("X-Amz-SignedHeaders"), "content-type")
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"missing key", minio.ErrorResponse{Code: "NoSuchKey"}, domain.ErrNotFound},
		{"missing bucket", minio.ErrorResponse{Code: "NoSuchBucket"}, domain.ErrNotFound},
		{"denied", minio.ErrorResponse{Code: "AccessDenied"}, domain.ErrUpstream},
		{"deadline", context.DeadlineExceeded, domain.ErrTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapError(tt.err), tt.want)
		})
	}

	assert.NoError(t, mapError(nil))
	assert.ErrorIs(t, mapError(context.DeadlineExceeded), domain.ErrUpstream)

	other := errors.New("boom")
	assert.Equal(t, other, mapError(other))
}

func TestToEvents(t *testing.T) {
	var rec notification.Event
	rec.S3.Bucket.Name = "intake"
	rec.S3.Object.Key = "uploads/abc-my+file.pdf"
	rec.S3.Object.Size = 42
	rec.S3.Object.ETag = "etag"

	var empty notification.Event

	events := toEvents(notification.Info{Records: []notification.Event{rec, empty}})
	require.Len(t, events, 1)
	assert.Equal(t, domain.StorageEvent{Bucket: "intake", Key: "uploads/abc-my+file.pdf", Size: 42, ETag: "etag"}, events[0])
}

func TestForward_StopsWhenSourceCloses(t *testing.T) {
	var rec notification.Event
	rec.S3.Bucket.Name = "indexed"
	rec.S3.Object.Key = "indexed/a.pdf"

	infos := make(chan notification.Info, 2)
	infos <- notification.Info{Err: errors.New("transient")}
	infos <- notification.Info{Records: []notification.Event{rec}}
	close(infos)

	out := make(chan domain.StorageEvent, 4)
	forward(context.Background(), "indexed", infos, out)

	require.Len(t, out, 1)
	assert.Equal(t, "indexed/a.pdf", (<-out).Key)
}

func TestListen_RequiresBuckets(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Listen(context.Background())
	assert.ErrorIs(t, err, domain.ErrValidation)
}
