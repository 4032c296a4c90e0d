// Package minio implements the blob store and its event source on an
// S3-compatible server through minio-go.
package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/notification"

	"github.com/custodia-labs/docpipe/internal/core/domain"
	"github.com/custodia-labs/docpipe/internal/core/ports/driven"
	"github.com/custodia-labs/docpipe/internal/logger"
)

// Ensure Store implements the interfaces.
var (
	_ driven.BlobStore       = (*Store)(nil)
	_ driven.BlobEventSource = (*Store)(nil)
)

// createdEvents are the notification types the event source subscribes to.
var createdEvents = []string{string(notification.ObjectCreatedAll)}

// Config holds connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

// Store talks to one S3-compatible endpoint.
type Store struct {
	client *minio.Client
}

// NewStore creates a client. No request is made until first use.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("%w: blob endpoint is required", domain.ErrValidation)
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}
	return &Store{client: client}, nil
}

// EnsureBuckets creates any missing bucket.
func (s *Store) EnsureBuckets(ctx context.Context, buckets ...string) error {
	for _, b := range buckets {
		ok, err := s.client.BucketExists(ctx, b)
		if err != nil {
			return fmt.Errorf("checking bucket %s: %w", b, mapError(err))
		}
		if ok {
			continue
		}
		if err := s.client.MakeBucket(ctx, b, minio.MakeBucketOptions{}); err != nil {
			if minio.ToErrorResponse(err).Code == "BucketAlreadyOwnedByYou" {
				continue
			}
			return fmt.Errorf("creating bucket %s: %w", b, mapError(err))
		}
		logger.Info("created bucket %s", b)
	}
	return nil
}

// PresignPut signs a PUT that must carry the given content type.
func (s *Store) PresignPut(ctx context.Context, obj domain.Object, contentType string, ttl time.Duration) (string, error) {
	var headers http.Header
	if contentType != "" {
		headers = http.Header{"Content-Type": []string{contentType}}
	}
	u, err := s.client.PresignHeader(ctx, http.MethodPut, obj.Bucket, obj.Key, ttl, url.Values{}, headers)
	if err != nil {
		return "", fmt.Errorf("presigning put %s: %w", obj, mapError(err))
	}
	return u.String(), nil
}

// PresignGet signs a GET.
func (s *Store) PresignGet(ctx context.Context, obj domain.Object, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, obj.Bucket, obj.Key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presigning get %s: %w", obj, mapError(err))
	}
	return u.String(), nil
}

// Stat returns object info.
func (s *Store) Stat(ctx context.Context, obj domain.Object) (driven.ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, obj.Bucket, obj.Key, minio.StatObjectOptions{})
	if err != nil {
		return driven.ObjectInfo{}, fmt.Errorf("object %s: %w", obj, mapError(err))
	}
	return toInfo(obj, info), nil
}

// Get reads the whole object.
func (s *Store) Get(ctx context.Context, obj domain.Object) ([]byte, driven.ObjectInfo, error) {
	o, err := s.client.GetObject(ctx, obj.Bucket, obj.Key, minio.GetObjectOptions{})
	if err != nil {
		return nil, driven.ObjectInfo{}, fmt.Errorf("object %s: %w", obj, mapError(err))
	}
	defer o.Close()

	// GetObject is lazy; a missing key surfaces on Stat or the first read.
	info, err := o.Stat()
	if err != nil {
		return nil, driven.ObjectInfo{}, fmt.Errorf("object %s: %w", obj, mapError(err))
	}
	data, err := io.ReadAll(o)
	if err != nil {
		return nil, driven.ObjectInfo{}, fmt.Errorf("reading %s: %w", obj, mapError(err))
	}
	return data, toInfo(obj, info), nil
}

// Put writes the object.
func (s *Store) Put(ctx context.Context, obj domain.Object, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, obj.Bucket, obj.Key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("writing %s: %w", obj, mapError(err))
	}
	return nil
}

// Copy performs a server-side copy.
func (s *Store) Copy(ctx context.Context, src, dst domain.Object) error {
	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: dst.Bucket, Object: dst.Key},
		minio.CopySrcOptions{Bucket: src.Bucket, Object: src.Key})
	if err != nil {
		return fmt.Errorf("copying %s to %s: %w", src, dst, mapError(err))
	}
	return nil
}

// Delete removes the object. S3 treats deleting a missing key as success.
func (s *Store) Delete(ctx context.Context, obj domain.Object) error {
	if err := s.client.RemoveObject(ctx, obj.Bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
		err = mapError(err)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("deleting %s: %w", obj, err)
	}
	return nil
}

// Listen subscribes to object-created notifications on every bucket and
// merges them into one channel. Notification errors are logged and the
// subscription continues.
func (s *Store) Listen(ctx context.Context, buckets ...string) (<-chan domain.StorageEvent, error) {
	if len(buckets) == 0 {
		return nil, fmt.Errorf("%w: at least one bucket is required", domain.ErrValidation)
	}

	out := make(chan domain.StorageEvent, 64)
	var wg sync.WaitGroup
	for _, b := range buckets {
		infos := s.client.ListenBucketNotification(ctx, b, "", "", createdEvents)
		wg.Add(1)
		go func(bucket string) {
			defer wg.Done()
			forward(ctx, bucket, infos, out)
		}(b)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out, nil
}

func forward(ctx context.Context, bucket string, infos <-chan notification.Info, out chan<- domain.StorageEvent) {
	for info := range infos {
		if info.Err != nil {
			logger.Warn("bucket %s notification: %v", bucket, info.Err)
			continue
		}
		for _, ev := range toEvents(info) {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// toEvents converts notification records. Keys stay URL-encoded as S3
// delivers them; the orchestrator decodes them.
func toEvents(info notification.Info) []domain.StorageEvent {
	events := make([]domain.StorageEvent, 0, len(info.Records))
	for _, r := range info.Records {
		if r.S3.Bucket.Name == "" || r.S3.Object.Key == "" {
			continue
		}
		events = append(events, domain.StorageEvent{
			Bucket: r.S3.Bucket.Name,
			Key:    r.S3.Object.Key,
			Size:   r.S3.Object.Size,
			ETag:   r.S3.Object.ETag,
		})
	}
	return events
}

func toInfo(obj domain.Object, info minio.ObjectInfo) driven.ObjectInfo {
	return driven.ObjectInfo{
		Bucket:       obj.Bucket,
		Key:          obj.Key,
		Size:         info.Size,
		ContentType:  info.ContentType,
		ETag:         info.ETag,
		LastModified: info.LastModified,
	}
}

// mapError translates S3 error codes into domain errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w: %v", domain.ErrTimeout, domain.ErrUpstream, err)
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	return err
}
