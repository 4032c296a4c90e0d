package services

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/custodia-labs/docpipe/internal/core/domain"
	"github.com/custodia-labs/docpipe/internal/core/ports/driven"
	"github.com/custodia-labs/docpipe/internal/core/ports/driving"
	"github.com/custodia-labs/docpipe/internal/logger"
)

// Ensure BlobService implements the interface.
var _ driving.BlobGateway = (*BlobService)(nil)

// Presign expiration bounds in seconds.
const (
	DefaultExpirationSeconds = 900
	MaxExpirationSeconds     = 604800
)

// AllowedUploadTypes is the content-type allow-list for uploads.
var AllowedUploadTypes = []string{"application/pdf"}

// BlobConfig names the buckets and prefixes the gateway works with.
type BlobConfig struct {
	IntakeBucket      string
	IndexedBucket     string
	SourcePrefix      string
	DestinationPrefix string

	// Timeout bounds every storage call.
	Timeout time.Duration

	// CopyAttempts and CopyDelay control the indexed-bucket copy retry.
	CopyAttempts int
	CopyDelay    time.Duration
}

func (c BlobConfig) withDefaults() BlobConfig {
	if c.SourcePrefix == "" {
		c.SourcePrefix = "uploads/"
	}
	if c.DestinationPrefix == "" {
		c.DestinationPrefix = "indexed/"
	}
	if c.CopyAttempts <= 0 {
		c.CopyAttempts = 3
	}
	if c.CopyDelay <= 0 {
		c.CopyDelay = time.Second
	}
	return c
}

// BlobService issues presigned URLs and moves objects between buckets.
type BlobService struct {
	blob driven.BlobStore
	docs driven.DocumentStore
	cfg  BlobConfig
}

// NewBlobService creates a blob gateway.
func NewBlobService(blob driven.BlobStore, docs driven.DocumentStore, cfg BlobConfig) *BlobService {
	return &BlobService{blob: blob, docs: docs, cfg: cfg.withDefaults()}
}

// Config returns the effective configuration.
func (s *BlobService) Config() BlobConfig { return s.cfg }

// IssueUploadURL presigns a PUT of a new intake object.
func (s *BlobService) IssueUploadURL(ctx context.Context, req domain.UploadRequest) (*domain.UploadTicket, error) {
	if err := checkContentType(req.ContentType); err != nil {
		return nil, err
	}
	name, err := EncodeFileName(req.FileName)
	if err != nil {
		return nil, err
	}
	expiration, err := expirationSeconds(req.ExpirationSeconds)
	if err != nil {
		return nil, err
	}

	obj := domain.Object{
		Bucket: s.cfg.IntakeBucket,
		Key:    s.cfg.SourcePrefix + uuid.New().String() + "-" + name,
	}

	ctx, cancel := withTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	u, err := s.blob.PresignPut(ctx, obj, AllowedUploadTypes[0], time.Duration(expiration)*time.Second)
	if err != nil {
		return nil, upstream("presign upload", err)
	}
	logger.Debug("Issued upload URL for %s (expires in %ds)", obj, expiration)

	return &domain.UploadTicket{
		PresignedURL: u,
		FileName:     name,
		Expiration:   expiration,
		Bucket:       obj.Bucket,
		Key:          obj.Key,
	}, nil
}

// IssueDownloadURL presigns a GET of a document's indexed object.
func (s *BlobService) IssueDownloadURL(ctx context.Context, documentUUID string, expirationSecs int) (*domain.DownloadTicket, error) {
	if strings.TrimSpace(documentUUID) == "" {
		return nil, fmt.Errorf("%w: document_uuid is required", domain.ErrValidation)
	}
	expiration, err := expirationSeconds(expirationSecs)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	doc, err := s.docs.GetDocument(ctx, documentUUID)
	if err != nil {
		return nil, upstream("get document", err)
	}
	obj, err := domain.ParseLocation(doc.Location)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", documentUUID, err)
	}
	if _, err := s.blob.Stat(ctx, obj); err != nil {
		return nil, upstream("stat "+obj.String(), err)
	}
	u, err := s.blob.PresignGet(ctx, obj, time.Duration(expiration)*time.Second)
	if err != nil {
		return nil, upstream("presign download", err)
	}

	return &domain.DownloadTicket{
		PresignedURL: u,
		DocumentName: doc.Name,
		Expiration:   expiration,
	}, nil
}

// IndexedObject maps an intake object to its indexed destination.
func (s *BlobService) IndexedObject(src domain.Object) domain.Object {
	key := strings.TrimPrefix(src.Key, s.cfg.SourcePrefix)
	return domain.Object{Bucket: s.cfg.IndexedBucket, Key: s.cfg.DestinationPrefix + key}
}

// MoveToIndexed copies src into the indexed bucket with retries, then
// deletes src. A failed delete is only logged.
func (s *BlobService) MoveToIndexed(ctx context.Context, src domain.Object) (domain.Object, error) {
	dst := s.IndexedObject(src)

	var err error
	for attempt := 1; attempt <= s.cfg.CopyAttempts; attempt++ {
		if err = s.copyOnce(ctx, src, dst); err == nil {
			break
		}
		logger.Warn("copy %s -> %s failed (attempt %d/%d): %v", src, dst, attempt, s.cfg.CopyAttempts, err)
		if attempt == s.cfg.CopyAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return domain.Object{}, upstream("copy "+src.String(), ctx.Err())
		case <-time.After(s.cfg.CopyDelay):
		}
	}
	if err != nil {
		return domain.Object{}, upstream("copy "+src.String(), err)
	}

	dctx, cancel := withTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	if err := s.blob.Delete(dctx, src); err != nil {
		logger.Warn("delete %s after copy: %v", src, err)
	}
	return dst, nil
}

func (s *BlobService) copyOnce(ctx context.Context, src, dst domain.Object) error {
	ctx, cancel := withTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	return s.blob.Copy(ctx, src, dst)
}

// EncodeFileName strips all whitespace from name and escapes it as a
// query component.
func EncodeFileName(name string) (string, error) {
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, name)
	if stripped == "" {
		return "", fmt.Errorf("%w: file_name is required", domain.ErrValidation)
	}
	return url.QueryEscape(stripped), nil
}

// DecodeFileName recovers the original file name from an upload key of the
// form {prefix}{uuid}-{escaped name}.
func DecodeFileName(key string) string {
	base := path.Base(key)
	if len(base) > 37 && base[36] == '-' {
		if _, err := uuid.Parse(base[:36]); err == nil {
			base = base[37:]
		}
	}
	if name, err := url.QueryUnescape(base); err == nil {
		return name
	}
	return base
}

func checkContentType(ct string) error {
	if strings.TrimSpace(ct) == "" {
		return fmt.Errorf("%w: content_type is required", domain.ErrValidation)
	}
	media, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return fmt.Errorf("%w: content_type %q: %v", domain.ErrValidation, ct, err)
	}
	for _, allowed := range AllowedUploadTypes {
		if strings.EqualFold(media, allowed) {
			return nil
		}
	}
	return fmt.Errorf("%w: content_type %q is not allowed (want %s)",
		domain.ErrValidation, ct, strings.Join(AllowedUploadTypes, ", "))
}

func expirationSeconds(n int) (int, error) {
	if n == 0 {
		return DefaultExpirationSeconds, nil
	}
	if n < 1 || n > MaxExpirationSeconds {
		return 0, fmt.Errorf("%w: expiration must be between 1 and %d seconds, got %d",
			domain.ErrValidation, MaxExpirationSeconds, n)
	}
	return n, nil
}
