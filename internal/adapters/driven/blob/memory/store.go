// Package memory provides an in-memory blob store. Presigned URLs point at
// a fake host and cannot be fetched; they exist so callers can be exercised
// without object storage.
package memory

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/custodia-labs/docpipe/internal/core/domain"
	"github.com/custodia-labs/docpipe/internal/core/ports/driven"
	"github.com/custodia-labs/docpipe/internal/logger"
)

// listenerBuffer is the number of events a slow listener may fall behind.
const listenerBuffer = 64

// Ensure Store implements the interfaces.
var (
	_ driven.BlobStore       = (*Store)(nil)
	_ driven.BlobEventSource = (*Store)(nil)
)

type object struct {
	data        []byte
	contentType string
	etag        string
	modified    time.Time
}

type listener struct {
	buckets map[string]struct{}
	ch      chan domain.StorageEvent
}

// Store keeps objects in a map and emits an event on every Put or Copy.
type Store struct {
	mu        sync.RWMutex
	objects   map[domain.Object]object
	listeners map[*listener]struct{}
	now       func() time.Time
	dropped   atomic.Int64

	// CopyHook, when set, runs before each Copy and can inject failures.
	CopyHook func(src, dst domain.Object) error
}

// NewStore creates an empty blob store.
func NewStore() *Store {
	return &Store{
		objects:   make(map[domain.Object]object),
		listeners: make(map[*listener]struct{}),
		now:       time.Now,
	}
}

// PresignPut returns a fake presigned PUT URL.
func (s *Store) PresignPut(_ context.Context, obj domain.Object, contentType string, ttl time.Duration) (string, error) {
	return presign("PUT", obj, contentType, ttl), nil
}

// PresignGet returns a fake presigned GET URL.
func (s *Store) PresignGet(_ context.Context, obj domain.Object, ttl time.Duration) (string, error) {
	return presign("GET", obj, "", ttl), nil
}

func presign(method string, obj domain.Object, contentType string, ttl time.Duration) string {
	q := url.Values{}
	q.Set("X-Method", method)
	q.Set("X-Expires", strconv.Itoa(int(ttl.Seconds())))
	if contentType != "" {
		q.Set("Content-Type", contentType)
	}
	// Keys are already escaped by the gateway.
	return "memory://" + obj.Bucket + "/" + obj.Key + "?" + q.Encode()
}

// Stat returns object info.
func (s *Store) Stat(_ context.Context, obj domain.Object) (driven.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.objects[obj]
	if !ok {
		return driven.ObjectInfo{}, fmt.Errorf("object %s: %w", obj, domain.ErrNotFound)
	}
	return info(obj, o), nil
}

// Get returns a copy of the object content.
func (s *Store) Get(_ context.Context, obj domain.Object) ([]byte, driven.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.objects[obj]
	if !ok {
		return nil, driven.ObjectInfo{}, fmt.Errorf("object %s: %w", obj, domain.ErrNotFound)
	}
	return append([]byte(nil), o.data...), info(obj, o), nil
}

// Put stores the object and notifies listeners.
func (s *Store) Put(_ context.Context, obj domain.Object, data []byte, contentType string) error {
	sum := md5.Sum(data)
	o := object{
		data:        append([]byte(nil), data...),
		contentType: contentType,
		etag:        hex.EncodeToString(sum[:]),
		modified:    s.now().UTC(),
	}

	s.mu.Lock()
	s.objects[obj] = o
	s.mu.Unlock()

	s.notify(obj, o)
	return nil
}

// Copy duplicates src to dst and notifies listeners.
func (s *Store) Copy(_ context.Context, src, dst domain.Object) error {
	if s.CopyHook != nil {
		if err := s.CopyHook(src, dst); err != nil {
			return err
		}
	}

	s.mu.Lock()
	o, ok := s.objects[src]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("object %s: %w", src, domain.ErrNotFound)
	}
	o.modified = s.now().UTC()
	s.objects[dst] = o
	s.mu.Unlock()

	s.notify(dst, o)
	return nil
}

// Delete removes the object.
func (s *Store) Delete(_ context.Context, obj domain.Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, obj)
	return nil
}

// Has reports whether the object exists.
func (s *Store) Has(obj domain.Object) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[obj]
	return ok
}

// Listen streams object-created events for the given buckets until ctx is done.
// Events are dropped when the listener's buffer is full.
func (s *Store) Listen(ctx context.Context, buckets ...string) (<-chan domain.StorageEvent, error) {
	l := &listener{
		buckets: make(map[string]struct{}, len(buckets)),
		ch:      make(chan domain.StorageEvent, listenerBuffer),
	}
	for _, b := range buckets {
		l.buckets[b] = struct{}{}
	}

	s.mu.Lock()
	s.listeners[l] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.listeners, l)
		close(l.ch)
		s.mu.Unlock()
	}()
	return l.ch, nil
}

func (s *Store) notify(obj domain.Object, o object) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev := domain.StorageEvent{
		Bucket: obj.Bucket,
		Key:    obj.Key,
		Size:   int64(len(o.data)),
		ETag:   o.etag,
	}
	for l := range s.listeners {
		if _, ok := l.buckets[obj.Bucket]; !ok {
			continue
		}
		select {
		case l.ch <- ev:
		default:
			s.dropped.Add(1)
			logger.Warn("blob: listener buffer full, dropped event for %s", obj)
		}
	}
}

// Dropped counts events lost to full listener buffers.
func (s *Store) Dropped() int64 {
	return s.dropped.Load()
}

func info(obj domain.Object, o object) driven.ObjectInfo {
	return driven.ObjectInfo{
		Bucket:       obj.Bucket,
		Key:          obj.Key,
		Size:         int64(len(o.data)),
		ContentType:  o.contentType,
		ETag:         o.etag,
		LastModified: o.modified,
	}
}
