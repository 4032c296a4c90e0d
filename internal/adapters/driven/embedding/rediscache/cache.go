// Package rediscache decorates an embedding service with a Redis cache.
// Entries are keyed by sha256 of the model name and the text, so a model
// change never serves stale vectors.
package rediscache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/docpipe/internal/core/ports/driven"
	"github.com/custodia-labs/docpipe/internal/logger"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// DefaultTTL is used when Config.TTL is zero.
const DefaultTTL = 7 * 24 * time.Hour

const keyPrefix = "docpipe:emb:"

// Client is the subset of *redis.Client the cache uses.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// EmbeddingService serves cached vectors and fills the cache on miss.
// Redis failures are logged and fall through to the wrapped service.
type EmbeddingService struct {
	next   driven.EmbeddingService
	client Client
	ttl    time.Duration
}

type entry struct {
	Vector []float32 `json:"v"`
	Tokens int       `json:"t"`
}

// New connects to Redis and wraps next.
func New(next driven.EmbeddingService, cfg Config) *EmbeddingService {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewWithClient(next, client, cfg.TTL)
}

// NewWithClient wraps next with an existing client.
func NewWithClient(next driven.EmbeddingService, client Client, ttl time.Duration) *EmbeddingService {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &EmbeddingService{next: next, client: client, ttl: ttl}
}

// Key returns the cache key for text under model.
func Key(model, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Embed returns the cached embedding or computes and stores it.
func (s *EmbeddingService) Embed(ctx context.Context, text string) (driven.Embedding, error) {
	key := Key(s.next.ModelName(), text)
	if e, ok := s.lookup(ctx, key); ok {
		return e, nil
	}

	e, err := s.next.Embed(ctx, text)
	if err != nil {
		return driven.Embedding{}, err
	}
	s.store(ctx, key, e)
	return e, nil
}

// EmbedBatch serves hits from the cache and sends only misses upstream.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([]driven.Embedding, error) {
	out := make([]driven.Embedding, len(texts))
	keys := make([]string, len(texts))
	var missing []int
	for i, t := range texts {
		keys[i] = Key(s.next.ModelName(), t)
		if e, ok := s.lookup(ctx, keys[i]); ok {
			out[i] = e
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	pending := make([]string, len(missing))
	for j, i := range missing {
		pending[j] = texts[i]
	}
	fresh, err := s.next.EmbedBatch(ctx, pending)
	if err != nil {
		return nil, err
	}
	for j, i := range missing {
		out[i] = fresh[j]
		s.store(ctx, keys[i], fresh[j])
	}
	return out, nil
}

func (s *EmbeddingService) lookup(ctx context.Context, key string) (driven.Embedding, bool) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("embedding cache get: %v", err)
		}
		return driven.Embedding{}, false
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil || len(e.Vector) == 0 {
		logger.Warn("embedding cache: dropping corrupt entry %s", key)
		return driven.Embedding{}, false
	}
	return driven.Embedding{Vector: e.Vector, Tokens: e.Tokens}, true
}

func (s *EmbeddingService) store(ctx context.Context, key string, e driven.Embedding) {
	raw, err := json.Marshal(entry{Vector: e.Vector, Tokens: e.Tokens})
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		logger.Warn("embedding cache set: %v", err)
	}
}

// Dimensions returns the wrapped service's vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.next.Dimensions()
}

// ModelName returns the wrapped service's model.
func (s *EmbeddingService) ModelName() string {
	return s.next.ModelName()
}

// Ping checks Redis and the wrapped service.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return s.next.Ping(ctx)
}

// Close closes both the client and the wrapped service.
func (s *EmbeddingService) Close() error {
	return errors.Join(s.client.Close(), s.next.Close())
}
