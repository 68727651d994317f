package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/mohammad-safakhou/wsorch/internal/logging"
)

// Cache tiers reported to hooks.
const (
	TierMemory = "memory"
	TierRedis  = "redis"
)

// RedisKV is the subset of the redis client used by the shared cache tier.
type RedisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Hooks are optional cache telemetry callbacks.
type Hooks struct {
	Hit  func(tier string)
	Miss func()
}

// CachedProvider wraps a Provider with an in-process LRU and an optional
// shared redis tier. Keys are derived from the exact input text.
type CachedProvider struct {
	next   Provider
	lru    *expirable.LRU[string, []float32]
	redis  RedisKV
	prefix string
	ttl    time.Duration
	hooks  Hooks
	log    *logrus.Entry
}

// CacheOption configures a CachedProvider.
type CacheOption func(*CachedProvider)

// WithRedis enables the shared tier. Entries are written with the cache TTL.
func WithRedis(kv RedisKV, prefix string) CacheOption {
	return func(c *CachedProvider) {
		c.redis = kv
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// WithHooks sets cache telemetry callbacks.
func WithHooks(h Hooks) CacheOption {
	return func(c *CachedProvider) { c.hooks = h }
}

// WithCacheLogger sets the logger used for redis tier failures.
func WithCacheLogger(l *logrus.Entry) CacheOption {
	return func(c *CachedProvider) { c.log = l }
}

// NewCachedProvider caches up to size vectors for ttl.
func NewCachedProvider(next Provider, size int, ttl time.Duration, opts ...CacheOption) *CachedProvider {
	if size <= 0 {
		size = 1024
	}
	c := &CachedProvider{
		next:   next,
		lru:    expirable.NewLRU[string, []float32](size, nil, ttl),
		prefix: "embedding:",
		ttl:    ttl,
		log:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CachedProvider) Dimensions() int { return c.next.Dimensions() }

// Embed returns the cached vector for text, computing and storing it on a miss.
// Redis failures degrade to the wrapped provider.
func (c *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	key := cacheKey(text)
	if vec, ok := c.lru.Get(key); ok {
		c.hit(TierMemory)
		return clone(vec), nil
	}
	if c.redis != nil {
		if vec, ok := c.fromRedis(ctx, key); ok {
			c.hit(TierRedis)
			c.lru.Add(key, vec)
			return clone(vec), nil
		}
	}
	if c.hooks.Miss != nil {
		c.hooks.Miss()
	}
	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) != c.next.Dimensions() {
		return nil, fmt.Errorf("%w: got %d want %d", ErrDimensionMismatch, len(vec), c.next.Dimensions())
	}
	c.lru.Add(key, clone(vec))
	if c.redis != nil {
		c.toRedis(ctx, key, vec)
	}
	return vec, nil
}

func (c *CachedProvider) fromRedis(ctx context.Context, key string) ([]float32, bool) {
	raw, err := c.redis.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.WithError(err).Warn("embedding cache read failed")
		}
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil || len(vec) != c.next.Dimensions() {
		return nil, false
	}
	return vec, true
}

func (c *CachedProvider) toRedis(ctx context.Context, key string, vec []float32) {
	raw, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, c.prefix+key, raw, c.ttl).Err(); err != nil {
		c.log.WithError(err).Warn("embedding cache write failed")
	}
}

func (c *CachedProvider) hit(tier string) {
	if c.hooks.Hit != nil {
		c.hooks.Hit(tier)
	}
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func clone(v []float32) []float32 { return append([]float32(nil), v...) }
