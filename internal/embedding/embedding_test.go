package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashProviderIsDeterministic(t *testing.T) {
	p := NewHashProvider(8)
	a, err := p.Embed(context.Background(), "Turkish Airlines booking confirmation")
	require.NoError(t, err)
	b, err := p.Embed(context.Background(), "Turkish Airlines booking confirmation")
	require.NoError(t, err)
	c, err := p.Embed(context.Background(), "turkish airlines booking confirmation")
	require.NoError(t, err)

	assert.Len(t, a, 8)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	for _, v := range a {
		assert.GreaterOrEqual(t, v, float32(0))
		assert.Less(t, v, float32(1))
	}
}

func TestHashProviderRejectsEmptyText(t *testing.T) {
	_, err := NewHashProvider(0).Embed(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyText)
	assert.Equal(t, DefaultDimensions, NewHashProvider(0).Dimensions())
}

type countingProvider struct {
	mu    sync.Mutex
	calls int
	dims  int
	out   []float32
}

func (p *countingProvider) Dimensions() int { return p.dims }

func (p *countingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.out != nil {
		return p.out, nil
	}
	return NewHashProvider(p.dims).Embed(ctx, text)
}

type fakeKV struct {
	mu   sync.Mutex
	data map[string]string
	ttl  map[string]time.Duration
	err  error
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (f *fakeKV) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeKV) Set(ctx context.Context, key string, value interface{}, exp time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.data[key] = string(value.([]byte))
	f.ttl[key] = exp
	return redis.NewStatusResult("OK", nil)
}

func TestCachedProviderServesRepeatsFromMemory(t *testing.T) {
	inner := &countingProvider{dims: 4}
	hits := map[string]int{}
	misses := 0
	c := NewCachedProvider(inner, 16, time.Hour, WithHooks(Hooks{
		Hit:  func(tier string) { hits[tier]++ },
		Miss: func() { misses++ },
	}))

	a, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	b, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, 1, hits[TierMemory])
	assert.Equal(t, 1, misses)
}

func TestCachedProviderUsesRedisTier(t *testing.T) {
	kv := newFakeKV()
	inner := &countingProvider{dims: 4}
	first := NewCachedProvider(inner, 16, time.Hour, WithRedis(kv, "embedding:"))
	vec, err := first.Embed(context.Background(), "shared")
	require.NoError(t, err)

	key := "embedding:" + cacheKey("shared")
	require.Contains(t, kv.data, key)
	assert.Equal(t, time.Hour, kv.ttl[key])

	second := NewCachedProvider(inner, 16, time.Hour, WithRedis(kv, "embedding:"))
	again, err := second.Embed(context.Background(), "shared")
	require.NoError(t, err)
	assert.Equal(t, vec, again)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedProviderIgnoresRedisFailures(t *testing.T) {
	kv := newFakeKV()
	kv.err = errors.New("connection refused")
	inner := &countingProvider{dims: 4}
	c := NewCachedProvider(inner, 16, time.Hour, WithRedis(kv, ""))

	vec, err := c.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
}

func TestCachedProviderIgnoresMalformedRedisEntry(t *testing.T) {
	kv := newFakeKV()
	bad, _ := json.Marshal([]float32{1, 2})
	kv.data["embedding:"+cacheKey("text")] = string(bad)
	inner := &countingProvider{dims: 4}
	c := NewCachedProvider(inner, 16, time.Hour, WithRedis(kv, ""))

	vec, err := c.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedProviderRejectsWrongDimension(t *testing.T) {
	inner := &countingProvider{dims: 4, out: []float32{1, 2}}
	_, err := NewCachedProvider(inner, 16, time.Hour).Embed(context.Background(), "x")
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestCachedProviderReturnsCopies(t *testing.T) {
	c := NewCachedProvider(&countingProvider{dims: 4}, 16, time.Hour)
	a, err := c.Embed(context.Background(), "x")
	require.NoError(t, err)
	a[0] = 42
	b, err := c.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.NotEqual(t, float32(42), b[0])
}
