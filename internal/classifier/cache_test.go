package classifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soaringjerry/Spotcheck/internal/services"
)

type memCache struct {
	data   map[string][]byte
	ttls   map[string]time.Duration
	getErr error
	setErr error
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	b, ok := m.data[key]
	return b, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

type countingClassifier struct {
	preds []services.Prediction
	err   error
	calls int
}

func (c *countingClassifier) Classify(context.Context, []byte) ([]services.Prediction, error) {
	c.calls++
	return c.preds, c.err
}

func TestCachedClassifierHitSkipsUpstream(t *testing.T) {
	upstream := &countingClassifier{preds: []services.Prediction{{Class: "chickenpox", Confidence: 0.9}}}
	cache := newMemCache()
	c := NewCachedClassifier(upstream, cache, time.Hour, zerolog.Nop())
	ctx := context.Background()

	first, err := c.Classify(ctx, []byte("img"))
	require.NoError(t, err)
	second, err := c.Classify(ctx, []byte("img"))
	require.NoError(t, err)

	assert.Equal(t, 1, upstream.calls)
	assert.Equal(t, first, second)
	assert.Equal(t, time.Hour, cache.ttls[CacheKey([]byte("img"))])

	_, err = c.Classify(ctx, []byte("other"))
	require.NoError(t, err)
	assert.Equal(t, 2, upstream.calls)
}

func TestCachedClassifierToleratesCacheFailures(t *testing.T) {
	upstream := &countingClassifier{preds: []services.Prediction{{Class: "eczema", Confidence: 0.5}}}
	cache := newMemCache()
	cache.getErr = errors.New("redis down")
	cache.setErr = errors.New("redis down")
	c := NewCachedClassifier(upstream, cache, time.Minute, zerolog.Nop())

	preds, err := c.Classify(context.Background(), []byte("img"))
	require.NoError(t, err)
	assert.Equal(t, upstream.preds, preds)
}

func TestCachedClassifierIgnoresCorruptEntry(t *testing.T) {
	upstream := &countingClassifier{preds: []services.Prediction{}}
	cache := newMemCache()
	cache.data[CacheKey([]byte("img"))] = []byte("{not json")
	c := NewCachedClassifier(upstream, cache, time.Minute, zerolog.Nop())

	_, err := c.Classify(context.Background(), []byte("img"))
	require.NoError(t, err)
	assert.Equal(t, 1, upstream.calls)
	assert.Equal(t, "[]", string(cache.data[CacheKey([]byte("img"))]))
}

func TestCachedClassifierDoesNotCacheErrors(t *testing.T) {
	upstream := &countingClassifier{err: ErrUnavailable}
	cache := newMemCache()
	c := NewCachedClassifier(upstream, cache, time.Minute, zerolog.Nop())

	_, err := c.Classify(context.Background(), []byte("img"))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Empty(t, cache.data)
}
