package classifier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/soaringjerry/Spotcheck/internal/services"
)

const cacheKeyPrefix = "spotcheck:classify:"

// Cache is a byte store with expiry. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedClassifier memoises predictions per image content. Cache failures
// never fail a classification.
type CachedClassifier struct {
	next   services.Classifier
	cache  Cache
	ttl    time.Duration
	logger zerolog.Logger
}

func NewCachedClassifier(next services.Classifier, cache Cache, ttl time.Duration, logger zerolog.Logger) *CachedClassifier {
	return &CachedClassifier{next: next, cache: cache, ttl: ttl, logger: logger}
}

func CacheKey(image []byte) string {
	sum := sha256.Sum256(image)
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

func (c *CachedClassifier) Classify(ctx context.Context, image []byte) ([]services.Prediction, error) {
	key := CacheKey(image)
	if b, ok, err := c.cache.Get(ctx, key); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("classifier cache read failed")
	} else if ok {
		var preds []services.Prediction
		if err := json.Unmarshal(b, &preds); err == nil {
			return preds, nil
		}
		c.logger.Warn().Str("key", key).Msg("classifier cache entry corrupt, ignoring")
	}

	preds, err := c.next.Classify(ctx, image)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(preds)
	if err != nil {
		return preds, nil
	}
	if err := c.cache.Set(ctx, key, b, c.ttl); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("classifier cache write failed")
	}
	return preds, nil
}

var _ services.Classifier = (*CachedClassifier)(nil)
