package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"

	"github.com/spacesedan/moodlens/internal/models"
)

// Cache stores serialized classifications by key. A miss returns ok=false
// and a nil error.
type Cache interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// CachedClassifier memoizes raw classifications of an underlying
// Classifier. Cache failures are logged and never fail a classification.
type CachedClassifier struct {
	next      Classifier
	cache     Cache
	namespace string
}

// NewCachedClassifier wraps next. namespace separates entries of different
// backends or models sharing one cache.
func NewCachedClassifier(next Classifier, cache Cache, namespace string) *CachedClassifier {
	return &CachedClassifier{next: next, cache: cache, namespace: namespace}
}

func (c *CachedClassifier) Classify(ctx context.Context, text string) (models.RawClassification, error) {
	key := c.key(text)

	if value, ok, err := c.cache.Get(ctx, key); err != nil {
		slog.Warn("[CachedClassifier] Cache lookup failed",
			slog.String("error", err.Error()))
	} else if ok {
		var raw models.RawClassification
		if err := json.Unmarshal([]byte(value), &raw); err == nil {
			return raw, nil
		}
		slog.Warn("[CachedClassifier] Discarding corrupt cache entry", slog.String("key", key))
	}

	raw, err := c.next.Classify(ctx, text)
	if err != nil {
		return raw, err
	}

	if b, err := json.Marshal(raw); err == nil {
		if err := c.cache.Set(ctx, key, string(b)); err != nil {
			slog.Warn("[CachedClassifier] Cache write failed",
				slog.String("error", err.Error()))
		}
	}
	return raw, nil
}

func (c *CachedClassifier) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "moodlens:" + c.namespace + ":" + hex.EncodeToString(sum[:])
}
