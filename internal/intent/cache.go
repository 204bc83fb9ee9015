package intent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/relayhq/relay/internal/registry"
)

// CachedClassifier memoizes match and multi-step verdicts in Redis.
// Classification for identical inputs is deterministic enough to cache;
// parameter extraction and suggestions stay uncached because they feed
// user-visible text. Every cache failure falls through to the inner
// classifier.
type CachedClassifier struct {
	Classifier

	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedClassifier wraps inner with a Redis-backed verdict cache.
func NewCachedClassifier(inner Classifier, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedClassifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedClassifier{
		Classifier: inner,
		client:     client,
		ttl:        ttl,
		logger:     logger.With("component", "intent-cache"),
	}
}

func cacheKey(kind, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "relay:intent:" + kind + ":" + hex.EncodeToString(sum[:16])
}

func (c *CachedClassifier) MatchAutomation(ctx context.Context, text string, reg *registry.Registry) (*Match, error) {
	key := cacheKey("match", text)
	if raw, err := c.client.Get(ctx, key).Result(); err == nil {
		var cached Match
		if json.Unmarshal([]byte(raw), &cached) == nil {
			// An automation may be removed between cache write and read.
			if _, ok := reg.Resolve(cached.Automation); ok {
				return &cached, nil
			}
		}
	} else if err != redis.Nil {
		c.logger.Debug("cache read failed", "error", err)
	}

	match, err := c.Classifier.MatchAutomation(ctx, text, reg)
	if err != nil || match == nil {
		return match, err
	}
	if raw, err := json.Marshal(match); err == nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.logger.Debug("cache write failed", "error", err)
		}
	}
	return match, nil
}

func (c *CachedClassifier) DetectMultiStep(ctx context.Context, text string, reg *registry.Registry) (*MultiStep, error) {
	key := cacheKey("multistep", text)
	if raw, err := c.client.Get(ctx, key).Result(); err == nil {
		var cached MultiStep
		if json.Unmarshal([]byte(raw), &cached) == nil {
			return &cached, nil
		}
	} else if err != redis.Nil {
		c.logger.Debug("cache read failed", "error", err)
	}

	verdict, err := c.Classifier.DetectMultiStep(ctx, text, reg)
	if err != nil || verdict == nil {
		return verdict, err
	}
	if raw, err := json.Marshal(verdict); err == nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.logger.Debug("cache write failed", "error", err)
		}
	}
	return verdict, nil
}
