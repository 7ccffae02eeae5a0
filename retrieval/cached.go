package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fableloom/chronicler/internal/cache"
	"github.com/fableloom/chronicler/types"
)

// CachedRetriever memoizes query results in an injected bounded cache.
// The cache is a constructor dependency, never package state; two
// pipelines never share results unless handed the same cache object.
type CachedRetriever struct {
	inner  Retriever
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedRetriever wraps a retriever with the given cache. ttl 0
// falls through to the cache's own default.
func NewCachedRetriever(inner Retriever, c cache.Cache, ttl time.Duration, logger *zap.Logger) *CachedRetriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedRetriever{
		inner:  inner,
		cache:  c,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "retrieval_cache")),
	}
}

// cacheKey derives a stable key from the full query shape. Scope is
// part of the key: the same text under a different visible set is a
// different query.
func cacheKey(text string, scope ScopeFilter, topK int) string {
	payload, _ := json.Marshal(queryRequest{Query: text, Scope: scope, TopK: topK})
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("retrieval:%s", hex.EncodeToString(sum[:16]))
}

// Query implements Retriever. Errors from the inner retriever are
// never cached; a degraded turn must not poison later ones.
func (c *CachedRetriever) Query(ctx context.Context, text string, scope ScopeFilter, topK int) ([]types.KnowledgeSnippet, error) {
	key := cacheKey(text, scope, topK)

	var cached []types.KnowledgeSnippet
	err := cache.GetJSON(ctx, c.cache, key, &cached)
	if err == nil {
		return cached, nil
	}
	if !cache.IsCacheMiss(err) {
		c.logger.Warn("cache read failed", zap.Error(err))
	}

	snippets, err := c.inner.Query(ctx, text, scope, topK)
	if err != nil {
		return nil, err
	}
	if setErr := cache.SetJSON(ctx, c.cache, key, snippets, c.ttl); setErr != nil {
		c.logger.Warn("cache write failed", zap.Error(setErr))
	}
	return snippets, nil
}

// Invalidate clears every memoized result.
func (c *CachedRetriever) Invalidate(ctx context.Context) error {
	return c.cache.Purge(ctx)
}

// Stats exposes the underlying cache counters.
func (c *CachedRetriever) Stats() cache.Stats {
	return c.cache.Stats()
}

var _ Retriever = (*CachedRetriever)(nil)
