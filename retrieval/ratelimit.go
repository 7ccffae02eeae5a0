package retrieval

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fableloom/chronicler/types"
)

// RateLimitedRetriever throttles queries against the backing index.
// The wait respects the caller's context: hitting the deadline while
// queued counts as the index being unavailable.
type RateLimitedRetriever struct {
	inner   Retriever
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewRateLimitedRetriever wraps a retriever with a token bucket of qps
// queries per second and the given burst. qps <= 0 disables limiting.
func NewRateLimitedRetriever(inner Retriever, qps float64, burst int, logger *zap.Logger) *RateLimitedRetriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if qps > 0 {
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(qps), burst)
	}
	return &RateLimitedRetriever{
		inner:   inner,
		limiter: limiter,
		logger:  logger.With(zap.String("component", "index_ratelimit")),
	}
}

// Query implements Retriever.
func (r *RateLimitedRetriever) Query(ctx context.Context, text string, scope ScopeFilter, topK int) ([]types.KnowledgeSnippet, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			r.logger.Warn("rate limit wait aborted", zap.Error(err))
			return nil, types.NewError(types.ErrIndexUnavailable, "query timed out waiting for rate limit").
				WithCause(err).WithRetryable(true).WithStage("retrieval")
		}
	}
	return r.inner.Query(ctx, text, scope, topK)
}

var _ Retriever = (*RateLimitedRetriever)(nil)
