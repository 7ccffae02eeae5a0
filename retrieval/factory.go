// Config → retrieval 桥接层。
//
// 将全局 config.Config 组装为带装饰器链的运行时 Retriever，
// 消除 config 包与 retrieval 包之间的手动映射。
package retrieval

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fableloom/chronicler/config"
	"github.com/fableloom/chronicler/internal/cache"
	"github.com/fableloom/chronicler/registry"
	"github.com/fableloom/chronicler/types"
)

// Backend names accepted by NewRetrieverFromConfig.
const (
	BackendMemory = "memory"
	BackendHTTP   = "http"
)

// NewRetrieverFromConfig builds the full retriever chain from config:
// Cached → Verified → RateLimited → backend. seeds populate the memory
// backend and are ignored for http. cacheBackend nil or cache disabled
// skips the caching layer.
func NewRetrieverFromConfig(
	cfg *config.Config,
	reg registry.Registry,
	cacheBackend cache.Cache,
	seeds []types.KnowledgeSnippet,
	logger *zap.Logger,
) (Retriever, error) {
	if cfg == nil {
		return nil, types.NewError(types.ErrInvalidConfiguration, "config is nil")
	}
	if reg == nil {
		return nil, types.NewError(types.ErrInvalidConfiguration, "source registry is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var base Retriever
	switch cfg.Index.Backend {
	case BackendMemory, "":
		idx := NewMemoryIndex(logger)
		idx.Add(seeds...)
		base = idx
	case BackendHTTP:
		if cfg.Index.BaseURL == "" {
			return nil, types.NewError(types.ErrInvalidConfiguration, "index.base_url is required for the http backend")
		}
		clientCfg := DefaultIndexClientConfig()
		clientCfg.BaseURL = cfg.Index.BaseURL
		clientCfg.Timeout = cfg.Pipeline.RetrievalTimeout
		base = NewIndexClient(clientCfg, logger)
	default:
		return nil, types.NewError(types.ErrInvalidConfiguration,
			fmt.Sprintf("unsupported index backend %q", cfg.Index.Backend))
	}

	var chain Retriever = NewRateLimitedRetriever(base, cfg.Index.RateLimitQPS, cfg.Index.RateLimitBurst, logger)
	chain = NewVerifiedRetriever(chain, reg, logger)
	if cfg.Cache.Enabled && cacheBackend != nil {
		chain = NewCachedRetriever(chain, cacheBackend, cfg.Cache.TTL, logger)
	}
	return chain, nil
}
