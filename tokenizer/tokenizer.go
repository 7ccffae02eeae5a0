package tokenizer

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fableloom/chronicler/types"
)

// Backend names accepted by New.
const (
	BackendEstimator = "estimator"
	BackendTiktoken  = "tiktoken"
)

// Tokenizer 是统一的 Token 计数接口.
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// Name 返回分词器的名称.
	Name() string
}

// New builds a tokenizer for the named backend. An empty backend selects
// the estimator.
func New(backend, encoding string) (Tokenizer, error) {
	switch backend {
	case "", BackendEstimator:
		return NewEstimator(), nil
	case BackendTiktoken:
		return NewTiktoken(encoding), nil
	default:
		return nil, types.NewError(types.ErrInvalidConfiguration,
			fmt.Sprintf("unknown tokenizer backend %q", backend))
	}
}

// CounterAdapter bridges a Tokenizer into the no-error types.TokenCounter
// the assembly layer uses. When the primary tokenizer fails (tiktoken
// encodings load lazily and can fail on first use) the adapter falls back
// to the estimator so budget enforcement always has a count.
type CounterAdapter struct {
	primary  Tokenizer
	fallback *Estimator
	logger   *zap.Logger
}

// NewCounterAdapter wraps a tokenizer for assembly-layer use.
func NewCounterAdapter(primary Tokenizer, logger *zap.Logger) *CounterAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if primary == nil {
		primary = NewEstimator()
	}
	return &CounterAdapter{
		primary:  primary,
		fallback: NewEstimator(),
		logger:   logger.With(zap.String("component", "tokenizer")),
	}
}

// CountTokens implements types.TokenCounter.
func (a *CounterAdapter) CountTokens(text string) int {
	n, err := a.primary.CountTokens(text)
	if err != nil {
		a.logger.Warn("primary tokenizer failed, using estimator",
			zap.String("tokenizer", a.primary.Name()),
			zap.Error(err))
		n, _ = a.fallback.CountTokens(text)
	}
	return n
}

var _ types.TokenCounter = (*CounterAdapter)(nil)
