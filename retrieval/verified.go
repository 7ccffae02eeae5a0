package retrieval

import (
	"context"

	"go.uber.org/zap"

	"github.com/fableloom/chronicler/registry"
	"github.com/fableloom/chronicler/types"
)

// VerifiedRetriever drops snippets whose provenance does not resolve
// against the active source registry, and structurally invalid ones,
// before they can enter the pipeline. Dropped snippets are logged,
// never surfaced to a turn.
type VerifiedRetriever struct {
	inner    Retriever
	registry registry.Registry
	logger   *zap.Logger
}

// NewVerifiedRetriever wraps a retriever with provenance verification.
func NewVerifiedRetriever(inner Retriever, reg registry.Registry, logger *zap.Logger) *VerifiedRetriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VerifiedRetriever{
		inner:    inner,
		registry: reg,
		logger:   logger.With(zap.String("component", "provenance_filter")),
	}
}

// Query implements Retriever.
func (v *VerifiedRetriever) Query(ctx context.Context, text string, scope ScopeFilter, topK int) ([]types.KnowledgeSnippet, error) {
	snippets, err := v.inner.Query(ctx, text, scope, topK)
	if err != nil {
		return nil, err
	}
	kept := snippets[:0]
	for _, s := range snippets {
		if err := s.Validate(); err != nil {
			v.logger.Warn("dropping malformed snippet",
				zap.String("source", s.ProvenanceTag()),
				zap.Error(err))
			continue
		}
		if err := registry.Check(v.registry, s); err != nil {
			v.logger.Warn("dropping snippet with unresolved provenance",
				zap.String("source", s.ProvenanceTag()),
				zap.Error(err))
			continue
		}
		kept = append(kept, s)
	}
	return kept, nil
}

var _ Retriever = (*VerifiedRetriever)(nil)
