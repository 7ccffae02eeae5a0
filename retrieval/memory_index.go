package retrieval

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/fableloom/chronicler/types"
)

// Blend weights for the in-process scorer. Vector similarity dominates
// when the snippet carries a comparable embedding; otherwise the score
// is pure term overlap.
const (
	vectorWeight  = 0.6
	keywordWeight = 0.4
)

// MemoryIndex is an in-process ranked index for tests and single-binary
// deployments. Snippets added without an embedding get a deterministic
// hash embedding derived from their content. Safe for concurrent
// queries; Add takes the write lock.
type MemoryIndex struct {
	logger *zap.Logger

	mu       sync.RWMutex
	snippets []types.KnowledgeSnippet
}

// NewMemoryIndex creates an empty index.
func NewMemoryIndex(logger *zap.Logger) *MemoryIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryIndex{
		logger: logger.With(zap.String("component", "memory_index")),
	}
}

// Add indexes snippets. Structurally invalid snippets are skipped and
// logged, matching the unit-local error policy. The relevance score of
// stored snippets is ignored; it is recomputed per query.
func (m *MemoryIndex) Add(snippets ...types.KnowledgeSnippet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range snippets {
		if err := s.Validate(); err != nil {
			m.logger.Warn("skipping invalid snippet",
				zap.String("source", s.ProvenanceTag()),
				zap.Error(err))
			continue
		}
		stored := s.Clone()
		if len(stored.Embedding) == 0 {
			stored.Embedding = hashEmbedding(tokenize(stored.Content))
		}
		m.snippets = append(m.snippets, stored)
	}
}

// Len returns the number of indexed snippets.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.snippets)
}

// Query implements Retriever. Relevance blends query-embedding cosine
// with term overlap; snippets whose embeddings are not comparable to
// the hash space fall back to overlap alone. Zero-score snippets are
// not returned.
func (m *MemoryIndex) Query(ctx context.Context, text string, scope ScopeFilter, topK int) ([]types.KnowledgeSnippet, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.NewError(types.ErrIndexUnavailable, "query cancelled").
			WithCause(err).WithRetryable(true).WithStage("retrieval")
	}
	if topK <= 0 {
		return nil, nil
	}

	terms := queryTerms(text, scope)
	queryVec := hashEmbedding(terms)

	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]types.KnowledgeSnippet, 0, topK)
	for _, s := range m.snippets {
		overlap := termOverlap(terms, s.Content)
		var score float64
		if len(s.Embedding) == embedDim {
			score = vectorWeight*cosineSimilarity(queryVec, s.Embedding) + keywordWeight*overlap
		} else {
			score = overlap
		}
		if score <= 0 {
			continue
		}
		scored := s.Clone()
		scored.RelevanceScore = score
		results = append(results, scored)
	}

	rankSnippets(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

var _ Retriever = (*MemoryIndex)(nil)
