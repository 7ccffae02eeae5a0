package retrieval

import (
	"go.uber.org/zap"

	"github.com/fableloom/chronicler/types"
)

// DiversityPruner selects a bounded, diverse subset of retrieved
// snippets by greedy Maximal Marginal Relevance. λ trades relevance
// against redundancy: 1 is pure relevance top-k, 0 is maximal pairwise
// diversity.
type DiversityPruner struct {
	logger *zap.Logger
}

// NewDiversityPruner creates a pruner.
func NewDiversityPruner(logger *zap.Logger) *DiversityPruner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiversityPruner{
		logger: logger.With(zap.String("component", "diversity_pruner")),
	}
}

// Select picks up to k snippets maximizing
//
//	λ·relevance − (1−λ)·max_{s∈selected} sim(candidate, s)
//
// per round. Ties go to the higher trust score, then the
// lexicographically smaller source id, so identical inputs always
// produce identical selections. Exits early when candidates run out.
func (p *DiversityPruner) Select(candidates []types.KnowledgeSnippet, k int, lambda float64) []types.KnowledgeSnippet {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	if lambda < 0 || lambda > 1 {
		p.logger.Warn("clamping mmr lambda", zap.Float64("lambda", lambda))
		lambda = clamp01(lambda)
	}

	remaining := make([]types.KnowledgeSnippet, len(candidates))
	copy(remaining, candidates)
	selected := make([]types.KnowledgeSnippet, 0, k)

	for len(selected) < k && len(remaining) > 0 {
		best := -1
		var bestScore float64
		for i, c := range remaining {
			score := lambda*c.RelevanceScore - (1-lambda)*p.maxSimilarity(c, selected)
			if best == -1 || score > bestScore || (score == bestScore && betterTie(c, remaining[best])) {
				best = i
				bestScore = score
			}
		}
		selected = append(selected, remaining[best])
		remaining = append(remaining[:best], remaining[best+1:]...)
	}
	return selected
}

// maxSimilarity returns the candidate's strongest similarity to the
// already selected set, 0 for the first pick.
func (p *DiversityPruner) maxSimilarity(c types.KnowledgeSnippet, selected []types.KnowledgeSnippet) float64 {
	var max float64
	for _, s := range selected {
		if sim := snippetSimilarity(c, s); sim > max {
			max = sim
		}
	}
	return max
}

// betterTie prefers a over b at equal MMR score.
func betterTie(a, b types.KnowledgeSnippet) bool {
	if a.TrustScore != b.TrustScore {
		return a.TrustScore > b.TrustScore
	}
	return a.SourceID < b.SourceID
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
