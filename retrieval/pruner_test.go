package retrieval

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fableloom/chronicler/types"
)

func snippet(id string, relevance, trust float64, embedding ...float64) types.KnowledgeSnippet {
	return types.KnowledgeSnippet{
		Content:        "content of " + id,
		SourceID:       id,
		SourceVersion:  "v1",
		RelevanceScore: relevance,
		TrustScore:     trust,
		Embedding:      embedding,
	}
}

func TestDiversityPruner_CapsSelection(t *testing.T) {
	p := NewDiversityPruner(nil)
	candidates := make([]types.KnowledgeSnippet, 24)
	for i := range candidates {
		candidates[i] = snippet(fmt.Sprintf("s%02d", i), float64(i)/24, 0.5)
	}

	got := p.Select(candidates, 8, 0.7)
	assert.Len(t, got, 8)

	got = p.Select(candidates[:3], 8, 0.7)
	assert.Len(t, got, 3, "early exit when candidates run out")

	assert.Nil(t, p.Select(nil, 8, 0.7))
	assert.Nil(t, p.Select(candidates, 0, 0.7))
}

func TestDiversityPruner_LambdaOneIsPureRelevance(t *testing.T) {
	p := NewDiversityPruner(nil)
	candidates := []types.KnowledgeSnippet{
		snippet("low", 0.2, 0.9, 1, 0),
		snippet("top", 0.9, 0.1, 1, 0),
		snippet("mid", 0.5, 0.5, 1, 0),
	}

	// 即使所有候选向量完全相同，λ=1 也不惩罚冗余.
	got := p.Select(candidates, 3, 1.0)
	require.Len(t, got, 3)
	assert.Equal(t, "top", got[0].SourceID)
	assert.Equal(t, "mid", got[1].SourceID)
	assert.Equal(t, "low", got[2].SourceID)
}

func TestDiversityPruner_LambdaZeroIsMaximalDiversity(t *testing.T) {
	p := NewDiversityPruner(nil)
	candidates := []types.KnowledgeSnippet{
		snippet("dup-a", 0.9, 0.9, 1, 0, 0),
		snippet("dup-b", 0.8, 0.8, 1, 0, 0),
		snippet("other", 0.1, 0.1, 0, 1, 0),
	}

	// 首个选择在零分平局下按信任分决出；其余选择只看与已选集的差异.
	got := p.Select(candidates, 2, 0.0)
	require.Len(t, got, 2)
	assert.Equal(t, "dup-a", got[0].SourceID)
	assert.Equal(t, "other", got[1].SourceID, "the duplicate loses to the orthogonal snippet")
}

func TestDiversityPruner_PenalizesRedundancy(t *testing.T) {
	p := NewDiversityPruner(nil)
	candidates := []types.KnowledgeSnippet{
		snippet("lead", 0.90, 0.5, 1, 0),
		snippet("echo", 0.89, 0.5, 1, 0),
		snippet("fresh", 0.60, 0.5, 0, 1),
	}

	// λ=0.7：echo 与 lead 余弦为 1，0.7*0.89-0.3*1 < 0.7*0.60，fresh 胜出.
	got := p.Select(candidates, 2, 0.7)
	require.Len(t, got, 2)
	assert.Equal(t, "lead", got[0].SourceID)
	assert.Equal(t, "fresh", got[1].SourceID)
}

func TestDiversityPruner_TieBreaking(t *testing.T) {
	p := NewDiversityPruner(nil)

	byTrust := []types.KnowledgeSnippet{
		snippet("zed", 0.5, 0.9, 1, 0),
		snippet("abe", 0.5, 0.3, 1, 0),
	}
	got := p.Select(byTrust, 1, 1.0)
	require.Len(t, got, 1)
	assert.Equal(t, "zed", got[0].SourceID, "equal score resolves by trust")

	bySource := []types.KnowledgeSnippet{
		snippet("zed", 0.5, 0.5, 1, 0),
		snippet("abe", 0.5, 0.5, 1, 0),
	}
	got = p.Select(bySource, 1, 1.0)
	require.Len(t, got, 1)
	assert.Equal(t, "abe", got[0].SourceID, "equal trust resolves by smaller source id")
}

func TestDiversityPruner_JaccardFallbackWithoutEmbeddings(t *testing.T) {
	p := NewDiversityPruner(nil)
	candidates := []types.KnowledgeSnippet{
		{Content: "the harbor gate stands open", SourceID: "a", SourceVersion: "v1", RelevanceScore: 0.9, TrustScore: 0.5},
		{Content: "the harbor gate stands open", SourceID: "b", SourceVersion: "v1", RelevanceScore: 0.88, TrustScore: 0.5},
		{Content: "wolves hunt beyond the tree line", SourceID: "c", SourceVersion: "v1", RelevanceScore: 0.5, TrustScore: 0.5},
	}

	got := p.Select(candidates, 2, 0.6)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].SourceID)
	assert.Equal(t, "c", got[1].SourceID, "word-identical snippet is pruned via jaccard similarity")
}

func TestDiversityPruner_ClampsLambda(t *testing.T) {
	p := NewDiversityPruner(nil)
	candidates := []types.KnowledgeSnippet{
		snippet("top", 0.9, 0.5, 1, 0),
		snippet("low", 0.1, 0.5, 0, 1),
	}

	got := p.Select(candidates, 1, 1.7)
	require.Len(t, got, 1)
	assert.Equal(t, "top", got[0].SourceID)
}
