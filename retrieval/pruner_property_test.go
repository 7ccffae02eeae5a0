package retrieval

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/fableloom/chronicler/types"
)

// 片段上限与确定性：任意候选集下，选择数不超过 min(k, len)，
// 选中的每个片段都来自候选集，且同一输入重复运行结果完全一致.
func TestProperty_DiversityPruner_BoundedAndDeterministic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 30).Draw(rt, "candidates")
		candidates := make([]types.KnowledgeSnippet, n)
		for i := range candidates {
			candidates[i] = types.KnowledgeSnippet{
				Content:        rapid.StringMatching(`[a-z ]{5,40}`).Draw(rt, fmt.Sprintf("content_%d", i)),
				SourceID:       fmt.Sprintf("src-%d", rapid.IntRange(0, 9).Draw(rt, fmt.Sprintf("src_%d", i))),
				SourceVersion:  "v1",
				RelevanceScore: rapid.Float64Range(0, 1).Draw(rt, fmt.Sprintf("rel_%d", i)),
				TrustScore:     rapid.Float64Range(0, 1).Draw(rt, fmt.Sprintf("trust_%d", i)),
			}
		}
		k := rapid.IntRange(1, 8).Draw(rt, "k")
		lambda := rapid.Float64Range(0, 1).Draw(rt, "lambda")

		p := NewDiversityPruner(nil)
		first := p.Select(candidates, k, lambda)

		limit := k
		if n < limit {
			limit = n
		}
		assert.LessOrEqual(rt, len(first), limit)

		pool := make(map[string]int, n)
		for _, c := range candidates {
			pool[c.SourceID+"|"+c.Content]++
		}
		for _, s := range first {
			key := s.SourceID + "|" + s.Content
			assert.Greater(rt, pool[key], 0, "selected snippet not drawn from candidates")
			pool[key]--
		}

		second := p.Select(candidates, k, lambda)
		assert.Equal(rt, first, second, "identical inputs must select identically")
	})
}
