package brief

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/fableloom/chronicler/types"
)

// charCounter 以 4 字符 1 token 的确定性规则计数，测试无需真实编码器。
type charCounter struct{}

func (charCounter) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		return 1
	}
	return n
}

func newTestEnforcer(t *testing.T) *BudgetEnforcer {
	t.Helper()
	e, err := NewBudgetEnforcer(charCounter{}, 40, nil)
	require.NoError(t, err)
	return e
}

func draftWithSnippets(n int) types.TurnBrief {
	b := types.TurnBrief{
		AgentID: "scout",
		TurnID:  "turn-1",
		WorldState: types.MaskedWorldState{
			Turn: 1,
			Self: types.EntityView{ID: "scout", Name: "Scout", Kind: "character", Faction: "north",
				Details: map[string]string{"mood": "wary"}},
			Entities: []types.EntityView{
				{ID: "raven", Name: "Raven", Kind: "character", Faction: "north",
					Details: map[string]string{"status": "wounded in the last skirmish"}},
			},
			Facts: []types.FactView{
				{ID: "f1", Statement: strings.Repeat("the bridge over the ravine held through the night ", 3), Turn: 1},
			},
		},
	}
	for i := 0; i < n; i++ {
		b.Snippets = append(b.Snippets, types.BriefSnippet{
			Content:    fmt.Sprintf("snippet %02d %s", i, strings.Repeat("lore ", 20)),
			Provenance: fmt.Sprintf("canon-%02d@1.0.0", i),
			Relevance:  0.9 - float64(i)*0.05,
			Trust:      0.5,
		})
	}
	b.Memories = []types.BriefMemory{
		{MemoryID: "m1", Tier: types.MemoryEpisodic,
			Summary:    strings.Repeat("we crossed the river under cover of fog ", 4),
			Score:      0.8,
			Provenance: types.InternalProvenance()},
	}
	return b
}

func TestBudgetEnforcer_UnderBudgetUntouched(t *testing.T) {
	t.Parallel()
	e := newTestEnforcer(t)
	draft := draftWithSnippets(3)

	got, stages, err := e.Fit(draft, 100000)
	require.NoError(t, err)
	assert.Empty(t, stages)
	assert.Len(t, got.Snippets, 3)
	assert.LessOrEqual(t, got.TokenCount, 100000)
	assert.NotNil(t, got.WorldState.Self.Details, "nothing stripped under budget")
}

func TestBudgetEnforcer_DropsLowestRelevanceFirst(t *testing.T) {
	t.Parallel()
	e := newTestEnforcer(t)
	draft := draftWithSnippets(8)
	base, _, err := e.Fit(draft, 100000)
	require.NoError(t, err)

	// 预算刚好容不下 8 条：最低相关的 3 条先走，世界状态原封不动。
	budget := base.TokenCount
	for _, s := range base.Snippets[5:] {
		budget -= e.countJSON(s)
	}
	got, stages, err := e.Fit(draft, budget)
	require.NoError(t, err)
	assert.Equal(t, []string{StageDropSnippets}, stages)
	require.Len(t, got.Snippets, 5)
	for i, s := range got.Snippets {
		assert.Equal(t, draft.Snippets[i].Provenance, s.Provenance, "highest-relevance snippets survive in order")
	}
	assert.Equal(t, draft.WorldState, got.WorldState, "world state untouched while snippets remain")
	assert.LessOrEqual(t, got.TokenCount, budget)
}

func TestBudgetEnforcer_StageOrdering(t *testing.T) {
	t.Parallel()
	e := newTestEnforcer(t)
	draft := draftWithSnippets(2)

	// 把预算压到必须走完三个阶段的水平。
	got, stages, err := e.Fit(draft, 40)
	if err == nil {
		assert.Equal(t, []string{StageDropSnippets, StageTruncateSummaries, StageStripDetails}, stages)
		assert.Empty(t, got.Snippets)
		assert.Empty(t, got.WorldState.Self.Details)
		assert.Empty(t, got.WorldState.Self.Kind)
		// 身份与位置字段永不剥离
		assert.Equal(t, "scout", got.WorldState.Self.ID)
		assert.Equal(t, "Scout", got.WorldState.Self.Name)
		require.Len(t, got.WorldState.Entities, 1)
		assert.Equal(t, "raven", got.WorldState.Entities[0].ID)
		assert.LessOrEqual(t, got.TokenCount, 40)
	} else {
		// 40 token 也可能装不下骨架——那必须是预算硬失败，且三阶段都试过。
		assert.Equal(t, types.ErrBudgetUnsatisfiable, types.GetErrorCode(err))
		assert.Equal(t, []string{StageDropSnippets, StageTruncateSummaries, StageStripDetails}, stages)
	}
}

func TestBudgetEnforcer_TruncatesSummariesBeforeStrippingDetails(t *testing.T) {
	t.Parallel()
	e := newTestEnforcer(t)
	draft := draftWithSnippets(0)

	// 预算设在「截断后」的精确水平：只需阶段二即可满足。
	full, _, err := e.Fit(draft, 100000)
	require.NoError(t, err)

	truncated := draft.Clone()

	truncated.Memories[0].Summary, _ = truncateText(truncated.Memories[0].Summary, 40)
	truncated.WorldState.Facts[0].Statement, _ = truncateText(truncated.WorldState.Facts[0].Statement, 40)
	afterTruncate := e.Measure(&truncated).Total
	require.Less(t, afterTruncate, full.TokenCount)

	got, stages, err := e.Fit(draft, afterTruncate)
	require.NoError(t, err)
	assert.Equal(t, []string{StageTruncateSummaries}, stages)
	assert.NotEmpty(t, got.WorldState.Self.Details, "details survive when truncation suffices")
	assert.True(t, strings.HasSuffix(got.Memories[0].Summary, "…"))
	assert.True(t, strings.HasSuffix(got.WorldState.Facts[0].Statement, "…"))
}

func TestBudgetEnforcer_Unsatisfiable(t *testing.T) {
	t.Parallel()
	e := newTestEnforcer(t)
	draft := draftWithSnippets(1)

	_, stages, err := e.Fit(draft, 1)
	require.Error(t, err)
	assert.Equal(t, types.ErrBudgetUnsatisfiable, types.GetErrorCode(err))
	assert.Contains(t, stages, StageStripDetails, "every stage was exhausted before failing")
}

func TestBudgetEnforcer_InvalidBudget(t *testing.T) {
	t.Parallel()
	e := newTestEnforcer(t)
	_, _, err := e.Fit(draftWithSnippets(1), 0)
	assert.Equal(t, types.ErrInvalidConfiguration, types.GetErrorCode(err))
}

func TestNewBudgetEnforcer_Validation(t *testing.T) {
	t.Parallel()
	_, err := NewBudgetEnforcer(nil, 40, nil)
	assert.Equal(t, types.ErrInvalidConfiguration, types.GetErrorCode(err))
	_, err = NewBudgetEnforcer(charCounter{}, 0, nil)
	assert.Equal(t, types.ErrInvalidConfiguration, types.GetErrorCode(err))
}

func TestStampProvenance(t *testing.T) {
	t.Parallel()
	b := draftWithSnippets(2)
	StampProvenance(&b)
	assert.Equal(t, []string{"canon-00@1.0.0", "canon-01@1.0.0", "internal@current"}, b.Provenance)
}

// 预算不变量：任意草稿与预算下，Fit 要么给出 token_count ≤ budget
// 的简报，要么以 BUDGET_UNSATISFIABLE 硬失败，绝不超额输出。
func TestProperty_BudgetInvariant(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		e, err := NewBudgetEnforcer(charCounter{}, 40, nil)
		if err != nil {
			rt.Fatal(err)
		}
		draft := draftWithSnippets(rapid.IntRange(0, 10).Draw(rt, "snippets"))
		budget := rapid.IntRange(1, 3000).Draw(rt, "budget")

		got, _, err := e.Fit(draft, budget)
		if err != nil {
			assert.Equal(rt, types.ErrBudgetUnsatisfiable, types.GetErrorCode(err))
			return
		}
		assert.LessOrEqual(rt, got.TokenCount, budget)
		assert.Equal(rt, got.Tokens.Total, got.TokenCount)
	})
}
