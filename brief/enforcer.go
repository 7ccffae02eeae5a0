package brief

import (
	"encoding/json"
	"fmt"
	"sort"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fableloom/chronicler/types"
)

// Pruning stages in the order they are applied. Stage names surface in
// metrics and logs.
const (
	StageDropSnippets      = "drop_snippets"
	StageTruncateSummaries = "truncate_summaries"
	StageStripDetails      = "strip_details"
)

// BudgetEnforcer walks a brief draft down to the token budget with an
// ordered, deterministic pruning policy: cheapest material goes first,
// identity and location data are never touched. A draft that still
// overflows after every stage fails hard with BUDGET_UNSATISFIABLE.
type BudgetEnforcer struct {
	counter         types.TokenCounter
	summaryMaxChars int
	logger          *zap.Logger
}

// NewBudgetEnforcer creates an enforcer. summaryMaxChars bounds stage
// two's truncated summaries.
func NewBudgetEnforcer(counter types.TokenCounter, summaryMaxChars int, logger *zap.Logger) (*BudgetEnforcer, error) {
	if counter == nil {
		return nil, types.NewError(types.ErrInvalidConfiguration, "budget enforcer requires a token counter")
	}
	if summaryMaxChars <= 0 {
		return nil, types.NewError(types.ErrInvalidConfiguration,
			fmt.Sprintf("summary_max_chars %d must be positive", summaryMaxChars))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BudgetEnforcer{
		counter:         counter,
		summaryMaxChars: summaryMaxChars,
		logger:          logger.With(zap.String("component", "budget_enforcer")),
	}, nil
}

// Fit returns the draft pruned to the budget and the stages it had to
// apply. Token counts are re-measured after every removal; pruning
// stops the moment the budget is satisfied.
func (e *BudgetEnforcer) Fit(draft types.TurnBrief, budget int) (types.TurnBrief, []string, error) {
	if budget <= 0 {
		return types.TurnBrief{}, nil, types.NewError(types.ErrInvalidConfiguration,
			fmt.Sprintf("token budget %d must be positive", budget))
	}
	b := draft.Clone()
	b.Tokens = e.Measure(&b)
	b.TokenCount = b.Tokens.Total
	if b.TokenCount <= budget {
		return b, nil, nil
	}

	var stages []string

	// 阶段一：逐条丢弃相关性最低的片段。
	if e.dropSnippets(&b, budget) {
		stages = append(stages, StageDropSnippets)
	}
	if b.TokenCount <= budget {
		return b, stages, nil
	}

	// 阶段二：截断历史事件摘要（记忆摘要与世界事实）。
	if e.truncateSummaries(&b) {
		stages = append(stages, StageTruncateSummaries)
	}
	if b.TokenCount <= budget {
		return b, stages, nil
	}

	// 阶段三：剥离非关键实体细节，身份与位置永不触碰。
	if e.stripDetails(&b) {
		stages = append(stages, StageStripDetails)
	}
	if b.TokenCount <= budget {
		return b, stages, nil
	}

	e.logger.Warn("budget unsatisfiable after all pruning stages",
		zap.String("agent_id", b.AgentID),
		zap.Int("tokens", b.TokenCount),
		zap.Int("budget", budget))
	return types.TurnBrief{}, stages, types.NewError(types.ErrBudgetUnsatisfiable,
		fmt.Sprintf("brief for %s holds %d tokens against a budget of %d after exhausting pruning",
			b.AgentID, b.TokenCount, budget)).WithStage("budget")
}

// Measure renders each brief section to its wire form and counts it.
func (e *BudgetEnforcer) Measure(b *types.TurnBrief) types.TokenBreakdown {
	var breakdown types.TokenBreakdown
	breakdown.WorldTokens = e.countJSON(b.WorldState)
	for _, s := range b.Snippets {
		breakdown.SnippetTokens += e.countJSON(s)
	}
	for _, m := range b.Memories {
		breakdown.MemoryTokens += e.countJSON(m)
	}
	breakdown.Total = breakdown.WorldTokens + breakdown.SnippetTokens + breakdown.MemoryTokens
	return breakdown
}

// dropSnippets removes the lowest-relevance snippet one at a time,
// re-measuring after each, until the budget fits or none remain.
func (e *BudgetEnforcer) dropSnippets(b *types.TurnBrief, budget int) bool {
	changed := false
	for b.TokenCount > budget && len(b.Snippets) > 0 {
		victim := 0
		for i := 1; i < len(b.Snippets); i++ {
			if lowerSnippet(b.Snippets[i], b.Snippets[victim]) {
				victim = i
			}
		}
		e.logger.Debug("dropping snippet for budget",
			zap.String("provenance", b.Snippets[victim].Provenance),
			zap.Float64("relevance", b.Snippets[victim].Relevance))
		b.Snippets = append(b.Snippets[:victim], b.Snippets[victim+1:]...)
		e.remeasure(b)
		changed = true
	}
	return changed
}

// lowerSnippet orders snippets for dropping: lowest relevance first,
// then lowest trust, then larger provenance tag, a total order.
func lowerSnippet(a, b types.BriefSnippet) bool {
	if a.Relevance != b.Relevance {
		return a.Relevance < b.Relevance
	}
	if a.Trust != b.Trust {
		return a.Trust < b.Trust
	}
	return a.Provenance > b.Provenance
}

// truncateSummaries compacts memory summaries and fact statements.
func (e *BudgetEnforcer) truncateSummaries(b *types.TurnBrief) bool {
	changed := false
	for i := range b.Memories {
		if truncated, ok := truncateText(b.Memories[i].Summary, e.summaryMaxChars); ok {
			b.Memories[i].Summary = truncated
			changed = true
		}
	}
	for i := range b.WorldState.Facts {
		if truncated, ok := truncateText(b.WorldState.Facts[i].Statement, e.summaryMaxChars); ok {
			b.WorldState.Facts[i].Statement = truncated
			changed = true
		}
	}
	if changed {
		e.remeasure(b)
	}
	return changed
}

// stripDetails removes non-critical entity fields from the masked
// world state. ID, Name and Position always survive.
func (e *BudgetEnforcer) stripDetails(b *types.TurnBrief) bool {
	changed := false
	strip := func(v *types.EntityView) {
		if v.Kind != "" || v.Faction != "" || len(v.Details) > 0 {
			v.Kind = ""
			v.Faction = ""
			v.Details = nil
			changed = true
		}
	}
	strip(&b.WorldState.Self)
	for i := range b.WorldState.Entities {
		strip(&b.WorldState.Entities[i])
	}
	if changed {
		e.remeasure(b)
	}
	return changed
}

// remeasure refreshes the brief's token accounting.
func (e *BudgetEnforcer) remeasure(b *types.TurnBrief) {
	b.Tokens = e.Measure(b)
	b.TokenCount = b.Tokens.Total
}

// countJSON counts the tokens of a section's rendered JSON form.
func (e *BudgetEnforcer) countJSON(v any) int {
	data, err := json.Marshal(v)
	if err != nil {
		// 这些段落类型不可能编码失败；兜底给个保守估计。
		return e.counter.CountTokens(fmt.Sprintf("%v", v))
	}
	return e.counter.CountTokens(string(data))
}

// truncateText shortens text to maxChars runes with an ellipsis.
func truncateText(text string, maxChars int) (string, bool) {
	if utf8.RuneCountInString(text) <= maxChars {
		return text, false
	}
	runes := []rune(text)
	if maxChars <= 1 {
		return "…", true
	}
	return string(runes[:maxChars-1]) + "…", true
}

// StampProvenance fills the brief's provenance list: every snippet's
// tag, plus the synthetic internal tag when the brief carries memory
// or world-state content. Sorted and deduplicated.
func StampProvenance(b *types.TurnBrief) {
	seen := make(map[string]bool)
	var tags []string
	add := func(tag string) {
		if !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}
	for _, s := range b.Snippets {
		add(s.Provenance)
	}
	add(types.InternalProvenance())
	sort.Strings(tags)
	b.Provenance = tags
}
