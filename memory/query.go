package memory

import (
	"sort"

	"go.uber.org/zap"

	"github.com/fableloom/chronicler/types"
)

// Scoring weights for turn recall. Stored relevance dominates, recency
// keeps recalled memories fresh, emotional charge biases what surfaces.
const (
	weightRelevance = 0.5
	weightRecency   = 0.3
	weightEmotional = 0.2

	// The turn-relevance blend between the stored score and the
	// overlap against the turn's keywords.
	blendStored  = 0.7
	blendOverlap = 0.3
)

// TurnContext is what the current turn is about, used to bias recall.
type TurnContext struct {
	Turn     int
	Intent   string
	Keywords []string
}

// ScoredMemory is one recall candidate with its turn score.
type ScoredMemory struct {
	Item  types.MemoryItem
	Score float64
}

// QueryEngine ranks memory items across all four tiers for one turn.
type QueryEngine struct {
	logger *zap.Logger
}

// NewQueryEngine creates a query engine.
func NewQueryEngine(logger *zap.Logger) *QueryEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryEngine{logger: logger.With(zap.String("component", "memory_query"))}
}

// SelectForTurn returns the top maxItems memories for the turn, scored
//
//	0.5·relevance + 0.3·recency + 0.2·emotional_intensity
//
// with recency = 1/(1+turnsSinceLastAccess) and relevance blending the
// stored score with keyword overlap against the turn context. The
// selection itself does not mutate the store; callers commit the
// access side effect with TouchSelected once the turn's decisions are
// final.
func (e *QueryEngine) SelectForTurn(store *LayeredStore, tc TurnContext, maxItems int) []ScoredMemory {
	if store == nil || maxItems <= 0 {
		return nil
	}

	terms := memoryTokenSet(tc.Intent)
	for _, kw := range tc.Keywords {
		for tok := range memoryTokenSet(kw) {
			terms[tok] = true
		}
	}

	var candidates []ScoredMemory
	for _, tier := range types.Tiers() {
		for _, item := range store.Items(tier) {
			candidates = append(candidates, ScoredMemory{
				Item:  item,
				Score: e.turnScore(item, tc.Turn, terms),
			})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Item.MemoryID < candidates[j].Item.MemoryID
	})
	if len(candidates) > maxItems {
		candidates = candidates[:maxItems]
	}
	return candidates
}

// SelectAndTouch is SelectForTurn plus the immediate access side
// effect, for standalone use outside the engine's commit phase.
func (e *QueryEngine) SelectAndTouch(store *LayeredStore, tc TurnContext, maxItems int) []ScoredMemory {
	selected := e.SelectForTurn(store, tc, maxItems)
	TouchSelected(store, selected, tc.Turn)
	return selected
}

// TouchSelected applies the recall side effect: each selected item's
// access count rises and its last-access turn moves forward, which is
// the mechanism by which frequently recalled memories resist eviction.
func TouchSelected(store *LayeredStore, selected []ScoredMemory, turn int) {
	for _, s := range selected {
		store.Touch(s.Item.MemoryID, turn)
	}
}

// turnScore computes the composite recall score for one item.
func (e *QueryEngine) turnScore(item types.MemoryItem, turn int, terms map[string]bool) float64 {
	turnsSince := turn - item.LastAccessedTurn
	if turnsSince < 0 {
		turnsSince = 0
	}
	recency := 1.0 / float64(1+turnsSince)

	relevance := item.RelevanceScore
	if len(terms) > 0 {
		relevance = blendStored*item.RelevanceScore + blendOverlap*itemOverlap(item, terms)
	}
	return weightRelevance*relevance + weightRecency*recency + weightEmotional*item.EmotionalIntensity
}
