package memory

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"

	"github.com/fableloom/chronicler/config"
	"github.com/fableloom/chronicler/types"
)

// LayeredStore is one agent's four-tier bounded memory. Reads are safe
// for concurrent callers; writes belong in the engine's serialized
// commit phase, the internal lock is a second line of defense.
type LayeredStore struct {
	agentID string
	cfg     config.MemoryConfig
	logger  *zap.Logger

	mu    sync.RWMutex
	turn  int
	tiers map[types.MemoryTier][]types.MemoryItem

	evictions  int64
	promotions int64
	merges     int64
}

// ConsolidationReport summarizes one Consolidate run.
type ConsolidationReport struct {
	Promoted int `json:"promoted"`
	Merged   int `json:"merged"`
}

// Changed reports whether the run mutated the store.
func (r ConsolidationReport) Changed() bool {
	return r.Promoted > 0 || r.Merged > 0
}

// NewLayeredStore creates the store for one agent. Zero or negative
// tier capacities are a configuration fault, refused at construction
// rather than discovered per store call.
func NewLayeredStore(agentID string, cfg config.MemoryConfig, logger *zap.Logger) (*LayeredStore, error) {
	if agentID == "" {
		return nil, types.NewError(types.ErrInvalidConfiguration, "memory store requires an agent id")
	}
	for tier, capacity := range map[types.MemoryTier]int{
		types.MemoryWorking:   cfg.WorkingCapacity,
		types.MemoryEpisodic:  cfg.EpisodicCapacity,
		types.MemorySemantic:  cfg.SemanticCapacity,
		types.MemoryEmotional: cfg.EmotionalCapacity,
	} {
		if capacity <= 0 {
			return nil, types.NewError(types.ErrInvalidConfiguration,
				fmt.Sprintf("%s tier capacity %d must be positive", tier, capacity))
		}
	}
	if cfg.DecayHalfLifeTurns <= 0 {
		return nil, types.NewError(types.ErrInvalidConfiguration,
			fmt.Sprintf("decay half-life %d must be positive", cfg.DecayHalfLifeTurns))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	tiers := make(map[types.MemoryTier][]types.MemoryItem, 4)
	for _, tier := range types.Tiers() {
		tiers[tier] = nil
	}
	return &LayeredStore{
		agentID: agentID,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "memory"), zap.String("agent_id", agentID)),
		tiers:   tiers,
	}, nil
}

// AgentID returns the owning agent.
func (s *LayeredStore) AgentID() string { return s.agentID }

// AdvanceTurn moves the store's clock forward. Turn numbers never go
// backwards.
func (s *LayeredStore) AdvanceTurn(turn int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if turn > s.turn {
		s.turn = turn
	}
}

// Turn returns the store's current turn.
func (s *LayeredStore) Turn() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.turn
}

// capacity returns the configured bound for a tier.
func (s *LayeredStore) capacity(tier types.MemoryTier) int {
	switch tier {
	case types.MemoryWorking:
		return s.cfg.WorkingCapacity
	case types.MemoryEpisodic:
		return s.cfg.EpisodicCapacity
	case types.MemorySemantic:
		return s.cfg.SemanticCapacity
	default:
		return s.cfg.EmotionalCapacity
	}
}

// Store validates and inserts an item into the tier named by its
// discriminator, then evicts that tier back under capacity. Malformed
// items and items owned by another agent are refused with VALIDATION.
func (s *LayeredStore) Store(item types.MemoryItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	if item.AgentID != s.agentID {
		return types.NewError(types.ErrValidation,
			fmt.Sprintf("item %s belongs to agent %q, store owned by %q", item.MemoryID, item.AgentID, s.agentID))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.tiers[item.Tier] {
		if existing.MemoryID == item.MemoryID {
			return types.NewError(types.ErrValidation,
				fmt.Sprintf("duplicate memory id %s in %s tier", item.MemoryID, item.Tier))
		}
	}
	s.tiers[item.Tier] = append(s.tiers[item.Tier], item.Clone())
	s.evictTierLocked(item.Tier)
	return nil
}

// evictTierLocked removes the lowest-scoring items until the tier fits
// its capacity. The composite score is recomputed at eviction time,
// never cached.
func (s *LayeredStore) evictTierLocked(tier types.MemoryTier) {
	items := s.tiers[tier]
	capacity := s.capacity(tier)
	for len(items) > capacity {
		victim := 0
		victimScore := s.retentionScore(items[0])
		for i := 1; i < len(items); i++ {
			score := s.retentionScore(items[i])
			if score < victimScore || (score == victimScore && olderItem(items[i], items[victim])) {
				victim = i
				victimScore = score
			}
		}
		s.logger.Debug("evicting memory",
			zap.String("tier", string(tier)),
			zap.String("memory_id", items[victim].MemoryID),
			zap.Float64("score", victimScore))
		items = append(items[:victim], items[victim+1:]...)
		s.evictions++
	}
	s.tiers[tier] = items
}

// retentionScore is relevance · decay(age) · (1 + 0.5·emotional).
// Emotionally charged memories resist eviction, stale ones lose out.
func (s *LayeredStore) retentionScore(item types.MemoryItem) float64 {
	age := s.turn - item.LastAccessedTurn
	return item.RelevanceScore * decay(age, s.cfg.DecayHalfLifeTurns) * (1 + 0.5*item.EmotionalIntensity)
}

// olderItem gives eviction ties a total order: oldest access first,
// then smallest memory id.
func olderItem(a, b types.MemoryItem) bool {
	if a.LastAccessedTurn != b.LastAccessedTurn {
		return a.LastAccessedTurn < b.LastAccessedTurn
	}
	return a.MemoryID < b.MemoryID
}

// decay halves once per halfLife elapsed turns.
func decay(age, halfLife int) float64 {
	if age <= 0 {
		return 1.0
	}
	return math.Exp(-math.Ln2 * float64(age) / float64(halfLife))
}

// Touch records an access to the item at the given turn. Returns false
// when the item is no longer in the store (evicted between selection
// and commit).
func (s *LayeredStore) Touch(memoryID string, turn int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tier, items := range s.tiers {
		for i := range items {
			if items[i].MemoryID == memoryID {
				items[i].Touch(turn)
				s.tiers[tier] = items
				return true
			}
		}
	}
	return false
}

// Retrieve ranks items across every tier against a free-text query:
// term overlap against content and tags, weighted by stored relevance.
func (s *LayeredStore) Retrieve(query string, limit int) []types.MemoryItem {
	if limit <= 0 {
		return nil
	}
	terms := memoryTokenSet(query)

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		item  types.MemoryItem
		score float64
	}
	var candidates []scored
	for _, tier := range types.Tiers() {
		for _, item := range s.tiers[tier] {
			overlap := itemOverlap(item, terms)
			if overlap == 0 && len(terms) > 0 {
				continue
			}
			candidates = append(candidates, scored{
				item:  item,
				score: 0.5*overlap + 0.5*item.RelevanceScore,
			})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].item.MemoryID < candidates[j].item.MemoryID
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]types.MemoryItem, len(candidates))
	for i, c := range candidates {
		out[i] = c.item.Clone()
	}
	return out
}

// Consolidate runs the short-to-long-term transfer: working items at
// or above the promotion threshold become episodic memories, and
// near-duplicate semantic items collapse into the higher-confidence
// one. Idempotent: a second run with no intervening writes changes
// nothing.
func (s *LayeredStore) Consolidate() ConsolidationReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report ConsolidationReport
	report.Promoted = s.promoteWorkingLocked()
	report.Merged = s.mergeSemanticLocked()
	if report.Changed() {
		s.logger.Debug("consolidated memory",
			zap.Int("promoted", report.Promoted),
			zap.Int("merged", report.Merged))
	}
	return report
}

// promoteWorkingLocked re-tags qualifying working items as episodic.
// The working payload does not survive the transfer; the promoted item
// records the turn span it covered as an episode outcome.
func (s *LayeredStore) promoteWorkingLocked() int {
	var kept []types.MemoryItem
	promoted := 0
	for _, item := range s.tiers[types.MemoryWorking] {
		if item.RelevanceScore < s.cfg.PromotionThreshold {
			kept = append(kept, item)
			continue
		}
		episodic := item.Clone()
		episodic.Tier = types.MemoryEpisodic
		episodic.Payload = types.EpisodicPayload{
			Participants: append([]string(nil), item.AssociatedAgents...),
			Outcome:      fmt.Sprintf("promoted from working memory at turn %d", s.turn),
		}
		s.tiers[types.MemoryEpisodic] = append(s.tiers[types.MemoryEpisodic], episodic)
		promoted++
		s.promotions++
	}
	s.tiers[types.MemoryWorking] = kept
	if promoted > 0 {
		s.evictTierLocked(types.MemoryEpisodic)
	}
	return promoted
}

// mergeSemanticLocked collapses duplicate facts. Two semantic items
// are duplicates when they share a subject+predicate or their contents
// overlap at or above the merge similarity. The survivor is the higher
// confidence, then higher relevance, then smaller id.
func (s *LayeredStore) mergeSemanticLocked() int {
	items := s.tiers[types.MemorySemantic]
	if len(items) < 2 {
		return 0
	}
	sort.Slice(items, func(i, j int) bool { return items[i].MemoryID < items[j].MemoryID })

	dropped := make(map[int]bool)
	merged := 0
	for i := 0; i < len(items); i++ {
		if dropped[i] {
			continue
		}
		for j := i + 1; j < len(items); j++ {
			if dropped[j] {
				continue
			}
			if !semanticDuplicates(items[i], items[j], s.cfg.MergeSimilarity) {
				continue
			}
			if semanticOutranks(items[j], items[i]) {
				dropped[i] = true
				merged++
				s.merges++
				break
			}
			dropped[j] = true
			merged++
			s.merges++
		}
	}
	if merged == 0 {
		return 0
	}
	var kept []types.MemoryItem
	for i, item := range items {
		if !dropped[i] {
			kept = append(kept, item)
		}
	}
	s.tiers[types.MemorySemantic] = kept
	return merged
}

// semanticDuplicates reports whether two facts say the same thing.
func semanticDuplicates(a, b types.MemoryItem, threshold float64) bool {
	pa, aok := a.Payload.(types.SemanticPayload)
	pb, bok := b.Payload.(types.SemanticPayload)
	if aok && bok && pa.Subject != "" && pa.Subject == pb.Subject && pa.Predicate == pb.Predicate {
		return true
	}
	return contentSimilarity(a.Content, b.Content) >= threshold
}

// semanticOutranks reports whether a survives a merge against b.
func semanticOutranks(a, b types.MemoryItem) bool {
	ca, cb := semanticConfidence(a), semanticConfidence(b)
	if ca != cb {
		return ca > cb
	}
	if a.RelevanceScore != b.RelevanceScore {
		return a.RelevanceScore > b.RelevanceScore
	}
	return a.MemoryID < b.MemoryID
}

func semanticConfidence(item types.MemoryItem) float64 {
	if p, ok := item.Payload.(types.SemanticPayload); ok {
		return p.Confidence
	}
	return 0
}

// Items returns a copy of one tier, ordered by memory id.
func (s *LayeredStore) Items(tier types.MemoryTier) []types.MemoryItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.MemoryItem, 0, len(s.tiers[tier]))
	for _, item := range s.tiers[tier] {
		out = append(out, item.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MemoryID < out[j].MemoryID })
	return out
}

// Len returns the item count of one tier.
func (s *LayeredStore) Len(tier types.MemoryTier) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tiers[tier])
}

// Snapshot exports every item for persistence, ordered by tier then id.
func (s *LayeredStore) Snapshot() []types.MemoryItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.MemoryItem
	for _, tier := range types.Tiers() {
		items := append([]types.MemoryItem(nil), s.tiers[tier]...)
		sort.Slice(items, func(i, j int) bool { return items[i].MemoryID < items[j].MemoryID })
		for _, item := range items {
			out = append(out, item.Clone())
		}
	}
	return out
}

// Restore replaces the store's contents from a snapshot. Malformed
// items are skipped and logged, matching per-unit error policy; tiers
// are re-bounded after load.
func (s *LayeredStore) Restore(items []types.MemoryItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tier := range types.Tiers() {
		s.tiers[tier] = nil
	}
	for _, item := range items {
		if err := item.Validate(); err != nil {
			s.logger.Warn("skipping invalid memory in snapshot",
				zap.String("memory_id", item.MemoryID), zap.Error(err))
			continue
		}
		if item.AgentID != s.agentID {
			s.logger.Warn("skipping foreign memory in snapshot",
				zap.String("memory_id", item.MemoryID), zap.String("owner", item.AgentID))
			continue
		}
		s.tiers[item.Tier] = append(s.tiers[item.Tier], item.Clone())
		if item.LastAccessedTurn > s.turn {
			s.turn = item.LastAccessedTurn
		}
	}
	for _, tier := range types.Tiers() {
		s.evictTierLocked(tier)
	}
}

// Stats summarizes the store.
func (s *LayeredStore) Stats() types.MemoryStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := types.MemoryStats{
		AgentID:     s.agentID,
		CurrentTurn: s.turn,
		ByTier:      make(map[types.MemoryTier]int, 4),
		Evictions:   s.evictions,
		Promotions:  s.promotions,
		Merges:      s.merges,
	}
	first := true
	for _, tier := range types.Tiers() {
		stats.ByTier[tier] = len(s.tiers[tier])
		stats.TotalItems += len(s.tiers[tier])
		for _, item := range s.tiers[tier] {
			if first || item.CreatedTurn < stats.OldestTurn {
				stats.OldestTurn = item.CreatedTurn
			}
			if first || item.CreatedTurn > stats.NewestTurn {
				stats.NewestTurn = item.CreatedTurn
			}
			first = false
		}
	}
	return stats
}

// memoryTokenSet lowercases and splits text into letter/digit runs.
func memoryTokenSet(text string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

// contentSimilarity is the jaccard overlap of two token sets.
func contentSimilarity(a, b string) float64 {
	sa, sb := memoryTokenSet(a), memoryTokenSet(b)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}
	inter := 0
	for tok := range sa {
		if sb[tok] {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

// itemOverlap measures how many query terms the item's content and
// tags cover, normalized by the query size.
func itemOverlap(item types.MemoryItem, terms map[string]bool) float64 {
	if len(terms) == 0 {
		return 0
	}
	itemTerms := memoryTokenSet(item.Content)
	for _, tag := range item.ContextTags {
		for tok := range memoryTokenSet(tag) {
			itemTerms[tok] = true
		}
	}
	hit := 0
	for tok := range terms {
		if itemTerms[tok] {
			hit++
		}
	}
	return float64(hit) / float64(len(terms))
}
