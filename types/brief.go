package types

import "time"

// DegradeReason explains why a brief was emitted in degraded mode.
type DegradeReason string

const (
	// DegradeNone marks a fully assembled brief.
	DegradeNone DegradeReason = ""
	// DegradeIndexUnavailable marks a memory-only brief assembled after
	// the knowledge index was unreachable or timed out.
	DegradeIndexUnavailable DegradeReason = "index_unavailable"
	// DegradeBudgetFallback marks the minimal fallback brief substituted
	// when pruning could not satisfy the token budget.
	DegradeBudgetFallback DegradeReason = "budget_unsatisfiable"
)

// EntityView is one entity as an agent is allowed to see it. Identity
// (ID, Name) and Position are critical fields and survive every budget
// pruning stage; Kind, Faction and Details may be stripped under pressure.
type EntityView struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Kind     string            `json:"kind,omitempty"`
	Faction  string            `json:"faction,omitempty"`
	Position Position          `json:"position"`
	Details  map[string]string `json:"details,omitempty"`
}

// LastKnownView is a stale sighting retained after an entity left range.
// Confidence decays per elapsed turn; records below the floor are dropped
// before assembly.
type LastKnownView struct {
	EntityID     string   `json:"entity_id"`
	Name         string   `json:"name,omitempty"`
	Position     Position `json:"position"`
	LastSeenTurn int      `json:"last_seen_turn"`
	Confidence   float64  `json:"confidence"`
}

// FactView is a world fact visible to the agent. The statement may be
// truncated by budget enforcement.
type FactView struct {
	ID        string `json:"id"`
	Statement string `json:"statement"`
	Turn      int    `json:"turn"`
}

// MaskedWorldState is the fog-of-war view of the world granted to one
// agent for one turn.
type MaskedWorldState struct {
	Turn      int             `json:"turn"`
	Self      EntityView      `json:"self"`
	Entities  []EntityView    `json:"entities,omitempty"`
	LastKnown []LastKnownView `json:"last_known,omitempty"`
	Facts     []FactView      `json:"facts,omitempty"`
}

// BriefSnippet is a knowledge snippet as rendered into a brief.
type BriefSnippet struct {
	Content    string  `json:"content"`
	Provenance string  `json:"provenance"`
	Relevance  float64 `json:"relevance"`
	Trust      float64 `json:"trust"`
}

// BriefMemory is a recalled memory as rendered into a brief. Provenance
// is always the synthetic internal tag. The summary may be truncated by
// budget enforcement.
type BriefMemory struct {
	MemoryID   string     `json:"memory_id"`
	Tier       MemoryTier `json:"tier"`
	Summary    string     `json:"summary"`
	Score      float64    `json:"score"`
	Provenance string     `json:"provenance"`
}

// TokenBreakdown records where the brief's tokens went.
type TokenBreakdown struct {
	WorldTokens   int `json:"world_tokens"`
	SnippetTokens int `json:"snippet_tokens"`
	MemoryTokens  int `json:"memory_tokens"`
	Total         int `json:"total"`
}

// Add accumulates another breakdown into this one.
func (b *TokenBreakdown) Add(other TokenBreakdown) {
	b.WorldTokens += other.WorldTokens
	b.SnippetTokens += other.SnippetTokens
	b.MemoryTokens += other.MemoryTokens
	b.Total += other.Total
}

// TurnBrief is the bounded, provenance-tagged context bundle assembled
// for one agent on one turn. A brief is created fresh each turn and is
// immutable once emitted; consumers receive copies.
type TurnBrief struct {
	BriefID        string           `json:"brief_id"`
	AgentID        string           `json:"agent_id"`
	TurnID         string           `json:"turn_id"`
	Turn           int              `json:"turn"`
	WorldState     MaskedWorldState `json:"world_state"`
	Snippets       []BriefSnippet   `json:"snippets,omitempty"`
	Memories       []BriefMemory    `json:"memories,omitempty"`
	TokenCount     int              `json:"token_count"`
	Tokens         TokenBreakdown   `json:"tokens"`
	Provenance     []string         `json:"provenance,omitempty"`
	Degraded       bool             `json:"degraded,omitempty"`
	DegradedReason DegradeReason    `json:"degraded_reason,omitempty"`
	AssembledAt    time.Time        `json:"assembled_at"`
}

// Status classifies the brief for metrics and consumers: "ok",
// "degraded" (memory-only), or "fallback" (minimal identity brief).
func (b TurnBrief) Status() string {
	switch b.DegradedReason {
	case DegradeBudgetFallback:
		return "fallback"
	case DegradeNone:
		if b.Degraded {
			return "degraded"
		}
		return "ok"
	default:
		return "degraded"
	}
}

// Clone returns a deep copy of the brief.
func (b TurnBrief) Clone() TurnBrief {
	out := b
	out.Snippets = append([]BriefSnippet(nil), b.Snippets...)
	out.Memories = append([]BriefMemory(nil), b.Memories...)
	out.Provenance = append([]string(nil), b.Provenance...)
	out.WorldState = b.WorldState.Clone()
	return out
}

// Clone returns a deep copy of the masked state.
func (w MaskedWorldState) Clone() MaskedWorldState {
	out := w
	out.Self = w.Self.Clone()
	if w.Entities != nil {
		out.Entities = make([]EntityView, len(w.Entities))
		for i, e := range w.Entities {
			out.Entities[i] = e.Clone()
		}
	}
	out.LastKnown = append([]LastKnownView(nil), w.LastKnown...)
	out.Facts = append([]FactView(nil), w.Facts...)
	return out
}

// Clone returns a deep copy of the view.
func (e EntityView) Clone() EntityView {
	out := e
	if e.Details != nil {
		out.Details = make(map[string]string, len(e.Details))
		for k, v := range e.Details {
			out.Details[k] = v
		}
	}
	return out
}
