package types

import (
	"encoding/json"
	"fmt"
)

// MemoryTier identifies one of the four bounded memory tiers.
type MemoryTier string

const (
	// MemoryWorking holds the short-horizon scratch state of the current
	// task. Smallest capacity, fastest turnover.
	MemoryWorking MemoryTier = "working"

	// MemoryEpisodic holds event records: what happened, where, with whom.
	MemoryEpisodic MemoryTier = "episodic"

	// MemorySemantic holds factual knowledge distilled from experience.
	MemorySemantic MemoryTier = "semantic"

	// MemoryEmotional holds affective associations that bias recall
	// and slow decay.
	MemoryEmotional MemoryTier = "emotional"
)

// Tiers lists all tiers in a stable order.
func Tiers() []MemoryTier {
	return []MemoryTier{MemoryWorking, MemoryEpisodic, MemorySemantic, MemoryEmotional}
}

// ParseTier converts a tier name to a MemoryTier.
func ParseTier(name string) (MemoryTier, error) {
	switch MemoryTier(name) {
	case MemoryWorking, MemoryEpisodic, MemorySemantic, MemoryEmotional:
		return MemoryTier(name), nil
	default:
		return "", NewError(ErrValidation, fmt.Sprintf("unknown memory tier %q", name))
	}
}

// TierPayload is the tagged variant carried by a MemoryItem. The concrete
// type is selected by the item's Tier discriminator, never by probing
// attributes at runtime.
type TierPayload interface {
	Tier() MemoryTier
}

// WorkingPayload is the working-tier variant.
type WorkingPayload struct {
	ExpiryTurn int `json:"expiry_turn,omitempty"`
}

// Tier implements TierPayload.
func (WorkingPayload) Tier() MemoryTier { return MemoryWorking }

// EpisodicPayload is the episodic-tier variant describing one event.
type EpisodicPayload struct {
	Location     string   `json:"location,omitempty"`
	Participants []string `json:"participants,omitempty"`
	Outcome      string   `json:"outcome,omitempty"`
}

// Tier implements TierPayload.
func (EpisodicPayload) Tier() MemoryTier { return MemoryEpisodic }

// SemanticPayload is the semantic-tier variant holding one fact triple.
type SemanticPayload struct {
	Subject    string  `json:"subject"`
	Predicate  string  `json:"predicate"`
	Object     string  `json:"object"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Tier implements TierPayload.
func (SemanticPayload) Tier() MemoryTier { return MemorySemantic }

// EmotionalPayload is the emotional-tier variant.
type EmotionalPayload struct {
	Emotion   string  `json:"emotion"`
	Valence   float64 `json:"valence"`
	TriggerID string  `json:"trigger_id,omitempty"`
}

// Tier implements TierPayload.
func (EmotionalPayload) Tier() MemoryTier { return MemoryEmotional }

// MemoryItem is one record in an agent's layered memory. Timestamps are
// simulation turn numbers, not wall-clock time. An item belongs to exactly
// one agent's store; cross-agent knowledge moves only through visibility
// channels, never by sharing items.
type MemoryItem struct {
	MemoryID           string      `json:"memory_id"`
	AgentID            string      `json:"agent_id"`
	Tier               MemoryTier  `json:"tier"`
	Content            string      `json:"content"`
	EmotionalIntensity float64     `json:"emotional_intensity"`
	RelevanceScore     float64     `json:"relevance_score"`
	AccessCount        int         `json:"access_count"`
	CreatedTurn        int         `json:"created_turn"`
	LastAccessedTurn   int         `json:"last_accessed_turn"`
	ContextTags        []string    `json:"context_tags,omitempty"`
	AssociatedAgents   []string    `json:"associated_agents,omitempty"`
	Payload            TierPayload `json:"payload,omitempty"`
}

// Validate checks structural integrity. Invalid items are rejected with
// a VALIDATION error, skipped and logged by the caller.
func (m MemoryItem) Validate() error {
	if m.MemoryID == "" {
		return NewError(ErrValidation, "memory_id is empty")
	}
	if m.AgentID == "" {
		return NewError(ErrValidation, "agent_id is empty")
	}
	if m.Content == "" {
		return NewError(ErrValidation, "content is empty")
	}
	if _, err := ParseTier(string(m.Tier)); err != nil {
		return err
	}
	if m.EmotionalIntensity < 0 || m.EmotionalIntensity > 1 {
		return NewError(ErrValidation, fmt.Sprintf("emotional_intensity %.3f out of [0,1]", m.EmotionalIntensity))
	}
	if m.RelevanceScore < 0 || m.RelevanceScore > 1 {
		return NewError(ErrValidation, fmt.Sprintf("relevance_score %.3f out of [0,1]", m.RelevanceScore))
	}
	if m.Payload != nil && m.Payload.Tier() != m.Tier {
		return NewError(ErrValidation,
			fmt.Sprintf("payload variant %s does not match tier %s", m.Payload.Tier(), m.Tier))
	}
	return nil
}

// Touch records an access at the given turn.
func (m *MemoryItem) Touch(turn int) {
	m.AccessCount++
	if turn > m.LastAccessedTurn {
		m.LastAccessedTurn = turn
	}
}

// Clone returns a deep copy of the item.
func (m MemoryItem) Clone() MemoryItem {
	out := m
	if m.ContextTags != nil {
		out.ContextTags = append([]string(nil), m.ContextTags...)
	}
	if m.AssociatedAgents != nil {
		out.AssociatedAgents = append([]string(nil), m.AssociatedAgents...)
	}
	if p, ok := m.Payload.(EpisodicPayload); ok && p.Participants != nil {
		p.Participants = append([]string(nil), p.Participants...)
		out.Payload = p
	}
	return out
}

// memoryItemAlias breaks MarshalJSON/UnmarshalJSON recursion.
type memoryItemAlias MemoryItem

// UnmarshalJSON decodes the payload into the variant named by the tier
// discriminator.
func (m *MemoryItem) UnmarshalJSON(data []byte) error {
	aux := struct {
		*memoryItemAlias
		Payload json.RawMessage `json:"payload,omitempty"`
	}{memoryItemAlias: (*memoryItemAlias)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	payload, err := DecodePayload(m.Tier, aux.Payload)
	if err != nil {
		return err
	}
	m.Payload = payload
	return nil
}

// DecodePayload unmarshals a raw payload into the variant selected by
// the tier discriminator. Empty or null input yields a nil payload.
func DecodePayload(tier MemoryTier, data []byte) (TierPayload, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	switch tier {
	case MemoryWorking:
		var p WorkingPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case MemoryEpisodic:
		var p EpisodicPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case MemorySemantic:
		var p SemanticPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case MemoryEmotional:
		var p EmotionalPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, NewError(ErrValidation, fmt.Sprintf("unknown memory tier %q", tier))
	}
}

// MemoryStats summarizes a layered store.
type MemoryStats struct {
	TotalItems   int                `json:"total_items"`
	ByTier       map[MemoryTier]int `json:"by_tier"`
	Evictions    int64              `json:"evictions"`
	Promotions   int64              `json:"promotions"`
	Merges       int64              `json:"merges"`
	OldestTurn   int                `json:"oldest_turn,omitempty"`
	NewestTurn   int                `json:"newest_turn,omitempty"`
	CurrentTurn  int                `json:"current_turn"`
	AgentID      string             `json:"agent_id,omitempty"`
	SnapshotTurn int                `json:"snapshot_turn,omitempty"`
}
