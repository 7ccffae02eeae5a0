package types

import "fmt"

// Channel identifies a perception channel through which an agent
// receives information about the world.
type Channel string

const (
	// ChannelVisual grants sight of entities within euclidean range.
	ChannelVisual Channel = "visual"
	// ChannelRadio grants contact with radio-capable entities in range.
	// The observer itself must also hold the radio capability.
	ChannelRadio Channel = "radio"
	// ChannelIntel grants knowledge of same-faction entities plus
	// entities exactly one allied-faction hop away. The single-hop
	// bound is a hard rule: multi-hop propagation changes the
	// information-flow guarantees and must not be introduced.
	ChannelIntel Channel = "intel"
)

// KnowledgeScope declares one perception channel an agent can use and
// the range it covers. An agent with no scopes perceives nothing.
type KnowledgeScope struct {
	Channel Channel `json:"channel"`
	Range   float64 `json:"range"`
}

// Validate checks the scope declaration.
func (s KnowledgeScope) Validate() error {
	switch s.Channel {
	case ChannelVisual, ChannelRadio, ChannelIntel:
	default:
		return NewError(ErrValidation, fmt.Sprintf("unknown channel %q", s.Channel))
	}
	if s.Range < 0 {
		return NewError(ErrValidation, fmt.Sprintf("negative range %.2f", s.Range))
	}
	return nil
}
