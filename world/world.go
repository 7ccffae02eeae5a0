package world

import (
	"github.com/fableloom/chronicler/types"
)

// CapabilityRadio marks an entity as reachable over the radio channel.
const CapabilityRadio = "radio"

// Entity is one thing in the world: a character, a site, an item.
type Entity struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Kind         string            `json:"kind,omitempty"`
	FactionID    string            `json:"faction_id,omitempty"`
	Position     types.Position    `json:"position"`
	Capabilities []string          `json:"capabilities,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
}

// HasCapability reports whether the entity carries the named capability.
func (e Entity) HasCapability(name string) bool {
	for _, c := range e.Capabilities {
		if c == name {
			return true
		}
	}
	return false
}

// View renders the entity as the brief-facing view type.
func (e Entity) View() types.EntityView {
	v := types.EntityView{
		ID:       e.ID,
		Name:     e.Name,
		Kind:     e.Kind,
		Faction:  e.FactionID,
		Position: e.Position,
	}
	if len(e.Details) > 0 {
		v.Details = make(map[string]string, len(e.Details))
		for k, val := range e.Details {
			v.Details[k] = val
		}
	}
	return v
}

// Fact is a world-level statement tied to the entities it mentions.
type Fact struct {
	ID         string   `json:"id"`
	Statement  string   `json:"statement"`
	EntityRefs []string `json:"entity_refs,omitempty"`
	Turn       int      `json:"turn"`
}

// Faction groups entities and names its allies. Alliance is directional
// as declared; visibility treats an intel hop as valid when either side
// declares the other an ally.
type Faction struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Allies []string `json:"allies,omitempty"`
}

// State is the world snapshot for one turn. It is read-only while a turn
// is being assembled; concurrent readers are safe, writers must work on
// a Clone.
type State struct {
	Turn     int                `json:"turn"`
	Entities map[string]Entity  `json:"entities"`
	Factions map[string]Faction `json:"factions,omitempty"`
	Facts    []Fact             `json:"facts,omitempty"`
}

// NewState creates an empty snapshot for the given turn.
func NewState(turn int) *State {
	return &State{
		Turn:     turn,
		Entities: make(map[string]Entity),
		Factions: make(map[string]Faction),
	}
}

// Entity looks up an entity by ID.
func (s *State) Entity(id string) (Entity, bool) {
	e, ok := s.Entities[id]
	return e, ok
}

// Allied reports whether the two factions are allies in either
// direction. A faction is not its own ally.
func (s *State) Allied(a, b string) bool {
	if a == "" || b == "" || a == b {
		return false
	}
	if f, ok := s.Factions[a]; ok {
		for _, ally := range f.Allies {
			if ally == b {
				return true
			}
		}
	}
	if f, ok := s.Factions[b]; ok {
		for _, ally := range f.Allies {
			if ally == a {
				return true
			}
		}
	}
	return false
}

// FactsReferencing returns facts that mention at least one of the given
// entity IDs, preserving declaration order.
func (s *State) FactsReferencing(ids map[string]bool) []Fact {
	if len(ids) == 0 {
		return nil
	}
	var out []Fact
	for _, f := range s.Facts {
		for _, ref := range f.EntityRefs {
			if ids[ref] {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

// Clone returns a deep copy of the snapshot.
func (s *State) Clone() *State {
	out := &State{
		Turn:     s.Turn,
		Entities: make(map[string]Entity, len(s.Entities)),
		Factions: make(map[string]Faction, len(s.Factions)),
		Facts:    append([]Fact(nil), s.Facts...),
	}
	for id, e := range s.Entities {
		if e.Capabilities != nil {
			e.Capabilities = append([]string(nil), e.Capabilities...)
		}
		if e.Details != nil {
			details := make(map[string]string, len(e.Details))
			for k, v := range e.Details {
				details[k] = v
			}
			e.Details = details
		}
		out.Entities[id] = e
	}
	for id, f := range s.Factions {
		if f.Allies != nil {
			f.Allies = append([]string(nil), f.Allies...)
		}
		out.Factions[id] = f
	}
	for i, f := range out.Facts {
		if f.EntityRefs != nil {
			out.Facts[i].EntityRefs = append([]string(nil), f.EntityRefs...)
		}
	}
	return out
}

// AtTurn returns a deep copy of the snapshot stamped with the given
// turn number. Used when the upstream simulation does not post a fresh
// snapshot and the previous one carries over.
func (s *State) AtTurn(turn int) *State {
	out := s.Clone()
	out.Turn = turn
	return out
}
