package world

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/fableloom/chronicler/types"
)

// Scenario is the YAML-authored description of a simulation: the initial
// world snapshot, the roster of agents, the provenance sources, and the
// knowledge snippets seeded into the local index.
type Scenario struct {
	Name     string        `yaml:"name"`
	World    WorldSpec     `yaml:"world"`
	Agents   []AgentSpec   `yaml:"agents"`
	Sources  []SourceSeed  `yaml:"sources"`
	Snippets []SnippetSeed `yaml:"snippets"`
}

// WorldSpec is the YAML shape of the initial world state.
type WorldSpec struct {
	Turn     int           `yaml:"turn"`
	Factions []FactionSpec `yaml:"factions"`
	Entities []EntitySpec  `yaml:"entities"`
	Facts    []FactSpec    `yaml:"facts"`
}

// FactionSpec declares a faction and its allies.
type FactionSpec struct {
	ID     string   `yaml:"id"`
	Name   string   `yaml:"name"`
	Allies []string `yaml:"allies"`
}

// EntitySpec declares one entity.
type EntitySpec struct {
	ID           string            `yaml:"id"`
	Name         string            `yaml:"name"`
	Kind         string            `yaml:"kind"`
	Faction      string            `yaml:"faction"`
	Position     PositionSpec      `yaml:"position"`
	Capabilities []string          `yaml:"capabilities"`
	Details      map[string]string `yaml:"details"`
}

// PositionSpec is a YAML coordinate pair.
type PositionSpec struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// FactSpec declares one world fact.
type FactSpec struct {
	ID         string   `yaml:"id"`
	Statement  string   `yaml:"statement"`
	EntityRefs []string `yaml:"entity_refs"`
	Turn       int      `yaml:"turn"`
}

// AgentSpec binds an entity to agent behavior: its perception scopes,
// its current intent, and the memories it starts with.
type AgentSpec struct {
	Entity       string       `yaml:"entity"`
	Intent       string       `yaml:"intent"`
	Scopes       []ScopeSpec  `yaml:"scopes"`
	SeedMemories []MemorySeed `yaml:"seed_memories"`
}

// ScopeSpec is the YAML shape of a perception scope.
type ScopeSpec struct {
	Channel string  `yaml:"channel"`
	Range   float64 `yaml:"range"`
}

// Scope converts the spec to the shared scope type.
func (s ScopeSpec) Scope() types.KnowledgeScope {
	return types.KnowledgeScope{Channel: types.Channel(s.Channel), Range: s.Range}
}

// SourceSeed registers one provenance source.
type SourceSeed struct {
	ID      string  `yaml:"id"`
	Version string  `yaml:"version"`
	Title   string  `yaml:"title"`
	Trust   float64 `yaml:"trust"`
}

// SnippetSeed is one knowledge snippet loaded into the local index.
type SnippetSeed struct {
	Content       string    `yaml:"content"`
	SourceID      string    `yaml:"source_id"`
	SourceVersion string    `yaml:"source_version"`
	Trust         float64   `yaml:"trust"`
	Embedding     []float64 `yaml:"embedding"`
}

// Snippet converts the seed to the shared snippet type. Relevance is
// left zero; the index computes it per query.
func (s SnippetSeed) Snippet() types.KnowledgeSnippet {
	return types.KnowledgeSnippet{
		Content:       s.Content,
		SourceID:      s.SourceID,
		SourceVersion: s.SourceVersion,
		TrustScore:    s.Trust,
		Embedding:     append([]float64(nil), s.Embedding...),
	}
}

// MemorySeed is one memory item an agent starts the simulation with.
// Tier-specific fields are read according to the declared tier.
type MemorySeed struct {
	Tier               string   `yaml:"tier"`
	Content            string   `yaml:"content"`
	Relevance          float64  `yaml:"relevance"`
	EmotionalIntensity float64  `yaml:"emotional_intensity"`
	Tags               []string `yaml:"tags"`

	// episodic
	Location     string   `yaml:"location"`
	Participants []string `yaml:"participants"`
	Outcome      string   `yaml:"outcome"`

	// semantic
	Subject    string  `yaml:"subject"`
	Predicate  string  `yaml:"predicate"`
	Object     string  `yaml:"object"`
	Confidence float64 `yaml:"confidence"`

	// emotional
	Emotion   string  `yaml:"emotion"`
	Valence   float64 `yaml:"valence"`
	TriggerID string  `yaml:"trigger_id"`

	// working
	ExpiryTurn int `yaml:"expiry_turn"`
}

// Item builds a validated MemoryItem owned by the given agent.
func (s MemorySeed) Item(agentID string, turn int) (types.MemoryItem, error) {
	tier, err := types.ParseTier(s.Tier)
	if err != nil {
		return types.MemoryItem{}, err
	}
	item := types.MemoryItem{
		MemoryID:           uuid.NewString(),
		AgentID:            agentID,
		Tier:               tier,
		Content:            s.Content,
		RelevanceScore:     s.Relevance,
		EmotionalIntensity: s.EmotionalIntensity,
		CreatedTurn:        turn,
		LastAccessedTurn:   turn,
		ContextTags:        append([]string(nil), s.Tags...),
	}
	switch tier {
	case types.MemoryWorking:
		item.Payload = types.WorkingPayload{ExpiryTurn: s.ExpiryTurn}
	case types.MemoryEpisodic:
		item.Payload = types.EpisodicPayload{
			Location:     s.Location,
			Participants: append([]string(nil), s.Participants...),
			Outcome:      s.Outcome,
		}
		item.AssociatedAgents = append([]string(nil), s.Participants...)
	case types.MemorySemantic:
		item.Payload = types.SemanticPayload{
			Subject:    s.Subject,
			Predicate:  s.Predicate,
			Object:     s.Object,
			Confidence: s.Confidence,
		}
	case types.MemoryEmotional:
		item.Payload = types.EmotionalPayload{
			Emotion:   s.Emotion,
			Valence:   s.Valence,
			TriggerID: s.TriggerID,
		}
	}
	if err := item.Validate(); err != nil {
		return types.MemoryItem{}, err
	}
	return item, nil
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidConfiguration,
			fmt.Sprintf("reading scenario %s", path)).WithCause(err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, types.NewError(types.ErrInvalidConfiguration, "decoding scenario").WithCause(err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks referential integrity across the scenario. All
// problems are configuration errors: a scenario either loads whole or
// not at all.
func (sc *Scenario) Validate() error {
	if sc.Name == "" {
		return types.NewError(types.ErrInvalidConfiguration, "scenario name is empty")
	}
	entities := make(map[string]bool, len(sc.World.Entities))
	for _, e := range sc.World.Entities {
		if e.ID == "" {
			return types.NewError(types.ErrInvalidConfiguration, "entity with empty id")
		}
		if entities[e.ID] {
			return types.NewError(types.ErrInvalidConfiguration,
				fmt.Sprintf("duplicate entity id %q", e.ID))
		}
		entities[e.ID] = true
	}
	factions := make(map[string]bool, len(sc.World.Factions))
	for _, f := range sc.World.Factions {
		factions[f.ID] = true
	}
	for _, e := range sc.World.Entities {
		if e.Faction != "" && !factions[e.Faction] {
			return types.NewError(types.ErrInvalidConfiguration,
				fmt.Sprintf("entity %q references unknown faction %q", e.ID, e.Faction))
		}
	}
	seen := make(map[string]bool, len(sc.Agents))
	for _, a := range sc.Agents {
		if !entities[a.Entity] {
			return types.NewError(types.ErrInvalidConfiguration,
				fmt.Sprintf("agent references unknown entity %q", a.Entity))
		}
		if seen[a.Entity] {
			return types.NewError(types.ErrInvalidConfiguration,
				fmt.Sprintf("duplicate agent for entity %q", a.Entity))
		}
		seen[a.Entity] = true
		for _, s := range a.Scopes {
			if err := s.Scope().Validate(); err != nil {
				return types.NewError(types.ErrInvalidConfiguration,
					fmt.Sprintf("agent %q scope", a.Entity)).WithCause(err)
			}
		}
	}
	sources := make(map[string]bool, len(sc.Sources))
	for _, src := range sc.Sources {
		if src.ID == "" || src.Version == "" {
			return types.NewError(types.ErrInvalidConfiguration, "source missing id or version")
		}
		sources[types.MakeProvenanceTag(src.ID, src.Version)] = true
	}
	for i, sn := range sc.Snippets {
		if sn.Content == "" {
			return types.NewError(types.ErrInvalidConfiguration,
				fmt.Sprintf("snippet %d has empty content", i))
		}
		if !sources[types.MakeProvenanceTag(sn.SourceID, sn.SourceVersion)] {
			return types.NewError(types.ErrInvalidConfiguration,
				fmt.Sprintf("snippet %d references unregistered source %s@%s", i, sn.SourceID, sn.SourceVersion))
		}
	}
	return nil
}

// BuildState constructs the initial world snapshot.
func (sc *Scenario) BuildState() *State {
	st := NewState(sc.World.Turn)
	for _, f := range sc.World.Factions {
		st.Factions[f.ID] = Faction{ID: f.ID, Name: f.Name, Allies: append([]string(nil), f.Allies...)}
	}
	for _, e := range sc.World.Entities {
		st.Entities[e.ID] = Entity{
			ID:           e.ID,
			Name:         e.Name,
			Kind:         e.Kind,
			FactionID:    e.Faction,
			Position:     types.Position{X: e.Position.X, Y: e.Position.Y},
			Capabilities: append([]string(nil), e.Capabilities...),
			Details:      e.Details,
		}
	}
	for _, f := range sc.World.Facts {
		st.Facts = append(st.Facts, Fact{
			ID:         f.ID,
			Statement:  f.Statement,
			EntityRefs: append([]string(nil), f.EntityRefs...),
			Turn:       f.Turn,
		})
	}
	return st
}
