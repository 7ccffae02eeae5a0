package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fableloom/chronicler/types"
)

const scenarioYAML = `
name: border-skirmish
world:
  turn: 1
  factions:
    - id: azure
      name: Azure League
      allies: [verdant]
    - id: verdant
      name: Verdant Pact
  entities:
    - id: scout-1
      name: Mira
      kind: character
      faction: azure
      position: {x: 0, y: 0}
      capabilities: [radio]
    - id: caravan
      name: Caravan
      kind: convoy
      faction: verdant
      position: {x: 8, y: 0}
  facts:
    - id: f1
      statement: the mountain pass is snowed in
      entity_refs: [caravan]
      turn: 0
agents:
  - entity: scout-1
    intent: shadow the caravan
    scopes:
      - {channel: visual, range: 10}
      - {channel: radio, range: 40}
    seed_memories:
      - tier: episodic
        content: saw the caravan leave the fort
        relevance: 0.7
        location: fort gate
        participants: [caravan]
sources:
  - id: atlas
    version: v3
    title: Regional Atlas
    trust: 0.9
snippets:
  - content: the pass closes after the first snow
    source_id: atlas
    source_version: v3
    trust: 0.9
    embedding: [0.1, 0.9]
`

func TestParseScenario_Valid(t *testing.T) {
	t.Parallel()

	sc, err := ParseScenario([]byte(scenarioYAML))
	require.NoError(t, err)
	assert.Equal(t, "border-skirmish", sc.Name)
	require.Len(t, sc.Agents, 1)
	assert.Equal(t, "scout-1", sc.Agents[0].Entity)
	require.Len(t, sc.Agents[0].Scopes, 2)
	assert.Equal(t, types.ChannelVisual, sc.Agents[0].Scopes[0].Scope().Channel)

	st := sc.BuildState()
	assert.Equal(t, 1, st.Turn)
	assert.Len(t, st.Entities, 2)
	assert.True(t, st.Allied("azure", "verdant"))
	require.Len(t, st.Facts, 1)
	assert.Equal(t, "f1", st.Facts[0].ID)
}

func TestParseScenario_Invalid(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		yaml string
	}{
		{"empty name", `
name: ""
world:
  entities: []
`},
		{"duplicate entity", `
name: x
world:
  entities:
    - {id: a, name: A}
    - {id: a, name: A2}
`},
		{"agent unknown entity", `
name: x
world:
  entities:
    - {id: a, name: A}
agents:
  - entity: ghost
`},
		{"unknown faction", `
name: x
world:
  factions: []
  entities:
    - {id: a, name: A, faction: nobody}
`},
		{"bad scope channel", `
name: x
world:
  entities:
    - {id: a, name: A}
agents:
  - entity: a
    scopes:
      - {channel: telepathy, range: 5}
`},
		{"snippet unregistered source", `
name: x
world:
  entities:
    - {id: a, name: A}
snippets:
  - content: c
    source_id: ghost
    source_version: v1
`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseScenario([]byte(tc.yaml))
			require.Error(t, err)
			assert.Equal(t, types.ErrInvalidConfiguration, types.GetErrorCode(err))
		})
	}
}

func TestMemorySeed_Item(t *testing.T) {
	t.Parallel()

	seed := MemorySeed{
		Tier:               "semantic",
		Content:            "the fort holds winter supplies",
		Relevance:          0.8,
		EmotionalIntensity: 0.1,
		Subject:            "fort",
		Predicate:          "holds",
		Object:             "winter supplies",
		Confidence:         0.9,
	}
	item, err := seed.Item("scout-1", 1)
	require.NoError(t, err)
	assert.Equal(t, "scout-1", item.AgentID)
	assert.Equal(t, types.MemorySemantic, item.Tier)
	assert.NotEmpty(t, item.MemoryID)
	p, ok := item.Payload.(types.SemanticPayload)
	require.True(t, ok)
	assert.Equal(t, "fort", p.Subject)

	_, err = MemorySeed{Tier: "procedural", Content: "x"}.Item("scout-1", 1)
	require.Error(t, err)
	assert.Equal(t, types.ErrValidation, types.GetErrorCode(err))
}
