package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fableloom/chronicler/types"
)

func testState() *State {
	st := NewState(4)
	st.Factions["azure"] = Faction{ID: "azure", Name: "Azure League", Allies: []string{"verdant"}}
	st.Factions["verdant"] = Faction{ID: "verdant", Name: "Verdant Pact"}
	st.Factions["crimson"] = Faction{ID: "crimson", Name: "Crimson Host"}
	st.Entities["scout-1"] = Entity{
		ID: "scout-1", Name: "Mira", FactionID: "azure",
		Position:     types.Position{X: 0, Y: 0},
		Capabilities: []string{CapabilityRadio},
		Details:      map[string]string{"mood": "wary"},
	}
	st.Entities["caravan"] = Entity{ID: "caravan", Name: "Caravan", FactionID: "verdant", Position: types.Position{X: 5, Y: 0}}
	st.Facts = []Fact{
		{ID: "f1", Statement: "the pass is snowed in", EntityRefs: []string{"caravan"}, Turn: 2},
		{ID: "f2", Statement: "a beacon was lit", EntityRefs: []string{"ridge"}, Turn: 3},
	}
	return st
}

func TestState_Allied_EitherDirection(t *testing.T) {
	t.Parallel()
	st := testState()

	assert.True(t, st.Allied("azure", "verdant"))
	assert.True(t, st.Allied("verdant", "azure"), "declared one way, allied both ways")
	assert.False(t, st.Allied("azure", "crimson"))
	assert.False(t, st.Allied("azure", "azure"), "a faction is not its own ally")
	assert.False(t, st.Allied("", "azure"))
}

func TestState_FactsReferencing(t *testing.T) {
	t.Parallel()
	st := testState()

	facts := st.FactsReferencing(map[string]bool{"caravan": true})
	require.Len(t, facts, 1)
	assert.Equal(t, "f1", facts[0].ID)

	assert.Nil(t, st.FactsReferencing(nil))
}

func TestEntity_HasCapability(t *testing.T) {
	t.Parallel()
	st := testState()

	scout, ok := st.Entity("scout-1")
	require.True(t, ok)
	assert.True(t, scout.HasCapability(CapabilityRadio))
	assert.False(t, scout.HasCapability("flight"))
}

func TestState_CloneIsIndependent(t *testing.T) {
	t.Parallel()
	st := testState()

	clone := st.Clone()
	e := clone.Entities["scout-1"]
	e.Details["mood"] = "calm"
	e.Capabilities[0] = "mutated"
	clone.Entities["scout-1"] = e
	clone.Facts[0].EntityRefs[0] = "mutated"

	assert.Equal(t, "wary", st.Entities["scout-1"].Details["mood"])
	assert.Equal(t, CapabilityRadio, st.Entities["scout-1"].Capabilities[0])
	assert.Equal(t, "caravan", st.Facts[0].EntityRefs[0])
}

func TestState_AtTurn(t *testing.T) {
	t.Parallel()
	st := testState()

	next := st.AtTurn(5)
	assert.Equal(t, 5, next.Turn)
	assert.Equal(t, 4, st.Turn)
	assert.Len(t, next.Entities, len(st.Entities))
}

func TestEntity_View_CopiesDetails(t *testing.T) {
	t.Parallel()
	st := testState()

	scout := st.Entities["scout-1"]
	v := scout.View()
	v.Details["mood"] = "calm"

	assert.Equal(t, "wary", scout.Details["mood"])
	assert.Equal(t, "azure", v.Faction)
	assert.Equal(t, types.Position{X: 0, Y: 0}, v.Position)
}
