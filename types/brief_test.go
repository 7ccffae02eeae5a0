package types

import "testing"

func TestTurnBrief_Status(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		brief TurnBrief
		want  string
	}{
		{"ok", TurnBrief{}, "ok"},
		{"degraded index", TurnBrief{Degraded: true, DegradedReason: DegradeIndexUnavailable}, "degraded"},
		{"fallback", TurnBrief{Degraded: true, DegradedReason: DegradeBudgetFallback}, "fallback"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.brief.Status(); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestTurnBrief_CloneIsIndependent(t *testing.T) {
	t.Parallel()

	b := TurnBrief{
		AgentID:  "a1",
		Snippets: []BriefSnippet{{Content: "c", Provenance: "s@1"}},
		WorldState: MaskedWorldState{
			Self:     EntityView{ID: "a1", Name: "Scout", Details: map[string]string{"mood": "wary"}},
			Entities: []EntityView{{ID: "e1", Name: "Caravan"}},
		},
		Provenance: []string{"s@1"},
	}

	clone := b.Clone()
	clone.Snippets[0].Content = "mutated"
	clone.WorldState.Self.Details["mood"] = "calm"
	clone.WorldState.Entities[0].Name = "mutated"
	clone.Provenance[0] = "mutated"

	if b.Snippets[0].Content != "c" {
		t.Fatalf("snippet mutation leaked")
	}
	if b.WorldState.Self.Details["mood"] != "wary" {
		t.Fatalf("details mutation leaked")
	}
	if b.WorldState.Entities[0].Name != "Caravan" {
		t.Fatalf("entity mutation leaked")
	}
	if b.Provenance[0] != "s@1" {
		t.Fatalf("provenance mutation leaked")
	}
}
