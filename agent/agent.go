// Package agent 定义叙事 Agent 的组合根：身份 + 感知范围集合 +
// 能力集合 + 独占的分层记忆句柄。行为全部来自组合，没有继承层级。
package agent

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/fableloom/chronicler/config"
	"github.com/fableloom/chronicler/memory"
	"github.com/fableloom/chronicler/types"
	"github.com/fableloom/chronicler/world"
)

// Agent is one autonomous narrative actor. Identity fields mirror the
// agent's world entity; Scopes declare what it can perceive; Memory is
// exclusively owned and never shared across agents.
type Agent struct {
	ID        string
	Name      string
	FactionID string
	Intent    string

	Scopes       []types.KnowledgeScope
	Capabilities []string

	Memory *memory.LayeredStore
}

// New builds an agent around its world entity. The entity supplies
// identity, faction and capabilities; the spec supplies perception and
// intent; the memory store is created fresh and seeded by the caller.
func New(entity world.Entity, intent string, scopes []types.KnowledgeScope, memCfg config.MemoryConfig, logger *zap.Logger) (*Agent, error) {
	if entity.ID == "" {
		return nil, types.NewError(types.ErrInvalidConfiguration, "agent requires a world entity")
	}
	for _, s := range scopes {
		if err := s.Validate(); err != nil {
			return nil, types.NewError(types.ErrInvalidConfiguration,
				fmt.Sprintf("agent %q scope", entity.ID)).WithCause(err)
		}
	}
	store, err := memory.NewLayeredStore(entity.ID, memCfg, logger)
	if err != nil {
		return nil, err
	}
	return &Agent{
		ID:           entity.ID,
		Name:         entity.Name,
		FactionID:    entity.FactionID,
		Intent:       intent,
		Scopes:       append([]types.KnowledgeScope(nil), scopes...),
		Capabilities: append([]string(nil), entity.Capabilities...),
		Memory:       store,
	}, nil
}

// FromSpec builds an agent from its scenario declaration, seeding the
// memory store with the declared starting memories. Invalid seeds fail
// the build: a scenario loads whole or not at all.
func FromSpec(spec world.AgentSpec, st *world.State, memCfg config.MemoryConfig, logger *zap.Logger) (*Agent, error) {
	entity, ok := st.Entity(spec.Entity)
	if !ok {
		return nil, types.NewError(types.ErrInvalidConfiguration,
			fmt.Sprintf("agent spec references unknown entity %q", spec.Entity))
	}
	scopes := make([]types.KnowledgeScope, 0, len(spec.Scopes))
	for _, s := range spec.Scopes {
		scopes = append(scopes, s.Scope())
	}
	a, err := New(entity, spec.Intent, scopes, memCfg, logger)
	if err != nil {
		return nil, err
	}
	a.Memory.AdvanceTurn(st.Turn)
	for _, seed := range spec.SeedMemories {
		item, err := seed.Item(a.ID, st.Turn)
		if err != nil {
			return nil, types.NewError(types.ErrInvalidConfiguration,
				fmt.Sprintf("agent %q seed memory", a.ID)).WithCause(err)
		}
		if err := a.Memory.Store(item); err != nil {
			return nil, types.NewError(types.ErrInvalidConfiguration,
				fmt.Sprintf("agent %q seed memory %s", a.ID, item.MemoryID)).WithCause(err)
		}
	}
	return a, nil
}

// HasCapability reports whether the agent carries the named capability.
func (a *Agent) HasCapability(name string) bool {
	for _, c := range a.Capabilities {
		if c == name {
			return true
		}
	}
	return false
}

// IntentKeywords tokenizes the agent's intent for retrieval scoping.
func (a *Agent) IntentKeywords() []string {
	seen := make(map[string]bool)
	var out []string
	for _, kw := range tokenizeIntent(a.Intent) {
		if !seen[kw] {
			seen[kw] = true
			out = append(out, kw)
		}
	}
	sort.Strings(out)
	return out
}

// Roster is the turn's set of agents, keyed by id.
type Roster struct {
	agents map[string]*Agent
	order  []string
}

// NewRoster builds a roster, refusing duplicate agent ids.
func NewRoster(agents ...*Agent) (*Roster, error) {
	r := &Roster{agents: make(map[string]*Agent, len(agents))}
	for _, a := range agents {
		if _, dup := r.agents[a.ID]; dup {
			return nil, types.NewError(types.ErrInvalidConfiguration,
				fmt.Sprintf("duplicate agent id %q", a.ID))
		}
		r.agents[a.ID] = a
		r.order = append(r.order, a.ID)
	}
	sort.Strings(r.order)
	return r, nil
}

// Get looks up an agent.
func (r *Roster) Get(id string) (*Agent, bool) {
	a, ok := r.agents[id]
	return a, ok
}

// All returns the agents in stable id order.
func (r *Roster) All() []*Agent {
	out := make([]*Agent, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.agents[id])
	}
	return out
}

// Len returns the roster size.
func (r *Roster) Len() int { return len(r.agents) }

// tokenizeIntent lowercases and splits on non-alphanumeric runs.
func tokenizeIntent(intent string) []string {
	return strings.FieldsFunc(strings.ToLower(intent), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
