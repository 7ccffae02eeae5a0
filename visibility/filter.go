package visibility

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/fableloom/chronicler/config"
	"github.com/fableloom/chronicler/types"
	"github.com/fableloom/chronicler/world"
)

// VisibleSet is everything one agent is allowed to perceive on one turn.
// Entities excludes the observer itself; Self is always populated, an
// agent knows its own identity and position regardless of scopes.
type VisibleSet struct {
	ObserverID string
	Turn       int
	Self       types.EntityView
	IDs        []string
	Entities   []types.EntityView
	Facts      []types.FactView
	LastKnown  []types.LastKnownView
}

// Visible reports whether the entity is in the set. The observer counts
// as visible to itself.
func (v *VisibleSet) Visible(entityID string) bool {
	if entityID == v.ObserverID {
		return true
	}
	for _, id := range v.IDs {
		if id == entityID {
			return true
		}
	}
	return false
}

// sighting is one remembered observation of an entity.
type sighting struct {
	name     string
	position types.Position
	turn     int
}

// Filter computes per-agent visible sets and keeps the sighting history
// behind last-known decay. Compute is read-only and safe for concurrent
// callers; Observe mutates history and belongs in the serialized commit
// phase.
type Filter struct {
	config config.VisibilityConfig
	logger *zap.Logger

	mu      sync.RWMutex
	history map[string]map[string]sighting
}

// NewFilter creates a visibility filter.
func NewFilter(cfg config.VisibilityConfig, logger *zap.Logger) *Filter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Filter{
		config:  cfg,
		logger:  logger.With(zap.String("component", "visibility")),
		history: make(map[string]map[string]sighting),
	}
}

// Compute builds the visible set for the observer entity under the given
// scopes. The observer must exist in the snapshot.
func (f *Filter) Compute(observerID string, scopes []types.KnowledgeScope, st *world.State) (*VisibleSet, error) {
	observer, ok := st.Entity(observerID)
	if !ok {
		return nil, types.NewError(types.ErrNotFound,
			fmt.Sprintf("observer %q not in world snapshot", observerID)).WithStage("visibility")
	}

	vs := &VisibleSet{
		ObserverID: observerID,
		Turn:       st.Turn,
		Self:       observer.View(),
	}

	visible := make(map[string]bool)
	for _, scope := range scopes {
		switch scope.Channel {
		case types.ChannelVisual:
			f.visualCandidates(observer, scope.Range, st, visible)
		case types.ChannelRadio:
			f.radioCandidates(observer, scope.Range, st, visible)
		case types.ChannelIntel:
			f.intelCandidates(observer, st, visible)
		default:
			f.logger.Warn("skipping unknown channel",
				zap.String("agent_id", observerID),
				zap.String("channel", string(scope.Channel)))
		}
	}

	vs.IDs = make([]string, 0, len(visible))
	for id := range visible {
		vs.IDs = append(vs.IDs, id)
	}
	sort.Strings(vs.IDs)

	vs.Entities = make([]types.EntityView, 0, len(vs.IDs))
	for _, id := range vs.IDs {
		if e, ok := st.Entity(id); ok {
			vs.Entities = append(vs.Entities, e.View())
		}
	}

	// Facts reference the observer's knowledge too, so the self entity
	// participates in fact filtering even when nothing else is visible.
	refs := make(map[string]bool, len(visible)+1)
	for id := range visible {
		refs[id] = true
	}
	refs[observerID] = true
	for _, fact := range st.FactsReferencing(refs) {
		vs.Facts = append(vs.Facts, types.FactView{
			ID:        fact.ID,
			Statement: fact.Statement,
			Turn:      fact.Turn,
		})
	}

	vs.LastKnown = f.lastKnown(observerID, st.Turn, visible)
	return vs, nil
}

// visualCandidates adds entities within euclidean range.
func (f *Filter) visualCandidates(observer world.Entity, rng float64, st *world.State, into map[string]bool) {
	for id, e := range st.Entities {
		if id == observer.ID {
			continue
		}
		if observer.Position.Distance(e.Position) <= rng {
			into[id] = true
		}
	}
}

// radioCandidates adds radio-capable entities within range. The channel
// is mute unless the observer itself carries the radio capability.
func (f *Filter) radioCandidates(observer world.Entity, rng float64, st *world.State, into map[string]bool) {
	if !observer.HasCapability(world.CapabilityRadio) {
		return
	}
	for id, e := range st.Entities {
		if id == observer.ID || !e.HasCapability(world.CapabilityRadio) {
			continue
		}
		if observer.Position.Distance(e.Position) <= rng {
			into[id] = true
		}
	}
}

// intelCandidates adds same-faction entities and entities whose faction
// is exactly one ally hop away. Allies-of-allies stay invisible; the
// one-hop bound is a hard rule, not a tuning knob.
func (f *Filter) intelCandidates(observer world.Entity, st *world.State, into map[string]bool) {
	if observer.FactionID == "" {
		return
	}
	for id, e := range st.Entities {
		if id == observer.ID || e.FactionID == "" {
			continue
		}
		if e.FactionID == observer.FactionID || st.Allied(observer.FactionID, e.FactionID) {
			into[id] = true
		}
	}
}

// lastKnown renders decayed sightings for entities no longer visible.
func (f *Filter) lastKnown(observerID string, turn int, visible map[string]bool) []types.LastKnownView {
	f.mu.RLock()
	defer f.mu.RUnlock()

	seen := f.history[observerID]
	if len(seen) == 0 {
		return nil
	}
	out := make([]types.LastKnownView, 0, len(seen))
	for id, s := range seen {
		if visible[id] {
			continue
		}
		conf := f.confidence(turn - s.turn)
		if conf < f.config.ConfidenceFloor {
			continue
		}
		out = append(out, types.LastKnownView{
			EntityID:     id,
			Name:         s.name,
			Position:     s.position,
			LastSeenTurn: s.turn,
			Confidence:   conf,
		})
	}
	if len(out) == 0 {
		return nil
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

// confidence decays by half every LastKnownHalfLifeTurns elapsed turns.
func (f *Filter) confidence(turnsSince int) float64 {
	if turnsSince <= 0 {
		return 1.0
	}
	return math.Exp(-math.Ln2 * float64(turnsSince) / float64(f.config.LastKnownHalfLifeTurns))
}

// Observe records the turn's sightings for the observer and prunes
// records that have decayed below the confidence floor. Called once per
// agent per turn during the commit phase.
func (f *Filter) Observe(observerID string, vs *VisibleSet, st *world.State) {
	f.mu.Lock()
	defer f.mu.Unlock()

	seen := f.history[observerID]
	if seen == nil {
		seen = make(map[string]sighting)
		f.history[observerID] = seen
	}
	for _, id := range vs.IDs {
		if e, ok := st.Entity(id); ok {
			seen[id] = sighting{name: e.Name, position: e.Position, turn: st.Turn}
		}
	}
	for id, s := range seen {
		if f.confidence(st.Turn-s.turn) < f.config.ConfidenceFloor {
			delete(seen, id)
		}
	}
}

// Forget drops the observer's sighting history. Used when an agent
// leaves the simulation.
func (f *Filter) Forget(observerID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.history, observerID)
}
