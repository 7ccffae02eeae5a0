package archive

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/fableloom/chronicler/config"
	"github.com/fableloom/chronicler/types"
)

// Archive stores emitted briefs for later retrieval. Implementations
// must be safe for concurrent use; the engine writes one brief per
// agent per turn.
type Archive interface {
	// Put stores a brief, replacing any previous brief for the same
	// agent and turn.
	Put(ctx context.Context, brief types.TurnBrief) error
	// Get returns the brief for one agent in one turn, NOT_FOUND when
	// no such brief was archived.
	Get(ctx context.Context, agentID, turnID string) (types.TurnBrief, error)
	// ListTurn returns every archived brief for one turn, ordered by
	// agent id.
	ListTurn(ctx context.Context, turnID string) ([]types.TurnBrief, error)
}

// NewFromConfig builds the configured archive backend. A disabled
// archive returns nil, which the engine treats as "don't archive".
func NewFromConfig(ctx context.Context, cfg config.ArchiveConfig, logger *zap.Logger) (Archive, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryArchive(), nil
	case "mongo":
		return NewMongoArchive(ctx, cfg, logger)
	default:
		return nil, types.NewError(types.ErrInvalidConfiguration,
			fmt.Sprintf("unknown archive backend %q", cfg.Backend))
	}
}

// MemoryArchive keeps briefs in process memory, keyed by turn then
// agent.
type MemoryArchive struct {
	mu    sync.RWMutex
	turns map[string]map[string]types.TurnBrief
}

// NewMemoryArchive creates an empty in-memory archive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{turns: make(map[string]map[string]types.TurnBrief)}
}

// Put implements Archive.
func (a *MemoryArchive) Put(_ context.Context, brief types.TurnBrief) error {
	if brief.AgentID == "" || brief.TurnID == "" {
		return types.NewError(types.ErrValidation, "brief requires agent_id and turn_id to archive")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	agents, ok := a.turns[brief.TurnID]
	if !ok {
		agents = make(map[string]types.TurnBrief)
		a.turns[brief.TurnID] = agents
	}
	agents[brief.AgentID] = brief.Clone()
	return nil
}

// Get implements Archive.
func (a *MemoryArchive) Get(_ context.Context, agentID, turnID string) (types.TurnBrief, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if agents, ok := a.turns[turnID]; ok {
		if b, ok := agents[agentID]; ok {
			return b.Clone(), nil
		}
	}
	return types.TurnBrief{}, types.NewError(types.ErrNotFound,
		fmt.Sprintf("no archived brief for agent %s in turn %s", agentID, turnID))
}

// ListTurn implements Archive.
func (a *MemoryArchive) ListTurn(_ context.Context, turnID string) ([]types.TurnBrief, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	agents := a.turns[turnID]
	out := make([]types.TurnBrief, 0, len(agents))
	for _, b := range agents {
		out = append(out, b.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, nil
}

// Len reports the number of archived turns, for tests and stats.
func (a *MemoryArchive) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.turns)
}
