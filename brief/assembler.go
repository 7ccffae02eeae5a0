package brief

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fableloom/chronicler/agent"
	"github.com/fableloom/chronicler/config"
	"github.com/fableloom/chronicler/memory"
	"github.com/fableloom/chronicler/retrieval"
	"github.com/fableloom/chronicler/types"
	"github.com/fableloom/chronicler/visibility"
	"github.com/fableloom/chronicler/world"
)

// Result is one agent's finished assembly plus the commit-phase
// material the engine needs: the visible set to record as sightings
// and the memory selection whose access side effect is still pending.
type Result struct {
	Brief       types.TurnBrief
	VisibleSet  *visibility.VisibleSet
	Selected    []memory.ScoredMemory
	PruneStages []string
}

// Assembler orchestrates the per-agent pipeline. It is the only
// component that sees more than one sub-component's output; everything
// it calls is a pure function of its inputs. Assembly never writes to
// the memory store, so assemblies for different agents run in
// parallel safely.
type Assembler struct {
	cfg       config.PipelineConfig
	filter    *visibility.Filter
	retriever retrieval.Retriever
	pruner    *retrieval.DiversityPruner
	queries   *memory.QueryEngine
	enforcer  *BudgetEnforcer
	logger    *zap.Logger
}

// NewAssembler wires the pipeline components together.
func NewAssembler(
	cfg config.PipelineConfig,
	filter *visibility.Filter,
	retriever retrieval.Retriever,
	pruner *retrieval.DiversityPruner,
	queries *memory.QueryEngine,
	enforcer *BudgetEnforcer,
	logger *zap.Logger,
) (*Assembler, error) {
	if filter == nil || retriever == nil || pruner == nil || queries == nil || enforcer == nil {
		return nil, types.NewError(types.ErrInvalidConfiguration, "assembler requires all pipeline components")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{
		cfg:       cfg,
		filter:    filter,
		retriever: retriever,
		pruner:    pruner,
		queries:   queries,
		enforcer:  enforcer,
		logger:    logger.With(zap.String("component", "assembler")),
	}, nil
}

// Assemble runs the strict stage sequence for one agent and returns
// the immutable brief. A retrieval outage degrades to a memory-only
// brief; an unsatisfiable budget degrades to the minimal fallback
// brief. A cancelled context aborts with no partial output.
func (a *Assembler) Assemble(ctx context.Context, ag *agent.Agent, st *world.State, turnID string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 可见性：战争迷雾先于一切，检索与记忆都只能在可见集内活动。
	vs, err := a.filter.Compute(ag.ID, ag.Scopes, st)
	if err != nil {
		return nil, err
	}

	keywords := ag.IntentKeywords()
	candidates, degraded := a.retrieve(ctx, ag, vs, keywords)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	selected := a.pruner.Select(candidates, a.cfg.MaxSnippets, a.cfg.MMRLambda)

	memories := a.queries.SelectForTurn(ag.Memory, memory.TurnContext{
		Turn:     st.Turn,
		Intent:   ag.Intent,
		Keywords: keywords,
	}, a.cfg.MaxMemories)

	draft := types.TurnBrief{
		BriefID: uuid.NewString(),
		AgentID: ag.ID,
		TurnID:  turnID,
		Turn:    st.Turn,
		WorldState: types.MaskedWorldState{
			Turn:      vs.Turn,
			Self:      vs.Self,
			Entities:  vs.Entities,
			LastKnown: vs.LastKnown,
			Facts:     vs.Facts,
		},
		Snippets: renderSnippets(selected),
		Memories: renderMemories(memories),
	}
	if degraded {
		draft.Degraded = true
		draft.DegradedReason = types.DegradeIndexUnavailable
	}

	final, stages, err := a.enforcer.Fit(draft, a.cfg.TokenBudget)
	if err != nil {
		if types.GetErrorCode(err) != types.ErrBudgetUnsatisfiable {
			return nil, err
		}
		// 预算硬失败只影响本 Agent：以最小保底简报替代。
		a.logger.Warn("substituting fallback brief",
			zap.String("agent_id", ag.ID), zap.String("turn_id", turnID))
		final = a.fallbackBrief(draft, vs)
		memories = nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	StampProvenance(&final)
	final.AssembledAt = time.Now()

	a.logger.Debug("brief assembled",
		zap.String("agent_id", ag.ID),
		zap.String("status", final.Status()),
		zap.Int("tokens", final.TokenCount),
		zap.Int("snippets", len(final.Snippets)),
		zap.Int("memories", len(final.Memories)))

	return &Result{
		Brief:       final,
		VisibleSet:  vs,
		Selected:    memories,
		PruneStages: stages,
	}, nil
}

// retrieve queries the scoped index. An unavailable index is the
// recoverable degradation path: the pipeline continues memory-only.
func (a *Assembler) retrieve(ctx context.Context, ag *agent.Agent, vs *visibility.VisibleSet, keywords []string) ([]types.KnowledgeSnippet, bool) {
	queryCtx := ctx
	if a.cfg.RetrievalTimeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, a.cfg.RetrievalTimeout)
		defer cancel()
	}
	scope := retrieval.ScopeFilter{
		VisibleEntities: vs.IDs,
		IntentKeywords:  keywords,
	}
	candidates, err := a.retriever.Query(queryCtx, ag.Intent, scope, a.cfg.RetrievalTopK)
	if err != nil {
		a.logger.Warn("retrieval unavailable, continuing memory-only",
			zap.String("agent_id", ag.ID),
			zap.String("code", string(types.GetErrorCode(err))),
			zap.Error(err))
		return nil, true
	}
	return candidates, false
}

// fallbackBrief is the minimal brief an agent receives when pruning
// cannot satisfy the budget: identity plus immediately visible
// entities, nothing else.
func (a *Assembler) fallbackBrief(draft types.TurnBrief, vs *visibility.VisibleSet) types.TurnBrief {
	fb := types.TurnBrief{
		BriefID:        draft.BriefID,
		AgentID:        draft.AgentID,
		TurnID:         draft.TurnID,
		Turn:           draft.Turn,
		Degraded:       true,
		DegradedReason: types.DegradeBudgetFallback,
	}
	fb.WorldState = types.MaskedWorldState{
		Turn: vs.Turn,
		Self: identityOnly(vs.Self),
	}
	for _, e := range vs.Entities {
		fb.WorldState.Entities = append(fb.WorldState.Entities, identityOnly(e))
	}
	fb.Tokens = a.enforcer.Measure(&fb)
	fb.TokenCount = fb.Tokens.Total
	return fb
}

// identityOnly keeps the critical fields: id, name, position.
func identityOnly(v types.EntityView) types.EntityView {
	return types.EntityView{ID: v.ID, Name: v.Name, Position: v.Position}
}

// renderSnippets maps pruned snippets into their brief form.
func renderSnippets(snippets []types.KnowledgeSnippet) []types.BriefSnippet {
	if len(snippets) == 0 {
		return nil
	}
	out := make([]types.BriefSnippet, len(snippets))
	for i, s := range snippets {
		out[i] = types.BriefSnippet{
			Content:    s.Content,
			Provenance: s.ProvenanceTag(),
			Relevance:  s.RelevanceScore,
			Trust:      s.TrustScore,
		}
	}
	return out
}

// renderMemories maps recalled memories into their brief form. Memory
// content is internally sourced, so it carries the synthetic tag.
func renderMemories(selected []memory.ScoredMemory) []types.BriefMemory {
	if len(selected) == 0 {
		return nil
	}
	out := make([]types.BriefMemory, len(selected))
	for i, m := range selected {
		out[i] = types.BriefMemory{
			MemoryID:   m.Item.MemoryID,
			Tier:       m.Item.Tier,
			Summary:    m.Item.Content,
			Score:      m.Score,
			Provenance: types.InternalProvenance(),
		}
	}
	return out
}
