package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fableloom/chronicler/agent"
	"github.com/fableloom/chronicler/archive"
	"github.com/fableloom/chronicler/brief"
	"github.com/fableloom/chronicler/config"
	"github.com/fableloom/chronicler/internal/database"
	"github.com/fableloom/chronicler/memory"
	"github.com/fableloom/chronicler/retrieval"
	"github.com/fableloom/chronicler/types"
	"github.com/fableloom/chronicler/visibility"
	"github.com/fableloom/chronicler/world"
)

type charCounter struct{}

func (charCounter) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		return 1
	}
	return n
}

type staticRetriever struct {
	snippets []types.KnowledgeSnippet
}

func (r staticRetriever) Query(_ context.Context, _ string, _ retrieval.ScopeFilter, topK int) ([]types.KnowledgeSnippet, error) {
	if topK < len(r.snippets) {
		return r.snippets[:topK], nil
	}
	return r.snippets, nil
}

type capturePublisher struct {
	mu     sync.Mutex
	briefs []types.TurnBrief
}

func (p *capturePublisher) Publish(b types.TurnBrief) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.briefs = append(p.briefs, b)
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.briefs)
}

func makeState(turn int) *world.State {
	st := world.NewState(turn)
	st.Entities["scout"] = world.Entity{
		ID: "scout", Name: "Scout", Kind: "character", FactionID: "north",
		Position: types.Position{X: 0, Y: 0},
	}
	st.Entities["raven"] = world.Entity{
		ID: "raven", Name: "Raven", Kind: "character", FactionID: "north",
		Position: types.Position{X: 3, Y: 0},
	}
	st.Factions["north"] = world.Faction{ID: "north", Name: "North"}
	return st
}

func makeAgent(t *testing.T, st *world.State, id string) *agent.Agent {
	t.Helper()
	ag, err := agent.New(st.Entities[id], "hold the bridge",
		[]types.KnowledgeScope{{Channel: types.ChannelVisual, Range: 10}},
		config.DefaultMemoryConfig(), nil)
	require.NoError(t, err)
	return ag
}

func seedMemory(t *testing.T, ag *agent.Agent, tier types.MemoryTier, relevance float64) {
	t.Helper()
	require.NoError(t, ag.Memory.Store(types.MemoryItem{
		MemoryID: fmt.Sprintf("m-%s-%s", ag.ID, tier), AgentID: ag.ID, Tier: tier,
		Content: "the bridge held through the last assault", RelevanceScore: relevance,
	}))
}

type engineFixture struct {
	engine    *Engine
	filter    *visibility.Filter
	roster    *agent.Roster
	archive   *archive.MemoryArchive
	publisher *capturePublisher
}

func makeEngine(t *testing.T, st *world.State, opts Options, agents ...*agent.Agent) *engineFixture {
	t.Helper()
	filter := visibility.NewFilter(config.DefaultVisibilityConfig(), nil)
	enforcer, err := brief.NewBudgetEnforcer(charCounter{}, 120, nil)
	require.NoError(t, err)

	snips := []types.KnowledgeSnippet{
		{Content: "chronicle of the bridge", SourceID: "canon-01", SourceVersion: "1.0.0", TrustScore: 0.9, RelevanceScore: 0.8},
	}
	asm, err := brief.NewAssembler(config.DefaultPipelineConfig(), filter,
		staticRetriever{snippets: snips}, retrieval.NewDiversityPruner(nil),
		memory.NewQueryEngine(nil), enforcer, nil)
	require.NoError(t, err)

	roster, err := agent.NewRoster(agents...)
	require.NoError(t, err)

	fx := &engineFixture{
		filter:    filter,
		roster:    roster,
		archive:   archive.NewMemoryArchive(),
		publisher: &capturePublisher{},
	}
	if opts.Archive == nil {
		opts.Archive = fx.archive
	}
	if opts.Publisher == nil {
		opts.Publisher = fx.publisher
	}
	eng, err := New(config.DefaultEngineConfig(), asm, filter, roster, opts, nil)
	require.NoError(t, err)
	t.Cleanup(eng.Close)
	fx.engine = eng
	return fx
}

func TestRunTurn_BriefPerAgent(t *testing.T) {
	t.Parallel()
	st := makeState(1)
	scout := makeAgent(t, st, "scout")
	raven := makeAgent(t, st, "raven")
	fx := makeEngine(t, st, Options{}, scout, raven)

	res, err := fx.engine.RunTurn(context.Background(), st)
	require.NoError(t, err)

	assert.Equal(t, "turn-1", res.TurnID)
	require.Len(t, res.Briefs, 2)
	for _, b := range res.Briefs {
		assert.Equal(t, "ok", b.Status())
		assert.Equal(t, "turn-1", b.TurnID)
		assert.LessOrEqual(t, b.TokenCount, config.DefaultPipelineConfig().TokenBudget)
	}
	assert.Zero(t, res.DegradedCount)

	archived, err := fx.archive.Get(context.Background(), "scout", "turn-1")
	require.NoError(t, err)
	assert.Equal(t, "scout", archived.AgentID)
	assert.Equal(t, 2, fx.publisher.count())
}

func TestRunTurn_CommitTouchesSelectedMemories(t *testing.T) {
	t.Parallel()
	st := makeState(2)
	scout := makeAgent(t, st, "scout")
	seedMemory(t, scout, types.MemoryEpisodic, 0.9)
	fx := makeEngine(t, st, Options{}, scout)

	_, err := fx.engine.RunTurn(context.Background(), st)
	require.NoError(t, err)

	items := scout.Memory.Items(types.MemoryEpisodic)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].AccessCount, "commit phase applies the recall touch")
	assert.Equal(t, 2, items[0].LastAccessedTurn)
}

func TestRunTurn_CancelledCommitsNothing(t *testing.T) {
	t.Parallel()
	st := makeState(1)
	scout := makeAgent(t, st, "scout")
	seedMemory(t, scout, types.MemoryEpisodic, 0.9)
	fx := makeEngine(t, st, Options{}, scout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := fx.engine.RunTurn(ctx, st)
	require.Error(t, err)
	assert.Nil(t, res)

	assert.Zero(t, fx.archive.Len(), "cancelled turn exposes no briefs")
	assert.Zero(t, fx.publisher.count())
	items := scout.Memory.Items(types.MemoryEpisodic)
	require.Len(t, items, 1)
	assert.Zero(t, items[0].AccessCount, "cancelled turn commits no memory writes")
}

func TestRunTurn_OneFailureAbortsAll(t *testing.T) {
	t.Parallel()
	st := makeState(1)
	scout := makeAgent(t, st, "scout")
	seedMemory(t, scout, types.MemoryEpisodic, 0.9)

	ghostEntity := world.Entity{ID: "ghost", Name: "Ghost", Position: types.Position{X: 1, Y: 1}}
	ghost, err := agent.New(ghostEntity, "haunt the ruins",
		[]types.KnowledgeScope{{Channel: types.ChannelVisual, Range: 10}},
		config.DefaultMemoryConfig(), nil)
	require.NoError(t, err)

	// ghost 不在世界快照里：它的装配必然失败，整回合必须回滚。
	fx := makeEngine(t, st, Options{}, scout, ghost)

	res, err := fx.engine.RunTurn(context.Background(), st)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Zero(t, fx.archive.Len())
	items := scout.Memory.Items(types.MemoryEpisodic)
	require.Len(t, items, 1)
	assert.Zero(t, items[0].AccessCount)
}

func TestRunTurn_ConsolidationCadence(t *testing.T) {
	t.Parallel()
	st := makeState(4)
	scout := makeAgent(t, st, "scout")
	seedMemory(t, scout, types.MemoryWorking, 0.9) // 超过晋升阈值

	// 每 2 回合整合一次，第 4 回合命中。
	fx := makeEngine(t, st, Options{ConsolidateEvery: 2}, scout)
	_, err := fx.engine.RunTurn(context.Background(), st)
	require.NoError(t, err)

	assert.Empty(t, scout.Memory.Items(types.MemoryWorking))
	promoted := scout.Memory.Items(types.MemoryEpisodic)
	require.Len(t, promoted, 1)
	assert.Equal(t, "m-scout-working", promoted[0].MemoryID)
}

func TestRunTurn_LastKnownAfterMovement(t *testing.T) {
	t.Parallel()
	st1 := makeState(1)
	scout := makeAgent(t, st1, "scout")
	fx := makeEngine(t, st1, Options{}, scout)

	_, err := fx.engine.RunTurn(context.Background(), st1)
	require.NoError(t, err)

	// 第 2 回合 raven 跑出视距：简报里应出现最后目击条目。
	st2 := makeState(2)
	raven := st2.Entities["raven"]
	raven.Position = types.Position{X: 100, Y: 100}
	st2.Entities["raven"] = raven

	res, err := fx.engine.RunTurn(context.Background(), st2)
	require.NoError(t, err)
	require.Len(t, res.Briefs, 1)

	lk := res.Briefs[0].WorldState.LastKnown
	require.Len(t, lk, 1)
	assert.Equal(t, "raven", lk[0].EntityID)
	assert.Equal(t, 1, lk[0].LastSeenTurn)
	assert.Equal(t, types.Position{X: 3, Y: 0}, lk[0].Position, "position is where it was last seen")
	assert.Less(t, lk[0].Confidence, 1.0)
}

func TestRunTurn_SnapshotPersistence(t *testing.T) {
	t.Parallel()
	st := makeState(1)
	scout := makeAgent(t, st, "scout")
	seedMemory(t, scout, types.MemoryEpisodic, 0.9)

	pm := openTestPool(t, &memory.MemoryRecord{})
	snaps, err := memory.NewSnapshotStore(pm, nil)
	require.NoError(t, err)

	fx := makeEngine(t, st, Options{Snapshots: snaps}, scout)
	_, err = fx.engine.RunTurn(context.Background(), st)
	require.NoError(t, err)

	loaded, err := snaps.LoadSnapshot(context.Background(), "scout")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "m-scout-episodic", loaded[0].MemoryID)
	assert.Equal(t, 1, loaded[0].AccessCount, "snapshot captures the committed touch")
}

func TestTurnRecorder_RecordAndReplace(t *testing.T) {
	t.Parallel()
	pm := openTestPool(t, &TurnRecord{})
	rec, err := NewTurnRecorder(pm, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, rec.Record(ctx, &TurnRecord{TurnID: "turn-1", Turn: 1, Scenario: "ridge", AgentCount: 2}))
	require.NoError(t, rec.Record(ctx, &TurnRecord{TurnID: "turn-2", Turn: 2, Scenario: "ridge", AgentCount: 2, DegradedCount: 1}))
	// 重跑第 1 回合：替换而不是撞唯一索引。
	require.NoError(t, rec.Record(ctx, &TurnRecord{TurnID: "turn-1", Turn: 1, Scenario: "ridge", AgentCount: 3}))

	got, err := rec.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "turn-2", got[0].TurnID)
	assert.Equal(t, 3, got[1].AgentCount)

	err = rec.Record(ctx, &TurnRecord{})
	assert.Equal(t, types.ErrValidation, types.GetErrorCode(err))
}

func TestRunTurn_WritesTurnRecord(t *testing.T) {
	t.Parallel()
	st := makeState(1)
	scout := makeAgent(t, st, "scout")

	pm := openTestPool(t, &TurnRecord{})
	rec, err := NewTurnRecorder(pm, nil)
	require.NoError(t, err)

	fx := makeEngine(t, st, Options{Recorder: rec, Scenario: "ridge"}, scout)
	_, err = fx.engine.RunTurn(context.Background(), st)
	require.NoError(t, err)

	got, err := rec.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "turn-1", got[0].TurnID)
	assert.Equal(t, "ridge", got[0].Scenario)
	assert.Equal(t, 1, got[0].AgentCount)
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	_, err := New(config.DefaultEngineConfig(), nil, nil, nil, Options{}, nil)
	assert.Equal(t, types.ErrInvalidConfiguration, types.GetErrorCode(err))
}

// openTestPool 在临时 sqlite 文件上建一个真实连接池。
func openTestPool(t *testing.T, models ...any) *database.PoolManager {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "engine.db")
	db, err := database.Open("sqlite", dsn, nil)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models...))

	cfg := database.DefaultPoolConfig()
	cfg.HealthCheckInterval = 0
	pm, err := database.NewPoolManager(db, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pm.Close() })
	return pm
}
