package memory

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fableloom/chronicler/config"
	"github.com/fableloom/chronicler/types"
)

func testMemoryConfig() config.MemoryConfig {
	cfg := config.DefaultMemoryConfig()
	cfg.WorkingCapacity = 3
	cfg.EpisodicCapacity = 5
	cfg.SemanticCapacity = 5
	cfg.EmotionalCapacity = 3
	return cfg
}

func testItem(id string, tier types.MemoryTier, relevance float64) types.MemoryItem {
	item := types.MemoryItem{
		MemoryID:         id,
		AgentID:          "scout",
		Tier:             tier,
		Content:          "memory " + id,
		RelevanceScore:   relevance,
		CreatedTurn:      1,
		LastAccessedTurn: 1,
	}
	return item
}

func TestNewLayeredStore_RejectsZeroCapacity(t *testing.T) {
	t.Parallel()
	cfg := testMemoryConfig()
	cfg.WorkingCapacity = 0

	_, err := NewLayeredStore("scout", cfg, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidConfiguration, types.GetErrorCode(err))

	cfg = testMemoryConfig()
	cfg.DecayHalfLifeTurns = 0
	_, err = NewLayeredStore("scout", cfg, nil)
	assert.Equal(t, types.ErrInvalidConfiguration, types.GetErrorCode(err))
}

func TestLayeredStore_StoreValidation(t *testing.T) {
	t.Parallel()
	store, err := NewLayeredStore("scout", testMemoryConfig(), nil)
	require.NoError(t, err)

	// 缺少必填字段
	err = store.Store(types.MemoryItem{AgentID: "scout", Tier: types.MemoryWorking})
	assert.Equal(t, types.ErrValidation, types.GetErrorCode(err))

	// 条目属于别的 Agent
	foreign := testItem("m1", types.MemoryWorking, 0.5)
	foreign.AgentID = "other"
	err = store.Store(foreign)
	assert.Equal(t, types.ErrValidation, types.GetErrorCode(err))

	require.NoError(t, store.Store(testItem("m1", types.MemoryWorking, 0.5)))
	// 重复 id 被拒
	err = store.Store(testItem("m1", types.MemoryWorking, 0.5))
	assert.Equal(t, types.ErrValidation, types.GetErrorCode(err))
}

func TestLayeredStore_EvictsLowestCompositeScore(t *testing.T) {
	t.Parallel()
	store, err := NewLayeredStore("scout", testMemoryConfig(), nil)
	require.NoError(t, err)
	store.AdvanceTurn(10)

	// 容量 3：第 4 条触发淘汰。
	low := testItem("low", types.MemoryWorking, 0.1)
	require.NoError(t, store.Store(low))
	require.NoError(t, store.Store(testItem("mid", types.MemoryWorking, 0.5)))
	require.NoError(t, store.Store(testItem("high", types.MemoryWorking, 0.9)))
	require.NoError(t, store.Store(testItem("new", types.MemoryWorking, 0.6)))

	items := store.Items(types.MemoryWorking)
	require.Len(t, items, 3)
	for _, item := range items {
		assert.NotEqual(t, "low", item.MemoryID, "lowest composite score must go first")
	}
}

func TestLayeredStore_EmotionalIntensityResistsEviction(t *testing.T) {
	t.Parallel()
	store, err := NewLayeredStore("scout", testMemoryConfig(), nil)
	require.NoError(t, err)

	plain := testItem("plain", types.MemoryWorking, 0.5)
	charged := testItem("charged", types.MemoryWorking, 0.5)
	charged.EmotionalIntensity = 1.0
	require.NoError(t, store.Store(plain))
	require.NoError(t, store.Store(charged))
	require.NoError(t, store.Store(testItem("a", types.MemoryWorking, 0.9)))
	require.NoError(t, store.Store(testItem("b", types.MemoryWorking, 0.9)))

	ids := make([]string, 0, 3)
	for _, item := range store.Items(types.MemoryWorking) {
		ids = append(ids, item.MemoryID)
	}
	assert.Contains(t, ids, "charged", "1+0.5·intensity factor must keep the charged item")
	assert.NotContains(t, ids, "plain")
}

func TestLayeredStore_StaleItemsDecay(t *testing.T) {
	t.Parallel()
	cfg := testMemoryConfig()
	cfg.DecayHalfLifeTurns = 2
	store, err := NewLayeredStore("scout", cfg, nil)
	require.NoError(t, err)

	stale := testItem("stale", types.MemoryWorking, 0.9)
	stale.LastAccessedTurn = 0
	require.NoError(t, store.Store(stale))

	store.AdvanceTurn(20)
	fresh := testItem("f1", types.MemoryWorking, 0.4)
	fresh.LastAccessedTurn = 20
	require.NoError(t, store.Store(fresh))
	f2 := testItem("f2", types.MemoryWorking, 0.4)
	f2.LastAccessedTurn = 20
	require.NoError(t, store.Store(f2))
	f3 := testItem("f3", types.MemoryWorking, 0.4)
	f3.LastAccessedTurn = 20
	require.NoError(t, store.Store(f3))

	// 0.9 · decay(20 回合, 半衰期 2) ≪ 0.4 · decay(0)
	for _, item := range store.Items(types.MemoryWorking) {
		assert.NotEqual(t, "stale", item.MemoryID)
	}
}

func TestLayeredStore_TouchResistsEviction(t *testing.T) {
	t.Parallel()
	cfg := testMemoryConfig()
	cfg.DecayHalfLifeTurns = 2
	store, err := NewLayeredStore("scout", cfg, nil)
	require.NoError(t, err)

	old := testItem("old", types.MemoryWorking, 0.5)
	old.LastAccessedTurn = 0
	require.NoError(t, store.Store(old))
	store.AdvanceTurn(10)
	assert.True(t, store.Touch("old", 10))

	for i := 0; i < 3; i++ {
		it := testItem(fmt.Sprintf("n%d", i), types.MemoryWorking, 0.4)
		it.LastAccessedTurn = 10
		require.NoError(t, store.Store(it))
	}
	ids := make([]string, 0, 3)
	for _, item := range store.Items(types.MemoryWorking) {
		ids = append(ids, item.MemoryID)
	}
	assert.Contains(t, ids, "old", "a touched memory must outlast untouched peers")

	assert.False(t, store.Touch("gone", 10))
}

func TestLayeredStore_ConsolidatePromotesAndIsIdempotent(t *testing.T) {
	t.Parallel()
	cfg := testMemoryConfig()
	cfg.PromotionThreshold = 0.6
	store, err := NewLayeredStore("scout", cfg, nil)
	require.NoError(t, err)
	store.AdvanceTurn(3)

	require.NoError(t, store.Store(testItem("keep", types.MemoryWorking, 0.3)))
	require.NoError(t, store.Store(testItem("promote", types.MemoryWorking, 0.8)))

	report := store.Consolidate()
	assert.Equal(t, 1, report.Promoted)
	assert.True(t, report.Changed())

	assert.Equal(t, 1, store.Len(types.MemoryWorking))
	episodic := store.Items(types.MemoryEpisodic)
	require.Len(t, episodic, 1)
	assert.Equal(t, "promote", episodic[0].MemoryID)
	assert.Equal(t, types.MemoryEpisodic, episodic[0].Tier)
	_, ok := episodic[0].Payload.(types.EpisodicPayload)
	assert.True(t, ok, "promoted item carries the episodic variant")

	// 幂等：紧接着的第二次运行不产生任何变化
	second := store.Consolidate()
	assert.False(t, second.Changed())
	assert.Equal(t, 1, store.Len(types.MemoryWorking))
	assert.Equal(t, 1, store.Len(types.MemoryEpisodic))
}

func TestLayeredStore_ConsolidateMergesSemanticDuplicates(t *testing.T) {
	t.Parallel()
	store, err := NewLayeredStore("scout", testMemoryConfig(), nil)
	require.NoError(t, err)

	weak := testItem("weak", types.MemorySemantic, 0.5)
	weak.Payload = types.SemanticPayload{Subject: "bridge", Predicate: "status", Object: "damaged", Confidence: 0.4}
	strong := testItem("strong", types.MemorySemantic, 0.5)
	strong.Payload = types.SemanticPayload{Subject: "bridge", Predicate: "status", Object: "destroyed", Confidence: 0.9}
	unrelated := testItem("other", types.MemorySemantic, 0.5)
	unrelated.Content = "the eastern pass is snowed in this season"
	unrelated.Payload = types.SemanticPayload{Subject: "pass", Predicate: "status", Object: "snowed", Confidence: 0.5}

	require.NoError(t, store.Store(weak))
	require.NoError(t, store.Store(strong))
	require.NoError(t, store.Store(unrelated))

	report := store.Consolidate()
	assert.Equal(t, 1, report.Merged)

	items := store.Items(types.MemorySemantic)
	require.Len(t, items, 2)
	ids := []string{items[0].MemoryID, items[1].MemoryID}
	assert.Contains(t, ids, "strong", "higher confidence wins the merge")
	assert.Contains(t, ids, "other")

	assert.False(t, store.Consolidate().Changed())
}

func TestLayeredStore_SnapshotRestoreRoundTrip(t *testing.T) {
	t.Parallel()
	store, err := NewLayeredStore("scout", testMemoryConfig(), nil)
	require.NoError(t, err)

	episodic := testItem("e1", types.MemoryEpisodic, 0.7)
	episodic.Payload = types.EpisodicPayload{Location: "ridge", Participants: []string{"raven"}, Outcome: "ambush"}
	require.NoError(t, store.Store(episodic))
	require.NoError(t, store.Store(testItem("w1", types.MemoryWorking, 0.5)))

	snapshot := store.Snapshot()
	require.Len(t, snapshot, 2)

	restored, err := NewLayeredStore("scout", testMemoryConfig(), nil)
	require.NoError(t, err)
	restored.Restore(snapshot)
	assert.Equal(t, snapshot, restored.Snapshot())

	// 无效行与外来行静默跳过
	bad := testItem("", types.MemoryWorking, 0.5)
	foreign := testItem("f1", types.MemoryWorking, 0.5)
	foreign.AgentID = "other"
	restored.Restore(append(snapshot, bad, foreign))
	assert.Equal(t, 2, restored.Stats().TotalItems)
}

func TestLayeredStore_Retrieve(t *testing.T) {
	t.Parallel()
	store, err := NewLayeredStore("scout", testMemoryConfig(), nil)
	require.NoError(t, err)

	ridge := testItem("ridge", types.MemoryEpisodic, 0.4)
	ridge.Content = "ambushed at the northern ridge"
	river := testItem("river", types.MemoryEpisodic, 0.9)
	river.Content = "crossed the river unseen"
	require.NoError(t, store.Store(ridge))
	require.NoError(t, store.Store(river))

	got := store.Retrieve("ridge ambush", 5)
	require.NotEmpty(t, got)
	assert.Equal(t, "ridge", got[0].MemoryID, "term overlap outranks stored relevance here")

	assert.Nil(t, store.Retrieve("ridge", 0))
}

func TestLayeredStore_Stats(t *testing.T) {
	t.Parallel()
	store, err := NewLayeredStore("scout", testMemoryConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, store.Store(testItem("m1", types.MemoryWorking, 0.5)))
	require.NoError(t, store.Store(testItem("m2", types.MemorySemantic, 0.5)))

	stats := store.Stats()
	assert.Equal(t, "scout", stats.AgentID)
	assert.Equal(t, 2, stats.TotalItems)
	assert.Equal(t, 1, stats.ByTier[types.MemoryWorking])
	assert.Equal(t, 1, stats.ByTier[types.MemorySemantic])
	assert.Equal(t, 0, stats.ByTier[types.MemoryEpisodic])
}

// 淘汰确定性：同一组条目与分数下，淘汰总是移除同一条目。
func TestProperty_EvictionDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("identical stores evict identically", prop.ForAll(
		func(relevances []float64, intensities []float64, turn int) bool {
			n := len(relevances)
			if len(intensities) < n {
				n = len(intensities)
			}
			if n == 0 {
				return true
			}

			build := func() *LayeredStore {
				cfg := testMemoryConfig()
				cfg.WorkingCapacity = 2
				store, err := NewLayeredStore("scout", cfg, nil)
				if err != nil {
					return nil
				}
				store.AdvanceTurn(turn)
				for i := 0; i < n; i++ {
					item := testItem(fmt.Sprintf("m%02d", i), types.MemoryWorking, relevances[i])
					item.EmotionalIntensity = intensities[i]
					if err := store.Store(item); err != nil {
						return nil
					}
				}
				return store
			}

			first, second := build(), build()
			if first == nil || second == nil {
				return false
			}
			a, b := first.Items(types.MemoryWorking), second.Items(types.MemoryWorking)
			if len(a) != len(b) || len(a) > 2 {
				return false
			}
			for i := range a {
				if a[i].MemoryID != b[i].MemoryID {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(6, gen.Float64Range(0, 1)),
		gen.SliceOfN(6, gen.Float64Range(0, 1)),
		gen.IntRange(1, 50),
	))

	properties.TestingRun(t)
}
