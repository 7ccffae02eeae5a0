package retrieval

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fableloom/chronicler/config"
	"github.com/fableloom/chronicler/internal/cache"
	"github.com/fableloom/chronicler/registry"
	"github.com/fableloom/chronicler/types"
)

// stubRetriever 固定返回预设结果并统计调用次数.
type stubRetriever struct {
	calls    atomic.Int32
	snippets []types.KnowledgeSnippet
	err      error
}

func (s *stubRetriever) Query(ctx context.Context, text string, scope ScopeFilter, topK int) ([]types.KnowledgeSnippet, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.snippets, nil
}

func testRegistry(t *testing.T) *registry.StaticRegistry {
	t.Helper()
	reg, err := registry.NewStatic(
		registry.Source{ID: "atlas", Version: "v3", Trust: 0.9},
	)
	require.NoError(t, err)
	return reg
}

func TestVerifiedRetriever_DropsUnresolvedAndMalformed(t *testing.T) {
	stub := &stubRetriever{snippets: []types.KnowledgeSnippet{
		{Content: "resolves", SourceID: "atlas", SourceVersion: "v3", TrustScore: 0.9, RelevanceScore: 0.8},
		{Content: "stale version", SourceID: "atlas", SourceVersion: "v1", TrustScore: 0.9, RelevanceScore: 0.9},
		{Content: "", SourceID: "atlas", SourceVersion: "v3"},
		{Content: "synthetic", SourceID: types.InternalSourceID, SourceVersion: types.InternalSourceVersion, RelevanceScore: 0.5},
	}}

	v := NewVerifiedRetriever(stub, testRegistry(t), nil)
	got, err := v.Query(context.Background(), "q", ScopeFilter{}, 10)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "resolves", got[0].Content)
	assert.Equal(t, "synthetic", got[1].Content, "internal provenance always resolves")
}

func TestVerifiedRetriever_PropagatesErrors(t *testing.T) {
	stub := &stubRetriever{err: types.NewError(types.ErrIndexUnavailable, "down").WithRetryable(true)}
	v := NewVerifiedRetriever(stub, testRegistry(t), nil)

	_, err := v.Query(context.Background(), "q", ScopeFilter{}, 10)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrIndexUnavailable))
}

func TestCachedRetriever_HitSkipsInnerQuery(t *testing.T) {
	stub := &stubRetriever{snippets: []types.KnowledgeSnippet{
		{Content: "cached", SourceID: "atlas", SourceVersion: "v3", RelevanceScore: 0.7, TrustScore: 0.9},
	}}
	c := NewCachedRetriever(stub, cache.NewLRU(cache.DefaultLRUConfig()), time.Minute, nil)

	first, err := c.Query(context.Background(), "harbor", ScopeFilter{}, 5)
	require.NoError(t, err)
	second, err := c.Query(context.Background(), "harbor", ScopeFilter{}, 5)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), stub.calls.Load(), "second query must be served from cache")
	assert.Equal(t, int64(1), c.Stats().Hits)
}

func TestCachedRetriever_ScopeIsPartOfTheKey(t *testing.T) {
	stub := &stubRetriever{}
	c := NewCachedRetriever(stub, cache.NewLRU(cache.DefaultLRUConfig()), time.Minute, nil)

	_, err := c.Query(context.Background(), "harbor", ScopeFilter{VisibleEntities: []string{"a"}}, 5)
	require.NoError(t, err)
	_, err = c.Query(context.Background(), "harbor", ScopeFilter{VisibleEntities: []string{"b"}}, 5)
	require.NoError(t, err)

	assert.Equal(t, int32(2), stub.calls.Load(), "different visible sets must not share cache entries")
}

func TestCachedRetriever_InvalidateRestoresMiss(t *testing.T) {
	stub := &stubRetriever{}
	c := NewCachedRetriever(stub, cache.NewLRU(cache.DefaultLRUConfig()), time.Minute, nil)

	_, err := c.Query(context.Background(), "harbor", ScopeFilter{}, 5)
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(context.Background()))
	_, err = c.Query(context.Background(), "harbor", ScopeFilter{}, 5)
	require.NoError(t, err)

	assert.Equal(t, int32(2), stub.calls.Load())
}

func TestCachedRetriever_ErrorsAreNotCached(t *testing.T) {
	stub := &stubRetriever{err: types.NewError(types.ErrIndexUnavailable, "down")}
	c := NewCachedRetriever(stub, cache.NewLRU(cache.DefaultLRUConfig()), time.Minute, nil)

	_, err := c.Query(context.Background(), "harbor", ScopeFilter{}, 5)
	require.Error(t, err)

	stub.err = nil
	stub.snippets = []types.KnowledgeSnippet{{Content: "recovered", SourceID: "atlas", SourceVersion: "v3"}}
	got, err := c.Query(context.Background(), "harbor", ScopeFilter{}, 5)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestRateLimitedRetriever_ThrottlesAndTimesOut(t *testing.T) {
	stub := &stubRetriever{}
	// 1 qps，突发 1：第二个查询必须等待约一秒.
	r := NewRateLimitedRetriever(stub, 1, 1, nil)

	_, err := r.Query(context.Background(), "a", ScopeFilter{}, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = r.Query(ctx, "b", ScopeFilter{}, 1)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrIndexUnavailable))
	assert.Equal(t, int32(1), stub.calls.Load())
}

func TestRateLimitedRetriever_ZeroQPSDisablesLimiting(t *testing.T) {
	stub := &stubRetriever{}
	r := NewRateLimitedRetriever(stub, 0, 0, nil)

	for i := 0; i < 50; i++ {
		_, err := r.Query(context.Background(), "a", ScopeFilter{}, 1)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(50), stub.calls.Load())
}

func TestNewRetrieverFromConfig_MemoryChain(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Index.Backend = BackendMemory

	seeds := []types.KnowledgeSnippet{
		{Content: "the harbor freezes in winter", SourceID: "atlas", SourceVersion: "v3", TrustScore: 0.9},
		{Content: "an unregistered rumor", SourceID: "rumor", SourceVersion: "v0", TrustScore: 0.2},
	}
	ret, err := NewRetrieverFromConfig(cfg, testRegistry(t), cache.NewLRU(cache.DefaultLRUConfig()), seeds, nil)
	require.NoError(t, err)

	got, err := ret.Query(context.Background(), "harbor winter rumor", ScopeFilter{}, 8)
	require.NoError(t, err)
	require.Len(t, got, 1, "unregistered source is dropped by the verification layer")
	assert.Equal(t, "atlas", got[0].SourceID)
}

func TestNewRetrieverFromConfig_Invalid(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Index.Backend = "quantum"
	_, err := NewRetrieverFromConfig(cfg, testRegistry(t), nil, nil, nil)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidConfiguration))

	cfg.Index.Backend = BackendHTTP
	cfg.Index.BaseURL = ""
	_, err = NewRetrieverFromConfig(cfg, testRegistry(t), nil, nil, nil)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidConfiguration))
}
