package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fableloom/chronicler/archive"
	"github.com/fableloom/chronicler/types"
)

func seededArchive(t *testing.T) *archive.MemoryArchive {
	t.Helper()
	a := archive.NewMemoryArchive()
	for _, b := range []types.TurnBrief{
		{BriefID: "b1", AgentID: "scout", TurnID: "turn-3", Turn: 3, TokenCount: 90},
		{BriefID: "b2", AgentID: "raven", TurnID: "turn-3", Turn: 3, TokenCount: 80},
		{BriefID: "b3", AgentID: "scout", TurnID: "turn-4", Turn: 4, TokenCount: 110},
	} {
		require.NoError(t, a.Put(context.Background(), b))
	}
	return a
}

// getBrief 以 1.22 路由语义调用 handler，PathValue 需要模式匹配
func serveBriefs(h *BriefsHandler, target string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/briefs/{agent_id}", h.HandleGetBrief)
	mux.HandleFunc("GET /v1/turns/{turn_id}/briefs", h.HandleListTurn)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

// =============================================================================
// 🧪 BriefsHandler 测试
// =============================================================================

func TestHandleGetBrief(t *testing.T) {
	h := NewBriefsHandler(seededArchive(t), zap.NewNop())

	t.Run("found", func(t *testing.T) {
		w := serveBriefs(h, "/v1/briefs/scout?turn=turn-3")
		require.Equal(t, http.StatusOK, w.Code)

		body := struct {
			Data types.TurnBrief `json:"data"`
		}{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "b1", body.Data.BriefID)
		assert.Equal(t, 3, body.Data.Turn)
	})

	t.Run("bare turn number is normalized", func(t *testing.T) {
		w := serveBriefs(h, "/v1/briefs/scout?turn=4")
		require.Equal(t, http.StatusOK, w.Code)

		body := struct {
			Data types.TurnBrief `json:"data"`
		}{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "b3", body.Data.BriefID)
	})

	t.Run("missing turn parameter", func(t *testing.T) {
		w := serveBriefs(h, "/v1/briefs/scout")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown agent", func(t *testing.T) {
		w := serveBriefs(h, "/v1/briefs/ghost?turn=3")
		assert.Equal(t, http.StatusNotFound, w.Code)

		var resp Response
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	})

	t.Run("unknown turn", func(t *testing.T) {
		w := serveBriefs(h, "/v1/briefs/scout?turn=99")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHandleListTurn(t *testing.T) {
	h := NewBriefsHandler(seededArchive(t), zap.NewNop())

	t.Run("lists agents sorted", func(t *testing.T) {
		w := serveBriefs(h, "/v1/turns/turn-3/briefs")
		require.Equal(t, http.StatusOK, w.Code)

		body := struct {
			Data []types.TurnBrief `json:"data"`
		}{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		require.Len(t, body.Data, 2)
		assert.Equal(t, "raven", body.Data[0].AgentID)
		assert.Equal(t, "scout", body.Data[1].AgentID)
	})

	t.Run("bare number path segment", func(t *testing.T) {
		w := serveBriefs(h, "/v1/turns/3/briefs")
		require.Equal(t, http.StatusOK, w.Code)

		body := struct {
			Data []types.TurnBrief `json:"data"`
		}{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Len(t, body.Data, 2)
	})

	t.Run("empty turn yields empty list", func(t *testing.T) {
		w := serveBriefs(h, "/v1/turns/turn-99/briefs")
		require.Equal(t, http.StatusOK, w.Code)

		body := struct {
			Data []types.TurnBrief `json:"data"`
		}{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Empty(t, body.Data)
	})
}

func TestBriefsHandler_ArchiveDisabled(t *testing.T) {
	h := NewBriefsHandler(nil, zap.NewNop())

	w := serveBriefs(h, "/v1/briefs/scout?turn=3")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = serveBriefs(h, "/v1/turns/turn-3/briefs")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
