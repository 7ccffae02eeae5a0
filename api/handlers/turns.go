package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/fableloom/chronicler/api"
	"github.com/fableloom/chronicler/engine"
	"github.com/fableloom/chronicler/types"
	"github.com/fableloom/chronicler/world"
)

// maxTurnsPerRequest 单次请求最多推进的回合数
const maxTurnsPerRequest = 50

// TurnRunner 对一个世界快照跑一个回合。engine.Engine 满足它。
type TurnRunner interface {
	RunTurn(ctx context.Context, st *world.State) (*engine.TurnResult, error)
}

// =============================================================================
// 🎲 回合推进 Handler
// =============================================================================

// TurnsHandler 持有世界时钟：每推进一回合，克隆出下一个回合的
// 快照。实体布局的演化是编排方的事，这里只推进回合号。
type TurnsHandler struct {
	runner TurnRunner
	logger *zap.Logger

	mu    sync.Mutex
	state *world.State
}

// NewTurnsHandler 创建回合推进处理器
func NewTurnsHandler(runner TurnRunner, initial *world.State, logger *zap.Logger) (*TurnsHandler, error) {
	if runner == nil || initial == nil {
		return nil, types.NewError(types.ErrInvalidConfiguration, "turns handler requires a runner and an initial world state")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TurnsHandler{
		runner: runner,
		logger: logger.With(zap.String("component", "turns_handler")),
		state:  initial,
	}, nil
}

// Turn 返回当前回合号，就绪探针与测试用。
func (h *TurnsHandler) Turn() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state.Turn
}

// HandleRunTurns 处理 POST /v1/turns
func (h *TurnsHandler) HandleRunTurns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrValidation, "method not allowed", h.logger)
		return
	}

	var req api.RunTurnsRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	turns := req.Turns
	if turns == 0 {
		turns = 1
	}
	if turns < 0 || turns > maxTurnsPerRequest {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrValidation,
			fmt.Sprintf("turns must be in [1,%d]", maxTurnsPerRequest), h.logger)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	resp := api.RunTurnsResponse{Completed: make([]api.TurnSummary, 0, turns)}
	for i := 0; i < turns; i++ {
		result, err := h.runner.RunTurn(r.Context(), h.state)
		if err != nil {
			h.logger.Warn("turn run failed",
				zap.Int("turn", h.state.Turn),
				zap.Int("completed", len(resp.Completed)),
				zap.Error(err))
			apiErr, ok := err.(*types.Error)
			if !ok {
				apiErr = types.NewError(types.ErrInternalError, "turn run failed").WithCause(err)
			}
			WriteError(w, apiErr, h.logger)
			return
		}
		resp.Completed = append(resp.Completed, summarize(result))
		h.state = h.state.AtTurn(h.state.Turn + 1)
	}

	WriteSuccess(w, resp)
}

// summarize maps an engine result to its API form.
func summarize(res *engine.TurnResult) api.TurnSummary {
	s := api.TurnSummary{
		TurnID:        res.TurnID,
		Turn:          res.Turn,
		AgentCount:    len(res.Briefs),
		DegradedCount: res.DegradedCount,
		DurationMs:    res.Duration.Milliseconds(),
		Agents:        make([]api.AgentOutcome, 0, len(res.Briefs)),
	}
	for _, b := range res.Briefs {
		s.Agents = append(s.Agents, api.AgentOutcome{
			AgentID:        b.AgentID,
			BriefID:        b.BriefID,
			Status:         b.Status(),
			DegradedReason: b.DegradedReason,
			TokenCount:     b.TokenCount,
			Snippets:       len(b.Snippets),
			Memories:       len(b.Memories),
		})
	}
	return s
}
