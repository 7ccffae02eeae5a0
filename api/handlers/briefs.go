package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/fableloom/chronicler/archive"
	"github.com/fableloom/chronicler/types"
)

// =============================================================================
// 📜 简报回查 Handler
// =============================================================================

// BriefsHandler 从归档里回查已发出的简报
type BriefsHandler struct {
	archive archive.Archive
	logger  *zap.Logger
}

// NewBriefsHandler 创建简报回查处理器。归档未启用时传 nil，
// 端点会以 503 回答。
func NewBriefsHandler(a archive.Archive, logger *zap.Logger) *BriefsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BriefsHandler{
		archive: a,
		logger:  logger.With(zap.String("component", "briefs_handler")),
	}
}

// HandleGetBrief 处理 GET /v1/briefs/{agent_id}?turn=N
func (h *BriefsHandler) HandleGetBrief(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		WriteErrorMessage(w, http.StatusServiceUnavailable, types.ErrServiceUnavailable,
			"brief archiving is disabled", h.logger)
		return
	}
	agentID := r.PathValue("agent_id")
	if agentID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrValidation, "agent_id is required", h.logger)
		return
	}
	turnID, ok := turnIDFromQuery(r.URL.Query().Get("turn"))
	if !ok {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrValidation,
			"turn query parameter is required", h.logger)
		return
	}

	brief, err := h.archive.Get(r.Context(), agentID, turnID)
	if err != nil {
		writeArchiveError(w, err, h.logger)
		return
	}
	WriteSuccess(w, brief)
}

// HandleListTurn 处理 GET /v1/turns/{turn_id}/briefs
func (h *BriefsHandler) HandleListTurn(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		WriteErrorMessage(w, http.StatusServiceUnavailable, types.ErrServiceUnavailable,
			"brief archiving is disabled", h.logger)
		return
	}
	turnID, ok := turnIDFromQuery(r.PathValue("turn_id"))
	if !ok {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrValidation, "turn_id is required", h.logger)
		return
	}

	briefs, err := h.archive.ListTurn(r.Context(), turnID)
	if err != nil {
		writeArchiveError(w, err, h.logger)
		return
	}
	WriteSuccess(w, briefs)
}

// turnIDFromQuery 归一化回合标识：接受 "3" 或 "turn-3" 两种写法。
func turnIDFromQuery(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	if _, err := strconv.Atoi(raw); err == nil {
		return "turn-" + raw, true
	}
	return raw, true
}

func writeArchiveError(w http.ResponseWriter, err error, logger *zap.Logger) {
	apiErr, ok := err.(*types.Error)
	if !ok {
		apiErr = types.NewError(types.ErrInternalError, "archive lookup failed").WithCause(err)
	}
	WriteError(w, apiErr, logger)
}
