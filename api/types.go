package api

import (
	"time"

	"github.com/fableloom/chronicler/types"
)

// RunTurnsRequest 推进回合请求
type RunTurnsRequest struct {
	// 连续推进的回合数，缺省 1
	Turns int `json:"turns,omitempty"`
}

// TurnSummary 单个回合的装配结果摘要
type TurnSummary struct {
	TurnID        string         `json:"turn_id"`
	Turn          int            `json:"turn"`
	AgentCount    int            `json:"agent_count"`
	DegradedCount int            `json:"degraded_count"`
	DurationMs    int64          `json:"duration_ms"`
	Agents        []AgentOutcome `json:"agents"`
}

// AgentOutcome 回合内单个 Agent 的装配结果
type AgentOutcome struct {
	AgentID        string              `json:"agent_id"`
	BriefID        string              `json:"brief_id"`
	Status         string              `json:"status"`
	DegradedReason types.DegradeReason `json:"degraded_reason,omitempty"`
	TokenCount     int                 `json:"token_count"`
	Snippets       int                 `json:"snippets"`
	Memories       int                 `json:"memories"`
}

// RunTurnsResponse 推进回合响应
type RunTurnsResponse struct {
	Completed []TurnSummary `json:"completed"`
}

// VersionInfo 构建信息
type VersionInfo struct {
	Version   string    `json:"version"`
	GitCommit string    `json:"git_commit,omitempty"`
	BuildTime string    `json:"build_time,omitempty"`
	GoVersion string    `json:"go_version"`
	StartedAt time.Time `json:"started_at"`
}
