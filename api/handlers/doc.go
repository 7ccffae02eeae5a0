/*
Package handlers 提供 Chronicler HTTP API 的请求处理器实现。

# 概述

handlers 包实现运维面全部端点的处理逻辑：健康与版本探针、
回合推进、归档简报回查，以及统一的响应/错误封装。所有 Handler
均遵循标准 net/http 接口。

# 核心类型

  - TurnsHandler   — POST /v1/turns，推进并装配回合
  - BriefsHandler  — GET /v1/briefs/{agent_id}，归档回查
  - HealthHandler  — /health、/readyz、/version
  - Response       — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo      — 结构化错误信息，含 code、message、retryable 标记

WebSocket 推送端点在 stream 包里，/metrics 由 promhttp 直接提供，
两者不经过本包。
*/
package handlers
