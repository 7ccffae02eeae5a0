// Package api 定义 Chronicler HTTP API 的请求与响应类型。
//
// 运维面一共七个端点：
//
//	GET  /health                 存活检查
//	GET  /readyz                 就绪检查（探依赖）
//	GET  /version                构建信息
//	GET  /metrics                Prometheus 指标（独立端口）
//	POST /v1/turns               推进并装配一个或多个回合
//	GET  /v1/briefs/{agent_id}   按 agent 与回合回查归档简报
//	GET  /v1/stream              WebSocket 简报推送
//
// 无认证：本服务跑在模拟编排方的内网侧，对外不暴露。
package api
