// Copyright (c) Chronicler Authors.
// Licensed under the MIT License.

/*
Package main 提供 Chronicler 服务端程序入口。

# 概述

cmd/chronicler 是上下文装配管线的可执行入口：加载场景文件，
按回合为每个叙事 Agent 装配有界、带溯源标签的 TurnBrief，
并通过 HTTP API 与 WebSocket 推送对外提供服务。程序支持 YAML
配置文件加载、结构化日志（zap）、Prometheus 指标采集与数据库迁移。

# 核心类型

  - Server           — 主服务器，管理 HTTP、Metrics 双端口及优雅关闭
  - Middleware        — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - responseWriter    — 包装 http.ResponseWriter 以捕获状态码

# 主要能力

  - 子命令：serve（启动服务）、migrate（数据库迁移）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    CORS、RateLimiter（基于 IP）、MetricsMiddleware、OTelTracing
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号监听 → 关闭 HTTP → 引擎 → 推送 → 归档 → 数据库
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
