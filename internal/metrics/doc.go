// 版权所有 2025 Chronicler Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的全链路指标采集能力，覆盖
HTTP、简报装配、检索、记忆、回合引擎、缓存、数据库与推送八大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
支持多维度 label 分组，便于 Grafana 等工具进行可视化与告警。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 等
    Prometheus 向量指标，按业务域分组管理。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、请求/响应体大小，
    按 method/path/status 分组，状态码归类为 2xx/3xx/4xx/5xx。
  - 简报指标：装配总数（ok/degraded/fallback）、装配耗时、
    令牌用量、选中片段数与预算裁剪计数，按裁剪阶段分组。
  - 检索指标：请求总数、检索耗时、索引不可用计数，按 backend 分组。
  - 记忆指标：分层条目数 Gauge、淘汰与晋升计数、合并归并耗时。
  - 回合指标：回合总数、回合耗时、参与代理数分布。
  - 缓存指标：命中与未命中计数，按 cache_type 分组。
  - 数据库指标：活跃/空闲连接数 Gauge、查询耗时 Histogram。
  - 推送指标：订阅者数 Gauge、帧计数与慢订阅者丢弃计数。
*/
package metrics
