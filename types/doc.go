// Copyright (c) Chronicler Authors.
// Licensed under the MIT License.

/*
Package types 提供 Chronicler 上下文装配管线的全局共享类型定义。

# 概述

types 是整个仓库最底层的公共包，不依赖任何内部包，为 memory、visibility、
retrieval、brief、engine 等上层模块提供统一的类型契约。所有跨包共享的
结构体、枚举和错误码均定义于此，以避免循环依赖。

# 核心类型

  - TurnBrief          — 每回合为单个 Agent 装配的上下文简报（含溯源与降级标记）
  - KnowledgeSnippet   — 外部知识片段（内容 + 来源 + 信任分 + 相关性 + 向量）
  - MemoryItem         — 分层记忆条目，按 Tier 判别字段携带变体负载
  - TierPayload        — 记忆层负载的标签变体接口（working / episodic / semantic / emotional）
  - KnowledgeScope     — Agent 的感知通道声明（visual / radio / intel + 范围）
  - MaskedWorldState   — 经可见性过滤后的世界状态视图
  - Position           — 二维坐标与欧氏距离计算
  - Error / ErrorCode  — 结构化错误体系，含 Retryable 与管线阶段标记

# 主要能力

  - Context 传播：WithTraceID / WithTurnID / WithAgentID / WithScenarioID
  - 错误工具链：NewError / WithCause / IsErrorCode / IsRetryable / GetErrorCode
  - 溯源标签：ProvenanceTag（source_id@version）与合成标签 internal@current
  - Token 计数：TokenCounter 最小接口（装配层使用，无错误返回）
  - 校验：KnowledgeSnippet.Validate / MemoryItem.Validate / KnowledgeScope.Validate
*/
package types
