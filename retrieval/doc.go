// Copyright (c) Chronicler Authors.
// Licensed under the MIT License.

/*
Package retrieval 封装对外部排序知识索引的查询，以及送入简报前的
MMR 多样性剪枝。

# 概述

Retriever 是管线中唯一会阻塞在外部 I/O 上的组件。查询以 ScopeFilter
约束在 Agent 的可见实体与意图关键词内，检索不会泄露被雾战屏蔽的信息。
索引不可达或超时映射为可恢复的 INDEX_UNAVAILABLE，装配层据此降级为
仅记忆简报，绝不让单个 Agent 的失败中断整个回合。

# 实现

  - IndexClient        — HTTP 适配器，对接外部排序索引服务
  - MemoryIndex        — 进程内索引（测试与单二进制部署）：向量余弦 + 词重叠混合打分
  - VerifiedRetriever  — 溯源校验装饰器，丢弃无法解析 source_id@version 的片段
  - RateLimitedRetriever — x/time/rate 限流装饰器，保护后端索引
  - CachedRetriever    — 注入式有界缓存装饰器（禁止包级全局记忆化）
  - DiversityPruner    — 贪心 MMR 选择 ≤ max_snippets 个片段

# 装饰器顺序

NewRetrieverFromConfig 组装为 Cached → Verified → RateLimited → 后端：
缓存命中不消耗限流配额，进入缓存的结果均已通过溯源校验。
*/
package retrieval
