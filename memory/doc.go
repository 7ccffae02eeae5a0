// Package memory 实现按 Agent 隔离的四层有界记忆存储
// （working / episodic / semantic / emotional）：写入、按回合检索、
// 容量淘汰、周期性整合（工作记忆晋升 + 语义记忆去重），
// 以及基于 GORM 的快照持久化。
//
// 每个 LayeredStore 由一个 Agent 独占；跨 Agent 的知识流动只通过
// 可见性通道发生，绝不共享原始记忆条目。装配阶段只读，
// 写入（Touch / Store / Consolidate）由引擎在串行提交阶段驱动。
package memory
