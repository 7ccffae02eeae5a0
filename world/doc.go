// Package world 提供每回合不可变的世界状态快照：实体、阵营、事实，
// 以及从 YAML 场景文件构建初始状态与 Agent 规格的加载器。
package world
