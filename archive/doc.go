// Package archive 简报归档
//
// 每回合发出的 TurnBrief 在这里落盘，供叙事协作方按
// (agent_id, turn_id) 回查或整回合拉取。归档是可选的：
// 不配置后端时引擎直接跳过。
//
// 两个实现：
//   - MemoryArchive: 进程内，测试与单机运行用
//   - MongoArchive:  mongo-driver v2，(agent_id, turn_id) 上做 upsert
package archive
