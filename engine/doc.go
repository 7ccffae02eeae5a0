// Package engine 回合调度
//
// 每个回合分两个阶段：
//
//  1. 装配阶段：每个 Agent 一个任务，丢进有界工作池并行跑。
//     装配只读（世界快照、检索索引都支持并发读，记忆选取
//     不落访问副作用），所以 Agent 之间互不干扰。
//  2. 提交阶段：所有装配到齐后（屏障）串行执行全部写入——
//     记忆访问计数、本回合目击记录、按节奏整合、快照落盘。
//
// 取消是全有或全无：任何一个装配失败或上下文被取消，本回合
// 什么都不提交，也不对外暴露任何半成品简报。
package engine
