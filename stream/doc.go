// Package stream 简报推送
//
// 回合引擎每发出一份 TurnBrief，Hub 就把它序列化成一条 JSON 帧
// 广播给订阅者。订阅分两种：绑定单个 agent_id 的定向订阅，
// 以及收取全部简报的火线订阅（agent_id 留空）。
//
// 背压策略：每个订阅者只有一个有界发送缓冲，写不进去就整个
// 订阅被丢弃并关闭，绝不无界堆积。WebSocket 端点
// （coder/websocket）是它对外的传输面。
package stream
