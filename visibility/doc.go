// Copyright (c) Chronicler Authors.
// Licensed under the MIT License.

/*
Package visibility 实现雾战（fog-of-war）可见性过滤。

# 概述

每个 Agent 通过其声明的感知通道观察世界：visual 按欧氏距离、radio 按
双方无线电能力与距离、intel 按阵营及单跳盟友关系。三个通道候选集取并集
得到 VisibleSet；世界事实过滤为至少引用一个可见实体的子集。

未声明任何 scope 的 Agent 看不到任何东西（fail-safe），但始终知道自身。

# 最后目击记录

离开感知范围的实体以 LastKnown 记录保留：置信度按回合数指数衰减
（半衰期可配置），低于下限的记录被剪除。Filter 持有每个 Agent 的目击
历史；Compute 只读，Observe 在引擎的串行提交阶段写入。

# 单调性

同一通道下，实体在范围 r 可见则在任意 r' ≥ r 也可见。intel 通道按阵营
拓扑判定，与距离无关。单跳盟友边界是硬性规则：多跳传播会改变信息流
保证，不得扩展。
*/
package visibility
