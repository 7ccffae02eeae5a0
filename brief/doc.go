// Package brief 构建 TurnBrief：Assembler 按严格顺序编排
// 可见性 → 检索 → MMR 剪枝 → 记忆选取 → 合并草稿 → 预算收敛 →
// 溯源盖章；BudgetEnforcer 以确定性的三段剪枝策略把草稿压进
// Token 预算，压不进则硬失败而不是悄悄截断身份数据。
package brief
