// 版权所有 Chronicler Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供显式注入的有界缓存，供检索层等组件使用。
缓存永远作为对象传入，绝不作为包级全局状态存在，
以保证失效边界清晰、测试可控。

# 概述

本包定义统一的 Cache 接口，并提供两个实现：
进程内的 LRU 缓存与基于 go-redis 的分布式缓存。
两者共享相同的未命中语义与统计口径。

# 核心类型

  - Cache：统一缓存接口，提供 Get/Set/Delete/Purge/Stats/Close。
  - LRU：进程内有界缓存，按最近使用淘汰，支持条目 TTL。
  - Redis：基于 go-redis 的缓存，带键前缀隔离与健康检查。
  - Stats：命中、未命中、键数量与淘汰次数统计。

# 主要能力

  - 键值读写：字符串模式，另有 GetJSON/SetJSON 便捷函数。
  - 有界淘汰：LRU 按容量淘汰最久未使用条目。
  - 显式失效：Delete 按键失效，Purge 清空本缓存的全部条目。
  - 错误语义：提供 ErrCacheMiss 哨兵错误与 IsCacheMiss 判断函数。
*/
package cache
