/*
包 cache 提供基于 Redis 的咨询响应缓存。

# 概述

本包封装 go-redis 客户端。相同的问题与专家组合在 TTL 内命中同一个
键，直接返回已缓存的咨询结果，跳过整个专家并发调用。

# 核心类型

  - Manager：缓存管理器，持有 Redis 客户端与连接池配置，
    提供 GetJSON/SetJSON/Delete/Ping 操作。
  - Config：缓存配置，包含开关、地址、密码、连接池大小与 TTL。

# 键派生

Key(question, expertIDs) 对问题文本与排序后的专家 ID 列表做
SHA-256 哈希，前缀带版本号，序列化格式变更时递增版本即可整体失效。
*/
package cache
