// Copyright (c) AskFlow Authors.
// Licensed under the MIT License.

/*
包 cache 提供基于 Redis 的 JSON 缓存，当前用于检索结果缓存。

# 核心类型

  - Manager：持有 go-redis 客户端与键前缀，提供 Get/Set/GetJSON/SetJSON/
    Delete/Ping 等操作。客户端可以由 Manager 创建并拥有，也可以由调用方
    注入共享（此时 Close 不会关闭客户端）。
  - Config：地址、密码、连接池大小、默认 TTL 与键前缀。

# 错误语义

未命中返回 ErrCacheMiss，可用 IsCacheMiss 判断。
*/
package cache
