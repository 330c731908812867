// Copyright (c) AskFlow Authors.
// Licensed under the MIT License.

/*
Package memory 提供按任务 ID 存取的任务记忆仓库与执行轨迹记录器。

# 概述

Store 是注入给 Orchestrator 的仓库抽象，提供 Get / Put / AppendTrace
三个操作，替代进程级全局 map。不同任务 ID 之间互不影响；同一任务 ID
同一时刻只允许一个写入方。

# 后端

  - memory: 进程内 map + RWMutex，开发与测试默认
  - redis: 记忆文档存为 JSON 字符串，轨迹存为 Redis List，RPUSH 追加

# 轨迹

Recorder 为每次阶段执行生成不可变的 TraceEntry（输入/输出快照、状态、
重试轮次、声明的下一阶段），通过 Store.AppendTrace 追加，序号由仓库分配。
*/
package memory
