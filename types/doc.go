// Copyright (c) AskFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 askflow 编排核心的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 memory、checkpoint、critic、
workflow、llm、rag 等上层模块提供统一的数据契约，避免循环依赖。

# 核心类型

  - Stage: 流水线阶段枚举（plan / retrieve / execute / critique / rewrite / fail / done）
  - TaskState: 阶段之间传递的任务状态，由 Orchestrator 独占
  - TaskMemory: 按任务 ID 持久化的任务记忆（意图、检索轮次、轨迹、评审结果）
  - RetrievalContext: 当前检索轮次；历史轮次归档为 RetrievalRound
  - Verdict: 评审协作方返回的原始判定
  - Decision: 策略映射后的封闭和类型：Pass / RetryRetrieve / RetryWithRewrite / Fail
  - CriticResult: 持久化的评审结果（Decision + 原因 + 重试计数）
  - TraceEntry: 只追加的执行轨迹条目
  - Error / ErrorCode: 结构化错误体系

所有可选字段使用指针表示“尚未填充”，切片字段不使用 omitempty，
保证 JSON 往返后 nil 与空切片保持一致。
*/
package types
