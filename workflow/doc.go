// Copyright (c) AskFlow Authors.
// Licensed under the MIT License.

/*
# 概述

Package workflow 实现评审驱动的任务流水线编排器。

一个任务依次经过 plan → retrieve → execute → critique 阶段，评审结果经
策略映射后决定结束（done）、重新检索（retrieve）、改写查询后重新检索
（rewrite → retrieve）或终止（fail → done）。

# 核心类型

  - Graph / GraphBuilder: 阶段转移表，构建时做穷尽校验，
    缺少任何阶段或评审状态的出边都会返回 ErrIncompleteGraph。
  - Node: 阶段节点（PlannerNode、RetrieverNode、ExecutorNode、
    CriticNode、RewriteNode、FailNode），在状态副本上运行并声明后继阶段。
  - Orchestrator: 单任务串行执行循环。每次阶段转移先写任务记忆，
    再追加一条轨迹，最后覆盖写检查点，之后才进入下一阶段。
  - Planner / Retriever / Judge / Generator: 外部协作方接口。

# 断点续跑

Resume 读取任务的检查点，用其中的任务记忆覆盖仓库中的记录，并从检查点
声明的 next_step 继续执行，而不是从头开始。协作方响应相同时，续跑产生的
轨迹与不中断的运行一致。
*/
package workflow
