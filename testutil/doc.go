/*
Package testutil 提供 AskFlow 测试的共享工具和辅助函数。

# 概述

testutil 包为各包的单元测试提供统一的辅助能力，避免重复实现相似的
测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 时钟辅助: FixedClock / StepClock，让轨迹时间戳可重复
  - 数据工具: MustJSON / MustParseJSON / AssertJSONEqual
  - 检索辅助: Hits 快速构造证据列表

# 子包

  - testutil/mocks: 协作方的脚本化 Mock，包括 Planner、Retriever、
    Judge、Generator 与 LLM Provider，均记录调用并支持错误注入。
*/
package testutil
