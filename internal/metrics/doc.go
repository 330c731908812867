// 版权所有 2024 AskFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的编排指标采集能力，覆盖阶段执行、
评审决策、检查点写入、任务结果、LLM 调用与检索缓存。

# 概述

Collector 通过 promauto 注册所有指标，按 namespace 隔离。默认注册到
全局 Registry；测试或多实例场景可用 NewCollectorWithRegistry 传入独立
Registerer。

# 主要能力

  - 阶段指标：执行次数（stage/status）、执行耗时（stage）
  - 评审指标：映射后状态计数（status）
  - 检查点指标：写入次数（backend/result）与写入耗时
  - 任务指标：结束结果（outcome）、续跑结果（result）
  - LLM 指标：请求次数与耗时（model/status）
  - 缓存指标：检索缓存命中与未命中
*/
package metrics
