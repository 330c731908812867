// Copyright (c) AskFlow Authors.
// Licensed under the MIT License.

/*
包 llm 提供基于大语言模型的协作方：规划、评审与答案生成。

# 概述

[Provider] 抽象一次同步补全请求；[Client] 是 OpenAI 兼容接口的实现，
内置请求限流与耗时观测。在此之上：

  - [Planner]：要求模型输出 {topic, intent, task_plan} JSON。
  - [Judge]：把查询、意图、前 N 条证据预览与草稿答案交给模型，
    要求输出 {status, reason, action, rewrite_query} JSON。
  - [Generator]：基于证据生成草稿答案。

Planner 与 Judge 返回模型的原始输出，由编排核心负责校验与兜底，
因此模型输出格式错误不会在这里变成错误。网络或上游错误会原样返回，
编排器将其视为致命的协作方失败。

# Token 预算

评审提示词中的证据按 tokenizer 子包计数并截断，见 [ClipEvidence]。
*/
package llm
