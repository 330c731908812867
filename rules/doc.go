// Copyright (c) AskFlow Authors.
// Licensed under the MIT License.

/*
包 rules 提供无需大模型的离线协作方，便于本地运行与确定性测试。

  - KeywordPlanner：按关键词识别意图（summarize / compare / rewrite / qa）
    与主题，输出与大模型规划器相同的 JSON 结构。
  - Judge：规则评审。没有证据时要求重新检索；首条证据未覆盖主题时
    要求以主题词改写查询；改写后仍不覆盖则终止；否则通过。
  - TemplateGenerator：按模板拼接证据生成草稿答案。
*/
package rules
