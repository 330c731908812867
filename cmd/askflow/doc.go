// Copyright (c) AskFlow Authors.
// Licensed under the MIT License.

/*
askflow 是任务编排器的命令行入口。

子命令 run、resume、trace、batch 共用同一套装配逻辑：按配置选择任务记忆
与检查点后端，共享一个 Redis 客户端，选择 LLM 或本地规则协作方，并在配置了
metrics.listen_addr 时启动运维监听器。

退出码：0 成功，1 运行错误，2 用法错误，3 任务没有检查点。
*/
package main
