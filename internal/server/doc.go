// Copyright (c) AskFlow Authors.
// Licensed under the MIT License.

/*
包 server 提供运维监听器：/metrics 暴露 Prometheus 指标，/healthz 汇总
各存储后端的健康检查。

Manager 负责非阻塞启动与优雅关闭，Addr 在启动后返回实际监听地址，
便于以 ":0" 启动的测试与批处理场景。NewOpsHandler 组装路由，健康检查
按名称排序执行，任何一项失败时返回 503。
*/
package server
