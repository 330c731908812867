// 版权所有 2024 AskFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 telemetry 封装 OpenTelemetry SDK 的初始化与阶段级埋点。

  - Init：按配置创建 OTLP gRPC Trace/Metric 导出器并注册为全局 Provider；
    关闭时保持全局 noop，不连接任何外部服务。
  - StageInstruments：为每次阶段执行创建 span，并记录执行次数与耗时。
*/
package telemetry
