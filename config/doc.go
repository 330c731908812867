// Package config 提供 askflow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量 的顺序叠加，最后运行校验器。
// 环境变量键由前缀与各级 env 标签拼接，例如 ASKFLOW_PIPELINE_MAX_RETRY。
package config
