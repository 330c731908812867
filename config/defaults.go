// =============================================================================
// 📦 AskFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Pipeline:   DefaultPipelineConfig(),
		Memory:     DefaultMemoryConfig(),
		Checkpoint: DefaultCheckpointConfig(),
		Redis:      DefaultRedisConfig(),
		Database:   DefaultDatabaseConfig(),
		Retrieval:  DefaultRetrievalConfig(),
		LLM:        DefaultLLMConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
		Metrics:    DefaultMetricsConfig(),
	}
}

// DefaultPipelineConfig 返回默认编排参数
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MaxRetry:        2,
		TopK:            3,
		EvidencePreview: 3,
		MaxSteps:        64,
	}
}

// DefaultMemoryConfig 返回默认任务记忆配置
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{Type: "memory"}
}

// DefaultCheckpointConfig 返回默认检查点配置
func DefaultCheckpointConfig() CheckpointConfig {
	return CheckpointConfig{
		Type: "file",
		Dir:  "checkpoints",
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		PoolSize:  10,
		KeyPrefix: "askflow:",
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Name:            "askflow.db",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultRetrievalConfig 返回默认检索配置
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		CacheEnabled: false,
		CacheTTL:     30 * time.Minute,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Enabled:             false,
		BaseURL:             "https://api.openai.com",
		Model:               "gpt-4o-mini",
		Timeout:             60 * time.Second,
		RequestsPerSecond:   2,
		Burst:               4,
		MaxRetries:          2,
		Encoding:            "cl100k_base",
		EvidenceTokenBudget: 1500,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		Insecure:     true,
		ServiceName:  "askflow",
		SampleRate:   0.1,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "askflow",
	}
}
