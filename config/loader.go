// =============================================================================
// 📦 AskFlow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("askflow.yaml").
//	    WithEnvPrefix("ASKFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 askflow 的完整配置结构
type Config struct {
	// Pipeline 编排参数
	Pipeline PipelineConfig `yaml:"pipeline" env:"PIPELINE"`

	// Memory 任务记忆仓库
	Memory MemoryConfig `yaml:"memory" env:"MEMORY"`

	// Checkpoint 检查点存储
	Checkpoint CheckpointConfig `yaml:"checkpoint" env:"CHECKPOINT"`

	// Redis 连接（memory / checkpoint / 检索缓存共用）
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database 数据库配置（checkpoint.type=database 时使用）
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Retrieval 检索协作方
	Retrieval RetrievalConfig `yaml:"retrieval" env:"RETRIEVAL"`

	// LLM 大语言模型配置
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Metrics Prometheus 指标
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`
}

// PipelineConfig 编排参数
type PipelineConfig struct {
	// 重试上限
	MaxRetry int `yaml:"max_retry" env:"MAX_RETRY"`
	// 每轮检索返回的证据条数
	TopK int `yaml:"top_k" env:"TOP_K"`
	// 评审时预览的证据条数
	EvidencePreview int `yaml:"evidence_preview" env:"EVIDENCE_PREVIEW"`
	// 单次运行的最大阶段数
	MaxSteps int `yaml:"max_steps" env:"MAX_STEPS"`
}

// MemoryConfig 任务记忆仓库配置
type MemoryConfig struct {
	// 类型: memory, redis
	Type string `yaml:"type" env:"TYPE"`
	// 记录过期时间，0 表示不过期
	TTL time.Duration `yaml:"ttl" env:"TTL"`
}

// CheckpointConfig 检查点配置
type CheckpointConfig struct {
	// 类型: file, redis, database
	Type string `yaml:"type" env:"TYPE"`
	// 文件检查点目录
	Dir string `yaml:"dir" env:"DIR"`
	// 过期时间（仅 redis）
	TTL time.Duration `yaml:"ttl" env:"TTL"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// 启用 TLS 连接
	TLS bool `yaml:"tls" env:"TLS"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名；sqlite 下为文件路径
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// RetrievalConfig 检索配置
type RetrievalConfig struct {
	// 语料文件（YAML / JSON），为空时使用内置示例语料
	CorpusPath string `yaml:"corpus_path" env:"CORPUS_PATH"`
	// 是否启用 Redis 检索缓存
	CacheEnabled bool `yaml:"cache_enabled" env:"CACHE_ENABLED"`
	// 缓存有效期（一个会话）
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	// 是否启用；关闭时使用规则协作方
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OpenAI 兼容接口地址
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 模型
	Model string `yaml:"model" env:"MODEL"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 每秒请求数，0 表示不限流
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	// 突发请求数
	Burst int `yaml:"burst" env:"BURST"`
	// 可重试错误的重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// tiktoken 编码
	Encoding string `yaml:"encoding" env:"ENCODING"`
	// 评审提示词中证据的 Token 上限
	EvidenceTokenBudget int `yaml:"evidence_token_budget" env:"EVIDENCE_TOKEN_BUDGET"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 是否使用明文 gRPC
	Insecure bool `yaml:"insecure" env:"INSECURE"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 指标命名空间
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
	// /metrics 监听地址，为空则不监听
	ListenAddr string `yaml:"listen_addr" env:"LISTEN_ADDR"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "ASKFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置，文件不存在时保留默认值
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		envTag := t.Field(i).Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue, ok := os.LookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}
	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).WithValidator((*Config).Validate).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Pipeline.MaxRetry <= 0 {
		errs = append(errs, "pipeline.max_retry must be positive")
	}
	if c.Pipeline.TopK <= 0 {
		errs = append(errs, "pipeline.top_k must be positive")
	}
	if c.Pipeline.EvidencePreview <= 0 {
		errs = append(errs, "pipeline.evidence_preview must be positive")
	}
	if c.Pipeline.MaxSteps < 4 {
		errs = append(errs, "pipeline.max_steps must be at least 4")
	}

	switch c.Memory.Type {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("unsupported memory.type %q", c.Memory.Type))
	}

	switch c.Checkpoint.Type {
	case "file":
		if c.Checkpoint.Dir == "" {
			errs = append(errs, "checkpoint.dir is required for file checkpoints")
		}
	case "redis":
	case "database":
		switch c.Database.Driver {
		case "postgres", "mysql", "sqlite":
		default:
			errs = append(errs, fmt.Sprintf("unsupported database.driver %q", c.Database.Driver))
		}
	default:
		errs = append(errs, fmt.Sprintf("unsupported checkpoint.type %q", c.Checkpoint.Type))
	}

	if c.LLM.Enabled {
		if c.LLM.BaseURL == "" {
			errs = append(errs, "llm.base_url is required when llm is enabled")
		}
		if c.LLM.Model == "" {
			errs = append(errs, "llm.model is required when llm is enabled")
		}
		if c.LLM.MaxRetries < 0 {
			errs = append(errs, "llm.max_retries must not be negative")
		}
		if c.LLM.RequestsPerSecond < 0 {
			errs = append(errs, "llm.requests_per_second must not be negative")
		}
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// UsesRedis 报告是否有组件需要 Redis 连接
func (c *Config) UsesRedis() bool {
	return c.Memory.Type == "redis" || c.Checkpoint.Type == "redis" || c.Retrieval.CacheEnabled
}
