package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_DefaultsOnly(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Pipeline.MaxRetry)
	assert.Equal(t, 3, cfg.Pipeline.TopK)
	assert.Equal(t, "memory", cfg.Memory.Type)
	assert.Equal(t, "file", cfg.Checkpoint.Type)
	assert.NoError(t, cfg.Validate())
}

func TestLoader_LoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "askflow.yaml")

	yamlContent := `
pipeline:
  max_retry: 3
  top_k: 5
checkpoint:
  type: database
database:
  driver: sqlite
  name: ":memory:"
llm:
  enabled: true
  base_url: http://localhost:8080
  model: qwen2.5
  timeout: 15s
log:
  level: debug
  output_paths:
    - stdout
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0644))

	cfg, err := NewLoader().WithConfigPath(path).WithValidator((*Config).Validate).Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Pipeline.MaxRetry)
	assert.Equal(t, 5, cfg.Pipeline.TopK)
	// 未设置的字段保留默认值
	assert.Equal(t, 3, cfg.Pipeline.EvidencePreview)
	assert.Equal(t, "database", cfg.Checkpoint.Type)
	assert.Equal(t, ":memory:", cfg.Database.Name)
	assert.True(t, cfg.LLM.Enabled)
	assert.Equal(t, 15*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, []string{"stdout"}, cfg.Log.OutputPaths)
}

func TestLoader_MissingFileKeepsDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "nope.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoader_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline: [oops"), 0644))

	_, err := NewLoader().WithConfigPath(path).Load()
	assert.Error(t, err)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "askflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  max_retry: 3\n"), 0644))

	t.Setenv("ASKFLOW_PIPELINE_MAX_RETRY", "4")
	t.Setenv("ASKFLOW_MEMORY_TYPE", "redis")
	t.Setenv("ASKFLOW_MEMORY_TTL", "1h")
	t.Setenv("ASKFLOW_REDIS_ADDR", "redis:6379")
	t.Setenv("ASKFLOW_RETRIEVAL_CACHE_ENABLED", "true")
	t.Setenv("ASKFLOW_TELEMETRY_SAMPLE_RATE", "0.5")
	t.Setenv("ASKFLOW_LOG_OUTPUT_PATHS", "stdout, /tmp/askflow.log")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Pipeline.MaxRetry)
	assert.Equal(t, "redis", cfg.Memory.Type)
	assert.Equal(t, time.Hour, cfg.Memory.TTL)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.True(t, cfg.Retrieval.CacheEnabled)
	assert.Equal(t, 0.5, cfg.Telemetry.SampleRate)
	assert.Equal(t, []string{"stdout", "/tmp/askflow.log"}, cfg.Log.OutputPaths)
	assert.True(t, cfg.UsesRedis())
}

func TestLoader_CustomPrefix(t *testing.T) {
	t.Setenv("MYAPP_PIPELINE_TOP_K", "7")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Pipeline.TopK)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("ASKFLOW_PIPELINE_MAX_RETRY", "two")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ASKFLOW_PIPELINE_MAX_RETRY")
}

func TestLoader_ValidatorRejects(t *testing.T) {
	t.Setenv("ASKFLOW_CHECKPOINT_TYPE", "s3")

	_, err := NewLoader().WithValidator((*Config).Validate).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checkpoint.type")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "non positive retry",
			mutate:  func(c *Config) { c.Pipeline.MaxRetry = 0 },
			wantErr: "max_retry",
		},
		{
			name:    "tiny step budget",
			mutate:  func(c *Config) { c.Pipeline.MaxSteps = 2 },
			wantErr: "max_steps",
		},
		{
			name:    "unknown memory backend",
			mutate:  func(c *Config) { c.Memory.Type = "etcd" },
			wantErr: "memory.type",
		},
		{
			name:    "file checkpoint without dir",
			mutate:  func(c *Config) { c.Checkpoint.Dir = "" },
			wantErr: "checkpoint.dir",
		},
		{
			name: "unknown database driver",
			mutate: func(c *Config) {
				c.Checkpoint.Type = "database"
				c.Database.Driver = "oracle"
			},
			wantErr: "database.driver",
		},
		{
			name: "llm without model",
			mutate: func(c *Config) {
				c.LLM.Enabled = true
				c.LLM.Model = ""
			},
			wantErr: "llm.model",
		},
		{
			name:    "sample rate out of range",
			mutate:  func(c *Config) { c.Telemetry.SampleRate = 1.5 },
			wantErr: "sample_rate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMustLoad_PanicsOnInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "askflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  top_k: -1\n"), 0644))

	assert.Panics(t, func() { MustLoad(path) })
}
