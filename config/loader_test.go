// 配置加载器与默认配置测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	// 不指定配置文件，应该返回默认值
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8765, cfg.Server.HTTPPort)
	assert.Equal(t, "http://localhost:11434", cfg.Ollama.BaseURL)
	assert.Equal(t, 4, cfg.Dispatch.MaxConcurrent)
	assert.Empty(t, cfg.Experts)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	// 创建临时配置文件
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "consult.yaml")

	yamlContent := `
server:
  http_port: 8888
  rate_limit_rps: 25

ollama:
  base_url: "http://ollama.internal:11434"

dispatch:
  max_concurrent: 8
  max_experts: 10

cache:
  enabled: true
  addr: "redis.internal:6379"

database:
  driver: postgres
  host: db.internal
  port: 5433
  user: consult
  password: secret
  name: consult
  ssl_mode: require

log:
  level: debug
  format: console

experts:
  - id: custom-expert
    domain: technical
    weight: 0.5
    timeout_seconds: 45
    description: "Custom expert"

keywords:
  technical: ["api", "latency"]
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 25.0, cfg.Server.RateLimitRPS)
	assert.Equal(t, "http://ollama.internal:11434", cfg.Ollama.BaseURL)
	assert.Equal(t, 8, cfg.Dispatch.MaxConcurrent)
	assert.Equal(t, 10, cfg.Dispatch.MaxExperts)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "redis.internal:6379", cfg.Cache.Addr)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)

	require.Len(t, cfg.Experts, 1)
	expert := cfg.Experts[0].ToExpertConfig()
	assert.Equal(t, "custom-expert", expert.ID)
	assert.Equal(t, 45*time.Second, expert.Timeout)

	assert.Equal(t, []string{"api", "latency"}, cfg.Keywords["technical"])
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/consult.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8765, cfg.Server.HTTPPort)
}

func TestLoader_MalformedYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "bad.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server: [not a map"), 0644))

	_, err := NewLoader().WithConfigPath(configPath).Load()
	assert.Error(t, err)
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("CONSULT_SERVER_HTTP_PORT", "9001")
	t.Setenv("CONSULT_OLLAMA_BASE_URL", "http://gpu-box:11434")
	t.Setenv("CONSULT_DISPATCH_MAX_CONCURRENT", "2")
	t.Setenv("CONSULT_CACHE_ENABLED", "true")
	t.Setenv("CONSULT_CACHE_TTL", "30m")
	t.Setenv("CONSULT_TELEMETRY_SAMPLE_RATE", "0.5")
	t.Setenv("CONSULT_LOG_OUTPUT_PATHS", "stdout, /var/log/consult.log")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Server.HTTPPort)
	assert.Equal(t, "http://gpu-box:11434", cfg.Ollama.BaseURL)
	assert.Equal(t, 2, cfg.Dispatch.MaxConcurrent)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 0.5, cfg.Telemetry.SampleRate)
	assert.Equal(t, []string{"stdout", "/var/log/consult.log"}, cfg.Log.OutputPaths)
}

func TestLoader_EnvOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "consult.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  http_port: 8888\n"), 0644))

	t.Setenv("CONSULT_SERVER_HTTP_PORT", "9002")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	// 环境变量优先于文件
	assert.Equal(t, 9002, cfg.Server.HTTPPort)
}

func TestLoader_CustomValidator(t *testing.T) {
	called := false
	_, err := NewLoader().
		WithValidator(func(c *Config) error {
			called = true
			return nil
		}).
		Load()
	require.NoError(t, err)
	assert.True(t, called)
}

// --- Validate 测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults ok", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.HTTPPort = 0 }, "invalid HTTP port"},
		{"bad concurrency", func(c *Config) { c.Dispatch.MaxConcurrent = 0 }, "max_concurrent"},
		{"bad max experts", func(c *Config) { c.Dispatch.MaxExperts = -1 }, "max_experts"},
		{"bad driver", func(c *Config) { c.Database.Driver = "oracle" }, "unsupported database driver"},
		{"bad expert weight", func(c *Config) {
			c.Experts = []ExpertSpec{{ID: "x", Domain: "technical", Weight: 2, TimeoutSeconds: 60}}
		}, "weight"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

// --- DSN 测试 ---

func TestDatabaseConfig_DSN(t *testing.T) {
	pg := DatabaseConfig{
		Driver: "postgres", Host: "db", Port: 5432,
		User: "u", Password: "p", Name: "consult", SSLMode: "disable",
	}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=consult sslmode=disable", pg.DSN())

	lite := DatabaseConfig{Driver: "sqlite", Path: "/tmp/feedback.db"}
	assert.Equal(t, "/tmp/feedback.db", lite.DSN())

	assert.Empty(t, (&DatabaseConfig{Driver: "oracle"}).DSN())
}

func TestConfig_ExpertConfigs(t *testing.T) {
	cfg := DefaultConfig()
	assert.Nil(t, cfg.ExpertConfigs())

	cfg.Experts = []ExpertSpec{
		{ID: "a", Domain: "technical", Weight: 0.3, TimeoutSeconds: 90},
	}
	experts := cfg.ExpertConfigs()
	require.Len(t, experts, 1)
	assert.Equal(t, 90*time.Second, experts[0].Timeout)
}

func TestMustLoad_PanicsOnBadFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "bad.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(":::"), 0644))

	assert.Panics(t, func() { MustLoad(configPath) })
}
