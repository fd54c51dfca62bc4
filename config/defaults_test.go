package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// 验证服务器默认值
	assert.Equal(t, 8765, cfg.Server.HTTPPort)
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 300*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 10.0, cfg.Server.RateLimitRPS)
	assert.Equal(t, 20, cfg.Server.RateLimitBurst)

	// 验证生成端点默认值
	assert.Equal(t, "http://localhost:11434", cfg.Ollama.BaseURL)

	// 验证调度默认值
	assert.Equal(t, 4, cfg.Dispatch.MaxConcurrent)
	assert.Equal(t, 6, cfg.Dispatch.MaxExperts)

	// 验证缓存默认值（默认关闭）
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Cache.Addr)
	assert.Equal(t, 15*time.Minute, cfg.Cache.TTL)

	// 验证数据库默认值（本地 sqlite）
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "consult_feedback.db", cfg.Database.Path)

	// 验证日志默认值
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	// 验证遥测默认值（默认关闭）
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "consult", cfg.Telemetry.ServiceName)
}

func TestDefaultConfig_PassesValidation(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}
