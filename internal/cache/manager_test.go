package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Manager) {
	// 创建 miniredis 实例
	mr, err := miniredis.Run()
	require.NoError(t, err)

	config := DefaultConfig()
	config.Addr = mr.Addr()
	config.TTL = 1 * time.Minute

	manager, err := NewManager(config, zap.NewNop())
	require.NoError(t, err)

	return mr, manager
}

type cachedReport struct {
	QueryID string  `json:"query_id"`
	Score   float64 `json:"score"`
}

func TestNewManager(t *testing.T) {
	mr, manager := setupTestRedis(t)
	defer mr.Close()
	defer manager.Close()

	assert.NotNil(t, manager.redis)
	assert.NotNil(t, manager.logger)
}

func TestNewManager_ConnectionFailure(t *testing.T) {
	config := DefaultConfig()
	config.Addr = "127.0.0.1:1" // nothing listens here
	config.MaxRetries = 0

	_, err := NewManager(config, zap.NewNop())
	assert.Error(t, err)
}

func TestManager_SetAndGetJSON(t *testing.T) {
	mr, manager := setupTestRedis(t)
	defer mr.Close()
	defer manager.Close()

	ctx := context.Background()
	key := Key("how do I shard postgres?", []string{"a-1", "b-2"})

	// 设置值
	require.NoError(t, manager.SetJSON(ctx, key, cachedReport{QueryID: "abc123def456", Score: 0.9}))

	// 获取值
	var got cachedReport
	require.NoError(t, manager.GetJSON(ctx, key, &got))
	assert.Equal(t, cachedReport{QueryID: "abc123def456", Score: 0.9}, got)
}

func TestManager_CacheMiss(t *testing.T) {
	mr, manager := setupTestRedis(t)
	defer mr.Close()
	defer manager.Close()

	var got cachedReport
	err := manager.GetJSON(context.Background(), Key("unseen", nil), &got)
	assert.True(t, IsCacheMiss(err))
}

func TestManager_TTLExpiry(t *testing.T) {
	mr, manager := setupTestRedis(t)
	defer mr.Close()
	defer manager.Close()

	ctx := context.Background()
	key := Key("q", []string{"a-1"})
	require.NoError(t, manager.SetJSON(ctx, key, cachedReport{QueryID: "x"}))

	// miniredis 手动推进时钟
	mr.FastForward(2 * time.Minute)

	var got cachedReport
	err := manager.GetJSON(ctx, key, &got)
	assert.True(t, IsCacheMiss(err))
}

func TestManager_Delete(t *testing.T) {
	mr, manager := setupTestRedis(t)
	defer mr.Close()
	defer manager.Close()

	ctx := context.Background()
	key := Key("q", []string{"a-1"})
	require.NoError(t, manager.SetJSON(ctx, key, cachedReport{QueryID: "x"}))
	require.NoError(t, manager.Delete(ctx, key))

	var got cachedReport
	assert.True(t, IsCacheMiss(manager.GetJSON(ctx, key, &got)))
}

func TestKey(t *testing.T) {
	// 相同问题 + 任意顺序的专家组合 => 相同键
	k1 := Key("q", []string{"a-1", "b-2"})
	k2 := Key("q", []string{"b-2", "a-1"})
	assert.Equal(t, k1, k2)

	// 不同问题或不同组合 => 不同键
	assert.NotEqual(t, k1, Key("other", []string{"a-1", "b-2"}))
	assert.NotEqual(t, k1, Key("q", []string{"a-1"}))

	assert.Contains(t, k1, keyPrefix)
}

func TestManager_ClosedOperations(t *testing.T) {
	mr, manager := setupTestRedis(t)
	defer mr.Close()

	require.NoError(t, manager.Close())
	// 重复关闭是幂等的
	require.NoError(t, manager.Close())

	ctx := context.Background()
	var got cachedReport
	assert.Error(t, manager.GetJSON(ctx, "k", &got))
	assert.Error(t, manager.SetJSON(ctx, "k", got))
	assert.Error(t, manager.Ping(ctx))
}
