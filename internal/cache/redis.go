package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// =============================================================================
// 💾 Redis 缓存
// =============================================================================

// RedisConfig Redis 缓存配置
type RedisConfig struct {
	// Redis 地址
	Addr string `yaml:"addr" json:"addr"`

	// 密码
	Password string `yaml:"password" json:"password"`

	// 数据库编号
	DB int `yaml:"db" json:"db"`

	// 键前缀，用于 Purge 的隔离边界
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`

	// 默认过期时间
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"`

	// 最大重试次数
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// 连接池大小
	PoolSize int `yaml:"pool_size" json:"pool_size"`

	// 最小空闲连接数
	MinIdleConns int `yaml:"min_idle_conns" json:"min_idle_conns"`

	// 健康检查间隔，0 表示关闭
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

// DefaultRedisConfig 返回默认 Redis 缓存配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:                "localhost:6379",
		Password:            "",
		DB:                  0,
		KeyPrefix:           "chronicler:cache:",
		DefaultTTL:          5 * time.Minute,
		MaxRetries:          3,
		PoolSize:            10,
		MinIdleConns:        2,
		HealthCheckInterval: 30 * time.Second,
	}
}

// Redis 基于 go-redis 的缓存实现
type Redis struct {
	client *redis.Client
	config RedisConfig
	logger *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64

	mu     sync.RWMutex
	closed bool
	stopCh chan struct{}
}

// NewRedis 创建 Redis 缓存并校验连接
func NewRedis(config RedisConfig, logger *zap.Logger) (*Redis, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultRedisConfig().KeyPrefix
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = DefaultRedisConfig().DefaultTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	c := &Redis{
		client: client,
		config: config,
		logger: logger.With(zap.String("component", "cache")),
		stopCh: make(chan struct{}),
	}

	// 启动健康检查
	if config.HealthCheckInterval > 0 {
		go c.healthCheckLoop()
	}

	c.logger.Info("redis cache initialized",
		zap.String("addr", config.Addr),
		zap.String("key_prefix", config.KeyPrefix),
		zap.Int("pool_size", config.PoolSize),
	)

	return c, nil
}

// Get 获取缓存值
func (c *Redis) Get(ctx context.Context, key string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return "", fmt.Errorf("redis cache is closed")
	}

	val, err := c.client.Get(ctx, c.config.KeyPrefix+key).Result()
	if err == redis.Nil {
		c.misses.Add(1)
		return "", ErrCacheMiss
	}
	if err != nil {
		c.logger.Error("cache get failed", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("cache get failed: %w", err)
	}

	c.hits.Add(1)
	return val, nil
}

// Set 设置缓存值
func (c *Redis) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return fmt.Errorf("redis cache is closed")
	}

	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}

	if err := c.client.Set(ctx, c.config.KeyPrefix+key, value, ttl).Err(); err != nil {
		c.logger.Error("cache set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache set failed: %w", err)
	}
	return nil
}

// Delete 删除键
func (c *Redis) Delete(ctx context.Context, keys ...string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return fmt.Errorf("redis cache is closed")
	}
	if len(keys) == 0 {
		return nil
	}

	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = c.config.KeyPrefix + k
	}

	if err := c.client.Del(ctx, prefixed...).Err(); err != nil {
		c.logger.Error("cache delete failed", zap.Strings("keys", keys), zap.Error(err))
		return fmt.Errorf("cache delete failed: %w", err)
	}
	return nil
}

// Purge 按键前缀清空本缓存的条目，不触碰同库其他键
func (c *Redis) Purge(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return fmt.Errorf("redis cache is closed")
	}

	iter := c.client.Scan(ctx, 0, c.config.KeyPrefix+"*", 256).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 256 {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("cache purge failed: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache purge scan failed: %w", err)
	}
	if len(batch) > 0 {
		if err := c.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("cache purge failed: %w", err)
		}
	}
	return nil
}

// Stats 返回统计信息
func (c *Redis) Stats() Stats {
	stats := Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return stats
	}

	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.config.KeyPrefix+"*", 256).Result()
		if err != nil {
			break
		}
		stats.Keys += int64(len(keys))
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return stats
}

// Ping 检查 Redis 连接
func (c *Redis) Ping(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return fmt.Errorf("redis cache is closed")
	}
	return c.client.Ping(ctx).Err()
}

// Close 关闭缓存
func (c *Redis) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.stopCh)
	c.logger.Info("closing redis cache")

	return c.client.Close()
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

// healthCheckLoop 健康检查循环
func (c *Redis) healthCheckLoop() {
	ticker := time.NewTicker(c.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := c.Ping(ctx); err != nil {
				c.logger.Error("cache health check failed", zap.Error(err))
			} else {
				c.logger.Debug("cache health check passed")
			}
			cancel()
		}
	}
}

var _ Cache = (*Redis)(nil)
