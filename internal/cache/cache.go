package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// 💾 缓存接口
// =============================================================================

// Cache 是检索层使用的有界缓存接口。实现必须可被显式失效，
// 且作为依赖注入，不得以包级全局形式存在。
type Cache interface {
	// Get 获取缓存值，未命中返回 ErrCacheMiss
	Get(ctx context.Context, key string) (string, error)

	// Set 设置缓存值，ttl 为 0 时使用实现的默认 TTL
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	// Delete 删除一个或多个键
	Delete(ctx context.Context, keys ...string) error

	// Purge 清空本缓存的全部条目
	Purge(ctx context.Context) error

	// Stats 返回统计信息
	Stats() Stats

	// Close 释放底层资源
	Close() error
}

// Stats 缓存统计信息
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Keys      int64 `json:"keys"`
	Evictions int64 `json:"evictions"`
}

// ErrCacheMiss 缓存未命中错误
var ErrCacheMiss = errors.New("cache miss")

// IsCacheMiss 判断是否为缓存未命中错误
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// GetJSON 获取并反序列化 JSON 缓存值
func GetJSON(ctx context.Context, c Cache, key string, dest any) error {
	val, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return nil
}

// SetJSON 序列化并设置 JSON 缓存值
func SetJSON(ctx context.Context, c Cache, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return c.Set(ctx, key, string(data), ttl)
}
