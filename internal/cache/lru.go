package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// =============================================================================
// 💾 进程内 LRU 缓存
// =============================================================================

// LRUConfig LRU 缓存配置
type LRUConfig struct {
	// 最大条目数
	MaxEntries int `yaml:"max_entries" json:"max_entries"`

	// 默认过期时间
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"`
}

// DefaultLRUConfig 返回默认 LRU 配置
func DefaultLRUConfig() LRUConfig {
	return LRUConfig{
		MaxEntries: 1024,
		DefaultTTL: 2 * time.Minute,
	}
}

type lruEntry struct {
	key       string
	value     string
	expiresAt time.Time
}

// LRU 进程内有界缓存。超出容量时淘汰最久未使用的条目，
// 过期条目在读取时惰性删除。
type LRU struct {
	config LRUConfig

	mu        sync.Mutex
	ll        *list.List
	items     map[string]*list.Element
	hits      int64
	misses    int64
	evictions int64

	// 可替换的时钟，测试用
	now func() time.Time
}

// NewLRU 创建 LRU 缓存
func NewLRU(config LRUConfig) *LRU {
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultLRUConfig().MaxEntries
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = DefaultLRUConfig().DefaultTTL
	}
	return &LRU{
		config: config,
		ll:     list.New(),
		items:  make(map[string]*list.Element),
		now:    time.Now,
	}
}

// Get 获取缓存值，未命中返回 ErrCacheMiss
func (c *LRU) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return "", ErrCacheMiss
	}
	entry := el.Value.(*lruEntry)
	if c.now().After(entry.expiresAt) {
		c.removeElement(el)
		c.misses++
		return "", ErrCacheMiss
	}
	c.ll.MoveToFront(el)
	c.hits++
	return entry.value, nil
}

// Set 设置缓存值
func (c *LRU) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.ll.MoveToFront(el)
		entry := el.Value.(*lruEntry)
		entry.value = value
		entry.expiresAt = c.now().Add(ttl)
		return nil
	}

	el := c.ll.PushFront(&lruEntry{key: key, value: value, expiresAt: c.now().Add(ttl)})
	c.items[key] = el

	for c.ll.Len() > c.config.MaxEntries {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.removeElement(oldest)
		c.evictions++
	}
	return nil
}

// Delete 删除键
func (c *LRU) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		if el, ok := c.items[key]; ok {
			c.removeElement(el)
		}
	}
	return nil
}

// Purge 清空全部条目
func (c *LRU) Purge(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ll.Init()
	c.items = make(map[string]*list.Element)
	return nil
}

// Stats 返回统计信息
func (c *LRU) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Keys:      int64(c.ll.Len()),
		Evictions: c.evictions,
	}
}

// Close 实现 Cache 接口，进程内缓存无需释放资源
func (c *LRU) Close() error {
	return nil
}

// removeElement 删除链表元素，调用方必须持有锁
func (c *LRU) removeElement(el *list.Element) {
	c.ll.Remove(el)
	entry := el.Value.(*lruEntry)
	delete(c.items, entry.key)
}

var _ Cache = (*LRU)(nil)
