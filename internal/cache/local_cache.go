package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vladikoff/email2feed/internal/domain"
	"github.com/vladikoff/email2feed/internal/storage"
)

// LocalCache 进程内 TTL 缓存，未配置 Redis 时代替其缓存渲染结果
type LocalCache struct {
	data    sync.Map
	size    atomic.Int64
	maxSize int
	ttl     time.Duration
	stop    chan struct{}
	once    sync.Once
}

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewLocalCache 创建本地缓存。maxSize <= 0 表示不限制条目数。
func NewLocalCache(maxSize int, ttl time.Duration) *LocalCache {
	cache := &LocalCache{
		maxSize: maxSize,
		ttl:     ttl,
		stop:    make(chan struct{}),
	}

	go cache.cleanupLoop(time.Minute)

	return cache
}

// Get 获取缓存值
func (c *LocalCache) Get(key string) ([]byte, bool) {
	val, ok := c.data.Load(key)
	if !ok {
		return nil, false
	}

	entry := val.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.delete(key)
		return nil, false
	}

	return entry.value, true
}

// Set 设置缓存值，ttl 为 0 时使用默认值。超出容量时丢弃写入。
func (c *LocalCache) Set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	if ttl <= 0 {
		return
	}

	entry := &cacheEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}

	if _, loaded := c.data.Swap(key, entry); !loaded {
		if c.maxSize > 0 && c.size.Load() >= int64(c.maxSize) {
			c.data.Delete(key)
			return
		}
		c.size.Add(1)
	}
}

// Delete 删除缓存值
func (c *LocalCache) Delete(key string) {
	c.delete(key)
}

// Len 返回当前条目数（包含尚未清理的过期条目）
func (c *LocalCache) Len() int {
	return int(c.size.Load())
}

// Clear 清空所有缓存
func (c *LocalCache) Clear() {
	c.data.Range(func(key, _ interface{}) bool {
		c.delete(key.(string))
		return true
	})
}

// Close 停止后台清理
func (c *LocalCache) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *LocalCache) delete(key string) {
	if _, loaded := c.data.LoadAndDelete(key); loaded {
		c.size.Add(-1)
	}
}

// cleanupLoop 定期清理过期条目
func (c *LocalCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			c.data.Range(func(key, value interface{}) bool {
				if now.After(value.(*cacheEntry).expiresAt) {
					c.delete(key.(string))
				}
				return true
			})
		}
	}
}

// FeedCache 以 LocalCache 实现 storage.FeedCache
type FeedCache struct {
	cache *LocalCache
}

var _ storage.FeedCache = (*FeedCache)(nil)

// NewFeedCache 创建进程内订阅源缓存
func NewFeedCache(cache *LocalCache) *FeedCache {
	return &FeedCache{cache: cache}
}

// Get 读取缓存的文档
func (f *FeedCache) Get(_ context.Context, token string, format domain.FeedFormat) ([]byte, bool, error) {
	data, ok := f.cache.Get(storage.FeedCacheKey(token, format))
	return data, ok, nil
}

// Set 写入文档
func (f *FeedCache) Set(_ context.Context, token string, format domain.FeedFormat, document []byte, ttl time.Duration) error {
	f.cache.Set(storage.FeedCacheKey(token, format), document, ttl)
	return nil
}

// Invalidate 删除该令牌所有格式的缓存
func (f *FeedCache) Invalidate(_ context.Context, token string) error {
	for _, format := range domain.AllFeedFormats {
		f.cache.Delete(storage.FeedCacheKey(token, format))
	}
	return nil
}
