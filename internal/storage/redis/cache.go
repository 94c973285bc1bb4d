package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladikoff/email2feed/internal/domain"
	"github.com/vladikoff/email2feed/internal/storage"
)

// FeedCache 将渲染后的订阅源文档缓存在 Redis 中
type FeedCache struct {
	rdb goredis.Cmdable
}

var _ storage.FeedCache = (*FeedCache)(nil)

// NewFeedCache 创建 Redis 订阅源缓存
func NewFeedCache(client *Client) *FeedCache {
	return &FeedCache{rdb: client.Client()}
}

// Get 读取缓存的文档
func (c *FeedCache) Get(ctx context.Context, token string, format domain.FeedFormat) ([]byte, bool, error) {
	data, err := c.rdb.Get(ctx, storage.FeedCacheKey(token, format)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// Set 写入文档，ttl <= 0 时不缓存
func (c *FeedCache) Set(ctx context.Context, token string, format domain.FeedFormat, document []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return c.rdb.Set(ctx, storage.FeedCacheKey(token, format), document, ttl).Err()
}

// Invalidate 删除该令牌所有格式的缓存
func (c *FeedCache) Invalidate(ctx context.Context, token string) error {
	keys := make([]string, 0, len(domain.AllFeedFormats))
	for _, format := range domain.AllFeedFormats {
		keys = append(keys, storage.FeedCacheKey(token, format))
	}
	return c.rdb.Del(ctx, keys...).Err()
}
