package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"shorturl.local/internal/platform/metrics"
)

const (
	notFoundSentinel = "__nil__"
	keyPrefix        = "sl:"
)

// ShortlinkCache 两级缓存：L1 本地 ristretto，L2 Redis。值是 ShortLink 的 JSON。
// client 为 nil 时只用本地缓存（单机 / 没配 Redis）。
type ShortlinkCache struct {
	client   *redis.Client
	local    *LocalCache // L1 本地缓存
	ttl      time.Duration
	emptyTTL time.Duration
}

func NewShortlinkCache(client *redis.Client, local *LocalCache) *ShortlinkCache {
	return &ShortlinkCache{
		client:   client,
		local:    local,
		ttl:      time.Hour,
		emptyTTL: 30 * time.Second,
	}
}

// Get 返回缓存值；"" 表示未命中，notFoundSentinel 表示负缓存命中。
func (c *ShortlinkCache) Get(ctx context.Context, keyword string) (string, error) {
	// L1: 本地缓存
	if c.local != nil {
		if v, ok := c.local.Get(keyword); ok {
			if v == notFoundSentinel {
				metrics.CacheOperations.WithLabelValues("l1", "hit_negative").Inc()
			} else {
				metrics.CacheOperations.WithLabelValues("l1", "hit").Inc()
			}
			return v, nil
		}
	}
	if c.client == nil {
		metrics.CacheOperations.WithLabelValues("l1", "miss").Inc()
		return "", nil
	}

	// L2: Redis
	res, err := c.client.Get(ctx, keyPrefix+keyword).Result()
	if err == redis.Nil {
		metrics.CacheOperations.WithLabelValues("l2", "miss").Inc()
		return "", nil // 缓存未命中
	}
	if err != nil {
		return "", err
	}
	if res == notFoundSentinel {
		metrics.CacheOperations.WithLabelValues("l2", "hit_negative").Inc()
	} else {
		metrics.CacheOperations.WithLabelValues("l2", "hit").Inc()
	}

	// 回填本地缓存
	if c.local != nil {
		if res == notFoundSentinel {
			c.local.SetNotFound(keyword)
		} else {
			c.local.Set(keyword, res)
		}
	}
	return res, nil
}

func (c *ShortlinkCache) Set(ctx context.Context, keyword, value string) error {
	if c.local != nil {
		c.local.Set(keyword, value)
	}
	if c.client == nil {
		return nil
	}
	return c.client.Set(ctx, keyPrefix+keyword, value, c.ttl).Err()
}

func (c *ShortlinkCache) Delete(ctx context.Context, keyword string) error {
	if c.local != nil {
		c.local.Del(keyword)
	}
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, keyPrefix+keyword).Err()
}

// SetNotFound 用明确哨兵值做"负缓存"，避免缓存穿透。
// 不要用 "" 作为哨兵值（容易把"未命中"和"命中空值"混淆）。
func (c *ShortlinkCache) SetNotFound(ctx context.Context, keyword string) error {
	if c.local != nil {
		c.local.SetNotFound(keyword)
	}
	if c.client == nil {
		return nil
	}
	return c.client.Set(ctx, keyPrefix+keyword, notFoundSentinel, c.emptyTTL).Err()
}

// Close 关闭本地缓存
func (c *ShortlinkCache) Close() {
	if c.local != nil {
		c.local.Close()
		slog.Info("本地缓存已关闭")
	}
}
