package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

// LocalCache 基于 ristretto 的进程内 L1。TTL 比 Redis 短，多实例下靠它收敛。
type LocalCache struct {
	cache    *ristretto.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewLocalCache maxItems 决定计数器数量，maxCost 按条目数计（每条 cost=1）。
func NewLocalCache(maxItems int64, maxCost int64) (*LocalCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxItems * 10,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &LocalCache{
		cache:    cache,
		ttl:      5 * time.Minute,
		emptyTTL: 10 * time.Second, // 负缓存
	}, nil
}

func (l *LocalCache) Get(keyword string) (string, bool) {
	if v, ok := l.cache.Get(keyword); ok {
		s, ok := v.(string)
		return s, ok
	}
	return "", false
}

func (l *LocalCache) Set(keyword, value string) {
	l.cache.SetWithTTL(keyword, value, 1, l.ttl)
}

func (l *LocalCache) SetNotFound(keyword string) {
	l.cache.SetWithTTL(keyword, notFoundSentinel, 1, l.emptyTTL)
}

func (l *LocalCache) Del(keyword string) {
	l.cache.Del(keyword)
}

// Wait 等待缓冲中的写入生效。ristretto 的 Set 是异步的，测试里要用。
func (l *LocalCache) Wait() {
	l.cache.Wait()
}

func (l *LocalCache) Close() {
	l.cache.Close()
}
