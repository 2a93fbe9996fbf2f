package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"shorturl.local/internal/app/shortlink"
	"shorturl.local/internal/platform/metrics"
)

// KeywordSource 能遍历全部短码，用来预热布隆过滤器。repo 的三个实现都满足。
type KeywordSource interface {
	EachKeyword(ctx context.Context, fn func(keyword string)) error
}

// CachedStore 给 shortlink.Store 加一层 cache-aside。
//
//   - Get：两级缓存 + 负缓存，点击数最多滞后一个 TTL
//   - Exists：布隆过滤器预热完成后，“一定不存在”直接返回 false；
//     误判只会让分配器去插入，插入冲突仍由底层唯一约束兜底。
//     布隆过滤器是进程内的，看不到其它实例的插入，需要确定答案的调用方用 ExistsStrict
//   - Insert 成功后写缓存并覆盖负缓存，同时加入布隆过滤器
type CachedStore struct {
	next       shortlink.Store
	cache      *ShortlinkCache
	bloom      *BloomFilter
	bloomReady atomic.Bool
}

func NewCachedStore(next shortlink.Store, cache *ShortlinkCache, bloom *BloomFilter) *CachedStore {
	return &CachedStore{next: next, cache: cache, bloom: bloom}
}

// Warm 把已有短码灌进布隆过滤器，完成之前 Exists 不走布隆。
func (s *CachedStore) Warm(ctx context.Context, src KeywordSource) error {
	if s.bloom == nil {
		return nil
	}
	start := time.Now()
	if err := src.EachKeyword(ctx, s.bloom.Add); err != nil {
		return err
	}
	s.bloomReady.Store(true)
	slog.Info("bloom filter warmed", "keywords", s.bloom.Count(), "took_ms", time.Since(start).Milliseconds())
	return nil
}

func (s *CachedStore) Exists(ctx context.Context, keyword string) (bool, error) {
	if s.bloom != nil && s.bloomReady.Load() && !s.bloom.MightExist(keyword) {
		metrics.CacheOperations.WithLabelValues("bloom", "skip").Inc()
		return false, nil
	}
	if s.cache != nil {
		if v, err := s.cache.Get(ctx, keyword); err == nil && v != "" && v != notFoundSentinel {
			return true, nil
		}
	}
	return s.next.Exists(ctx, keyword)
}

// ExistsStrict 不信任布隆过滤器和负缓存，正缓存命中可以直接算存在（短码不会被删除）。
func (s *CachedStore) ExistsStrict(ctx context.Context, keyword string) (bool, error) {
	if s.cache != nil {
		if v, err := s.cache.Get(ctx, keyword); err == nil && v != "" && v != notFoundSentinel {
			return true, nil
		}
	}
	return s.next.Exists(ctx, keyword)
}

func (s *CachedStore) Get(ctx context.Context, keyword string) (*shortlink.ShortLink, error) {
	if s.cache != nil {
		v, err := s.cache.Get(ctx, keyword)
		if err != nil {
			slog.Warn("shortlink cache get failed", "keyword", keyword, "err", err)
		}
		switch {
		case v == notFoundSentinel:
			return nil, shortlink.ErrNotFound //命中负缓存
		case v != "":
			var l shortlink.ShortLink
			if err := json.Unmarshal([]byte(v), &l); err == nil {
				return &l, nil
			}
		}
	}

	link, err := s.next.Get(ctx, keyword)
	if err != nil {
		if errors.Is(err, shortlink.ErrNotFound) && s.cache != nil {
			s.setNotFound(ctx, keyword)
		}
		return nil, err
	}
	s.set(ctx, link)
	return link, nil
}

func (s *CachedStore) FindByURL(ctx context.Context, url string) (*shortlink.ShortLink, error) {
	return s.next.FindByURL(ctx, url)
}

func (s *CachedStore) Insert(ctx context.Context, link shortlink.ShortLink) error {
	if err := s.next.Insert(ctx, link); err != nil {
		if errors.Is(err, shortlink.ErrKeywordTaken) && s.bloom != nil {
			s.bloom.Add(link.Keyword)
		}
		return err
	}
	if s.bloom != nil {
		s.bloom.Add(link.Keyword)
	}
	// 写缓存/覆盖负缓存：创建成功后立刻写入，避免此前命中 "__nil__" 导致短码暂时不可用。
	s.set(ctx, &link)
	return nil
}

func (s *CachedStore) IncrementClicks(ctx context.Context, keyword string) (int64, error) {
	return s.next.IncrementClicks(ctx, keyword)
}

func (s *CachedStore) set(ctx context.Context, link *shortlink.ShortLink) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(link)
	if err != nil {
		return
	}
	cacheCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := s.cache.Set(cacheCtx, link.Keyword, string(data)); err != nil {
		slog.Warn("shortlink cache set failed", "keyword", link.Keyword, "err", err)
	}
}

func (s *CachedStore) setNotFound(ctx context.Context, keyword string) {
	cacheCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := s.cache.SetNotFound(cacheCtx, keyword); err != nil {
		slog.Warn("shortlink cache set negative failed", "keyword", keyword, "err", err)
	}
}
