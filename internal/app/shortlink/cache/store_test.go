package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shorturl.local/internal/app/shortlink"
	"shorturl.local/internal/app/shortlink/repo"
)

// countingStore 统计真正落到底层存储的读。
type countingStore struct {
	*repo.MemoryStore
	gets   atomic.Int32
	exists atomic.Int32
}

func (s *countingStore) Get(ctx context.Context, kw string) (*shortlink.ShortLink, error) {
	s.gets.Add(1)
	return s.MemoryStore.Get(ctx, kw)
}

func (s *countingStore) Exists(ctx context.Context, kw string) (bool, error) {
	s.exists.Add(1)
	return s.MemoryStore.Exists(ctx, kw)
}

func newLocalOnly(t *testing.T) (*CachedStore, *countingStore, *LocalCache) {
	t.Helper()
	local, err := NewLocalCache(1000, 1000)
	require.NoError(t, err)
	c := NewShortlinkCache(nil, local)
	t.Cleanup(c.Close)

	next := &countingStore{MemoryStore: repo.NewMemoryStore()}
	return NewCachedStore(next, c, NewBloomFilter(1000, 0.01)), next, local
}

func link(kw string) shortlink.ShortLink {
	return shortlink.ShortLink{Keyword: kw, URL: "https://example.com/" + kw, CreatedAt: time.Now().UTC()}
}

func TestCachedStoreGetHitsCacheAfterInsert(t *testing.T) {
	s, next, local := newLocalOnly(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, link("abc")))
	local.Wait()

	got, err := s.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/abc", got.URL)
	assert.Zero(t, next.gets.Load())
}

func TestCachedStoreNegativeCache(t *testing.T) {
	s, next, local := newLocalOnly(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "nope")
	require.ErrorIs(t, err, shortlink.ErrNotFound)
	local.Wait()

	_, err = s.Get(ctx, "nope")
	require.ErrorIs(t, err, shortlink.ErrNotFound)
	assert.Equal(t, int32(1), next.gets.Load(), "second miss is served by the negative cache")

	// 插入会覆盖负缓存
	require.NoError(t, s.Insert(ctx, link("nope")))
	local.Wait()
	got, err := s.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Equal(t, "nope", got.Keyword)
}

func TestCachedStoreInsertConflictPassesThrough(t *testing.T) {
	s, _, _ := newLocalOnly(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, link("abc")))
	assert.ErrorIs(t, s.Insert(ctx, link("abc")), shortlink.ErrKeywordTaken)
}

func TestCachedStoreBloomOnlyAfterWarm(t *testing.T) {
	s, next, _ := newLocalOnly(t)
	ctx := context.Background()
	require.NoError(t, next.MemoryStore.Insert(ctx, link("old")))

	// 预热前每次都问底层
	ok, err := s.Exists(ctx, "old")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(1), next.exists.Load())

	require.NoError(t, s.Warm(ctx, next.MemoryStore))

	ok, err = s.Exists(ctx, "fresh")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int32(1), next.exists.Load(), "bloom answers definite misses")

	ok, err = s.Exists(ctx, "old")
	require.NoError(t, err)
	assert.True(t, ok)
}

// newInstance 模拟一个服务实例：自己的 L1 和布隆过滤器，共享底层存储。
func newInstance(t *testing.T, shared *repo.MemoryStore) (*CachedStore, *shortlink.Service) {
	t.Helper()
	local, err := NewLocalCache(1000, 1000)
	require.NoError(t, err)
	c := NewShortlinkCache(nil, local)
	t.Cleanup(c.Close)

	cs := NewCachedStore(shared, c, NewBloomFilter(1000, 0.01))
	require.NoError(t, cs.Warm(context.Background(), shared))

	sanitizer := shortlink.NewSanitizer(shortlink.Base36, shortlink.WithReserved(shortlink.DefaultReserved...))
	allocator := shortlink.NewAllocator(cs, shared, sanitizer)
	svc, err := shortlink.NewService(cs, sanitizer, allocator, shortlink.Options{SiteURL: "http://sho.rt"})
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return cs, svc
}

func TestKeywordFromOtherInstanceIsSeen(t *testing.T) {
	shared := repo.NewMemoryStore()
	ctx := context.Background()
	storeA, svcA := newInstance(t, shared)
	_, svcB := newInstance(t, shared)

	_, err := svcB.CreateShortLink(ctx, shortlink.CreateRequest{URL: "https://example.com/b", Keyword: "abc"})
	require.NoError(t, err)

	// A 的布隆过滤器没见过 abc，近似判断仍然说不存在
	ok, err := storeA.Exists(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = storeA.ExistsStrict(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = svcA.CreateShortLink(ctx, shortlink.CreateRequest{URL: "http://sho.rt/abc"})
	require.ErrorIs(t, err, shortlink.ErrShortURLLoop)

	free, err := svcA.IsFree(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, free)

	// 直接用这个短码也只会得到冲突，不会覆盖 B 的记录
	_, err = svcA.CreateShortLink(ctx, shortlink.CreateRequest{URL: "https://example.com/a", Keyword: "abc"})
	require.ErrorIs(t, err, shortlink.ErrKeywordUnavailable)
	got, err := shared.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/b", got.URL)
}

func TestBloomFilter(t *testing.T) {
	b := NewBloomFilter(100, 0.01)
	assert.False(t, b.MightExist("abc"))
	b.Add("abc")
	assert.True(t, b.MightExist("abc"))
	assert.Equal(t, uint32(1), b.Count())
}
