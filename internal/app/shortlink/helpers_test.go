package shortlink_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"shorturl.local/internal/app/shortlink"
	"shorturl.local/internal/app/shortlink/repo"
)

const testSite = "http://sho.rt"

var errBoom = errors.New("boom")

type fixture struct {
	store *repo.MemoryStore
	svc   *shortlink.Service
	hooks *shortlink.Hooks
}

type fixtureConfig struct {
	mem       *repo.MemoryStore // 计数器和默认点击日志总是它
	store     shortlink.Store   // 默认就是 mem，测试可以包一层
	sanitizer []shortlink.SanitizerOption
	allocator []shortlink.AllocatorOption
	opts      shortlink.Options
	extra     []shortlink.ServiceOption
}

// newFixture 默认：内存存储、base36、同步点击统计、允许重复 URL。
func newFixture(t *testing.T, mutate ...func(*fixtureConfig)) *fixture {
	t.Helper()
	mem := repo.NewMemoryStore()
	hooks := shortlink.NewHooks()
	cfg := fixtureConfig{
		mem:   mem,
		store: mem,
		opts: shortlink.Options{
			SiteURL:            testSite,
			AllowDuplicateURLs: true,
		},
	}
	for _, m := range mutate {
		m(&cfg)
	}
	sanitizer := shortlink.NewSanitizer(shortlink.Base36,
		append([]shortlink.SanitizerOption{shortlink.WithReserved(shortlink.DefaultReserved...)}, cfg.sanitizer...)...)
	allocator := shortlink.NewAllocator(cfg.store, mem, sanitizer, cfg.allocator...)
	svc, err := shortlink.NewService(cfg.store, sanitizer, allocator, cfg.opts,
		append([]shortlink.ServiceOption{shortlink.WithHooks(hooks), shortlink.WithClickLog(mem)}, cfg.extra...)...)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return &fixture{store: mem, svc: svc, hooks: hooks}
}

func (f *fixture) nextID(t *testing.T) string {
	t.Helper()
	id, err := f.store.NextID(context.Background())
	require.NoError(t, err)
	return id.String()
}

// racingStore 在前 races 次 Insert 之前抢先插入同一个 keyword，模拟并发的另一个请求赢了。
type racingStore struct {
	*repo.MemoryStore
	races   int32
	inserts atomic.Int32
}

func (s *racingStore) Insert(ctx context.Context, link shortlink.ShortLink) error {
	if s.inserts.Add(1) <= s.races {
		competitor := link
		competitor.URL = "https://competitor.example/"
		if err := s.MemoryStore.Insert(ctx, competitor); err != nil {
			return err
		}
	}
	return s.MemoryStore.Insert(ctx, link)
}

// takenStore 的 Insert 永远冲突。
type takenStore struct {
	*repo.MemoryStore
	inserts atomic.Int32
}

func (s *takenStore) Insert(context.Context, shortlink.ShortLink) error {
	s.inserts.Add(1)
	return shortlink.ErrKeywordTaken
}

// brokenStore 的读写全部失败。
type brokenStore struct{ *repo.MemoryStore }

func (brokenStore) Exists(context.Context, string) (bool, error) { return false, errBoom }
func (brokenStore) Get(context.Context, string) (*shortlink.ShortLink, error) {
	return nil, errBoom
}
func (brokenStore) FindByURL(context.Context, string) (*shortlink.ShortLink, error) {
	return nil, errBoom
}

// flakyClicks 的计数器和点击日志都失败，可选直接 panic。
type flakyClicks struct {
	*repo.MemoryStore
	panics bool
}

func (s flakyClicks) IncrementClicks(context.Context, string) (int64, error) {
	if s.panics {
		panic("counter exploded")
	}
	return 0, errBoom
}

type failingClickLog struct{}

func (failingClickLog) Append(context.Context, shortlink.Click) error { return errBoom }

type recordingClickLog struct {
	mu     sync.Mutex
	clicks []shortlink.Click
}

func (r *recordingClickLog) Append(_ context.Context, c shortlink.Click) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clicks = append(r.clicks, c)
	return nil
}

func (r *recordingClickLog) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clicks)
}

type fakeTitles struct {
	title string
	err   error
}

func (f fakeTitles) Title(context.Context, string) (string, error) { return f.title, f.err }
