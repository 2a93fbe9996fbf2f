package repo

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"shorturl.local/internal/app/shortlink"
)

// MemoryStore 是进程内实现，用于测试和 STORE_DRIVER=memory 的本地开发。
// 一把互斥锁就是它的“唯一约束”。
type MemoryStore struct {
	mu     sync.Mutex
	links  map[string]shortlink.ShortLink
	order  []string
	nextID *big.Int
	clicks []ClickStats
	byKW   map[string][]int
	seq    int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		links:  make(map[string]shortlink.ShortLink),
		nextID: big.NewInt(1),
		byKW:   make(map[string][]int),
	}
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Exists(_ context.Context, keyword string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.links[keyword]
	return ok, nil
}

func (m *MemoryStore) Get(_ context.Context, keyword string) (*shortlink.ShortLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[keyword]
	if !ok {
		return nil, shortlink.ErrNotFound
	}
	return &l, nil
}

// FindByURL 返回最早创建的那条。
func (m *MemoryStore) FindByURL(_ context.Context, url string) (*shortlink.ShortLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, kw := range m.order {
		if l := m.links[kw]; l.URL == url {
			return &l, nil
		}
	}
	return nil, shortlink.ErrNotFound
}

func (m *MemoryStore) Insert(_ context.Context, link shortlink.ShortLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.links[link.Keyword]; ok {
		return shortlink.ErrKeywordTaken
	}
	link.Clicks = 0
	m.links[link.Keyword] = link
	m.order = append(m.order, link.Keyword)
	return nil
}

func (m *MemoryStore) IncrementClicks(_ context.Context, keyword string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[keyword]
	if !ok {
		return 0, nil
	}
	l.Clicks++
	m.links[keyword] = l
	return 1, nil
}

func (m *MemoryStore) NextID(context.Context) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.nextID), nil
}

func (m *MemoryStore) Advance(_ context.Context, next *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if next.Cmp(m.nextID) > 0 {
		m.nextID.Set(next)
	}
	return nil
}

func (m *MemoryStore) WriteClicks(_ context.Context, clicks []shortlink.Click) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range clicks {
		c = c.Sanitized()
		m.seq++
		m.byKW[c.Keyword] = append(m.byKW[c.Keyword], len(m.clicks))
		m.clicks = append(m.clicks, ClickStats{
			ID:          m.seq,
			ClickedAt:   c.At,
			Referrer:    c.Referrer,
			UserAgent:   c.UserAgent,
			CountryCode: c.CountryCode,
		})
	}
	return nil
}

// Append 让 MemoryStore 也能直接当 shortlink.ClickLog 用（测试里省掉收集器）。
func (m *MemoryStore) Append(ctx context.Context, click shortlink.Click) error {
	return m.WriteClicks(ctx, []shortlink.Click{click})
}

func (m *MemoryStore) ListStatsByKeyword(_ context.Context, keyword string, limit int, cursor int64) (*StatsResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[keyword]
	if !ok {
		return nil, shortlink.ErrNotFound
	}
	idx := m.byKW[keyword]
	var out []ClickStats
	for i := len(idx) - 1; i >= 0 && len(out) < limit; i-- {
		c := m.clicks[idx[i]]
		if cursor > 0 && c.ID >= cursor {
			continue
		}
		out = append(out, c)
	}
	return &StatsResponse{
		TotalClicks:  l.Clicks,
		RecentClicks: out,
		NextCursor:   nextCursor(out, limit),
	}, nil
}

func (m *MemoryStore) EachKeyword(_ context.Context, fn func(keyword string)) error {
	m.mu.Lock()
	keys := append([]string(nil), m.order...)
	m.mu.Unlock()
	sort.Strings(keys)
	for _, k := range keys {
		fn(k)
	}
	return nil
}

// Len 返回记录条数，测试用。
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.links)
}

// ClickLogLen 返回已写入的点击日志条数，测试用。
func (m *MemoryStore) ClickLogLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clicks)
}
