package repo_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shorturl.local/internal/app/shortlink"
	"shorturl.local/internal/app/shortlink/repo"
)

// backend 是三个存储实现共同满足的能力集合。
type backend interface {
	shortlink.Store
	shortlink.Counter
	shortlink.ClickWriter
	ListStatsByKeyword(ctx context.Context, keyword string, limit int, cursor int64) (*repo.StatsResponse, error)
	EachKeyword(ctx context.Context, fn func(keyword string)) error
}

func newLink(kw, url string) shortlink.ShortLink {
	return shortlink.ShortLink{
		Keyword:   kw,
		URL:       url,
		Title:     "t-" + kw,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		CreatorIP: "192.0.2.1",
	}
}

// runStoreContract 对每个实现跑同一组行为检查。
func runStoreContract(t *testing.T, newStore func(t *testing.T) backend) {
	t.Run("insert get exists", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		ok, err := s.Exists(ctx, "abc")
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = s.Get(ctx, "abc")
		require.ErrorIs(t, err, shortlink.ErrNotFound)

		require.NoError(t, s.Insert(ctx, newLink("abc", "https://example.com/a")))
		ok, err = s.Exists(ctx, "abc")
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := s.Get(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/a", got.URL)
		assert.Equal(t, "t-abc", got.Title)
		assert.Equal(t, "192.0.2.1", got.CreatorIP)
		assert.Zero(t, got.Clicks)
		assert.False(t, got.CreatedAt.IsZero())
	})

	t.Run("keywords are case sensitive", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Insert(ctx, newLink("Abc", "https://example.com/upper")))
		require.NoError(t, s.Insert(ctx, newLink("abc", "https://example.com/lower")))

		got, err := s.Get(ctx, "Abc")
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/upper", got.URL)
	})

	t.Run("duplicate insert is a conflict", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Insert(ctx, newLink("abc", "https://example.com/a")))

		err := s.Insert(ctx, newLink("abc", "https://example.com/b"))
		require.ErrorIs(t, err, shortlink.ErrKeywordTaken)

		got, err := s.Get(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/a", got.URL, "first writer wins")
	})

	t.Run("concurrent inserts have one winner", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		const n = 8
		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = s.Insert(ctx, newLink("race", fmt.Sprintf("https://example.com/%d", i)))
			}()
		}
		wg.Wait()

		wins := 0
		for _, err := range errs {
			switch {
			case err == nil:
				wins++
			case errors.Is(err, shortlink.ErrKeywordTaken):
			default:
				t.Fatalf("unexpected insert error: %v", err)
			}
		}
		assert.Equal(t, 1, wins)
	})

	t.Run("find by url returns earliest", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		first := newLink("one", "https://example.com/same")
		second := newLink("two", "https://example.com/same")
		second.CreatedAt = first.CreatedAt.Add(time.Second)
		require.NoError(t, s.Insert(ctx, first))
		require.NoError(t, s.Insert(ctx, second))

		got, err := s.FindByURL(ctx, "https://example.com/same")
		require.NoError(t, err)
		assert.Equal(t, "one", got.Keyword)

		_, err = s.FindByURL(ctx, "https://example.com/other")
		assert.ErrorIs(t, err, shortlink.ErrNotFound)
	})

	t.Run("increment clicks", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Insert(ctx, newLink("abc", "https://example.com/")))

		for range 3 {
			n, err := s.IncrementClicks(ctx, "abc")
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)
		}
		n, err := s.IncrementClicks(ctx, "missing")
		require.NoError(t, err)
		assert.Zero(t, n)

		got, err := s.Get(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, uint64(3), got.Clicks)
	})

	t.Run("counter only moves forward", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		id, err := s.NextID(ctx)
		require.NoError(t, err)
		assert.Equal(t, "1", id.String())

		require.NoError(t, s.Advance(ctx, big.NewInt(10)))
		require.NoError(t, s.Advance(ctx, big.NewInt(5)))
		id, err = s.NextID(ctx)
		require.NoError(t, err)
		assert.Equal(t, "10", id.String())

		huge, _ := new(big.Int).SetString("340282366920938463463374607431768211457", 10)
		require.NoError(t, s.Advance(ctx, huge))
		id, err = s.NextID(ctx)
		require.NoError(t, err)
		assert.Equal(t, huge.String(), id.String())
	})

	t.Run("click log pagination", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Insert(ctx, newLink("abc", "https://example.com/")))

		var clicks []shortlink.Click
		for i := range 5 {
			clicks = append(clicks, shortlink.Click{
				Keyword:     "abc",
				At:          time.Now().UTC(),
				Referrer:    fmt.Sprintf("ref-%d", i),
				CountryCode: "DE",
			})
		}
		require.NoError(t, s.WriteClicks(ctx, clicks))
		require.NoError(t, s.WriteClicks(ctx, nil))

		page, err := s.ListStatsByKeyword(ctx, "abc", 3, 0)
		require.NoError(t, err)
		require.Len(t, page.RecentClicks, 3)
		assert.Equal(t, "ref-4", page.RecentClicks[0].Referrer, "newest first")
		require.NotNil(t, page.NextCursor)

		rest, err := s.ListStatsByKeyword(ctx, "abc", 3, *page.NextCursor)
		require.NoError(t, err)
		require.Len(t, rest.RecentClicks, 2)
		assert.Equal(t, "ref-1", rest.RecentClicks[0].Referrer)
		assert.Nil(t, rest.NextCursor)

		_, err = s.ListStatsByKeyword(ctx, "missing", 3, 0)
		assert.ErrorIs(t, err, shortlink.ErrNotFound)
	})

	t.Run("click log accepts hostile header bytes", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Insert(ctx, newLink("abc", "https://example.com/")))

		clicks := []shortlink.Click{
			{Keyword: "abc", At: time.Now().UTC(), Referrer: "https://ok.example/", UserAgent: "curl/8.0"},
			{Keyword: "abc", At: time.Now().UTC(), Referrer: "https://bad.example/\xff\xfe", UserAgent: "\xffbot\x00/1.0"},
		}
		require.NoError(t, s.WriteClicks(ctx, clicks), "one bad row must not sink the batch")

		page, err := s.ListStatsByKeyword(ctx, "abc", 10, 0)
		require.NoError(t, err)
		require.Len(t, page.RecentClicks, 2)
		for _, c := range page.RecentClicks {
			assert.True(t, utf8.ValidString(c.Referrer), c.Referrer)
			assert.True(t, utf8.ValidString(c.UserAgent), c.UserAgent)
			assert.NotContains(t, c.UserAgent, "\x00")
		}
		assert.Equal(t, "\uFFFDbot/1.0", page.RecentClicks[0].UserAgent)
		assert.Equal(t, "https://ok.example/", page.RecentClicks[1].Referrer)
	})

	t.Run("each keyword", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, kw := range []string{"a", "b", "c"} {
			require.NoError(t, s.Insert(ctx, newLink(kw, "https://example.com/"+kw)))
		}
		var seen []string
		require.NoError(t, s.EachKeyword(ctx, func(kw string) { seen = append(seen, kw) }))
		assert.ElementsMatch(t, []string{"a", "b", "c"}, seen)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(*testing.T) backend { return repo.NewMemoryStore() })
}

func TestMemoryStoreAppendFeedsClickLog(t *testing.T) {
	s := repo.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, newLink("abc", "https://example.com/")))
	require.NoError(t, s.Append(ctx, shortlink.Click{Keyword: "abc", At: time.Now()}))
	assert.Equal(t, 1, s.ClickLogLen())
	assert.Equal(t, 1, s.Len())
}
