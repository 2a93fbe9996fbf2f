package shortlink

import (
	"context"
	"math/big"
	"strings"
	"time"
)

// ShortLink 是短链领域对象。
//
// Keyword 区分大小写且唯一；创建之后 (Keyword, URL) 不会被分配器改写。
type ShortLink struct {
	Keyword   string    `json:"keyword"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	CreatorIP string    `json:"creator_ip,omitempty"`
	Clicks    uint64    `json:"clicks"`
}

// Store 是领域层对持久化的全部要求。
//
// 实现约定：
//   - Insert 对 keyword 唯一性必须是原子的：并发插同一个 keyword，只有一个成功，
//     其余返回 ErrKeywordTaken（而不是笼统的失败）
//   - Get / FindByURL 查不到时返回 ErrNotFound
//   - IncrementClicks 是尽力而为，返回受影响行数
type Store interface {
	Exists(ctx context.Context, keyword string) (bool, error)
	FindByURL(ctx context.Context, url string) (*ShortLink, error)
	Insert(ctx context.Context, link ShortLink) error
	IncrementClicks(ctx context.Context, keyword string) (int64, error)
	Get(ctx context.Context, keyword string) (*ShortLink, error)
}

// StrictExister 由带近似判断（布隆过滤器、进程内缓存）的 Store 实现。
//
// 多实例部署时本进程的布隆过滤器看不到别的实例刚插入的短码，
// 环检测、可用性预检这类答错就会放行错误结果的地方必须走 ExistsStrict。
type StrictExister interface {
	ExistsStrict(ctx context.Context, keyword string) (bool, error)
}

func existsStrict(ctx context.Context, st Store, keyword string) (bool, error) {
	if se, ok := st.(StrictExister); ok {
		return se.ExistsStrict(ctx, keyword)
	}
	return st.Exists(ctx, keyword)
}

// Counter 是自动短码的序号（next_id），持久化在存储层。
//
// 它只是一个乐观的起点提示，不是分配账本：允许出现空洞，但不允许回退。
type Counter interface {
	NextID(ctx context.Context) (*big.Int, error)
	// Advance 把 next_id 推进到 max(当前值, next)。
	Advance(ctx context.Context, next *big.Int) error
}

// Click 是一次跳转的日志记录。
type Click struct {
	Keyword     string    `json:"keyword"`
	At          time.Time `json:"at"`
	Referrer    string    `json:"referrer"`
	UserAgent   string    `json:"user_agent"`
	IP          string    `json:"ip"`
	CountryCode string    `json:"country_code"`
}

// Sanitized 返回可以安全落库的副本。
// Referer / User-Agent 是客户端随便填的字节：非法 UTF-8 和 NUL 会让 Postgres 拒掉整批 COPY。
func (c Click) Sanitized() Click {
	c.Keyword = ValidText(c.Keyword)
	c.Referrer = ValidText(c.Referrer)
	c.UserAgent = ValidText(c.UserAgent)
	c.IP = ValidText(c.IP)
	c.CountryCode = ValidText(c.CountryCode)
	if len(c.CountryCode) > 8 {
		c.CountryCode = "" //列宽 VARCHAR(8)
	}
	return c
}

// ValidText 把非法 UTF-8 替换成 U+FFFD 并去掉 NUL。
func ValidText(s string) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	return strings.ReplaceAll(s, "\x00", "")
}

// ClickLog 是只追加的点击日志接收方。失败不影响跳转。
type ClickLog interface {
	Append(ctx context.Context, click Click) error
}

// ClickWriter 批量落库点击日志，由 stats 的消费者调用。
type ClickWriter interface {
	WriteClicks(ctx context.Context, clicks []Click) error
}

// TitleFetcher 抓取目标页面的标题。
type TitleFetcher interface {
	Title(ctx context.Context, url string) (string, error)
}
