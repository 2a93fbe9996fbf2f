// Package repo 放短链业务私有的存储实现：Postgres（线上）、SQLite（单机）、Memory（测试/开发）。
//
// 三个实现遵守同一份约定（见 shortlink.Store）：
//   - Insert 靠唯一约束裁决并发，冲突返回 shortlink.ErrKeywordTaken
//   - 查不到返回 shortlink.ErrNotFound
package repo

import (
	"embed"
	"io/fs"
	"time"
)

//go:embed migrations/postgres/*.sql
var migrationsFS embed.FS

// PostgresMigrations 返回 Postgres 的迁移脚本，交给 migrate.Up 执行。
func PostgresMigrations() fs.FS {
	sub, err := fs.Sub(migrationsFS, "migrations/postgres")
	if err != nil {
		panic("repo: embedded migrations missing: " + err.Error())
	}
	return sub
}

const counterName = "keyword"

// ClickStats 是一条点击明细。
type ClickStats struct {
	ID          int64     `json:"id"` //用于下一次查询的分页cursor
	ClickedAt   time.Time `json:"clicked_at"`
	Referrer    string    `json:"referrer"`
	UserAgent   string    `json:"user_agent"`
	CountryCode string    `json:"country_code"`
}

type StatsResponse struct {
	TotalClicks  uint64       `json:"total_clicks"`
	RecentClicks []ClickStats `json:"recent_clicks"`
	NextCursor   *int64       `json:"next_cursor,omitempty"`
}

func nextCursor(clicks []ClickStats, limit int) *int64 {
	if len(clicks) == limit && limit > 0 {
		//还有下一页
		return &clicks[len(clicks)-1].ID
	}
	return nil
}
