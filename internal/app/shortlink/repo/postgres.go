package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"shorturl.local/internal/app/shortlink"
)

// PostgresStore 同时实现 shortlink.Store / Counter / ClickWriter。
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.db.Ping(ctx) }

func (s *PostgresStore) Exists(ctx context.Context, keyword string) (bool, error) {
	dbctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	var exists bool
	if err := s.db.QueryRow(dbctx, `SELECT EXISTS(SELECT 1 FROM links WHERE keyword=$1)`, keyword).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *PostgresStore) Get(ctx context.Context, keyword string) (*shortlink.ShortLink, error) {
	dbctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	row := s.db.QueryRow(dbctx, `SELECT keyword,url,title,created_at,creator_ip,clicks FROM links WHERE keyword=$1`, keyword)
	return scanLink(row)
}

func (s *PostgresStore) FindByURL(ctx context.Context, url string) (*shortlink.ShortLink, error) {
	dbctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	row := s.db.QueryRow(dbctx, `SELECT keyword,url,title,created_at,creator_ip,clicks FROM links WHERE md5(url)=md5($1::text) AND url=$1 ORDER BY created_at LIMIT 1`, url)
	return scanLink(row)
}

// Insert 用 ON CONFLICT DO NOTHING：影响 0 行就是 keyword 已被占用。
func (s *PostgresStore) Insert(ctx context.Context, link shortlink.ShortLink) error {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tag, err := s.db.Exec(dbctx,
		`INSERT INTO links (keyword,url,title,created_at,creator_ip) VALUES ($1,$2,$3,$4,$5) ON CONFLICT (keyword) DO NOTHING`,
		link.Keyword, link.URL, link.Title, link.CreatedAt, link.CreatorIP)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return shortlink.ErrKeywordTaken
		}
		slog.Error("insert link failed", "keyword", link.Keyword, "err", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return shortlink.ErrKeywordTaken
	}
	return nil
}

func (s *PostgresStore) IncrementClicks(ctx context.Context, keyword string) (int64, error) {
	dbctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	tag, err := s.db.Exec(dbctx, `UPDATE links SET clicks = clicks + 1 WHERE keyword = $1`, keyword)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// NextID 读 NUMERIC 时转成 text，避免在 int64 处截断。
func (s *PostgresStore) NextID(ctx context.Context) (*big.Int, error) {
	dbctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	var raw string
	err := s.db.QueryRow(dbctx, `SELECT next_id::text FROM allocation_counter WHERE name=$1`, counterName).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return big.NewInt(1), nil
	}
	if err != nil {
		return nil, err
	}
	id, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("allocation counter holds non-integer %q", raw)
	}
	return id, nil
}

// Advance 只前进不后退：并发请求各自推进，最终取最大值。
func (s *PostgresStore) Advance(ctx context.Context, next *big.Int) error {
	dbctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	_, err := s.db.Exec(dbctx, `
INSERT INTO allocation_counter (name, next_id) VALUES ($1, $2::numeric)
ON CONFLICT (name) DO UPDATE SET next_id = GREATEST(allocation_counter.next_id, EXCLUDED.next_id)`,
		counterName, next.String())
	return err
}

// WriteClicks 用 COPY 批量写点击日志。
func (s *PostgresStore) WriteClicks(ctx context.Context, clicks []shortlink.Click) error {
	if len(clicks) == 0 {
		return nil
	}
	_, err := s.db.CopyFrom(ctx,
		pgx.Identifier{"click_log"},
		[]string{"keyword", "clicked_at", "referrer", "user_agent", "ip", "country_code"},
		pgx.CopyFromSlice(len(clicks), func(i int) ([]any, error) {
			c := clicks[i].Sanitized()
			return []any{c.Keyword, c.At, c.Referrer, c.UserAgent, c.IP, c.CountryCode}, nil
		}),
	)
	return err
}

// ListStatsByKeyword 按 id 倒序分页返回点击明细，cursor=0 表示第一页。
func (s *PostgresStore) ListStatsByKeyword(ctx context.Context, keyword string, limit int, cursor int64) (*StatsResponse, error) {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var total int64
	if err := s.db.QueryRow(dbctx, `SELECT clicks FROM links WHERE keyword = $1`, keyword).Scan(&total); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shortlink.ErrNotFound
		}
		return nil, err
	}

	var rows pgx.Rows
	var err error
	if cursor == 0 {
		rows, err = s.db.Query(dbctx, `SELECT id,clicked_at,referrer,user_agent,country_code FROM click_log WHERE keyword = $1 ORDER BY id DESC LIMIT $2`, keyword, limit)
	} else {
		rows, err = s.db.Query(dbctx, `SELECT id,clicked_at,referrer,user_agent,country_code FROM click_log WHERE keyword = $1 AND id < $2 ORDER BY id DESC LIMIT $3`, keyword, cursor, limit)
	}
	if err != nil {
		return nil, err
	}
	clicks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ClickStats, error) {
		var c ClickStats
		err := row.Scan(&c.ID, &c.ClickedAt, &c.Referrer, &c.UserAgent, &c.CountryCode)
		return c, err
	})
	if err != nil {
		return nil, err
	}

	return &StatsResponse{
		TotalClicks:  uint64(max(total, 0)),
		RecentClicks: clicks,
		NextCursor:   nextCursor(clicks, limit),
	}, nil
}

// EachKeyword 遍历所有短码，用于启动时预热布隆过滤器。
func (s *PostgresStore) EachKeyword(ctx context.Context, fn func(keyword string)) error {
	rows, err := s.db.Query(ctx, `SELECT keyword FROM links`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var kw string
		if err := rows.Scan(&kw); err != nil {
			return err
		}
		fn(kw)
	}
	return rows.Err()
}

func scanLink(row pgx.Row) (*shortlink.ShortLink, error) {
	var l shortlink.ShortLink
	var clicks int64
	if err := row.Scan(&l.Keyword, &l.URL, &l.Title, &l.CreatedAt, &l.CreatorIP, &clicks); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shortlink.ErrNotFound
		}
		return nil, err
	}
	l.Clicks = uint64(max(clicks, 0))
	return &l, nil
}
