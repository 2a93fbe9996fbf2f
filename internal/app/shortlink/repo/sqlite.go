package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/mattn/go-sqlite3"

	"shorturl.local/internal/app/shortlink"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS links (
    keyword    TEXT PRIMARY KEY,
    url        TEXT NOT NULL,
    title      TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL,
    creator_ip TEXT NOT NULL DEFAULT '',
    clicks     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS links_url_idx ON links (url);

CREATE TABLE IF NOT EXISTS allocation_counter (
    name    TEXT PRIMARY KEY,
    next_id TEXT NOT NULL
);
INSERT OR IGNORE INTO allocation_counter (name, next_id) VALUES ('keyword', '1');

CREATE TABLE IF NOT EXISTS click_log (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    keyword      TEXT NOT NULL,
    clicked_at   TIMESTAMP NOT NULL,
    referrer     TEXT NOT NULL DEFAULT '',
    user_agent   TEXT NOT NULL DEFAULT '',
    ip           TEXT NOT NULL DEFAULT '',
    country_code TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS click_log_keyword_id_idx ON click_log (keyword, id DESC);
`

// SQLiteStore 是单机部署用的存储。SQLite 只允许一个写者，所以连接池固定为 1。
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	// Create table if not exists
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) Exists(ctx context.Context, keyword string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM links WHERE keyword = ?)`, keyword).Scan(&exists)
	return exists, err
}

func (s *SQLiteStore) Get(ctx context.Context, keyword string) (*shortlink.ShortLink, error) {
	row := s.db.QueryRowContext(ctx, `SELECT keyword, url, title, created_at, creator_ip, clicks FROM links WHERE keyword = ?`, keyword)
	return scanSQLiteLink(row)
}

func (s *SQLiteStore) FindByURL(ctx context.Context, url string) (*shortlink.ShortLink, error) {
	row := s.db.QueryRowContext(ctx, `SELECT keyword, url, title, created_at, creator_ip, clicks FROM links WHERE url = ? ORDER BY created_at LIMIT 1`, url)
	return scanSQLiteLink(row)
}

func (s *SQLiteStore) Insert(ctx context.Context, link shortlink.ShortLink) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO links (keyword, url, title, created_at, creator_ip) VALUES (?, ?, ?, ?, ?) ON CONFLICT(keyword) DO NOTHING`,
		link.Keyword, link.URL, link.Title, link.CreatedAt.UTC(), link.CreatorIP)
	if err != nil {
		var sqErr sqlite3.Error
		if errors.As(err, &sqErr) && sqErr.Code == sqlite3.ErrConstraint {
			return shortlink.ErrKeywordTaken
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return shortlink.ErrKeywordTaken
	}
	return nil
}

func (s *SQLiteStore) IncrementClicks(ctx context.Context, keyword string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE links SET clicks = clicks + 1 WHERE keyword = ?`, keyword)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// next_id 以十进制字符串保存，比较和推进都在 Go 里用 big.Int 做。
func (s *SQLiteStore) NextID(ctx context.Context) (*big.Int, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT next_id FROM allocation_counter WHERE name = ?`, counterName).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
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

func (s *SQLiteStore) Advance(ctx context.Context, next *big.Int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT next_id FROM allocation_counter WHERE name = ?`, counterName).Scan(&raw)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if cur, ok := new(big.Int).SetString(raw, 10); ok && cur.Cmp(next) >= 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO allocation_counter (name, next_id) VALUES (?, ?) ON CONFLICT(name) DO UPDATE SET next_id = excluded.next_id`,
		counterName, next.String()); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) WriteClicks(ctx context.Context, clicks []shortlink.Click) error {
	if len(clicks) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO click_log (keyword, clicked_at, referrer, user_agent, ip, country_code) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, c := range clicks {
		c = c.Sanitized()
		if _, err := stmt.ExecContext(ctx, c.Keyword, c.At.UTC(), c.Referrer, c.UserAgent, c.IP, c.CountryCode); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListStatsByKeyword(ctx context.Context, keyword string, limit int, cursor int64) (*StatsResponse, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT clicks FROM links WHERE keyword = ?`, keyword).Scan(&total); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shortlink.ErrNotFound
		}
		return nil, err
	}

	query := `SELECT id, clicked_at, referrer, user_agent, country_code FROM click_log WHERE keyword = ? ORDER BY id DESC LIMIT ?`
	args := []any{keyword, limit}
	if cursor > 0 {
		query = `SELECT id, clicked_at, referrer, user_agent, country_code FROM click_log WHERE keyword = ? AND id < ? ORDER BY id DESC LIMIT ?`
		args = []any{keyword, cursor, limit}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clicks []ClickStats
	for rows.Next() {
		var c ClickStats
		if err := rows.Scan(&c.ID, &c.ClickedAt, &c.Referrer, &c.UserAgent, &c.CountryCode); err != nil {
			return nil, err
		}
		clicks = append(clicks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &StatsResponse{
		TotalClicks:  uint64(max(total, 0)),
		RecentClicks: clicks,
		NextCursor:   nextCursor(clicks, limit),
	}, nil
}

func (s *SQLiteStore) EachKeyword(ctx context.Context, fn func(keyword string)) error {
	rows, err := s.db.QueryContext(ctx, `SELECT keyword FROM links`)
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

func scanSQLiteLink(row *sql.Row) (*shortlink.ShortLink, error) {
	var l shortlink.ShortLink
	var clicks int64
	var created time.Time
	if err := row.Scan(&l.Keyword, &l.URL, &l.Title, &created, &l.CreatorIP, &clicks); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shortlink.ErrNotFound
		}
		return nil, err
	}
	l.CreatedAt = created
	l.Clicks = uint64(max(clicks, 0))
	return &l, nil
}
