package shortlink

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sltrace "shorturl.local/internal/platform/trace"
)

// Creator 表示“创建短链”的用例能力，Resolver 表示“解析短码”的用例能力。
// 上层（HTTP）只依赖接口，测试时可以换成假实现。
type Creator interface {
	CreateShortLink(ctx context.Context, req CreateRequest) (*Result, error)
}

type Resolver interface {
	ResolveKeyword(ctx context.Context, keyword string, visit Visit) (RedirectOutcome, error)
}

// CreateRequest 对应 createShortLink(url, keyword?, title?)。
type CreateRequest struct {
	URL       string
	Keyword   string
	Title     string
	CreatorIP string
}

type Result struct {
	Link     *ShortLink
	ShortURL string
}

// Visit 是一次跳转请求携带的访客信息，用于点击日志。
type Visit struct {
	Referrer    string
	UserAgent   string
	IP          string
	CountryCode string
	At          time.Time
}

type OutcomeKind int

const (
	OutcomeRedirect OutcomeKind = iota + 1
	OutcomePage
	OutcomeNotFound
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeRedirect:
		return "redirect"
	case OutcomePage:
		return "page"
	case OutcomeNotFound:
		return "not_found"
	}
	return "unknown"
}

// RedirectOutcome 是解析的终态。
//   - OutcomeRedirect：Location 是长链接
//   - OutcomePage：Page 是保留页面名，交给页面渲染方
//   - OutcomeNotFound：Location 是站点根地址（不返回 404，避免暴露哪些短码有效）
type RedirectOutcome struct {
	Kind     OutcomeKind
	Keyword  string
	Location string
	Page     string
	Link     *ShortLink
}

type Options struct {
	// SiteURL 站点根地址，例如 https://sho.rt；NotFound 跳到这里，也用于识别本站短链。
	SiteURL            string
	AllowDuplicateURLs bool
	// AsyncClicks=true 时点击统计在后台 goroutine 里做，Close 会等它们结束。
	AsyncClicks  bool
	ClickTimeout time.Duration
}

// Service 组合分配器、存储和点击日志，实现创建与解析两个用例。
type Service struct {
	store     Store
	sanitizer *Sanitizer
	allocator *Allocator
	hooks     *Hooks
	clicks    ClickLog
	titles    TitleFetcher
	opts      Options
	site      *url.URL
	tracer    trace.Tracer

	wg sync.WaitGroup
}

type ServiceOption func(*Service)

func WithHooks(h *Hooks) ServiceOption {
	return func(s *Service) { s.hooks = h }
}

func WithClickLog(c ClickLog) ServiceOption {
	return func(s *Service) { s.clicks = c }
}

func WithTitleFetcher(f TitleFetcher) ServiceOption {
	return func(s *Service) { s.titles = f }
}

func NewService(store Store, sanitizer *Sanitizer, allocator *Allocator, opts Options, extra ...ServiceOption) (*Service, error) {
	site, err := url.Parse(strings.TrimRight(strings.TrimSpace(opts.SiteURL), "/"))
	if err != nil || site.Host == "" {
		return nil, errors.New("site url must be absolute, e.g. https://sho.rt")
	}
	if opts.ClickTimeout <= 0 {
		opts.ClickTimeout = 2 * time.Second
	}
	s := &Service{
		store:     store,
		sanitizer: sanitizer,
		allocator: allocator,
		opts:      opts,
		site:      site,
		tracer:    otel.Tracer("shorturl.local/internal/app/shortlink"),
	}
	for _, o := range extra {
		o(s)
	}
	if allocator.hooks == nil {
		allocator.hooks = s.hooks
	}
	return s, nil
}

// SiteURL 返回不带结尾斜杠的站点根地址。
func (s *Service) SiteURL() string { return s.site.String() }

// ShortURL 拼出完整短链。
func (s *Service) ShortURL(keyword string) string {
	return s.site.String() + "/" + keyword
}

// CreateShortLink 校验 -> 防环 -> 去重 -> 取标题 -> 分配并插入。
// 校验类错误都在任何写操作之前返回。
func (s *Service) CreateShortLink(ctx context.Context, req CreateRequest) (res *Result, err error) {
	ctx, span := s.tracer.Start(ctx, "shortlink.create")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(CodeOf(err)))
		}
		span.End()
	}()

	longURL := s.sanitizer.URL(req.URL)
	if !validURL(longURL) {
		return nil, newError(CodeInvalidURL, "url is empty, a bare scheme or uses a disallowed protocol", nil)
	}
	span.SetAttributes(attribute.String(sltrace.ShortlinkURL, longURL))

	loop, err := s.isOwnShortURL(ctx, longURL)
	if err != nil {
		return nil, err
	}
	if loop {
		return nil, ErrShortURLLoop
	}

	p, handled := s.hooks.Invoke(ctx, HookPreAllocate, HookPayload{
		URL: longURL, Keyword: req.Keyword, Title: req.Title, CreatorIP: req.CreatorIP,
	})
	if handled {
		if p.Err != nil {
			return nil, p.Err
		}
		if p.Link == nil {
			return nil, newError(CodeAllocationConflict, "creation was cancelled by a hook", nil)
		}
		return &Result{Link: p.Link, ShortURL: s.ShortURL(p.Link.Keyword)}, nil
	}
	longURL, keyword, title := p.URL, p.Keyword, p.Title

	if !s.opts.AllowDuplicateURLs {
		existing, err := s.store.FindByURL(ctx, longURL)
		switch {
		case err == nil:
			return nil, &Error{Code: CodeDuplicateURL, Message: "url already shortened as " + existing.Keyword, Existing: existing}
		case !errors.Is(err, ErrNotFound):
			return nil, storageError("duplicate lookup", err)
		}
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = s.fetchTitle(ctx, longURL)
	}

	link, err := s.allocator.Allocate(ctx, Allocation{
		URL:       longURL,
		Keyword:   keyword,
		Title:     title,
		CreatorIP: p.CreatorIP,
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String(sltrace.ShortlinkKeyword, link.Keyword))

	if out, _ := s.hooks.Invoke(ctx, HookPostAllocate, HookPayload{URL: longURL, Keyword: link.Keyword, Link: link}); out.Link != nil {
		link = out.Link
	}
	slog.Info("shortlink created", "keyword", link.Keyword, "url", link.URL)
	return &Result{Link: link, ShortURL: s.ShortURL(link.Keyword)}, nil
}

// IsFree 对外暴露“短码是否可用”，供 API 预检用。
func (s *Service) IsFree(ctx context.Context, raw string) (bool, error) {
	kw := s.sanitizer.Keyword(raw)
	if kw == "" || kw != raw {
		return false, nil
	}
	free, err := s.allocator.IsFreeStrict(ctx, kw)
	if err != nil {
		return false, storageError("keyword lookup", err)
	}
	return free, nil
}

// Expand 返回短码对应的完整记录，不计点击。
func (s *Service) Expand(ctx context.Context, raw string) (*ShortLink, error) {
	kw := s.sanitizer.Keyword(raw)
	if kw == "" {
		return nil, ErrNotFound
	}
	link, err := s.store.Get(ctx, kw)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageError("lookup", err)
	}
	return link, nil
}

func (s *Service) fetchTitle(ctx context.Context, longURL string) string {
	if s.titles == nil {
		return longURL
	}
	title, err := s.titles.Title(ctx, longURL)
	if err != nil {
		slog.Debug("fetch title failed", "url", longURL, "err", err)
	}
	if title = strings.TrimSpace(title); title == "" {
		return longURL
	}
	return title
}

// isOwnShortURL 长链接指向本站且路径是一个已存在的短码，就是环。
func (s *Service) isOwnShortURL(ctx context.Context, longURL string) (bool, error) {
	u, err := url.Parse(longURL)
	if err != nil || !strings.EqualFold(u.Host, s.site.Host) {
		return false, nil
	}
	rest, ok := strings.CutPrefix(u.Path, s.site.Path+"/")
	if !ok {
		return false, nil
	}
	rest = strings.Trim(rest, "/")
	kw := s.sanitizer.Keyword(rest)
	if kw == "" || kw != rest {
		return false, nil
	}
	exists, err := existsStrict(ctx, s.store, kw)
	if err != nil {
		return false, storageError("loop check", err)
	}
	return exists, nil
}

func validURL(u string) bool {
	if u == "" {
		return false
	}
	parsed, err := url.Parse(u)
	if err != nil || parsed.Scheme == "" {
		return false
	}
	if hierarchicalSchemes[parsed.Scheme] {
		return parsed.Host != "" && parsed.Hostname() != ""
	}
	return parsed.Opaque != "" || parsed.Host != "" || parsed.Path != ""
}
