package shortlink

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const DefaultMaxKeywordLength = 100

// DefaultReserved 是不允许当作短码的保留词，和站点已有路由前缀保持一致。
var DefaultReserved = []string{"api", "healthz", "admin", "login", "static", "favicon", "robots"}

// 允许出现在长链接里的协议。
var allowedSchemes = map[string]bool{
	"http": true, "https": true, "ftp": true, "ftps": true,
	"mailto": true, "news": true, "irc": true, "ircs": true,
	"tel": true, "sms": true, "xmpp": true, "webcal": true, "feed": true, "magnet": true,
}

// 这些协议必须带 host（scheme://host/...）。
var hierarchicalSchemes = map[string]bool{
	"http": true, "https": true, "ftp": true, "ftps": true,
	"irc": true, "ircs": true, "webcal": true, "feed": true,
}

// RouteChecker 判断某个路径段是否已经被站点路由占用（例如 /api、/healthz）。
// gee.Engine 实现了它。
type RouteChecker interface {
	ReservesSegment(segment string) bool
}

// Sanitizer 负责短码/长链接的清洗和保留词判断。配置在启动时给定，之后只读。
type Sanitizer struct {
	charset  *Charset
	maxLen   int
	reserved map[string]struct{}
	pages    map[string]struct{}
	routes   RouteChecker
}

type SanitizerOption func(*Sanitizer)

func WithMaxKeywordLength(n int) SanitizerOption {
	return func(s *Sanitizer) {
		if n > 0 {
			s.maxLen = n
		}
	}
}

// WithReserved 追加保留词（大小写不敏感）。
func WithReserved(words ...string) SanitizerOption {
	return func(s *Sanitizer) {
		for _, w := range words {
			if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
				s.reserved[w] = struct{}{}
			}
		}
	}
}

// WithPages 注册保留页面名，解析时命中会走 OutcomePage。
func WithPages(names ...string) SanitizerOption {
	return func(s *Sanitizer) {
		for _, n := range names {
			if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
				s.pages[n] = struct{}{}
			}
		}
	}
}

func WithRoutes(rc RouteChecker) SanitizerOption {
	return func(s *Sanitizer) { s.routes = rc }
}

func NewSanitizer(charset *Charset, opts ...SanitizerOption) *Sanitizer {
	if charset == nil {
		charset = Base36
	}
	s := &Sanitizer{
		charset:  charset,
		maxLen:   DefaultMaxKeywordLength,
		reserved: make(map[string]struct{}),
		pages:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sanitizer) Charset() *Charset { return s.charset }

func (s *Sanitizer) MaxLength() int { return s.maxLen }

// Sanitize restrictToCharset=true 按短码规则清洗，否则按长链接规则清洗。
func (s *Sanitizer) Sanitize(raw string, restrictToCharset bool) string {
	if restrictToCharset {
		return s.Keyword(raw)
	}
	return s.URL(raw)
}

// Keyword 去掉字符集以外的字符，再截断到最大长度。
func (s *Sanitizer) Keyword(raw string) string {
	var b strings.Builder
	b.Grow(min(len(raw), s.maxLen))
	for i := 0; i < len(raw) && b.Len() < s.maxLen; i++ {
		if s.charset.index[raw[i]] >= 0 {
			b.WriteByte(raw[i])
		}
	}
	return b.String()
}

// URL 清洗长链接：去首尾空白、反复剔除 CRLF 注入和非法字符直到结果稳定，
// 补全缺省协议，最后按协议白名单过滤。不合法时返回空串。
func (s *Sanitizer) URL(raw string) string {
	u := strings.TrimSpace(raw)
	for {
		next := strings.Map(urlRune, stripCRLF(u))
		if next == u {
			break
		}
		u = next
	}
	if u == "" {
		return ""
	}

	scheme, ok := splitScheme(u)
	if !ok {
		if strings.HasPrefix(u, "//") {
			u = "http:" + u
		} else {
			u = "http://" + u
		}
		return u
	}
	lower := strings.ToLower(scheme)
	if !allowedSchemes[lower] {
		return ""
	}
	return lower + u[len(scheme):]
}

// IsReserved 保留词、保留页面、已有路由，命中任一即不可分配。
func (s *Sanitizer) IsReserved(keyword string) bool {
	k := strings.ToLower(keyword)
	if _, ok := s.reserved[k]; ok {
		return true
	}
	if _, ok := s.pages[k]; ok {
		return true
	}
	return s.routes != nil && s.routes.ReservesSegment(keyword)
}

func (s *Sanitizer) IsPage(keyword string) bool {
	_, ok := s.pages[strings.ToLower(keyword)]
	return ok
}

// stripCRLF 反复删除 %0d/%0a（大小写都算），直到不再出现。
func stripCRLF(u string) string {
	for {
		lower := strings.ToLower(u)
		i := strings.Index(lower, "%0d")
		if j := strings.Index(lower, "%0a"); j >= 0 && (i < 0 || j < i) {
			i = j
		}
		if i < 0 {
			return u
		}
		u = u[:i] + u[i+3:]
	}
}

func urlRune(r rune) rune {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return r
	case strings.ContainsRune("-~+_.?#=!&;,/:%@$|*'()[]", r):
		return r
	case r >= utf8.RuneSelf && !unicode.IsSpace(r) && !unicode.IsControl(r):
		return r
	}
	return -1
}

// splitScheme 识别 "scheme:" 前缀。白名单协议总是算；其余情况下 host:port（冒号后是数字）和带点的前缀不算协议。
func splitScheme(u string) (string, bool) {
	i := strings.IndexByte(u, ':')
	if i <= 0 {
		return "", false
	}
	scheme := u[:i]
	for j := 0; j < len(scheme); j++ {
		c := scheme[j]
		isAlpha := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		if j == 0 && !isAlpha {
			return "", false
		}
		if !isAlpha && !(c >= '0' && c <= '9') && c != '+' && c != '-' && c != '.' {
			return "", false
		}
	}
	rest := u[i+1:]
	if strings.HasPrefix(rest, "//") || allowedSchemes[strings.ToLower(scheme)] {
		return scheme, true
	}
	if strings.Contains(scheme, ".") {
		return "", false
	}
	if rest != "" && rest[0] >= '0' && rest[0] <= '9' {
		return "", false
	}
	return scheme, true
}
