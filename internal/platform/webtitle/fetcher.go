// Package webtitle 抓取目标页面的 <title>，创建短链时没给标题就用它。
package webtitle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

const (
	maxBodyBytes = 512 << 10 // 只读前 512KB，<title> 一般在很前面
	maxTitleLen  = 500
	maxRedirects = 5
)

var ErrNotHTML = errors.New("response is not html")

type Fetcher struct {
	client    *http.Client
	userAgent string
}

type options struct {
	allowPrivate bool
}

type Option func(*options)

// AllowPrivateNetworks 关闭内网地址拦截。只给内网部署和测试用。
func AllowPrivateNetworks() Option {
	return func(o *options) { o.allowPrivate = true }
}

// New timeout 是整次抓取（含重定向）的上限。
// 默认拒绝连到回环、内网、链路本地地址：URL 是用户提交的，不能让它替人探测内网。
func New(timeout time.Duration, opts ...Option) *Fetcher {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Fetcher{
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(newTransport(o.allowPrivate)),
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		userAgent: "shorturl-title-fetcher/1.0",
	}
}

func newTransport(allowPrivate bool) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if allowPrivate {
		return t
	}
	d := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   dialControl,
	}
	t.DialContext = d.DialContext
	t.Proxy = nil // 走代理时真正解析域名的是代理，地址检查就失效了
	return t
}

// Title 只处理 http/https；拿不到标题返回 ("", err)，调用方自己决定回退。
func (f *Fetcher) Title(ctx context.Context, rawURL string) (string, error) {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return "", fmt.Errorf("unsupported scheme: %s", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetch title: status %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "html") {
		return "", ErrNotHTML
	}

	// 按 Content-Type / <meta charset> 转成 UTF-8
	body, err := charset.NewReader(io.LimitReader(resp.Body, maxBodyBytes), ct)
	if err != nil {
		return "", err
	}
	return ExtractTitle(body)
}

// ExtractTitle 返回第一个 <title> 的文本（实体已解码、空白已折叠）。
func ExtractTitle(r io.Reader) (string, error) {
	z := html.NewTokenizer(r)
	inTitle := false
	var sb strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != nil && !errors.Is(err, io.EOF) {
				return "", err
			}
			if inTitle {
				return clean(sb.String()), nil
			}
			return "", io.EOF
		case html.StartTagToken:
			name, _ := z.TagName()
			if string(name) == "title" {
				inTitle = true
			}
		case html.TextToken:
			if inTitle {
				sb.Write(z.Text())
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if inTitle && string(name) == "title" {
				return clean(sb.String()), nil
			}
			if string(name) == "head" {
				return "", io.EOF
			}
		}
	}
}

func clean(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > maxTitleLen {
		s = string(r[:maxTitleLen])
	}
	return s
}
