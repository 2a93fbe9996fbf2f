package shortlink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"shorturl.local/internal/platform/metrics"
	sltrace "shorturl.local/internal/platform/trace"
)

// ResolveKeyword 清洗短码 -> 保留页面 -> 查库 -> 跳转（再记点击）或 NotFound（跳回站点根）。
//
// 点击统计出任何错都只记日志，不会把一次有效的跳转变成错误。
// 只有存储整体不可用时才返回 error。
func (s *Service) ResolveKeyword(ctx context.Context, raw string, visit Visit) (RedirectOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "shortlink.resolve")
	defer span.End()

	kw := s.sanitizer.Keyword(raw)
	if kw == "" {
		return s.notFound(raw), nil
	}
	span.SetAttributes(attribute.String(sltrace.ShortlinkKeyword, kw))

	if visit.At.IsZero() {
		visit.At = time.Now().UTC()
	}

	if p, handled := s.hooks.Invoke(ctx, HookPreRedirect, HookPayload{Keyword: kw, Visit: &visit}); handled {
		if p.Outcome != nil {
			metrics.ShortlinkRedirects.WithLabelValues(p.Outcome.Kind.String()).Inc()
			return *p.Outcome, nil
		}
		return s.notFound(kw), nil
	}

	if s.sanitizer.IsPage(kw) {
		metrics.ShortlinkRedirects.WithLabelValues(OutcomePage.String()).Inc()
		return RedirectOutcome{Kind: OutcomePage, Keyword: kw, Page: kw}, nil
	}

	link, err := s.store.Get(ctx, kw)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return s.notFound(kw), nil
		}
		span.RecordError(err)
		metrics.ShortlinkRedirects.WithLabelValues("error").Inc()
		return RedirectOutcome{}, storageError("lookup", err)
	}

	out := RedirectOutcome{Kind: OutcomeRedirect, Keyword: kw, Location: link.URL, Link: link}
	span.SetAttributes(attribute.String(sltrace.ShortlinkOutcome, out.Kind.String()))
	metrics.ShortlinkRedirects.WithLabelValues(OutcomeRedirect.String()).Inc()

	if p, handled := s.hooks.Invoke(ctx, HookPostRedirect, HookPayload{Keyword: kw, Outcome: &out, Visit: &visit, Link: link}); handled {
		if p.Outcome != nil {
			out = *p.Outcome
		}
		return out, nil
	}

	s.recordClick(ctx, kw, visit)
	return out, nil
}

func (s *Service) notFound(kw string) RedirectOutcome {
	metrics.ShortlinkRedirects.WithLabelValues(OutcomeNotFound.String()).Inc()
	return RedirectOutcome{Kind: OutcomeNotFound, Keyword: kw, Location: s.site.String() + "/"}
}

// recordClick 异步模式下脱离请求的取消信号，但有独立超时；Close 会等待所有未完成的统计。
func (s *Service) recordClick(ctx context.Context, kw string, v Visit) {
	if !s.opts.AsyncClicks {
		cctx, cancel := context.WithTimeout(ctx, s.opts.ClickTimeout)
		defer cancel()
		s.accountClick(cctx, kw, v)
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ClickTimeout)
		defer cancel()
		s.accountClick(cctx, kw, v)
	}()
}

func (s *Service) accountClick(ctx context.Context, kw string, v Visit) {
	defer func() {
		if r := recover(); r != nil {
			metrics.ClickAccountingFailures.WithLabelValues("panic").Inc()
			slog.Error("click accounting panicked", "keyword", kw, "panic", fmt.Sprint(r))
		}
	}()

	if _, err := s.store.IncrementClicks(ctx, kw); err != nil {
		metrics.ClickAccountingFailures.WithLabelValues("counter").Inc()
		slog.Warn("increment clicks failed", "keyword", kw, "err", err)
	}
	if s.clicks == nil {
		return
	}
	err := s.clicks.Append(ctx, Click{
		Keyword:     kw,
		At:          v.At,
		Referrer:    v.Referrer,
		UserAgent:   v.UserAgent,
		IP:          v.IP,
		CountryCode: v.CountryCode,
	})
	if err != nil {
		metrics.ClickAccountingFailures.WithLabelValues("log").Inc()
		slog.Warn("append click log failed", "keyword", kw, "err", err)
	}
}

// Close 等待后台点击统计写完。
func (s *Service) Close() {
	s.wg.Wait()
}
