package shortlink

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"shorturl.local/internal/platform/metrics"
)

const DefaultMaxAttempts = 32

var one = big.NewInt(1)

// Allocation 是一次分配请求。Keyword 为空表示自动生成。
type Allocation struct {
	URL       string
	Keyword   string
	Title     string
	CreatorIP string
	CreatedAt time.Time
}

// Allocator 分配一个空闲短码并插入。
//
// 不加任何进程内锁：“检查空闲 -> 插入”本身有竞态，最终由 Store.Insert 的唯一约束裁决。
// 自动模式下插入冲突会换下一个候选重试；并发 N 个请求时每个请求最多冲突 N-1 次，
// 所以 maxAttempts >= N 就能保证全部成功。
type Allocator struct {
	store       Store
	counter     Counter
	sanitizer   *Sanitizer
	gen         KeywordGenerator
	hooks       *Hooks
	maxAttempts int
	now         func() time.Time
}

type AllocatorOption func(*Allocator)

func WithGenerator(g KeywordGenerator) AllocatorOption {
	return func(a *Allocator) {
		if g != nil {
			a.gen = g
		}
	}
}

// WithMaxAttempts 至少 2 次，保证冲突后一定会重试一次。
func WithMaxAttempts(n int) AllocatorOption {
	return func(a *Allocator) {
		a.maxAttempts = max(n, 2)
	}
}

func WithAllocatorHooks(h *Hooks) AllocatorOption {
	return func(a *Allocator) { a.hooks = h }
}

func NewAllocator(store Store, counter Counter, sanitizer *Sanitizer, opts ...AllocatorOption) *Allocator {
	a := &Allocator{
		store:       store,
		counter:     counter,
		sanitizer:   sanitizer,
		gen:         sanitizer.Charset(),
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// IsFree = 非保留 && 存储里不存在。
// 分配时挑候选用，Exists 可以是近似的：误判成空闲的会在 Insert 冲突时重试。
func (a *Allocator) IsFree(ctx context.Context, keyword string) (bool, error) {
	return a.isFree(ctx, keyword, a.store.Exists)
}

// IsFreeStrict 绕过缓存层的近似判断，给对外的可用性查询用。
func (a *Allocator) IsFreeStrict(ctx context.Context, keyword string) (bool, error) {
	return a.isFree(ctx, keyword, func(ctx context.Context, kw string) (bool, error) {
		return existsStrict(ctx, a.store, kw)
	})
}

func (a *Allocator) isFree(ctx context.Context, keyword string, exists func(context.Context, string) (bool, error)) (bool, error) {
	if keyword == "" || a.sanitizer.IsReserved(keyword) {
		return false, nil
	}
	found, err := exists(ctx, keyword)
	if err != nil {
		return false, err
	}
	return !found, nil
}

func (a *Allocator) Allocate(ctx context.Context, req Allocation) (*ShortLink, error) {
	if req.CreatedAt.IsZero() {
		req.CreatedAt = a.now().UTC()
	}
	if strings.TrimSpace(req.Keyword) != "" {
		return a.allocateCustom(ctx, req)
	}
	return a.allocateAuto(ctx, req)
}

// allocateCustom 用户指定短码：不可用或插入冲突都直接 KeywordUnavailable，不替用户换别的。
func (a *Allocator) allocateCustom(ctx context.Context, req Allocation) (*ShortLink, error) {
	kw := a.sanitizer.Keyword(req.Keyword)
	if kw == "" {
		metrics.ShortlinkAllocations.WithLabelValues("custom", "unavailable").Inc()
		return nil, newError(CodeKeywordUnavailable, "keyword is empty after sanitization", nil)
	}
	free, err := a.IsFree(ctx, kw)
	if err != nil {
		metrics.ShortlinkAllocations.WithLabelValues("custom", "error").Inc()
		return nil, storageError("keyword lookup", err)
	}
	if !free {
		metrics.ShortlinkAllocations.WithLabelValues("custom", "unavailable").Inc()
		return nil, newError(CodeKeywordUnavailable, "keyword "+kw+" is reserved or already taken", nil)
	}

	link := linkFor(req, kw)
	if err := a.store.Insert(ctx, link); err != nil {
		if errors.Is(err, ErrKeywordTaken) {
			metrics.AllocationConflicts.Inc()
			p, handled := a.hooks.Invoke(ctx, HookAllocationConflict, HookPayload{URL: req.URL, Keyword: kw, Attempt: 1, Err: err})
			if handled {
				if p.Link != nil {
					metrics.ShortlinkAllocations.WithLabelValues("custom", "hook").Inc()
					return p.Link, nil
				}
				if p.Err != nil {
					return nil, p.Err
				}
			}
			metrics.ShortlinkAllocations.WithLabelValues("custom", "unavailable").Inc()
			return nil, newError(CodeKeywordUnavailable, "keyword "+kw+" was taken concurrently", err)
		}
		metrics.ShortlinkAllocations.WithLabelValues("custom", "error").Inc()
		return nil, storageError("insert", err)
	}
	metrics.ShortlinkAllocations.WithLabelValues("custom", "ok").Inc()
	return &link, nil
}

func (a *Allocator) allocateAuto(ctx context.Context, req Allocation) (*ShortLink, error) {
	var lastErr error
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		id, err := a.counter.NextID(ctx)
		if err != nil {
			metrics.ShortlinkAllocations.WithLabelValues("auto", "error").Inc()
			return nil, storageError("read next id", err)
		}

		kw, id, err := a.nextFree(ctx, id)
		if err != nil {
			metrics.ShortlinkAllocations.WithLabelValues("auto", "error").Inc()
			return nil, err
		}

		// 不管后面的插入成不成功，计数器都往前推：它只是提示，空洞可以接受。
		if err := a.counter.Advance(ctx, new(big.Int).Add(id, one)); err != nil {
			slog.Warn("advance allocation counter failed", "err", err, "next_id", id.String())
		}

		link := linkFor(req, kw)
		err = a.store.Insert(ctx, link)
		if err == nil {
			metrics.ShortlinkAllocations.WithLabelValues("auto", "ok").Inc()
			return &link, nil
		}
		if !errors.Is(err, ErrKeywordTaken) {
			metrics.ShortlinkAllocations.WithLabelValues("auto", "error").Inc()
			return nil, storageError("insert", err)
		}

		lastErr = err
		metrics.AllocationConflicts.Inc()
		slog.Debug("keyword allocation conflict, retrying", "keyword", kw, "attempt", attempt)

		p, handled := a.hooks.Invoke(ctx, HookAllocationConflict, HookPayload{URL: req.URL, Keyword: kw, Attempt: attempt, Err: err})
		if handled {
			if p.Link != nil {
				return p.Link, nil
			}
			if p.Err != nil {
				return nil, p.Err
			}
			break
		}
	}
	metrics.ShortlinkAllocations.WithLabelValues("auto", "conflict").Inc()
	return nil, newError(CodeAllocationConflict, "gave up after repeated keyword conflicts", lastErr)
}

// nextFree 从 id 开始逐个编码，直到找到空闲短码。返回短码以及它对应的 id。
func (a *Allocator) nextFree(ctx context.Context, start *big.Int) (string, *big.Int, error) {
	id := new(big.Int).Set(start)
	for {
		if err := ctx.Err(); err != nil {
			return "", nil, storageError("candidate lookup", err)
		}
		kw, err := a.gen.Keyword(id)
		if err != nil {
			return "", nil, newError(CodeAllocationConflict, "keyword generator failed", err)
		}
		free, err := a.IsFree(ctx, kw)
		if err != nil {
			return "", nil, storageError("keyword lookup", err)
		}
		if free {
			return kw, id, nil
		}
		id.Add(id, one)
	}
}

func linkFor(req Allocation, kw string) ShortLink {
	return ShortLink{
		Keyword:   kw,
		URL:       req.URL,
		Title:     req.Title,
		CreatedAt: req.CreatedAt,
		CreatorIP: req.CreatorIP,
	}
}
