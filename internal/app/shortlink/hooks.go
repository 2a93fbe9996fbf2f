package shortlink

import (
	"context"
	"sort"
	"sync"
)

// HookName 是核心暴露的扩展点。
type HookName string

const (
	HookPreAllocate        HookName = "pre_allocate"
	HookPostAllocate       HookName = "post_allocate"
	HookPreRedirect        HookName = "pre_redirect"
	HookPostRedirect       HookName = "post_redirect"
	HookAllocationConflict HookName = "allocation_conflict"
)

// HookPayload 在同一个扩展点的 handler 之间依次传递，每个 handler 可以改写后返回。
//
// 各扩展点用到的字段：
//   - pre_allocate：URL/Keyword/Title/CreatorIP；短路时用 Link 或 Err 作为创建结果
//   - post_allocate：Link（可替换返回给调用方的结果）
//   - allocation_conflict：Keyword/Attempt/Err；短路时用 Link 或 Err 结束重试
//   - pre_redirect：Keyword/Visit；短路时用 Outcome 作为解析结果
//   - post_redirect：Outcome/Visit；短路时跳过默认的点击统计
type HookPayload struct {
	URL       string
	Keyword   string
	Title     string
	CreatorIP string
	Attempt   int

	Link    *ShortLink
	Outcome *RedirectOutcome
	Visit   *Visit
	Err     error
}

// HookFunc 返回 handled=true 表示“这里我处理了”：后续 handler 不再执行，核心跳过默认逻辑。
type HookFunc func(ctx context.Context, p HookPayload) (out HookPayload, handled bool)

type hookEntry struct {
	priority int
	seq      int
	fn       HookFunc
}

// Hooks 是显式传递的扩展点注册表，不是全局状态。nil *Hooks 可以直接用，相当于没有注册任何 handler。
type Hooks struct {
	mu      sync.RWMutex
	seq     int
	entries map[HookName][]hookEntry
}

func NewHooks() *Hooks {
	return &Hooks{entries: make(map[HookName][]hookEntry)}
}

// Register 挂载 handler。priority 越小越先执行，同优先级按注册顺序。
func (h *Hooks) Register(name HookName, priority int, fn HookFunc) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	// 复制一份再排序，正在 Invoke 的 goroutine 持有的是旧切片。
	old := h.entries[name]
	list := make([]hookEntry, 0, len(old)+1)
	list = append(list, old...)
	list = append(list, hookEntry{priority: priority, seq: h.seq, fn: fn})
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].priority != list[j].priority {
			return list[i].priority < list[j].priority
		}
		return list[i].seq < list[j].seq
	})
	h.entries[name] = list
}

// Invoke 同步依次执行 handler，返回最终 payload 以及是否被短路。
func (h *Hooks) Invoke(ctx context.Context, name HookName, p HookPayload) (HookPayload, bool) {
	if h == nil {
		return p, false
	}
	h.mu.RLock()
	list := h.entries[name]
	h.mu.RUnlock()

	for _, e := range list {
		out, handled := e.fn(ctx, p)
		p = out
		if handled {
			return p, true
		}
	}
	return p, false
}
