package stats

import (
	"context"
	"errors"
	"sync"

	"shorturl.local/internal/app/shortlink"
	"shorturl.local/internal/platform/metrics"
)

var (
	ErrBufferFull = errors.New("click buffer full")
	ErrClosed     = errors.New("click collector closed")
)

// Collector 是点击日志的入口：进程内用 channel，跨实例用 Kafka。
type Collector interface {
	shortlink.ClickLog
	Close() error
}

// ChannelCollector 基于带缓冲 channel 的收集器，满了直接丢，不阻塞跳转。
type ChannelCollector struct {
	mu     sync.RWMutex
	ch     chan shortlink.Click
	closed bool
}

func NewChannelCollector(bufferSize int) *ChannelCollector {
	return &ChannelCollector{
		ch: make(chan shortlink.Click, bufferSize),
	}
}

func (c *ChannelCollector) Append(_ context.Context, click shortlink.Click) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		metrics.ClickEventsDropped.Inc()
		return ErrClosed
	}
	select {
	case c.ch <- click:
		return nil
	default:
		metrics.ClickEventsDropped.Inc()
		return ErrBufferFull
	}
}

func (c *ChannelCollector) Events() <-chan shortlink.Click {
	return c.ch
}

// Close 之后 Append 返回 ErrClosed；已在缓冲里的事件仍会被消费者读完。
func (c *ChannelCollector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.ch)
	return nil
}
