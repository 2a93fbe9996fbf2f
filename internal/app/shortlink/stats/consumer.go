package stats

import (
	"context"
	"log/slog"
	"time"

	"shorturl.local/internal/app/shortlink"
)

// Consumer 把 ChannelCollector 里的点击攒批写进 ClickWriter。
type Consumer struct {
	writer    shortlink.ClickWriter
	collector *ChannelCollector
	batchSize int
	interval  time.Duration
}

func NewConsumer(writer shortlink.ClickWriter, collector *ChannelCollector) *Consumer {
	return &Consumer{
		writer:    writer,
		collector: collector,
		batchSize: 100,         //批量写入大小
		interval:  time.Second, //最大等待时间
	}
}

// Run 阻塞，直到 collector 被关闭且读空。
//
// ctx 取消只触发一次提前 flush：优雅关闭期间还在处理的请求仍会 Append，
// 这些点击要等 collector.Close() 之后才算收完。
func (c *Consumer) Run(ctx context.Context) {
	batch := make([]shortlink.Click, 0, c.batchSize)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	done := ctx.Done()
	for {
		select {
		case <-done:
			c.flush(batch)
			batch = batch[:0]
			done = nil //之后只等 collector 关闭
			slog.Info("click stats: draining until collector closes")
		case click, ok := <-c.collector.Events():
			if !ok {
				c.flush(batch)
				return
			}
			batch = append(batch, click)
			if len(batch) >= c.batchSize {
				c.flush(batch)
				batch = batch[:0] //清空切片，但保留容量不变
			}
		case <-ticker.C:
			if len(batch) > 0 {
				c.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (c *Consumer) flush(batch []shortlink.Click) {
	flushBatch(c.writer, batch, "click stats")
}

func flushBatch(w shortlink.ClickWriter, batch []shortlink.Click, who string) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := w.WriteClicks(ctx, batch); err != nil {
		slog.Error(who+": write failed", "err", err, "count", len(batch))
		return
	}
	slog.Debug(who+": flushed", "count", len(batch))
}
