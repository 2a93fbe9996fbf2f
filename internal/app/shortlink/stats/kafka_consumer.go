package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"shorturl.local/internal/app/shortlink"
)

type KafkaConsumer struct {
	reader    *kafka.Reader
	writer    shortlink.ClickWriter
	batchSize int
	interval  time.Duration
}

func NewKafkaConsumer(brokers []string, topic string, writer shortlink.ClickWriter) *KafkaConsumer {
	return &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  "click-log-consumer",
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		writer:    writer,
		batchSize: 100,
		interval:  time.Second,
	}
}

// Run 阻塞到读取协程退出并把已读到的消息写完。
// ReadMessage 读到即提交 offset，所以读到的消息一条都不能丢在 channel 里。
func (k *KafkaConsumer) Run(ctx context.Context) {
	batch := make([]shortlink.Click, 0, k.batchSize)
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	msgCh := make(chan shortlink.Click, k.batchSize)

	// 读取协程
	go func() {
		defer close(msgCh)
		for {
			msg, err := k.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Error("kafka read failed", "err", err)
				continue
			}
			click, err := decodeClick(msg.Value)
			if err != nil {
				slog.Error("unmarshal click failed", "err", err, "offset", msg.Offset)
				continue
			}
			msgCh <- click
		}
	}()

	done := ctx.Done()
	for {
		select {
		case <-done:
			k.flush(batch)
			batch = batch[:0]
			done = nil //读取协程随 ctx 退出后会关闭 msgCh

		case click, ok := <-msgCh:
			if !ok {
				k.flush(batch)
				return
			}
			batch = append(batch, click)
			if len(batch) >= k.batchSize {
				k.flush(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				k.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (k *KafkaConsumer) flush(batch []shortlink.Click) {
	flushBatch(k.writer, batch, "kafka consumer")
}

func (k *KafkaConsumer) Close() error {
	return k.reader.Close()
}

func decodeClick(data []byte) (shortlink.Click, error) {
	var m clickMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return shortlink.Click{}, err
	}
	return m.Click, nil
}
