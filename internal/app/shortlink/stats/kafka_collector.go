package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"shorturl.local/internal/app/shortlink"
)

// clickMessage 是写进 Kafka 的消息体，ID 用于下游去重。
type clickMessage struct {
	ID string `json:"id"`
	shortlink.Click
}

type KafkaCollector struct {
	writer *kafka.Writer
}

func NewKafkaCollector(brokers []string, topic string) *KafkaCollector {
	return &KafkaCollector{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{}, // 同一个 keyword 进同一个分区
			Async:        true,          // 异步发送
			BatchTimeout: 50 * time.Millisecond,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					slog.Error("kafka write failed", "err", err, "count", len(messages))
				}
			},
		},
	}
}

func (k *KafkaCollector) Append(ctx context.Context, click shortlink.Click) error {
	data, err := json.Marshal(clickMessage{ID: uuid.NewString(), Click: click})
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(click.Keyword),
		Value: data,
	})
}

func (k *KafkaCollector) Close() error {
	return k.writer.Close()
}
