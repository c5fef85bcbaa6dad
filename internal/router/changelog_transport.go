package router

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/example/van-notify/internal/models"
)

// ChangelogTransport appends each stored notification to a Kafka topic.
// The relay consumer replays the topic into the shared persisted log, which
// is what poll-only processes converge on.
type ChangelogTransport struct {
	writer *kafka.Writer
}

func NewChangelogTransport(brokers []string, topic string) *ChangelogTransport {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &ChangelogTransport{writer: w}
}

func (t *ChangelogTransport) Name() string { return "changelog" }

func (t *ChangelogTransport) Republish(ctx context.Context, n models.Notification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	// key by recipient so one recipient's entries stay ordered per partition
	return t.writer.WriteMessages(ctx, kafka.Message{Key: []byte(n.RecipientID), Value: b})
}

func (t *ChangelogTransport) Close() error {
	if t.writer == nil {
		return nil
	}
	return t.writer.Close()
}
