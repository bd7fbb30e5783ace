package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/gimmescrapes/platform/pkg/common/config"
	"github.com/gimmescrapes/platform/pkg/common/logger"
)

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(channel string) *Producer {
	cfg := config.Load()
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Topic:        channel,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{writer: writer}
}

// Publish serializes payload as JSON and writes it to the producer's channel.
// The key groups redeliveries of the same logical job together; pass an empty
// key to let the balancer pick a partition.
func (p *Producer) Publish(ctx context.Context, key string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if key == "" {
		key = uuid.New().String()
	}

	message := kafka.Message{
		Key:   []byte(key),
		Value: body,
		Headers: []kafka.Header{
			{Key: "channel", Value: []byte(p.writer.Topic)},
		},
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"channel": p.writer.Topic,
			"key":     key,
		}).Error("Failed to publish message")
		return err
	}

	logger.Log.WithFields(map[string]interface{}{
		"channel": p.writer.Topic,
		"key":     key,
	}).Debug("Message published")

	return nil
}

// publishRaw forwards an already-serialized message body, used for
// dead-lettering the original bytes untouched.
func (p *Producer) publishRaw(ctx context.Context, key, body []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: body})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
