package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/gimmescrapes/platform/pkg/common/config"
	"github.com/gimmescrapes/platform/pkg/common/logger"
	"github.com/gimmescrapes/platform/pkg/observability/metrics"
)

// Handler processes one raw message body. Returning an error triggers the
// consumer's bounded retry; once attempts are exhausted the message is routed
// to the channel's dead-letter topic and acknowledged.
type Handler func(ctx context.Context, body []byte) error

// PermanentError marks a failure that retrying cannot fix, such as an
// undecodable message body. The consumer dead-letters it immediately.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return "permanent: " + e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// RetryPolicy bounds redelivery of a failing message before dead-lettering.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
	Factor      float64
}

func DefaultRetryPolicy() RetryPolicy {
	cfg := config.Load()
	return RetryPolicy{
		MaxAttempts: cfg.ConsumerMaxAttempts,
		Interval:    cfg.ConsumerRetryInterval,
		Factor:      cfg.ConsumerRetryFactor,
	}
}

type Consumer struct {
	reader  *kafka.Reader
	dlq     *Producer
	policy  RetryPolicy
	channel string
}

func NewConsumer(channel string, groupID string, policy RetryPolicy) *Consumer {
	cfg := config.Load()
	if groupID == "" {
		groupID = cfg.KafkaGroupID
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    channel,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	return &Consumer{
		reader:  reader,
		dlq:     NewProducer(DLQTopic(channel)),
		policy:  policy,
		channel: channel,
	}
}

// Consume fetches messages one at a time, delivering each to the handler with
// bounded retry. Every message ends either acknowledged after success or
// parked on the dead-letter topic; nothing is silently dropped.
func (c *Consumer) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			message, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				logger.Log.WithError(err).Error("Failed to fetch message")
				continue
			}

			if err := Deliver(ctx, message.Value, handler, c.policy); err != nil {
				logger.Log.WithError(err).WithFields(map[string]interface{}{
					"channel":  c.channel,
					"attempts": c.policy.MaxAttempts,
				}).Error("Message exhausted retries, dead-lettering")

				dlqErr := deadLetter(ctx, c.policy, func(ctx context.Context) error {
					return c.dlq.publishRaw(ctx, message.Key, message.Value)
				})
				if dlqErr != nil {
					// Commits are high-watermark offsets: committing any later
					// message would silently acknowledge this one too. Stop
					// consuming instead; the group resumes here after restart.
					logger.Log.WithError(dlqErr).Error("Failed to dead-letter message, stopping consumer")
					return dlqErr
				}
				metrics.ObserveDeadLetter()
			}

			if err := c.reader.CommitMessages(ctx, message); err != nil {
				logger.Log.WithError(err).Error("Failed to commit message")
			}
		}
	}
}

// Deliver runs the handler under the retry policy. It returns nil once the
// handler succeeds, or the last error after MaxAttempts failures. A
// PermanentError short-circuits the remaining attempts.
func Deliver(ctx context.Context, body []byte, handler Handler, policy RetryPolicy) error {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	var lastErr error
	backoff := policy.Interval

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		lastErr = handler(ctx, body)
		if lastErr == nil {
			return nil
		}

		var perm *PermanentError
		if errors.As(lastErr, &perm) {
			return lastErr
		}

		logger.Log.WithError(lastErr).WithFields(map[string]interface{}{
			"attempt": attempt,
			"max":     policy.MaxAttempts,
		}).Warn("Message handling failed")

		if attempt == policy.MaxAttempts {
			break
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff = time.Duration(float64(backoff) * policy.Factor)
	}

	return lastErr
}

// deadLetter runs a dead-letter publish under the retry policy, so a
// transient broker failure does not leave an exhausted message without its
// dead-letter copy.
func deadLetter(ctx context.Context, policy RetryPolicy, publish func(ctx context.Context) error) error {
	return Deliver(ctx, nil, func(ctx context.Context, _ []byte) error {
		return publish(ctx)
	}, policy)
}

func (c *Consumer) Close() error {
	if err := c.dlq.Close(); err != nil {
		logger.Log.WithError(err).Warn("Failed to close dead-letter producer")
	}
	return c.reader.Close()
}
