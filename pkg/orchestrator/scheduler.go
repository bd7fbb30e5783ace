package orchestrator

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gimmescrapes/platform/pkg/common/logger"
	"github.com/gimmescrapes/platform/pkg/common/models"
)

// Locker guards against double-enqueueing a source when the scheduler runs
// alongside manual triggers or a second orchestrator instance.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisLocker implements Locker with a SET NX lease per source.
type RedisLocker struct {
	client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, "scrape:enqueue:"+key, 1, ttl).Result()
}

// Scheduler periodically scans for sources whose scrape interval has elapsed
// and enqueues a scrape message for each. Scheduled messages carry no job id;
// the worker creates the job record at consumption time.
type Scheduler struct {
	sources   SourceCatalog
	publisher Publisher
	locker    Locker
	interval  time.Duration
	lockTTL   time.Duration
}

func NewScheduler(sourceCatalog SourceCatalog, publisher Publisher, locker Locker, interval, lockTTL time.Duration) *Scheduler {
	return &Scheduler{
		sources:   sourceCatalog,
		publisher: publisher,
		locker:    locker,
		interval:  interval,
		lockTTL:   lockTTL,
	}
}

func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.enqueueDue(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) enqueueDue(ctx context.Context) {
	now := time.Now().UTC()
	due, err := s.sources.Due(ctx, now)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to list due sources")
		return
	}

	for _, source := range due {
		acquired, err := s.locker.Acquire(ctx, source.Name, s.lockTTL)
		if err != nil {
			logger.Log.WithError(err).WithField("source", source.Name).
				Warn("Failed to acquire enqueue lock")
			continue
		}
		if !acquired {
			continue
		}

		message := models.ScrapeJobMessage{
			SourceID:    source.ID,
			SourceName:  source.Name,
			TriggeredBy: models.TriggerScheduled,
			Timestamp:   now,
		}
		if err := s.publisher.Publish(ctx, source.Name, message); err != nil {
			logger.Log.WithError(err).WithField("source", source.Name).
				Error("Failed to enqueue scheduled scrape")
			continue
		}

		logger.Log.WithField("source", source.Name).Info("Scheduled scrape enqueued")
	}
}
