package orchestrator

import (
	"context"
	"strconv"
	"time"

	"github.com/gimmescrapes/platform/pkg/common/logger"
	"github.com/gimmescrapes/platform/pkg/common/models"
)

// Watchdog re-queues jobs left in RUNNING by a crashed worker. The worker
// never fails its own job on shutdown, so a RUNNING row older than the
// threshold means the process died mid-scrape; republishing the message with
// the job id lets the next consumer pick the job up again.
type Watchdog struct {
	sources   SourceCatalog
	jobs      JobBook
	publisher Publisher
	interval  time.Duration
	threshold time.Duration
}

func NewWatchdog(sourceCatalog SourceCatalog, jobBook JobBook, publisher Publisher, interval, threshold time.Duration) *Watchdog {
	return &Watchdog{
		sources:   sourceCatalog,
		jobs:      jobBook,
		publisher: publisher,
		interval:  interval,
		threshold: threshold,
	}
}

func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.requeueStale(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watchdog) requeueStale(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-w.threshold)
	stale, err := w.jobs.StaleRunning(ctx, cutoff)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to list stale jobs")
		return
	}

	for _, job := range stale {
		source, err := w.sources.ByID(ctx, job.SourceID)
		if err != nil {
			logger.Log.WithError(err).WithField("jobId", job.ID).
				Error("Stale job references unknown source")
			continue
		}

		jobID := job.ID
		message := models.ScrapeJobMessage{
			JobID:       &jobID,
			SourceID:    source.ID,
			SourceName:  source.Name,
			TriggeredBy: models.TriggerScheduled,
			Timestamp:   time.Now().UTC(),
		}
		if err := w.publisher.Publish(ctx, strconv.FormatInt(job.ID, 10), message); err != nil {
			logger.Log.WithError(err).WithField("jobId", job.ID).
				Error("Failed to re-queue stale job")
			continue
		}

		logger.Log.WithFields(map[string]interface{}{
			"jobId":     job.ID,
			"source":    source.Name,
			"startedAt": job.StartedAt,
		}).Warn("Re-queued stale RUNNING job")
	}
}
