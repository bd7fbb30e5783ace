package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gimmescrapes/platform/pkg/common/logger"
	"github.com/gimmescrapes/platform/pkg/common/models"
	"github.com/gimmescrapes/platform/pkg/jobs"
	"github.com/gimmescrapes/platform/pkg/sources"
)

// Publisher is the bus-facing collaborator; the kafka producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, key string, payload interface{}) error
}

type SourceCatalog interface {
	ByID(ctx context.Context, id int64) (*sources.Source, error)
	ByName(ctx context.Context, name string) (*sources.Source, error)
	Due(ctx context.Context, now time.Time) ([]sources.Source, error)
	Upsert(ctx context.Context, source *sources.Source) error
}

type JobBook interface {
	ByID(ctx context.Context, id int64) (*jobs.ScrapingJob, error)
	CreatePending(ctx context.Context, sourceID int64) (*jobs.ScrapingJob, error)
	StaleRunning(ctx context.Context, olderThan time.Time) ([]jobs.ScrapingJob, error)
}

// Service is the producer side of the pipeline: it creates job records ahead
// of dispatch and enqueues scrape messages for the worker.
type Service struct {
	sources   SourceCatalog
	jobs      JobBook
	publisher Publisher
}

func NewService(sourceCatalog SourceCatalog, jobBook JobBook, publisher Publisher) *Service {
	return &Service{
		sources:   sourceCatalog,
		jobs:      jobBook,
		publisher: publisher,
	}
}

// TriggerScrape enqueues a manual scrape for a source. The job record is
// created PENDING before publishing so the message can carry its id and the
// caller can poll it immediately.
func (s *Service) TriggerScrape(ctx context.Context, sourceName string) (*jobs.ScrapingJob, error) {
	source, err := s.sources.ByName(ctx, sourceName)
	if err != nil {
		return nil, fmt.Errorf("source not found: %s: %w", sourceName, err)
	}
	if !source.Enabled {
		return nil, fmt.Errorf("source %s is disabled", source.Name)
	}

	job, err := s.jobs.CreatePending(ctx, source.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create scraping job: %w", err)
	}

	message := models.ScrapeJobMessage{
		JobID:       &job.ID,
		SourceID:    source.ID,
		SourceName:  source.Name,
		TriggeredBy: models.TriggerManual,
		Timestamp:   time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, strconv.FormatInt(job.ID, 10), message); err != nil {
		return nil, fmt.Errorf("failed to publish scrape job: %w", err)
	}

	logger.Log.WithFields(map[string]interface{}{
		"jobId":  job.ID,
		"source": source.Name,
	}).Info("Manual scrape triggered")

	return job, nil
}

// Job returns the bookkeeping record for one scrape job.
func (s *Service) Job(ctx context.Context, id int64) (*jobs.ScrapingJob, error) {
	return s.jobs.ByID(ctx, id)
}
