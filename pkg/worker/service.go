package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/gimmescrapes/platform/pkg/common/kafka"
	"github.com/gimmescrapes/platform/pkg/common/logger"
	"github.com/gimmescrapes/platform/pkg/common/models"
	"github.com/gimmescrapes/platform/pkg/jobs"
	"github.com/gimmescrapes/platform/pkg/listings"
	"github.com/gimmescrapes/platform/pkg/observability/metrics"
	"github.com/gimmescrapes/platform/pkg/scraper"
	"github.com/gimmescrapes/platform/pkg/sources"
)

// SourceStore, JobStore, Dispatcher and Reconciler are the collaborators the
// orchestrator drives. The GORM repositories and the scraper registry satisfy
// them in production; tests substitute in-memory fakes.
type SourceStore interface {
	ByID(ctx context.Context, id int64) (*sources.Source, error)
	MarkScraped(ctx context.Context, id int64, at time.Time) error
}

type JobStore interface {
	CreateRunning(ctx context.Context, sourceID int64) (*jobs.ScrapingJob, error)
	MarkRunning(ctx context.Context, id int64) (*jobs.ScrapingJob, error)
	Complete(ctx context.Context, id int64, scraped, newCount, updatedCount int) error
	Fail(ctx context.Context, id int64, message string) error
}

type Dispatcher interface {
	Lookup(sourceName string) (scraper.Strategy, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, candidates []listings.Listing) listings.Result
}

// Service owns the scrape job state machine. Each transition is persisted as
// it happens so the job record is observable mid-flight and a crash leaves an
// honest RUNNING row behind.
type Service struct {
	sources    SourceStore
	jobs       JobStore
	registry   Dispatcher
	reconciler Reconciler
}

func NewService(sourceStore SourceStore, jobStore JobStore, registry Dispatcher, reconciler Reconciler) *Service {
	return &Service{
		sources:    sourceStore,
		jobs:       jobStore,
		registry:   registry,
		reconciler: reconciler,
	}
}

// HandleScrapeJob is the kafka handler for the scrape channel. A returned
// error makes the bus adapter retry and eventually dead-letter the message;
// an undecodable body is dead-lettered immediately.
func (s *Service) HandleScrapeJob(ctx context.Context, body []byte) error {
	var message models.ScrapeJobMessage
	if err := json.Unmarshal(body, &message); err != nil {
		return &kafka.PermanentError{Err: fmt.Errorf("undecodable scrape job message: %w", err)}
	}
	return s.process(ctx, message)
}

func (s *Service) process(ctx context.Context, message models.ScrapeJobMessage) error {
	log := logger.Log.WithFields(map[string]interface{}{
		"sourceId":    message.SourceID,
		"sourceName":  message.SourceName,
		"triggeredBy": message.TriggeredBy,
	})
	if message.JobID != nil {
		log = log.WithField("jobId", *message.JobID)
	}
	log.Info("Received scrape job")

	// Source resolution failure means the message references data that does
	// not exist; there is no job record to fail yet, the message itself goes
	// through the standard retry and dead-letter path.
	source, err := s.sources.ByID(ctx, message.SourceID)
	if err != nil {
		return fmt.Errorf("source not found: %d: %w", message.SourceID, err)
	}
	if !source.Enabled {
		return fmt.Errorf("source %s is disabled", source.Name)
	}

	var job *jobs.ScrapingJob
	if message.JobID != nil {
		// Pre-created job, triggered manually via the API.
		job, err = s.jobs.MarkRunning(ctx, *message.JobID)
		if err != nil {
			return fmt.Errorf("scraping job not found or not startable: %d: %w", *message.JobID, err)
		}
		log.Info("Updated existing job to RUNNING")
	} else {
		// Scheduled trigger carries no job id; create the record now.
		job, err = s.jobs.CreateRunning(ctx, source.ID)
		if err != nil {
			return fmt.Errorf("failed to create scraping job: %w", err)
		}
		log.WithField("jobId", job.ID).Info("Created scraping job")
	}

	if err := s.run(ctx, source, job); err != nil {
		s.failJob(ctx, job.ID, err)
		return err
	}
	return nil
}

func (s *Service) run(ctx context.Context, source *sources.Source, job *jobs.ScrapingJob) error {
	strategy, err := s.registry.Lookup(source.Name)
	if err != nil {
		return err
	}

	raw, scrapeErr := strategy.Scrape(ctx, source)
	candidates := normalize(raw, source.ID)

	if scrapeErr != nil {
		// Pages fetched before the failure are still reconciled so partial
		// progress survives; the job is then failed and the error re-raised
		// for bus-level redelivery.
		if len(candidates) > 0 {
			partial := s.reconciler.Reconcile(ctx, candidates)
			logger.Log.WithFields(map[string]interface{}{
				"jobId":   job.ID,
				"new":     partial.New,
				"updated": partial.Updated,
			}).Warn("Persisted partial results before failing job")
		}
		return scrapeErr
	}

	result := s.reconciler.Reconcile(ctx, candidates)

	if err := s.jobs.Complete(ctx, job.ID, result.Total(), result.New, result.Updated); err != nil {
		return fmt.Errorf("failed to complete job %d: %w", job.ID, err)
	}
	metrics.ObserveJobCompleted(result.New, result.Updated)

	now := time.Now().UTC()
	if err := s.sources.MarkScraped(ctx, source.ID, now); err != nil {
		logger.Log.WithError(err).WithField("sourceId", source.ID).
			Warn("Failed to update source last scrape time")
	}

	logger.Log.WithFields(map[string]interface{}{
		"jobId":   job.ID,
		"source":  source.Name,
		"total":   result.Total(),
		"new":     result.New,
		"updated": result.Updated,
		"skipped": result.Skipped,
	}).Info("Scrape job completed")

	return nil
}

func (s *Service) failJob(ctx context.Context, jobID int64, cause error) {
	if err := s.jobs.Fail(ctx, jobID, cause.Error()); err != nil {
		logger.Log.WithError(err).WithField("jobId", jobID).Error("Failed to mark job FAILED")
	}
	metrics.ObserveJobFailed()
}

// normalize binds raw extracted records to the source and stamps scrape
// timestamps explicitly. Records without a URL are dropped here; they never
// reach the reconciler.
func normalize(raw []scraper.RawListing, sourceID int64) []listings.Listing {
	now := time.Now().UTC()
	candidates := make([]listings.Listing, 0, len(raw))
	for _, r := range raw {
		if r.URL == "" {
			continue
		}
		candidates = append(candidates, listings.Listing{
			SourceID:       sourceID,
			ExternalID:     r.ExternalID,
			URL:            r.URL,
			Title:          r.Title,
			Description:    r.Description,
			Price:          r.Price,
			Currency:       r.Currency,
			SurfaceSqm:     r.SurfaceSqm,
			PricePerSqm:    r.PricePerSqm,
			Rooms:          r.Rooms,
			Bathrooms:      r.Bathrooms,
			Floor:          r.Floor,
			TotalFloors:    r.TotalFloors,
			YearBuilt:      r.YearBuilt,
			City:           r.City,
			Neighborhood:   r.Neighborhood,
			Address:        r.Address,
			Latitude:       r.Latitude,
			Longitude:      r.Longitude,
			ImageURLs:      datatypes.JSONSlice[string](r.ImageURLs),
			Features:       datatypes.JSONMap(r.Features),
			FirstScrapedAt: now,
			LastScrapedAt:  now,
		})
	}
	return candidates
}
