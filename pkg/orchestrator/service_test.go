package orchestrator

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/gimmescrapes/platform/pkg/common/logger"
	"github.com/gimmescrapes/platform/pkg/common/models"
	"github.com/gimmescrapes/platform/pkg/jobs"
	"github.com/gimmescrapes/platform/pkg/sources"
)

func TestMain(m *testing.M) {
	logger.Init("test")
	os.Exit(m.Run())
}

type fakeCatalog struct {
	byName   map[string]*sources.Source
	byID     map[int64]*sources.Source
	due      []sources.Source
	upserted []*sources.Source
}

func (f *fakeCatalog) ByID(_ context.Context, id int64) (*sources.Source, error) {
	if source, ok := f.byID[id]; ok {
		return source, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeCatalog) ByName(_ context.Context, name string) (*sources.Source, error) {
	if source, ok := f.byName[name]; ok {
		return source, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeCatalog) Due(context.Context, time.Time) ([]sources.Source, error) {
	return f.due, nil
}

func (f *fakeCatalog) Upsert(_ context.Context, source *sources.Source) error {
	f.upserted = append(f.upserted, source)
	return nil
}

type fakeJobBook struct {
	byID    map[int64]*jobs.ScrapingJob
	nextID  int64
	stale   []jobs.ScrapingJob
	created []int64
}

func newFakeJobBook() *fakeJobBook {
	return &fakeJobBook{byID: make(map[int64]*jobs.ScrapingJob), nextID: 500}
}

func (f *fakeJobBook) ByID(_ context.Context, id int64) (*jobs.ScrapingJob, error) {
	if job, ok := f.byID[id]; ok {
		return job, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeJobBook) CreatePending(_ context.Context, sourceID int64) (*jobs.ScrapingJob, error) {
	job := &jobs.ScrapingJob{
		ID:        f.nextID,
		SourceID:  sourceID,
		Status:    jobs.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	f.nextID++
	f.byID[job.ID] = job
	f.created = append(f.created, job.ID)
	return job, nil
}

func (f *fakeJobBook) StaleRunning(context.Context, time.Time) ([]jobs.ScrapingJob, error) {
	return f.stale, nil
}

type publishedMessage struct {
	key     string
	message models.ScrapeJobMessage
}

type fakePublisher struct {
	published []publishedMessage
	err       error
}

func (f *fakePublisher) Publish(_ context.Context, key string, payload interface{}) error {
	if f.err != nil {
		return f.err
	}
	message, ok := payload.(models.ScrapeJobMessage)
	if !ok {
		return errors.New("unexpected payload type")
	}
	f.published = append(f.published, publishedMessage{key: key, message: message})
	return nil
}

type fakeLocker struct {
	denied   map[string]bool
	acquired []string
}

func (f *fakeLocker) Acquire(_ context.Context, key string, _ time.Duration) (bool, error) {
	if f.denied[key] {
		return false, nil
	}
	f.acquired = append(f.acquired, key)
	return true, nil
}

func enabledSource(id int64, name string) *sources.Source {
	return &sources.Source{ID: id, Name: name, BaseURL: "https://" + name, Enabled: true}
}

func TestTriggerScrapeCreatesPendingJobAndPublishes(t *testing.T) {
	catalog := &fakeCatalog{byName: map[string]*sources.Source{"olx.ro": enabledSource(1, "olx.ro")}}
	jobBook := newFakeJobBook()
	publisher := &fakePublisher{}
	service := NewService(catalog, jobBook, publisher)

	job, err := service.TriggerScrape(context.Background(), "olx.ro")
	if err != nil {
		t.Fatalf("trigger failed: %v", err)
	}
	if job.Status != jobs.StatusPending {
		t.Fatalf("expected PENDING job, got %s", job.Status)
	}

	if len(publisher.published) != 1 {
		t.Fatalf("expected one published message, got %d", len(publisher.published))
	}
	sent := publisher.published[0]
	if sent.message.JobID == nil || *sent.message.JobID != job.ID {
		t.Fatalf("manual message must carry the job id, got %v", sent.message.JobID)
	}
	if sent.message.TriggeredBy != models.TriggerManual {
		t.Fatalf("unexpected trigger: %s", sent.message.TriggeredBy)
	}
	if sent.key != "500" {
		t.Fatalf("expected the job id as message key, got %q", sent.key)
	}
}

func TestTriggerScrapeUnknownSource(t *testing.T) {
	service := NewService(&fakeCatalog{byName: map[string]*sources.Source{}}, newFakeJobBook(), &fakePublisher{})

	_, err := service.TriggerScrape(context.Background(), "necunoscut.ro")
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected record-not-found, got %v", err)
	}
}

func TestTriggerScrapeDisabledSource(t *testing.T) {
	disabled := enabledSource(1, "olx.ro")
	disabled.Enabled = false
	catalog := &fakeCatalog{byName: map[string]*sources.Source{"olx.ro": disabled}}
	jobBook := newFakeJobBook()
	service := NewService(catalog, jobBook, &fakePublisher{})

	if _, err := service.TriggerScrape(context.Background(), "olx.ro"); err == nil {
		t.Fatal("expected an error for a disabled source")
	}
	if len(jobBook.created) != 0 {
		t.Fatal("no job may be created for a disabled source")
	}
}

func TestTriggerScrapePublishFailure(t *testing.T) {
	catalog := &fakeCatalog{byName: map[string]*sources.Source{"olx.ro": enabledSource(1, "olx.ro")}}
	service := NewService(catalog, newFakeJobBook(), &fakePublisher{err: errors.New("broker unavailable")})

	if _, err := service.TriggerScrape(context.Background(), "olx.ro"); err == nil {
		t.Fatal("expected the publish failure to surface")
	}
}

func TestSchedulerEnqueuesDueSources(t *testing.T) {
	catalog := &fakeCatalog{due: []sources.Source{
		*enabledSource(1, "olx.ro"),
		*enabledSource(2, "storia.ro"),
	}}
	publisher := &fakePublisher{}
	locker := &fakeLocker{}
	scheduler := NewScheduler(catalog, publisher, locker, time.Minute, time.Minute)

	scheduler.enqueueDue(context.Background())

	if len(publisher.published) != 2 {
		t.Fatalf("expected 2 enqueued messages, got %d", len(publisher.published))
	}
	for _, sent := range publisher.published {
		if sent.message.JobID != nil {
			t.Fatal("scheduled messages must not carry a job id")
		}
		if sent.message.TriggeredBy != models.TriggerScheduled {
			t.Fatalf("unexpected trigger: %s", sent.message.TriggeredBy)
		}
	}
}

func TestSchedulerSkipsLockedSources(t *testing.T) {
	catalog := &fakeCatalog{due: []sources.Source{
		*enabledSource(1, "olx.ro"),
		*enabledSource(2, "storia.ro"),
	}}
	publisher := &fakePublisher{}
	locker := &fakeLocker{denied: map[string]bool{"olx.ro": true}}
	scheduler := NewScheduler(catalog, publisher, locker, time.Minute, time.Minute)

	scheduler.enqueueDue(context.Background())

	if len(publisher.published) != 1 {
		t.Fatalf("expected only the unlocked source, got %d messages", len(publisher.published))
	}
	if publisher.published[0].message.SourceName != "storia.ro" {
		t.Fatalf("unexpected source: %s", publisher.published[0].message.SourceName)
	}
}

func TestWatchdogRequeuesStaleJobs(t *testing.T) {
	started := time.Now().UTC().Add(-time.Hour)
	catalog := &fakeCatalog{byID: map[int64]*sources.Source{1: enabledSource(1, "olx.ro")}}
	jobBook := newFakeJobBook()
	jobBook.stale = []jobs.ScrapingJob{
		{ID: 42, SourceID: 1, Status: jobs.StatusRunning, StartedAt: &started},
		{ID: 43, SourceID: 9, Status: jobs.StatusRunning, StartedAt: &started},
	}
	publisher := &fakePublisher{}
	watchdog := NewWatchdog(catalog, jobBook, publisher, time.Minute, time.Hour)

	watchdog.requeueStale(context.Background())

	// Job 43 references an unknown source and is skipped.
	if len(publisher.published) != 1 {
		t.Fatalf("expected one re-queued job, got %d", len(publisher.published))
	}
	sent := publisher.published[0]
	if sent.message.JobID == nil || *sent.message.JobID != 42 {
		t.Fatalf("re-queued message must carry the stale job id, got %v", sent.message.JobID)
	}
	if sent.message.SourceName != "olx.ro" {
		t.Fatalf("unexpected source: %s", sent.message.SourceName)
	}
}
