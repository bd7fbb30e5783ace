package jobs

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// maxErrorLength bounds the error text stored on a failed job.
const maxErrorLength = 2000

// ScrapingJob records one execution attempt against a source. Transitions are
// one-directional: PENDING -> RUNNING -> COMPLETED or FAILED. Terminal rows
// are never mutated again; the repository guards every transition with a
// status predicate so a stray update cannot resurrect a finished job.
type ScrapingJob struct {
	ID           int64      `gorm:"primaryKey;column:id" json:"id"`
	SourceID     int64      `gorm:"column:source_id;index;not null" json:"source_id"`
	Status       Status     `gorm:"column:status;index;not null" json:"status"`
	StartedAt    *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt  *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	ItemsScraped int        `gorm:"column:items_scraped" json:"items_scraped"`
	ItemsNew     int        `gorm:"column:items_new" json:"items_new"`
	ItemsUpdated int        `gorm:"column:items_updated" json:"items_updated"`
	ErrorMessage string     `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time  `gorm:"column:created_at" json:"created_at"`
}

func (ScrapingJob) TableName() string {
	return "scraping_jobs"
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&ScrapingJob{})
}

func (r *Repository) ByID(ctx context.Context, id int64) (*ScrapingJob, error) {
	var job ScrapingJob
	if err := r.db.WithContext(ctx).First(&job, id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// CreatePending records a job ahead of dispatch, for manually triggered
// scrapes whose message will carry the job id.
func (r *Repository) CreatePending(ctx context.Context, sourceID int64) (*ScrapingJob, error) {
	job := &ScrapingJob{
		SourceID:  sourceID,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

// CreateRunning records a job born directly into RUNNING, for scheduled
// messages that carry no pre-created job id.
func (r *Repository) CreateRunning(ctx context.Context, sourceID int64) (*ScrapingJob, error) {
	now := time.Now().UTC()
	job := &ScrapingJob{
		SourceID:  sourceID,
		Status:    StatusRunning,
		StartedAt: &now,
		CreatedAt: now,
	}
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

// MarkRunning transitions a PENDING job to RUNNING. Re-marking a job that is
// already RUNNING is allowed so a re-queued stale job can be picked up again.
func (r *Repository) MarkRunning(ctx context.Context, id int64) (*ScrapingJob, error) {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&ScrapingJob{}).
		Where("id = ? AND status IN ?", id, []Status{StatusPending, StatusRunning}).
		Updates(map[string]interface{}{
			"status":     StatusRunning,
			"started_at": now,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("job %d is not in a startable state", id)
	}
	return r.ByID(ctx, id)
}

// Complete marks a RUNNING job as COMPLETED with its counts.
func (r *Repository) Complete(ctx context.Context, id int64, scraped, newCount, updatedCount int) error {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&ScrapingJob{}).
		Where("id = ? AND status = ?", id, StatusRunning).
		Updates(map[string]interface{}{
			"status":        StatusCompleted,
			"completed_at":  now,
			"items_scraped": scraped,
			"items_new":     newCount,
			"items_updated": updatedCount,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("job %d is not RUNNING, refusing to complete", id)
	}
	return nil
}

// Fail marks a RUNNING job as FAILED with a truncated error summary.
func (r *Repository) Fail(ctx context.Context, id int64, message string) error {
	if len(message) > maxErrorLength {
		message = message[:maxErrorLength]
	}
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&ScrapingJob{}).
		Where("id = ? AND status = ?", id, StatusRunning).
		Updates(map[string]interface{}{
			"status":        StatusFailed,
			"completed_at":  now,
			"error_message": message,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("job %d is not RUNNING, refusing to fail", id)
	}
	return nil
}

// StaleRunning lists jobs still RUNNING whose start is older than the
// threshold. A crashed worker leaves its job in RUNNING; the watchdog picks
// those up and re-queues them.
func (r *Repository) StaleRunning(ctx context.Context, olderThan time.Time) ([]ScrapingJob, error) {
	var stale []ScrapingJob
	err := r.db.WithContext(ctx).
		Where("status = ? AND started_at < ?", StatusRunning, olderThan).
		Find(&stale).Error
	return stale, err
}
