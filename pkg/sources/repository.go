package sources

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Source is a configured scrape target. Name is the canonical identifier used
// for scraper dispatch and is unique across all sources.
type Source struct {
	ID                    int64      `gorm:"primaryKey;column:id" json:"id"`
	Name                  string     `gorm:"column:name;uniqueIndex;not null" json:"name"`
	DisplayName           string     `gorm:"column:display_name" json:"display_name"`
	BaseURL               string     `gorm:"column:base_url" json:"base_url"`
	Enabled               bool       `gorm:"column:enabled;not null" json:"enabled"`
	ScrapeIntervalMinutes int        `gorm:"column:scrape_interval_minutes" json:"scrape_interval_minutes"`
	LastScrapeAt          *time.Time `gorm:"column:last_scrape_at" json:"last_scrape_at,omitempty"`
	CreatedAt             time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt             time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (Source) TableName() string {
	return "sources"
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Source{})
}

func (r *Repository) ByID(ctx context.Context, id int64) (*Source, error) {
	var source Source
	if err := r.db.WithContext(ctx).First(&source, id).Error; err != nil {
		return nil, err
	}
	return &source, nil
}

func (r *Repository) ByName(ctx context.Context, name string) (*Source, error) {
	var source Source
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&source).Error; err != nil {
		return nil, err
	}
	return &source, nil
}

// MarkScraped stamps the source after a completed job.
func (r *Repository) MarkScraped(ctx context.Context, id int64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&Source{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_scrape_at": at,
			"updated_at":     at,
		}).Error
}

// Due returns enabled sources whose scrape interval has elapsed since the
// last completed scrape. Never-scraped sources are always due.
func (r *Repository) Due(ctx context.Context, now time.Time) ([]Source, error) {
	var due []Source
	err := r.db.WithContext(ctx).
		Where("enabled = ?", true).
		Where("last_scrape_at IS NULL OR last_scrape_at + make_interval(mins => scrape_interval_minutes) <= ?", now).
		Find(&due).Error
	return due, err
}

// Upsert inserts a source or refreshes its configuration by name. Used when
// seeding sources from the configuration file; last_scrape_at is left alone
// so a redeploy does not reset scheduling state.
func (r *Repository) Upsert(ctx context.Context, source *Source) error {
	now := time.Now().UTC()
	source.CreatedAt = now
	source.UpdatedAt = now
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"display_name", "base_url", "enabled", "scrape_interval_minutes", "updated_at",
		}),
	}).Create(source).Error
}
