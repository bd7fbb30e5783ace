package listings

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when no listing exists for a URL.
	ErrNotFound = errors.New("listing not found")
	// ErrDuplicateURL is returned when an insert loses the race against a
	// concurrent job writing the same URL.
	ErrDuplicateURL = errors.New("listing URL already exists")
)

// Listing is a normalized record of one real-world item, uniquely keyed by
// URL across all sources. Optional numeric fields are pointers so a partial
// extraction can leave them absent without erasing previously known values.
type Listing struct {
	ID             int64                       `gorm:"primaryKey;column:id" json:"id"`
	SourceID       int64                       `gorm:"column:source_id;index;not null" json:"source_id"`
	ExternalID     string                      `gorm:"column:external_id" json:"external_id,omitempty"`
	URL            string                      `gorm:"column:url;uniqueIndex;not null" json:"url"`
	Title          string                      `gorm:"column:title" json:"title,omitempty"`
	Description    string                      `gorm:"column:description;type:text" json:"description,omitempty"`
	Price          *float64                    `gorm:"column:price;index" json:"price,omitempty"`
	Currency       string                      `gorm:"column:currency" json:"currency,omitempty"`
	SurfaceSqm     *float64                    `gorm:"column:surface_sqm" json:"surface_sqm,omitempty"`
	PricePerSqm    *float64                    `gorm:"column:price_per_sqm" json:"price_per_sqm,omitempty"`
	Rooms          *int                        `gorm:"column:rooms" json:"rooms,omitempty"`
	Bathrooms      *int                        `gorm:"column:bathrooms" json:"bathrooms,omitempty"`
	Floor          *int                        `gorm:"column:floor" json:"floor,omitempty"`
	TotalFloors    *int                        `gorm:"column:total_floors" json:"total_floors,omitempty"`
	YearBuilt      *int                        `gorm:"column:year_built" json:"year_built,omitempty"`
	City           string                      `gorm:"column:city;index" json:"city,omitempty"`
	Neighborhood   string                      `gorm:"column:neighborhood" json:"neighborhood,omitempty"`
	Address        string                      `gorm:"column:address" json:"address,omitempty"`
	Latitude       *float64                    `gorm:"column:latitude" json:"latitude,omitempty"`
	Longitude      *float64                    `gorm:"column:longitude" json:"longitude,omitempty"`
	ImageURLs      datatypes.JSONSlice[string] `gorm:"column:image_urls" json:"image_urls,omitempty"`
	Features       datatypes.JSONMap           `gorm:"column:features" json:"features,omitempty"`
	FirstScrapedAt time.Time                   `gorm:"column:first_scraped_at" json:"first_scraped_at"`
	LastScrapedAt  time.Time                   `gorm:"column:last_scraped_at;index" json:"last_scraped_at"`
	CreatedAt      time.Time                   `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time                   `gorm:"column:updated_at" json:"updated_at"`
}

func (Listing) TableName() string {
	return "listings"
}

// Store is the persistence surface the reconciler works against. The GORM
// repository is the production implementation; tests substitute an in-memory
// one.
type Store interface {
	ByURL(ctx context.Context, url string) (*Listing, error)
	Insert(ctx context.Context, listing *Listing) error
	Update(ctx context.Context, listing *Listing) error
	Touch(ctx context.Context, id int64, at time.Time) error
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Listing{})
}

func (r *Repository) ByURL(ctx context.Context, url string) (*Listing, error) {
	var listing Listing
	err := r.db.WithContext(ctx).Where("url = ?", url).First(&listing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

func (r *Repository) Insert(ctx context.Context, listing *Listing) error {
	now := time.Now().UTC()
	listing.CreatedAt = now
	listing.UpdatedAt = now
	err := r.db.WithContext(ctx).Create(listing).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateURL
	}
	return err
}

func (r *Repository) Update(ctx context.Context, listing *Listing) error {
	listing.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Save(listing).Error
}

// Touch refreshes the last-seen timestamp without rewriting content fields.
func (r *Repository) Touch(ctx context.Context, id int64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&Listing{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_scraped_at": at,
			"updated_at":      at,
		}).Error
}
