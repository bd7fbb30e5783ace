package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gimmescrapes/platform/pkg/common/logger"
	"github.com/gimmescrapes/platform/pkg/sources"
)

// ErrNoScraper indicates no registered strategy handles a source name. This
// is a configuration error: redelivering the message cannot fix it, operators
// must register a scraper or disable the source and replay from the DLQ.
var ErrNoScraper = errors.New("no scraper registered for source")

// Error is a failed extraction. Extraction failures are transient by default
// and surface through the bus retry policy.
type Error struct {
	Source  string
	Page    int
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("scraping %s page %d: %s: %v", e.Source, e.Page, e.Message, e.Cause)
	}
	if e.Cause != nil {
		return fmt.Sprintf("scraping %s: %s: %v", e.Source, e.Message, e.Cause)
	}
	return fmt.Sprintf("scraping %s: %s", e.Source, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// RawListing is one extracted record before normalization. URL is the only
// required field; records without a resolvable URL are discarded before
// reconciliation. Optional numerics are pointers so a field that fails to
// parse stays absent instead of defaulting to zero.
type RawListing struct {
	ExternalID   string
	URL          string
	Title        string
	Description  string
	Price        *float64
	Currency     string
	SurfaceSqm   *float64
	PricePerSqm  *float64
	Rooms        *int
	Bathrooms    *int
	Floor        *int
	TotalFloors  *int
	YearBuilt    *int
	City         string
	Neighborhood string
	Address      string
	Latitude     *float64
	Longitude    *float64
	ImageURLs    []string
	Features     map[string]interface{}
}

// Strategy extracts listings for one source. Implementations own request
// pacing, the hard page cap, per-record error isolation, and end-of-results
// detection.
type Strategy interface {
	Scrape(ctx context.Context, source *sources.Source) ([]RawListing, error)
	Supports(sourceName string) bool
	SourceName() string
}

// Registry is a static name-to-strategy table built at startup. Dispatch is a
// pure lookup with no side effects.
type Registry struct {
	byName map[string]Strategy
}

// NewRegistry indexes strategies by canonical source name. Two strategies
// claiming the same name is a configuration error and rejected outright.
func NewRegistry(strategies ...Strategy) (*Registry, error) {
	byName := make(map[string]Strategy, len(strategies))
	for _, s := range strategies {
		key := strings.ToLower(s.SourceName())
		if _, exists := byName[key]; exists {
			return nil, fmt.Errorf("duplicate scraper registered for source %q", s.SourceName())
		}
		byName[key] = s
	}
	return &Registry{byName: byName}, nil
}

// Lookup selects the strategy for a source name, matching case-insensitively
// on the canonical name.
func (r *Registry) Lookup(sourceName string) (Strategy, error) {
	strategy, ok := r.byName[strings.ToLower(sourceName)]
	if !ok {
		logger.Log.WithField("source", sourceName).Error("No scraper registered")
		return nil, fmt.Errorf("%w: %s", ErrNoScraper, sourceName)
	}
	return strategy, nil
}

// Names lists the registered canonical source names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for _, s := range r.byName {
		names = append(names, s.SourceName())
	}
	return names
}
