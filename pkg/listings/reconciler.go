package listings

import (
	"context"
	"errors"
	"reflect"
	"time"

	"github.com/gimmescrapes/platform/pkg/common/logger"
)

// Result summarizes one reconciliation batch. Total always equals
// New + Updated + Skipped.
type Result struct {
	New     int `json:"new"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

func (r Result) Total() int {
	return r.New + r.Updated + r.Skipped
}

// Reconciler merges freshly extracted candidates into persisted listings.
type Reconciler struct {
	store Store
}

func NewReconciler(store Store) *Reconciler {
	return &Reconciler{store: store}
}

// Reconcile upserts each candidate by URL in extraction order. A candidate
// with an empty URL is skipped; a candidate matching an existing listing
// either updates the changed fields or, when nothing changed, only refreshes
// the last-seen timestamp. A failure on one candidate never aborts the batch.
func (r *Reconciler) Reconcile(ctx context.Context, candidates []Listing) Result {
	var result Result

	for i := range candidates {
		candidate := &candidates[i]

		if candidate.URL == "" {
			logger.Log.Warn("Skipping candidate with empty URL")
			result.Skipped++
			continue
		}

		outcome, err := r.upsert(ctx, candidate)
		if err != nil {
			logger.Log.WithError(err).WithField("url", candidate.URL).
				Error("Failed to upsert listing")
			result.Skipped++
			continue
		}

		switch outcome {
		case outcomeNew:
			result.New++
		case outcomeUpdated:
			result.Updated++
		case outcomeUnchanged:
			result.Skipped++
		}
	}

	logger.Log.WithFields(map[string]interface{}{
		"new":     result.New,
		"updated": result.Updated,
		"skipped": result.Skipped,
	}).Info("Reconciliation completed")

	return result
}

type outcome int

const (
	outcomeNew outcome = iota
	outcomeUpdated
	outcomeUnchanged
)

func (r *Reconciler) upsert(ctx context.Context, candidate *Listing) (outcome, error) {
	existing, err := r.store.ByURL(ctx, candidate.URL)
	if errors.Is(err, ErrNotFound) {
		insertErr := r.store.Insert(ctx, candidate)
		if insertErr == nil {
			return outcomeNew, nil
		}
		if !errors.Is(insertErr, ErrDuplicateURL) {
			return outcomeUnchanged, insertErr
		}
		// Another job inserted this URL between our lookup and insert.
		// Re-read and fall through to the update path.
		existing, err = r.store.ByURL(ctx, candidate.URL)
	}
	if err != nil {
		return outcomeUnchanged, err
	}

	now := time.Now().UTC()
	if !merge(existing, candidate) {
		if err := r.store.Touch(ctx, existing.ID, now); err != nil {
			return outcomeUnchanged, err
		}
		return outcomeUnchanged, nil
	}

	existing.LastScrapedAt = now
	if err := r.store.Update(ctx, existing); err != nil {
		return outcomeUnchanged, err
	}
	return outcomeUpdated, nil
}

// merge applies the candidate's non-null fields over the existing listing and
// reports whether anything changed. A null or empty candidate field never
// overwrites known data, so partial extractions cannot erase history.
func merge(existing, candidate *Listing) bool {
	changed := false

	changed = mergeString(&existing.Title, candidate.Title) || changed
	changed = mergeString(&existing.Description, candidate.Description) || changed
	changed = mergeString(&existing.Currency, candidate.Currency) || changed
	changed = mergeString(&existing.City, candidate.City) || changed
	changed = mergeString(&existing.Neighborhood, candidate.Neighborhood) || changed
	changed = mergeString(&existing.Address, candidate.Address) || changed
	changed = mergeString(&existing.ExternalID, candidate.ExternalID) || changed

	changed = mergeFloat(&existing.Price, candidate.Price) || changed
	changed = mergeFloat(&existing.SurfaceSqm, candidate.SurfaceSqm) || changed
	changed = mergeFloat(&existing.PricePerSqm, candidate.PricePerSqm) || changed
	changed = mergeFloat(&existing.Latitude, candidate.Latitude) || changed
	changed = mergeFloat(&existing.Longitude, candidate.Longitude) || changed

	changed = mergeInt(&existing.Rooms, candidate.Rooms) || changed
	changed = mergeInt(&existing.Bathrooms, candidate.Bathrooms) || changed
	changed = mergeInt(&existing.Floor, candidate.Floor) || changed
	changed = mergeInt(&existing.TotalFloors, candidate.TotalFloors) || changed
	changed = mergeInt(&existing.YearBuilt, candidate.YearBuilt) || changed

	if candidate.ImageURLs != nil && !reflect.DeepEqual(existing.ImageURLs, candidate.ImageURLs) {
		existing.ImageURLs = candidate.ImageURLs
		changed = true
	}
	if candidate.Features != nil && !reflect.DeepEqual(existing.Features, candidate.Features) {
		existing.Features = candidate.Features
		changed = true
	}

	return changed
}

func mergeString(dst *string, src string) bool {
	if src != "" && src != *dst {
		*dst = src
		return true
	}
	return false
}

func mergeFloat(dst **float64, src *float64) bool {
	if src != nil && (*dst == nil || **dst != *src) {
		*dst = src
		return true
	}
	return false
}

func mergeInt(dst **int, src *int) bool {
	if src != nil && (*dst == nil || **dst != *src) {
		*dst = src
		return true
	}
	return false
}
