package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gimmescrapes/platform/pkg/common/logger"
	"github.com/gimmescrapes/platform/pkg/sources"
)

const (
	storiaSourceName = "storia.ro"
	storiaMaxPages   = 30
)

// Storia scrapes storia.ro. The site is a Next.js app, so instead of walking
// the rendered HTML the strategy reads the JSON payload embedded in the
// __NEXT_DATA__ script tag of each search result page.
type Storia struct {
	fetcher *Fetcher
	opts    Options
}

func NewStoria(fetcher *Fetcher, opts Options) *Storia {
	if opts.MaxPages <= 0 {
		opts.MaxPages = storiaMaxPages
	}
	return &Storia{fetcher: fetcher, opts: opts}
}

func (s *Storia) SourceName() string {
	return storiaSourceName
}

func (s *Storia) Supports(sourceName string) bool {
	return strings.EqualFold(sourceName, storiaSourceName)
}

// storiaItem mirrors the fields used from the search result payload at
// props.pageProps.data.searchAds.items.
type storiaItem struct {
	ID         int64  `json:"id"`
	Slug       string `json:"slug"`
	Title      string `json:"title"`
	TotalPrice *struct {
		Value    float64 `json:"value"`
		Currency string  `json:"currency"`
	} `json:"totalPrice"`
	AreaInSquareMeters  float64 `json:"areaInSquareMeters"`
	PricePerSquareMeter *struct {
		Value float64 `json:"value"`
	} `json:"pricePerSquareMeter"`
	RoomsNumber string `json:"roomsNumber"`
	FloorNumber string `json:"floorNumber"`
	IsPromoted  bool   `json:"isPromoted"`
	Location    *struct {
		Address struct {
			City struct {
				Name string `json:"name"`
			} `json:"city"`
		} `json:"address"`
		ReverseGeocoding struct {
			Locations []struct {
				Name          string `json:"name"`
				LocationLevel string `json:"locationLevel"`
			} `json:"locations"`
		} `json:"reverseGeocoding"`
	} `json:"location"`
	Images []struct {
		Large string `json:"large"`
	} `json:"images"`
}

type storiaNextData struct {
	Props struct {
		PageProps struct {
			Data struct {
				SearchAds struct {
					Items []json.RawMessage `json:"items"`
				} `json:"searchAds"`
			} `json:"data"`
		} `json:"pageProps"`
	} `json:"props"`
}

func (s *Storia) Scrape(ctx context.Context, source *sources.Source) ([]RawListing, error) {
	var all []RawListing
	successCount := 0
	errorCount := 0

	for page := 1; page <= s.opts.MaxPages; page++ {
		searchURL := storiaSearchURL(source.BaseURL, page)
		doc, err := s.fetcher.Document(ctx, searchURL)
		if err != nil {
			return all, &Error{Source: storiaSourceName, Page: page, Message: "fetch failed", Cause: err}
		}

		script := doc.Find("script#__NEXT_DATA__").First()
		if script.Length() == 0 {
			logger.Log.WithField("page", page).Warn("No __NEXT_DATA__ script tag, stopping pagination")
			break
		}

		var nextData storiaNextData
		if err := json.Unmarshal([]byte(script.Text()), &nextData); err != nil {
			return all, &Error{Source: storiaSourceName, Page: page, Message: "malformed __NEXT_DATA__", Cause: err}
		}

		items := nextData.Props.PageProps.Data.SearchAds.Items
		if len(items) == 0 {
			logger.Log.WithField("page", page).Warn("Empty items array, stopping pagination")
			break
		}

		for _, raw := range items {
			var item storiaItem
			if err := json.Unmarshal(raw, &item); err != nil {
				errorCount++
				logger.Log.WithError(err).Debug("Skipping malformed search item")
				continue
			}
			listing := storiaListing(&item, source.BaseURL)
			if listing == nil || listing.URL == "" {
				errorCount++
				continue
			}
			all = append(all, *listing)
			successCount++
		}

		if page < s.opts.MaxPages {
			if err := wait(ctx, s.opts.Delay); err != nil {
				return all, &Error{Source: storiaSourceName, Page: page, Message: "interrupted", Cause: err}
			}
		}
	}

	logger.Log.WithFields(map[string]interface{}{
		"source":  storiaSourceName,
		"success": successCount,
		"errors":  errorCount,
		"total":   len(all),
	}).Info("Scraping completed")

	return all, nil
}

func storiaSearchURL(baseURL string, page int) string {
	// Default search: apartments for sale in Cluj-Napoca, Marasti.
	url := baseURL + "/ro/rezultate/vanzare/apartament/cluj/cluj--napoca/marasti"
	if page > 1 {
		url = fmt.Sprintf("%s?page=%d", url, page)
	}
	return url
}

func storiaListing(item *storiaItem, baseURL string) *RawListing {
	listing := &RawListing{}

	if item.ID > 0 {
		listing.ExternalID = strconv.FormatInt(item.ID, 10)
	}
	if item.Slug != "" {
		listing.URL = baseURL + "/ro/oferta/" + item.Slug
	}
	listing.Title = item.Title

	if item.TotalPrice != nil {
		price := item.TotalPrice.Value
		listing.Price = &price
		listing.Currency = item.TotalPrice.Currency
		if listing.Currency == "" {
			listing.Currency = "EUR"
		}
	}
	if item.AreaInSquareMeters > 0 {
		area := item.AreaInSquareMeters
		listing.SurfaceSqm = &area
	}
	if item.PricePerSquareMeter != nil && item.PricePerSquareMeter.Value > 0 {
		pricePerSqm := item.PricePerSquareMeter.Value
		listing.PricePerSqm = &pricePerSqm
	}

	listing.Rooms = storiaRooms(item.RoomsNumber)
	listing.Floor = storiaFloor(item.FloorNumber)

	if item.Location != nil {
		listing.City = item.Location.Address.City.Name

		var addressParts []string
		for _, loc := range item.Location.ReverseGeocoding.Locations {
			if loc.Name == "" {
				continue
			}
			if listing.Neighborhood == "" && loc.LocationLevel == "district" {
				listing.Neighborhood = loc.Name
			}
			addressParts = append(addressParts, loc.Name)
		}
		listing.Address = strings.Join(addressParts, ", ")
	}

	for _, img := range item.Images {
		if img.Large != "" {
			listing.ImageURLs = append(listing.ImageURLs, img.Large)
		}
	}

	features := make(map[string]interface{})
	if item.IsPromoted {
		features["promoted"] = true
	}
	listing.Features = features

	return listing
}

// storiaRooms maps the payload's room-count enum to a number.
func storiaRooms(value string) *int {
	mapping := map[string]int{
		"ONE": 1, "TWO": 2, "THREE": 3, "FOUR": 4, "FIVE": 5,
		"SIX": 6, "SEVEN": 7, "EIGHT": 8, "NINE": 9, "TEN_OR_MORE": 10,
	}
	if rooms, ok := mapping[value]; ok {
		return &rooms
	}
	if value != "" {
		logger.Log.WithField("roomsNumber", value).Warn("Unknown rooms value")
	}
	return nil
}

// storiaFloor maps the payload's floor enum to a number; basements and
// cellars collapse to -1, anything above the tenth floor to 11.
func storiaFloor(value string) *int {
	mapping := map[string]int{
		"BASEMENT": -1, "CELLAR": -1, "GROUND": 0,
		"FIRST": 1, "SECOND": 2, "THIRD": 3, "FOURTH": 4, "FIFTH": 5,
		"SIXTH": 6, "SEVENTH": 7, "EIGHTH": 8, "NINTH": 9, "TENTH": 10,
		"ABOVE_TENTH": 11,
	}
	if floor, ok := mapping[value]; ok {
		return &floor
	}
	if value != "" {
		logger.Log.WithField("floorNumber", value).Warn("Unknown floor value")
	}
	return nil
}
