package scraper

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/gimmescrapes/platform/pkg/common/logger"
	"github.com/gimmescrapes/platform/pkg/sources"
)

const (
	olxSourceName = "olx.ro"
	olxMaxPages   = 5
)

// Olx scrapes apartment listings from OLX Romania search result cards.
type Olx struct {
	fetcher *Fetcher
	opts    Options
}

func NewOlx(fetcher *Fetcher, opts Options) *Olx {
	if opts.MaxPages <= 0 {
		opts.MaxPages = olxMaxPages
	}
	return &Olx{fetcher: fetcher, opts: opts}
}

func (s *Olx) SourceName() string {
	return olxSourceName
}

func (s *Olx) Supports(sourceName string) bool {
	return strings.EqualFold(sourceName, olxSourceName)
}

// Scrape walks result pages in ascending order up to the page cap, stopping
// early when a page comes back empty. On failure the listings collected so
// far are returned alongside the error so the caller can preserve partial
// progress.
func (s *Olx) Scrape(ctx context.Context, source *sources.Source) ([]RawListing, error) {
	var all []RawListing
	successCount := 0
	errorCount := 0

	for page := 1; page <= s.opts.MaxPages; page++ {
		searchURL := olxSearchURL(source.BaseURL, page)
		doc, err := s.fetcher.Document(ctx, searchURL)
		if err != nil {
			return all, &Error{Source: olxSourceName, Page: page, Message: "fetch failed", Cause: err}
		}

		cards := doc.Find("[data-cy='l-card'], .offer-wrapper, div[data-id]")
		if cards.Length() == 0 {
			logger.Log.WithField("page", page).Warn("No listings found, stopping pagination")
			break
		}

		cards.Each(func(_ int, card *goquery.Selection) {
			listing := s.extractCard(card, source.BaseURL)
			if listing == nil || listing.URL == "" {
				errorCount++
				return
			}
			all = append(all, *listing)
			successCount++
		})

		if page < s.opts.MaxPages {
			if err := wait(ctx, s.opts.Delay); err != nil {
				return all, &Error{Source: olxSourceName, Page: page, Message: "interrupted", Cause: err}
			}
		}
	}

	logger.Log.WithFields(map[string]interface{}{
		"source":  olxSourceName,
		"success": successCount,
		"errors":  errorCount,
		"total":   len(all),
	}).Info("Scraping completed")

	return all, nil
}

func olxSearchURL(baseURL string, page int) string {
	// Default search: apartments for sale in Bucharest.
	url := baseURL + "/d/imobiliare/apartamente-garsoniere-de-vanzare/bucuresti/"
	if page > 1 {
		url = fmt.Sprintf("%s?page=%d", url, page)
	}
	return url
}

func (s *Olx) extractCard(card *goquery.Selection, baseURL string) *RawListing {
	listing := &RawListing{}

	link := card.Find("a[href*='/oferta/'], a[href*='/d/oferta/']").First()
	if href, ok := link.Attr("href"); ok {
		listing.URL = absoluteURL(baseURL, href)

		externalID, _ := card.Attr("data-id")
		if externalID == "" {
			externalID = extractOlxExternalID(href)
		}
		listing.ExternalID = externalID
	}

	if title := card.Find("h6, .title, [data-cy='ad-card-title']").First(); title.Length() > 0 {
		listing.Title = strings.TrimSpace(title.Text())
	}

	if price := card.Find("p[data-testid='ad-price'], .price, [class*='price']").First(); price.Length() > 0 {
		priceText := price.Text()
		listing.Price = parsePrice(priceText)
		listing.Currency = detectCurrency(priceText, "RON")
	}

	if location := card.Find("p[data-testid='location-date'], .bottom-cell span, [class*='location']").First(); location.Length() > 0 {
		listing.City, listing.Neighborhood, listing.Address = splitLocation(location.Text())
	}

	attributes := card.Find("span[class*='param'], .params span, li")
	attributes.Each(func(_ int, attr *goquery.Selection) {
		text := strings.ToLower(attr.Text())

		if strings.Contains(text, "camera") || strings.Contains(text, "camere") {
			if rooms := parseInt(text); rooms != nil {
				listing.Rooms = rooms
			}
		}
		if strings.Contains(text, "m²") || strings.Contains(text, "mp") {
			if surface := parseDecimal(text); surface != nil {
				listing.SurfaceSqm = surface
			}
		}
	})

	card.Find("img[src], img[data-src]").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		if src == "" {
			src, _ = img.Attr("data-src")
		}
		if src != "" && !strings.Contains(src, "placeholder") && !strings.Contains(src, "no-image") {
			listing.ImageURLs = append(listing.ImageURLs, src)
		}
	})

	listing.Features = detectFeatures(attributes)

	return listing
}

// detectFeatures flags amenities by keyword on the card's attribute text.
func detectFeatures(attributes *goquery.Selection) map[string]interface{} {
	features := make(map[string]interface{})
	attributes.Each(func(_ int, attr *goquery.Selection) {
		text := strings.ToLower(attr.Text())
		if strings.Contains(text, "balcon") {
			features["balcony"] = true
		}
		if strings.Contains(text, "parcare") {
			features["parking"] = true
		}
		if strings.Contains(text, "lift") || strings.Contains(text, "ascensor") {
			features["elevator"] = true
		}
		if strings.Contains(text, "centrala") {
			features["central_heating"] = true
		}
		if strings.Contains(text, "mobilat") {
			features["furnished"] = true
		}
	})
	return features
}
