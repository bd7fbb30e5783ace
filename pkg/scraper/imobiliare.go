package scraper

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/gimmescrapes/platform/pkg/common/logger"
	"github.com/gimmescrapes/platform/pkg/sources"
)

const (
	imobiliareSourceName = "imobiliare.ro"
	imobiliareMaxPages   = 5
)

var imobiliareIDPattern = regexp.MustCompile(`/anunt/(\w+)`)

// Imobiliare scrapes apartment listings from imobiliare.ro result cards.
type Imobiliare struct {
	fetcher *Fetcher
	opts    Options
}

func NewImobiliare(fetcher *Fetcher, opts Options) *Imobiliare {
	if opts.MaxPages <= 0 {
		opts.MaxPages = imobiliareMaxPages
	}
	return &Imobiliare{fetcher: fetcher, opts: opts}
}

func (s *Imobiliare) SourceName() string {
	return imobiliareSourceName
}

func (s *Imobiliare) Supports(sourceName string) bool {
	return strings.EqualFold(sourceName, imobiliareSourceName)
}

func (s *Imobiliare) Scrape(ctx context.Context, source *sources.Source) ([]RawListing, error) {
	var all []RawListing
	successCount := 0
	errorCount := 0

	for page := 1; page <= s.opts.MaxPages; page++ {
		searchURL := imobiliareSearchURL(source.BaseURL, page)
		doc, err := s.fetcher.Document(ctx, searchURL)
		if err != nil {
			return all, &Error{Source: imobiliareSourceName, Page: page, Message: "fetch failed", Cause: err}
		}

		cards := doc.Find(".box-std-property, .card-property, article[data-item-id]")
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
				return all, &Error{Source: imobiliareSourceName, Page: page, Message: "interrupted", Cause: err}
			}
		}
	}

	logger.Log.WithFields(map[string]interface{}{
		"source":  imobiliareSourceName,
		"success": successCount,
		"errors":  errorCount,
		"total":   len(all),
	}).Info("Scraping completed")

	return all, nil
}

func imobiliareSearchURL(baseURL string, page int) string {
	// Default search: apartments for sale in Bucharest.
	url := baseURL + "/vanzare-apartamente/bucuresti"
	if page > 1 {
		url = fmt.Sprintf("%s?pagina=%d", url, page)
	}
	return url
}

func (s *Imobiliare) extractCard(card *goquery.Selection, baseURL string) *RawListing {
	listing := &RawListing{}

	link := card.Find("a[href*='/anunt/']").First()
	if href, ok := link.Attr("href"); ok {
		listing.URL = absoluteURL(baseURL, href)
		if m := imobiliareIDPattern.FindStringSubmatch(href); m != nil {
			listing.ExternalID = m[1]
		}
	}

	if title := card.Find("h2, .title, .card-title").First(); title.Length() > 0 {
		listing.Title = strings.TrimSpace(title.Text())
	}

	if price := card.Find(".pret, .price, [class*='price']").First(); price.Length() > 0 {
		priceText := price.Text()
		listing.Price = parsePrice(priceText)
		listing.Currency = detectCurrency(priceText, "EUR")
	}

	if desc := card.Find(".description, .descriere").First(); desc.Length() > 0 {
		listing.Description = strings.TrimSpace(desc.Text())
	}

	if location := card.Find(".location, .locatie, [class*='location']").First(); location.Length() > 0 {
		listing.City, listing.Neighborhood, listing.Address = splitLocation(location.Text())
	}

	card.Find(".caract span, [class*='surface'], [class*='rooms']").Each(func(_ int, attr *goquery.Selection) {
		text := strings.ToLower(attr.Text())
		if strings.Contains(text, "mp") || strings.Contains(text, "m²") {
			if surface := parseDecimal(text); surface != nil {
				listing.SurfaceSqm = surface
			}
		}
		if strings.Contains(text, "camere") || strings.Contains(text, "camera") {
			if rooms := parseInt(text); rooms != nil {
				listing.Rooms = rooms
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

	listing.Features = detectFeatures(card.Find(".caract span, .features li"))

	return listing
}
