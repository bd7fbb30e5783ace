package scraper

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	nonNumeric        = regexp.MustCompile(`[^0-9.,]`)
	digitsOnly        = regexp.MustCompile(`[^0-9]`)
	olxOfferIDPattern = regexp.MustCompile(`/oferta/[^/]+-ID([A-Za-z0-9]+)\.html`)
	olxSlugPattern    = regexp.MustCompile(`/d/oferta/([A-Za-z0-9-]+)`)
)

// parsePrice extracts an amount from a price label such as "85 000 €" or
// "420.000 lei". Thousands separators (both comma and point) are stripped;
// amounts on the target sites are whole units. Returns nil when nothing
// parseable remains.
func parsePrice(text string) *float64 {
	clean := nonNumeric.ReplaceAllString(text, "")
	clean = strings.NewReplacer(",", "", ".", "").Replace(clean)
	if clean == "" {
		return nil
	}
	value, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return nil
	}
	return &value
}

// parseDecimal extracts a decimal measurement such as "54,5 m²", tolerating
// the locale's decimal comma. A field that fails to parse is absent, not an
// extraction failure.
func parseDecimal(text string) *float64 {
	clean := nonNumeric.ReplaceAllString(text, "")
	clean = strings.ReplaceAll(clean, ",", ".")
	if clean == "" {
		return nil
	}
	value, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return nil
	}
	return &value
}

// parseInt extracts the digits from text such as "3 camere".
func parseInt(text string) *int {
	clean := digitsOnly.ReplaceAllString(text, "")
	if clean == "" {
		return nil
	}
	value, err := strconv.Atoi(clean)
	if err != nil {
		return nil
	}
	return &value
}

// detectCurrency reads the currency out of a price label. The Romanian sites
// quote in EUR or RON; the fallback differs per site.
func detectCurrency(text, fallback string) string {
	lower := strings.ToLower(text)
	if strings.Contains(text, "€") || strings.Contains(lower, "eur") {
		return "EUR"
	}
	if strings.Contains(lower, "lei") || strings.Contains(lower, "ron") {
		return "RON"
	}
	return fallback
}

// splitLocation breaks a "City, Neighborhood" label into its parts, keeping
// the full text as the address.
func splitLocation(text string) (city, neighborhood, address string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", "", ""
	}
	parts := strings.Split(text, ",")
	city = strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		neighborhood = strings.TrimSpace(parts[1])
	}
	return city, neighborhood, text
}

// extractOlxExternalID pulls the listing id out of an OLX offer URL.
func extractOlxExternalID(url string) string {
	if m := olxOfferIDPattern.FindStringSubmatch(url); m != nil {
		return m[1]
	}
	if m := olxSlugPattern.FindStringSubmatch(url); m != nil {
		return m[1]
	}
	return ""
}

// absoluteURL resolves a possibly relative href against the source base URL.
func absoluteURL(baseURL, href string) string {
	if href == "" || strings.HasPrefix(href, "http") {
		return href
	}
	return strings.TrimSuffix(baseURL, "/") + "/" + strings.TrimPrefix(href, "/")
}
