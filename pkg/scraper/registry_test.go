package scraper

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/gimmescrapes/platform/pkg/common/logger"
	"github.com/gimmescrapes/platform/pkg/sources"
)

func TestMain(m *testing.M) {
	logger.Init("test")
	os.Exit(m.Run())
}

type stubStrategy struct {
	name string
}

func (s *stubStrategy) Scrape(context.Context, *sources.Source) ([]RawListing, error) {
	return nil, nil
}

func (s *stubStrategy) Supports(sourceName string) bool {
	return strings.EqualFold(sourceName, s.name)
}

func (s *stubStrategy) SourceName() string {
	return s.name
}

func TestRegistryLookup(t *testing.T) {
	registry, err := NewRegistry(&stubStrategy{name: "olx.ro"}, &stubStrategy{name: "storia.ro"})
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}

	strategy, err := registry.Lookup("olx.ro")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if strategy.SourceName() != "olx.ro" {
		t.Fatalf("wrong strategy: %s", strategy.SourceName())
	}
}

func TestRegistryLookupIsCaseInsensitive(t *testing.T) {
	registry, err := NewRegistry(&stubStrategy{name: "olx.ro"})
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}

	if _, err := registry.Lookup("OLX.RO"); err != nil {
		t.Fatalf("expected case-insensitive match, got %v", err)
	}
}

func TestRegistryLookupUnknownSource(t *testing.T) {
	registry, err := NewRegistry(&stubStrategy{name: "olx.ro"})
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}

	_, err = registry.Lookup("unknown.ro")
	if !errors.Is(err, ErrNoScraper) {
		t.Fatalf("expected ErrNoScraper, got %v", err)
	}
}

func TestRegistryNames(t *testing.T) {
	registry, err := NewRegistry(&stubStrategy{name: "olx.ro"}, &stubStrategy{name: "storia.ro"})
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}

	names := registry.Names()
	if len(names) != 2 {
		t.Fatalf("expected 2 names, got %v", names)
	}
	seen := map[string]bool{}
	for _, name := range names {
		seen[name] = true
	}
	if !seen["olx.ro"] || !seen["storia.ro"] {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	_, err := NewRegistry(&stubStrategy{name: "olx.ro"}, &stubStrategy{name: "OLX.ro"})
	if err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}
