package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

const seedFixture = `sources:
  - name: olx.ro
    display_name: OLX Romania
    base_url: https://www.olx.ro
    enabled: true
    scrape_interval_minutes: 60
  - name: storia.ro
    display_name: Storia
    base_url: https://www.storia.ro
    enabled: false
    scrape_interval_minutes: 120
`

func TestSeedSourcesUpsertsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	if err := os.WriteFile(path, []byte(seedFixture), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	catalog := &fakeCatalog{}
	if err := SeedSources(context.Background(), catalog, path); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	if len(catalog.upserted) != 2 {
		t.Fatalf("expected 2 upserts, got %d", len(catalog.upserted))
	}
	first := catalog.upserted[0]
	if first.Name != "olx.ro" || first.BaseURL != "https://www.olx.ro" || !first.Enabled {
		t.Fatalf("unexpected seeded source: %+v", first)
	}
	if first.ScrapeIntervalMinutes != 60 {
		t.Fatalf("unexpected interval: %d", first.ScrapeIntervalMinutes)
	}
	if catalog.upserted[1].Enabled {
		t.Fatal("expected the second source to stay disabled")
	}
}

func TestSeedSourcesMissingFileIsNotAnError(t *testing.T) {
	catalog := &fakeCatalog{}
	if err := SeedSources(context.Background(), catalog, filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatalf("missing file must be skipped, got %v", err)
	}
	if len(catalog.upserted) != 0 {
		t.Fatal("nothing may be upserted without a file")
	}
}

func TestSeedSourcesRejectsNamelessEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	if err := os.WriteFile(path, []byte("sources:\n  - base_url: https://x\n"), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	if err := SeedSources(context.Background(), &fakeCatalog{}, path); err == nil {
		t.Fatal("expected an error for an entry without a name")
	}
}
