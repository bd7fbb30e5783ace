package orchestrator

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gimmescrapes/platform/pkg/common/logger"
	"github.com/gimmescrapes/platform/pkg/sources"
)

type seedFile struct {
	Sources []seedSource `yaml:"sources"`
}

type seedSource struct {
	Name                  string `yaml:"name"`
	DisplayName           string `yaml:"display_name"`
	BaseURL               string `yaml:"base_url"`
	Enabled               bool   `yaml:"enabled"`
	ScrapeIntervalMinutes int    `yaml:"scrape_interval_minutes"`
}

// SeedSources loads the source definitions file and upserts each entry by
// name. A missing file is not an error; sources can also be created through
// other administrative channels.
func SeedSources(ctx context.Context, catalog SourceCatalog, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logger.Log.WithField("path", path).Info("No sources file, skipping seed")
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading sources file %s: %w", path, err)
	}

	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing sources file %s: %w", path, err)
	}

	for _, seed := range file.Sources {
		if seed.Name == "" {
			return fmt.Errorf("sources file %s contains an entry without a name", path)
		}
		source := &sources.Source{
			Name:                  seed.Name,
			DisplayName:           seed.DisplayName,
			BaseURL:               seed.BaseURL,
			Enabled:               seed.Enabled,
			ScrapeIntervalMinutes: seed.ScrapeIntervalMinutes,
		}
		if err := catalog.Upsert(ctx, source); err != nil {
			return fmt.Errorf("seeding source %s: %w", seed.Name, err)
		}
		logger.Log.WithFields(map[string]interface{}{
			"source":  seed.Name,
			"enabled": seed.Enabled,
		}).Info("Source seeded")
	}

	return nil
}
