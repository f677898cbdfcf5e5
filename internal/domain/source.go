package domain

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
)

// FallbackKind names one rung of the fetch ladder tried after the primary feed.
type FallbackKind string

const (
	// FallbackSearchFeed queries the aggregated news-search feed scoped to the
	// source's domain.
	FallbackSearchFeed FallbackKind = "aggregator-search-feed"
	// FallbackScrape runs the source-specific HTML extraction routine.
	FallbackScrape FallbackKind = "html-scrape"
)

// Source describes one catalog entry. The catalog is read-only after startup.
type Source struct {
	Name           string         `json:"name"`
	Domain         string         `json:"domain"`
	PrimaryFeedURL string         `json:"primary_feed_url"`
	Fallbacks      []FallbackKind `json:"fallbacks"`
	// ScrapeID selects a registered scrape routine; defaults to Domain.
	ScrapeID string `json:"scrape_id,omitempty"`
}

//go:embed sources.json
var defaultCatalog []byte

// LoadSources reads the source catalog from path, or the embedded default
// catalog when path is empty.
func LoadSources(path string) ([]Source, error) {
	data := defaultCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read source catalog: %w", err)
		}
		data = b
	}

	var sources []Source
	if err := json.Unmarshal(data, &sources); err != nil {
		return nil, fmt.Errorf("parse source catalog: %w", err)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("source catalog is empty")
	}
	for i, s := range sources {
		if err := validateSource(s); err != nil {
			return nil, fmt.Errorf("source catalog entry %d: %w", i, err)
		}
	}
	return sources, nil
}

func validateSource(s Source) error {
	if s.Name == "" {
		return fmt.Errorf("missing name")
	}
	if s.Domain == "" {
		return fmt.Errorf("%s: missing domain", s.Name)
	}
	for _, f := range s.Fallbacks {
		switch f {
		case FallbackSearchFeed, FallbackScrape:
		default:
			return fmt.Errorf("%s: unknown fallback %q", s.Name, f)
		}
	}
	if s.PrimaryFeedURL == "" && len(s.Fallbacks) == 0 {
		return fmt.Errorf("%s: no feed and no fallbacks", s.Name)
	}
	return nil
}
