package feed

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/vietwatch/disaster-crawler/internal/domain"
)

// ScrapeFunc extracts raw entries from a source's listing page HTML.
type ScrapeFunc func(pageURL string, doc *goquery.Document) []domain.RawEntry

// scrape runs the routine registered for the source's scrape id (defaulting
// to its domain). Unregistered sources yield no entries rather than an error.
func (f *Fetcher) scrape(ctx context.Context, src domain.Source) ([]domain.RawEntry, error) {
	id := src.ScrapeID
	if id == "" {
		id = src.Domain
	}
	fn, ok := f.scrapers[id]
	if !ok {
		return nil, fmt.Errorf("no scrape routine registered for %q", id)
	}

	pageURL := "https://" + src.Domain + "/"
	if f.scrapeBase != "" {
		pageURL = f.scrapeBase
	}
	body, err := f.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return fn(pageURL, doc), nil
}

// defaultScrapers registers the built-in extraction routines. The selectors
// target each outlet's news-listing markup; anything unlisted falls through
// to an empty result.
func defaultScrapers() map[string]ScrapeFunc {
	return map[string]ScrapeFunc{
		"vnexpress.net": listScraper("article.item-news", "h3.title-news a", "p.description"),
		"tuoitre.vn":    listScraper("div.box-category-item", "a.box-category-link-title", "p.box-category-sapo"),
	}
}

// listScraper builds a ScrapeFunc for the common listing layout of one item
// container with a title link and a sapo/description paragraph.
func listScraper(itemSel, linkSel, summarySel string) ScrapeFunc {
	return func(pageURL string, doc *goquery.Document) []domain.RawEntry {
		base, err := url.Parse(pageURL)
		if err != nil {
			return nil
		}

		var entries []domain.RawEntry
		doc.Find(itemSel).Each(func(_ int, s *goquery.Selection) {
			link := s.Find(linkSel).First()
			href, ok := link.Attr("href")
			if !ok || href == "" {
				return
			}
			ref, err := url.Parse(href)
			if err != nil {
				return
			}
			title := strings.TrimSpace(link.Text())
			if title == "" {
				title = strings.TrimSpace(link.AttrOr("title", ""))
			}
			if title == "" {
				return
			}
			entry := domain.RawEntry{
				URL:     base.ResolveReference(ref).String(),
				Title:   title,
				Summary: strings.TrimSpace(s.Find(summarySel).First().Text()),
			}
			if img, ok := s.Find("img").First().Attr("src"); ok {
				entry.ImageURL = img
			}
			entries = append(entries, entry)
		})
		return entries
	}
}
