// Package feed retrieves raw entries from news sources through a fallback
// ladder: primary RSS feed, then an aggregated news-search feed scoped to the
// source's domain, then a source-specific HTML scrape.
package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/vietwatch/disaster-crawler/internal/domain"
)

// StatusRecorder receives the outcome of every fetch attempt. The store's
// crawler-status table implements it.
type StatusRecorder interface {
	RecordFetchAttempt(ctx context.Context, source string, att domain.FetchAttempt)
}

// Options configures a Fetcher.
type Options struct {
	UserAgent string
	Timeout   time.Duration
	// ProxyPool, when non-empty, is sampled uniformly at random per request.
	ProxyPool []string
	// SearchFeedBase overrides the aggregator feed endpoint (tests).
	SearchFeedBase string
	// ScrapeBase overrides the scrape page URL (tests).
	ScrapeBase string
}

const defaultSearchFeedBase = "https://news.google.com/rss/search"

// maxBodyBytes caps how much of a response body is read. Listing pages and
// feeds are well under this; anything larger is a misbehaving source.
const maxBodyBytes = 5 << 20

// Fetcher retrieves entries for sources. It never returns an error to the
// caller: an exhausted ladder yields an empty slice and a recorded failure.
type Fetcher struct {
	client         *http.Client
	userAgent      string
	searchFeedBase string
	scrapeBase     string
	recorder       StatusRecorder
	logger         *slog.Logger

	scrapers map[string]ScrapeFunc

	mu        sync.Mutex
	rng       *rand.Rand
	proxyPool []*url.URL

	// sleep is swapped out in tests to skip the jitter delay.
	sleep func(ctx context.Context, d time.Duration)
}

// NewFetcher builds a Fetcher with the default scrape registry.
func NewFetcher(opts Options, recorder StatusRecorder, logger *slog.Logger) (*Fetcher, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.SearchFeedBase == "" {
		opts.SearchFeedBase = defaultSearchFeedBase
	}

	f := &Fetcher{
		userAgent:      opts.UserAgent,
		searchFeedBase: opts.SearchFeedBase,
		scrapeBase:     opts.ScrapeBase,
		recorder:       recorder,
		logger:         logger,
		scrapers:       defaultScrapers(),
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:          sleepWithContext,
	}

	for _, p := range opts.ProxyPool {
		u, err := url.Parse(p)
		if err != nil {
			return nil, fmt.Errorf("parse proxy %q: %w", p, err)
		}
		f.proxyPool = append(f.proxyPool, u)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if len(f.proxyPool) > 0 {
		transport.Proxy = func(*http.Request) (*url.URL, error) {
			return f.pickProxy(), nil
		}
	}
	f.client = &http.Client{Timeout: opts.Timeout, Transport: transport}

	return f, nil
}

// RegisterScraper adds or replaces the scrape routine for an id.
func (f *Fetcher) RegisterScraper(id string, fn ScrapeFunc) {
	f.scrapers[id] = fn
}

// Fetch walks the source's ladder and returns the first non-empty entry set.
// Every attempt, success or failure, is reported to the status recorder.
func (f *Fetcher) Fetch(ctx context.Context, src domain.Source) []domain.RawEntry {
	for _, att := range f.ladder(src) {
		entries, a := att.run(ctx)
		if f.recorder != nil {
			f.recorder.RecordFetchAttempt(ctx, src.Name, a)
		}
		if a.Err == nil && len(entries) > 0 {
			return entries
		}
		if a.Err != nil {
			f.logger.Warn("fetch attempt failed",
				"source", src.Name, "feed_url", a.FeedURL, "error", a.Err)
		}
	}
	return nil
}

type attempt struct {
	feedURL string
	fn      func(ctx context.Context) ([]domain.RawEntry, error)
}

func (a attempt) run(ctx context.Context) ([]domain.RawEntry, domain.FetchAttempt) {
	start := time.Now()
	entries, err := a.fn(ctx)
	if err == nil && len(entries) == 0 {
		err = fmt.Errorf("feed returned no entries")
	}
	return entries, domain.FetchAttempt{FeedURL: a.feedURL, Latency: time.Since(start), Err: err}
}

// ladder builds the ordered attempt list: primary feed first, then the
// source's declared fallbacks.
func (f *Fetcher) ladder(src domain.Source) []attempt {
	var out []attempt
	if src.PrimaryFeedURL != "" {
		u := src.PrimaryFeedURL
		out = append(out, attempt{feedURL: u, fn: func(ctx context.Context) ([]domain.RawEntry, error) {
			return f.fetchFeed(ctx, u)
		}})
	}
	for _, fb := range src.Fallbacks {
		switch fb {
		case domain.FallbackSearchFeed:
			u := f.searchFeedURL(src.Domain)
			out = append(out, attempt{feedURL: u, fn: func(ctx context.Context) ([]domain.RawEntry, error) {
				return f.fetchFeed(ctx, u)
			}})
		case domain.FallbackScrape:
			out = append(out, attempt{feedURL: "scrape:" + src.Domain, fn: func(ctx context.Context) ([]domain.RawEntry, error) {
				return f.scrape(ctx, src)
			}})
		}
	}
	return out
}

// fetchFeed GETs a feed URL and parses it as RSS/Atom.
func (f *Fetcher) fetchFeed(ctx context.Context, feedURL string) ([]domain.RawEntry, error) {
	body, err := f.get(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	entries := make([]domain.RawEntry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item.Link == "" {
			continue
		}
		entries = append(entries, entryFromItem(item))
	}
	return entries, nil
}

func entryFromItem(item *gofeed.Item) domain.RawEntry {
	e := domain.RawEntry{
		URL:     item.Link,
		Title:   item.Title,
		Summary: item.Description,
	}
	switch {
	case item.PublishedParsed != nil:
		e.Published = item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		e.Published = item.UpdatedParsed.UTC()
	}
	if item.Image != nil {
		e.ImageURL = item.Image.URL
	} else {
		for _, enc := range item.Enclosures {
			if enc != nil && enc.URL != "" {
				e.ImageURL = enc.URL
				break
			}
		}
	}
	return e
}

// get performs one outbound request with jitter, UA header, and the
// configured deadline.
func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	// Jitter 0.5-2.0s to avoid synchronized bursts against the sources.
	f.sleep(ctx, f.jitter())
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request %s: status %d", rawURL, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
}

// searchFeedURL builds the aggregator query for a source's domain.
func (f *Fetcher) searchFeedURL(dom string) string {
	params := url.Values{
		"q":    {fmt.Sprintf("site:%s when:1d", dom)},
		"hl":   {"vi"},
		"gl":   {"VN"},
		"ceid": {"VN:vi"},
	}
	return f.searchFeedBase + "?" + params.Encode()
}

func (f *Fetcher) jitter() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return 500*time.Millisecond + time.Duration(f.rng.Int63n(int64(1500*time.Millisecond)))
}

func (f *Fetcher) pickProxy() *url.URL {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.proxyPool[f.rng.Intn(len(f.proxyPool))]
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
